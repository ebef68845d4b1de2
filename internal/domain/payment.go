package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MakePaymentRequest is the DTO for a portal payment covering one or more fees.
type MakePaymentRequest struct {
	StudentID     uuid.UUID            `json:"student_id"`
	ParentID      *uuid.UUID           `json:"parent_id,omitempty"`
	TotalAmount   decimal.Decimal      `json:"total_amount"`
	PaymentMethod string               `json:"payment_method,omitempty"`
	Items         []PaymentItemRequest `json:"items"`
}

type PaymentItemRequest struct {
	FeeID  uuid.UUID       `json:"fee_id"`
	Amount decimal.Decimal `json:"amount"`
}

// PaymentResult is returned once the payment is committed. Success is true
// whenever the primary record exists, whatever the accounting outcome.
type PaymentResult struct {
	Success       bool        `json:"success"`
	TransactionID uuid.UUID   `json:"transaction_id"`
	Payment       *Payment    `json:"payment"`
	Accounting    *SyncResult `json:"accounting"`
}

// RequestFeeRequest asks the school to attach a new fee to a student.
type RequestFeeRequest struct {
	FeeTypeID      uuid.UUID       `json:"fee_type_id"`
	AcademicYearID *uuid.UUID      `json:"academic_year_id,omitempty"`
	AcademicTermID *uuid.UUID      `json:"academic_term_id,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	DueDate        *time.Time      `json:"due_date,omitempty"`
}

// PaymentEvent is published after a payment commits.
type PaymentEvent struct {
	PaymentID     uuid.UUID       `json:"payment_id"`
	StudentID     uuid.UUID       `json:"student_id"`
	ParentID      uuid.UUID       `json:"parent_id"`
	Amount        decimal.Decimal `json:"amount"`
	ReceiptNumber string          `json:"receipt_number"`
	Timestamp     time.Time       `json:"timestamp"`
}

// AccountingSyncEvent is published with the outcome of each synchronization.
type AccountingSyncEvent struct {
	PaymentID uuid.UUID  `json:"payment_id"`
	Result    SyncResult `json:"result"`
	Manual    bool       `json:"manual"`
	Timestamp time.Time  `json:"timestamp"`
}
