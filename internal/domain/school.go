/**
 * @description
 * Core school records served by the payment portal: parents, students, the fee
 * catalog and the fees and payments attached to each student.
 *
 * @notes
 * - Money is carried as decimal.Decimal in the school's currency (major units).
 */

package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Fee statuses stored in student_fees.status.
const (
	FeeStatusPending = "pending"
	FeeStatusPartial = "partial"
	FeeStatusPaid    = "paid"
	FeeStatusOverdue = "overdue"
)

// Payment statuses and methods stored in payments.
const (
	PaymentStatusCompleted = "completed"
	PaymentMethodOnline    = "online"
)

// Parent is the paying party. It maps to the `parents` table.
type Parent struct {
	ID         uuid.UUID `json:"id"`
	FirstName  string    `json:"first_name"`
	MiddleName string    `json:"middle_name,omitempty"`
	LastName   string    `json:"last_name"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// DisplayName joins the non-empty name parts.
func (p Parent) DisplayName() string {
	return joinName(p.FirstName, p.MiddleName, p.LastName)
}

// Student is the beneficiary of a payment. It maps to the `students` table.
type Student struct {
	ID          uuid.UUID       `json:"id"`
	ParentID    uuid.UUID       `json:"parent_id"`
	StudentCode string          `json:"student_id"`
	FirstName   string          `json:"first_name"`
	MiddleName  string          `json:"middle_name,omitempty"`
	LastName    string          `json:"last_name"`
	Grade       string          `json:"grade"`
	Balance     decimal.Decimal `json:"balance"`
	CreatedAt   time.Time       `json:"created_at"`
}

// DisplayName joins the non-empty name parts.
func (s Student) DisplayName() string {
	return joinName(s.FirstName, s.MiddleName, s.LastName)
}

type FeeType struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
}

type AcademicYear struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	IsCurrent bool      `json:"is_current"`
}

type AcademicTerm struct {
	ID             uuid.UUID `json:"id"`
	AcademicYearID uuid.UUID `json:"academic_year_id"`
	Name           string    `json:"name"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
}

// StudentFee is a single fee charged to a student. It maps to `student_fees`
// joined with its fee type, academic year and term.
type StudentFee struct {
	ID               uuid.UUID       `json:"id"`
	StudentID        uuid.UUID       `json:"student_id"`
	FeeTypeID        uuid.UUID       `json:"fee_type_id"`
	FeeTypeName      string          `json:"fee_type_name,omitempty"`
	AcademicYearID   *uuid.UUID      `json:"academic_year_id,omitempty"`
	AcademicYearName string          `json:"academic_year_name,omitempty"`
	AcademicTermID   *uuid.UUID      `json:"academic_term_id,omitempty"`
	AcademicTermName string          `json:"academic_term_name,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	PaidAmount       decimal.Decimal `json:"paid_amount"`
	DueDate          *time.Time      `json:"due_date,omitempty"`
	Status           string          `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Outstanding is the unpaid remainder of the fee, never negative.
func (f StudentFee) Outstanding() decimal.Decimal {
	remaining := f.Amount.Sub(f.PaidAmount)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// Payment is the authoritative record of money received. It maps to `payments`.
type Payment struct {
	ID            uuid.UUID       `json:"id"`
	StudentID     uuid.UUID       `json:"student_id"`
	ParentID      uuid.UUID       `json:"parent_id"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	ReceiptNumber string          `json:"receipt_number"`
	PaymentMethod string          `json:"payment_method"`
	Status        string          `json:"status"`
	PaymentDate   time.Time       `json:"payment_date"`
	Items         []PaymentItem   `json:"items,omitempty"`
}

// PaymentItem records how much of a payment settled one student fee.
type PaymentItem struct {
	PaymentID uuid.UUID       `json:"payment_id"`
	FeeID     uuid.UUID       `json:"fee_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// LookupResult is what a portal search resolves to: the parent and the
// children they may pay for.
type LookupResult struct {
	Parent   *Parent   `json:"parent"`
	Students []Student `json:"students"`
}

func joinName(parts ...string) string {
	var kept []string
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, " ")
}
