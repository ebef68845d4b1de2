/**
 * @description
 * Types shared by the accounting synchronization workflow: the stored
 * connection credential, the line items sent for invoicing and the outcome
 * reported back to callers.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Credential is the OAuth material for the connected accounting company.
type Credential struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	RealmID      string `json:"realm_id"`
	CompanyID    string `json:"company_id"`
}

// Connected reports whether the credential can be used for API calls.
func (c Credential) Connected() bool {
	return c.AccessToken != "" && c.RealmID != ""
}

// BillLineItem is one fee billed on the accounting invoice.
type BillLineItem struct {
	FeeID       uuid.UUID       `json:"fee_id"`
	Amount      decimal.Decimal `json:"amount"`
	DueDate     *time.Time      `json:"due_date,omitempty"`
	FeeTypeName string          `json:"fee_type_name,omitempty"`
}

// SyncRequest carries everything the saga needs for one completed payment.
type SyncRequest struct {
	PaymentID uuid.UUID
	Parent    Parent
	Student   Student
	Items     []BillLineItem
	Method    string
}

// Total sums the line item amounts.
func (r SyncRequest) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range r.Items {
		total = total.Add(item.Amount)
	}
	return total
}

type SyncStatus string

const (
	SyncSucceeded SyncStatus = "succeeded"
	SyncFailed    SyncStatus = "failed"
	SyncDisabled  SyncStatus = "disabled"
	SyncSkipped   SyncStatus = "skipped"
)

// Saga step names reported in failed results.
const (
	StepFindCustomer   = "find customer"
	StepCreateCustomer = "create customer"
	StepCreateInvoice  = "create invoice"
	StepRecordPayment  = "record payment"
)

// SyncResult is the outcome of one synchronization attempt. Ids of steps that
// completed before a failure are kept.
type SyncResult struct {
	Status     SyncStatus `json:"status"`
	Step       string     `json:"step,omitempty"`
	CustomerID string     `json:"customer_id,omitempty"`
	InvoiceID  string     `json:"invoice_id,omitempty"`
	PaymentID  string     `json:"payment_id,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Succeeded reports whether all three remote records were created or found.
func (r SyncResult) Succeeded() bool {
	return r.Status == SyncSucceeded
}
