/**
 * @description
 * Payment-to-accounting synchronization. For one completed payment the saga
 * finds or creates the paying parent as a customer, raises one invoice for the
 * paid fees and records the payment against that invoice. Each step runs once;
 * a failure stops the saga and is reported with the ids created so far.
 * Nothing already committed remotely is undone.
 *
 * @dependencies
 * - pkg/quickbooks: Accounting API request types.
 * - github.com/shopspring/decimal: Payment amounts.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/schoolfees/payment-service/internal/domain"
	"github.com/schoolfees/payment-service/pkg/quickbooks"
	"github.com/shopspring/decimal"
)

// ErrAccountingDisabled is returned by admin reads when no accounting
// company is connected.
var ErrAccountingDisabled = errors.New("accounting integration is not connected")

const stepLoadCredentials = "load credentials"

// AccountingClient is the subset of the accounting API used by the service.
type AccountingClient interface {
	FindCustomer(ctx context.Context, term string) (string, error)
	CreateCustomer(ctx context.Context, in quickbooks.CustomerInput) (string, error)
	CreateInvoice(ctx context.Context, in quickbooks.InvoiceInput) (string, error)
	RecordPayment(ctx context.Context, invoiceID string, amount decimal.Decimal, method string) (string, error)
	ListCustomerInvoices(ctx context.Context, customerID string) ([]quickbooks.Invoice, error)
	ListCustomerPayments(ctx context.Context, customerID string) ([]quickbooks.Payment, error)
}

// ClientFactory builds a client bound to one credential.
type ClientFactory func(cred domain.Credential) AccountingClient

// CredentialSource provides the current accounting credential.
type CredentialSource interface {
	Load(ctx context.Context) (domain.Credential, bool, error)
}

// NewQuickBooksClientFactory returns a factory producing QuickBooks clients.
func NewQuickBooksClientFactory(cfg quickbooks.Config) ClientFactory {
	return func(cred domain.Credential) AccountingClient {
		return quickbooks.New(cfg, cred.RealmID, cred.AccessToken)
	}
}

// AccountingSync runs the synchronization saga.
type AccountingSync struct {
	creds     CredentialSource
	newClient ClientFactory
	logger    *slog.Logger
}

func NewAccountingSync(creds CredentialSource, newClient ClientFactory, logger *slog.Logger) *AccountingSync {
	return &AccountingSync{
		creds:     creds,
		newClient: newClient,
		logger:    logger.With("component", "accounting_sync"),
	}
}

// SyncPayment is the guarded entry point: without a stored credential it
// returns a disabled result and never builds a client.
func (a *AccountingSync) SyncPayment(ctx context.Context, req domain.SyncRequest) domain.SyncResult {
	cred, ok, err := a.creds.Load(ctx)
	if err != nil {
		a.logger.Error("failed to load accounting credential", "payment_id", req.PaymentID, "error", err)
		return domain.SyncResult{
			Status: domain.SyncFailed,
			Step:   stepLoadCredentials,
			Error:  stepLoadCredentials + ": " + err.Error(),
		}
	}
	if !ok {
		a.logger.Debug("accounting sync disabled; no credential", "payment_id", req.PaymentID)
		return domain.SyncResult{Status: domain.SyncDisabled}
	}
	if len(req.Items) == 0 {
		a.logger.Info("accounting sync skipped; no fee items", "payment_id", req.PaymentID)
		return domain.SyncResult{Status: domain.SyncSkipped}
	}
	return a.Run(ctx, cred, req)
}

// Run executes the saga with a client bound to cred.
func (a *AccountingSync) Run(ctx context.Context, cred domain.Credential, req domain.SyncRequest) domain.SyncResult {
	client := a.newClient(cred)
	var result domain.SyncResult

	fail := func(step string, err error) domain.SyncResult {
		result.Status = domain.SyncFailed
		result.Step = step
		result.Error = fmt.Sprintf("%s: %v", step, err)
		a.logger.Warn("accounting sync failed",
			"payment_id", req.PaymentID,
			"step", step,
			"customer_id", result.CustomerID,
			"invoice_id", result.InvoiceID,
			"error", err,
		)
		return result
	}

	term := customerSearchTerm(req.Parent)
	if term != "" {
		customerID, err := client.FindCustomer(ctx, term)
		if err != nil {
			return fail(domain.StepFindCustomer, err)
		}
		result.CustomerID = customerID
	}

	if result.CustomerID == "" {
		customerID, err := client.CreateCustomer(ctx, quickbooks.CustomerInput{
			FirstName:  req.Parent.FirstName,
			MiddleName: req.Parent.MiddleName,
			LastName:   req.Parent.LastName,
			Email:      req.Parent.Email,
			Phone:      req.Parent.Phone,
		})
		if err != nil {
			return fail(domain.StepCreateCustomer, err)
		}
		result.CustomerID = customerID
	}

	invoiceID, err := client.CreateInvoice(ctx, invoiceInput(result.CustomerID, req))
	if err != nil {
		return fail(domain.StepCreateInvoice, err)
	}
	result.InvoiceID = invoiceID

	paymentID, err := client.RecordPayment(ctx, invoiceID, req.Total(), req.Method)
	if err != nil {
		return fail(domain.StepRecordPayment, err)
	}
	result.PaymentID = paymentID
	result.Status = domain.SyncSucceeded

	a.logger.Info("accounting sync succeeded",
		"payment_id", req.PaymentID,
		"customer_id", result.CustomerID,
		"invoice_id", result.InvoiceID,
		"accounting_payment_id", result.PaymentID,
	)
	return result
}

// CustomerInvoices lists invoices recorded for an accounting customer.
func (a *AccountingSync) CustomerInvoices(ctx context.Context, customerID string) ([]quickbooks.Invoice, error) {
	client, err := a.connectedClient(ctx)
	if err != nil {
		return nil, err
	}
	return client.ListCustomerInvoices(ctx, customerID)
}

// CustomerPayments lists payments recorded for an accounting customer.
func (a *AccountingSync) CustomerPayments(ctx context.Context, customerID string) ([]quickbooks.Payment, error) {
	client, err := a.connectedClient(ctx)
	if err != nil {
		return nil, err
	}
	return client.ListCustomerPayments(ctx, customerID)
}

func (a *AccountingSync) connectedClient(ctx context.Context) (AccountingClient, error) {
	cred, ok, err := a.creds.Load(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAccountingDisabled
	}
	return a.newClient(cred), nil
}

func customerSearchTerm(parent domain.Parent) string {
	if parent.Email != "" {
		return parent.Email
	}
	return parent.Phone
}

func invoiceInput(customerID string, req domain.SyncRequest) quickbooks.InvoiceInput {
	lines := make([]quickbooks.InvoiceLine, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, quickbooks.InvoiceLine{
			Amount:      item.Amount,
			DueDate:     item.DueDate,
			FeeTypeName: item.FeeTypeName,
		})
	}
	return quickbooks.InvoiceInput{
		CustomerID:   customerID,
		StudentCode:  req.Student.StudentCode,
		StudentFirst: req.Student.FirstName,
		StudentLast:  req.Student.LastName,
		Grade:        req.Student.Grade,
		Lines:        lines,
	}
}
