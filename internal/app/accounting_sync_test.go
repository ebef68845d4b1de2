package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/schoolfees/payment-service/internal/domain"
	"github.com/schoolfees/payment-service/pkg/quickbooks"
	"github.com/shopspring/decimal"
)

type accountingClientStub struct {
	mu sync.Mutex

	foundCustomerID string
	findErr         error
	createCustErr   error
	invoiceErr      error
	paymentErr      error

	calls        []string
	findTerm     string
	customerIn   quickbooks.CustomerInput
	invoiceIn    quickbooks.InvoiceInput
	payInvoiceID string
	payAmount    decimal.Decimal
}

func (s *accountingClientStub) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *accountingClientStub) FindCustomer(ctx context.Context, term string) (string, error) {
	s.record("find")
	s.findTerm = term
	if s.findErr != nil {
		return "", s.findErr
	}
	return s.foundCustomerID, nil
}

func (s *accountingClientStub) CreateCustomer(ctx context.Context, in quickbooks.CustomerInput) (string, error) {
	s.record("create_customer")
	s.customerIn = in
	if s.createCustErr != nil {
		return "", s.createCustErr
	}
	return "CUST-NEW", nil
}

func (s *accountingClientStub) CreateInvoice(ctx context.Context, in quickbooks.InvoiceInput) (string, error) {
	s.record("create_invoice")
	s.invoiceIn = in
	if s.invoiceErr != nil {
		return "", s.invoiceErr
	}
	return "INV-1", nil
}

func (s *accountingClientStub) RecordPayment(ctx context.Context, invoiceID string, amount decimal.Decimal, method string) (string, error) {
	s.record("record_payment")
	s.payInvoiceID = invoiceID
	s.payAmount = amount
	if s.paymentErr != nil {
		return "", s.paymentErr
	}
	return "PAY-1", nil
}

func (s *accountingClientStub) ListCustomerInvoices(ctx context.Context, customerID string) ([]quickbooks.Invoice, error) {
	s.record("list_invoices")
	return []quickbooks.Invoice{{ID: "INV-1", CustomerRef: quickbooks.Reference{Value: customerID}}}, nil
}

func (s *accountingClientStub) ListCustomerPayments(ctx context.Context, customerID string) ([]quickbooks.Payment, error) {
	s.record("list_payments")
	return nil, nil
}

type credentialSourceStub struct {
	cred domain.Credential
	ok   bool
	err  error
}

func (s credentialSourceStub) Load(ctx context.Context) (domain.Credential, bool, error) {
	return s.cred, s.ok, s.err
}

var connectedCred = domain.Credential{AccessToken: "token", RefreshToken: "refresh", RealmID: "realm-1"}

func newTestSync(creds CredentialSource, client *accountingClientStub) (*AccountingSync, *int) {
	built := 0
	factory := func(cred domain.Credential) AccountingClient {
		built++
		return client
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAccountingSync(creds, factory, logger), &built
}

func testSyncRequest(amounts ...string) domain.SyncRequest {
	items := make([]domain.BillLineItem, 0, len(amounts))
	for _, a := range amounts {
		items = append(items, domain.BillLineItem{FeeID: uuid.New(), Amount: decimal.RequireFromString(a), FeeTypeName: "Tuition"})
	}
	return domain.SyncRequest{
		PaymentID: uuid.New(),
		Parent:    domain.Parent{FirstName: "Jane", LastName: "Doe", Email: "a@x.com", Phone: "+260 977 000 111"},
		Student:   domain.Student{StudentCode: "STU001", FirstName: "Tom", LastName: "Doe", Grade: "5"},
		Items:     items,
	}
}

func TestSyncPayment_ExistingCustomer(t *testing.T) {
	client := &accountingClientStub{foundCustomerID: "C42"}
	syncer, _ := newTestSync(credentialSourceStub{cred: connectedCred, ok: true}, client)

	result := syncer.SyncPayment(context.Background(), testSyncRequest("500"))

	if result.Status != domain.SyncSucceeded {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.CustomerID != "C42" || result.InvoiceID != "INV-1" || result.PaymentID != "PAY-1" {
		t.Fatalf("unexpected ids %+v", result)
	}
	if client.findTerm != "a@x.com" {
		t.Fatalf("expected lookup by email, got %q", client.findTerm)
	}
	if strings.Join(client.calls, ",") != "find,create_invoice,record_payment" {
		t.Fatalf("unexpected call order %v", client.calls)
	}
	if client.invoiceIn.CustomerID != "C42" {
		t.Fatalf("invoice bound to wrong customer %q", client.invoiceIn.CustomerID)
	}
	if client.payInvoiceID != "INV-1" || !client.payAmount.Equal(decimal.RequireFromString("500")) {
		t.Fatalf("payment linked to %q for %s", client.payInvoiceID, client.payAmount)
	}
}

func TestSyncPayment_CreatesCustomerWhenNotFound(t *testing.T) {
	client := &accountingClientStub{}
	syncer, _ := newTestSync(credentialSourceStub{cred: connectedCred, ok: true}, client)

	result := syncer.SyncPayment(context.Background(), testSyncRequest("300", "200"))

	if !result.Succeeded() {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.CustomerID != "CUST-NEW" {
		t.Fatalf("expected created customer id, got %q", result.CustomerID)
	}
	if client.customerIn.FirstName != "Jane" || client.customerIn.Email != "a@x.com" {
		t.Fatalf("unexpected customer input %+v", client.customerIn)
	}
	if len(client.invoiceIn.Lines) != 2 {
		t.Fatalf("expected 2 invoice lines, got %d", len(client.invoiceIn.Lines))
	}
	if !client.payAmount.Equal(decimal.RequireFromString("500")) {
		t.Fatalf("expected payment of the line total, got %s", client.payAmount)
	}
}

func TestSyncPayment_SearchesByPhoneWithoutEmail(t *testing.T) {
	client := &accountingClientStub{foundCustomerID: "C7"}
	syncer, _ := newTestSync(credentialSourceStub{cred: connectedCred, ok: true}, client)

	req := testSyncRequest("100")
	req.Parent.Email = ""
	syncer.SyncPayment(context.Background(), req)

	if client.findTerm != "+260 977 000 111" {
		t.Fatalf("expected lookup by phone, got %q", client.findTerm)
	}
}

func TestSyncPayment_NoContactCreatesCustomerDirectly(t *testing.T) {
	client := &accountingClientStub{foundCustomerID: "never"}
	syncer, _ := newTestSync(credentialSourceStub{cred: connectedCred, ok: true}, client)

	req := testSyncRequest("100")
	req.Parent.Email = ""
	req.Parent.Phone = ""
	result := syncer.SyncPayment(context.Background(), req)

	if result.CustomerID != "CUST-NEW" {
		t.Fatalf("expected a new customer, got %+v", result)
	}
	if client.calls[0] != "create_customer" {
		t.Fatalf("expected no lookup, got calls %v", client.calls)
	}
}

func TestSyncPayment_StopsAtFailingStep(t *testing.T) {
	tests := []struct {
		name      string
		client    *accountingClientStub
		wantStep  string
		wantCust  string
		wantInv   string
		wantCalls string
	}{
		{
			name:      "find customer",
			client:    &accountingClientStub{findErr: errors.New("unauthorized")},
			wantStep:  domain.StepFindCustomer,
			wantCalls: "find",
		},
		{
			name:      "create customer",
			client:    &accountingClientStub{createCustErr: errors.New("duplicate name")},
			wantStep:  domain.StepCreateCustomer,
			wantCalls: "find,create_customer",
		},
		{
			name:      "create invoice",
			client:    &accountingClientStub{foundCustomerID: "C42", invoiceErr: errors.New("rate limited")},
			wantStep:  domain.StepCreateInvoice,
			wantCust:  "C42",
			wantCalls: "find,create_invoice",
		},
		{
			name:      "record payment",
			client:    &accountingClientStub{foundCustomerID: "C42", paymentErr: errors.New("account closed")},
			wantStep:  domain.StepRecordPayment,
			wantCust:  "C42",
			wantInv:   "INV-1",
			wantCalls: "find,create_invoice,record_payment",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syncer, _ := newTestSync(credentialSourceStub{cred: connectedCred, ok: true}, tt.client)

			result := syncer.SyncPayment(context.Background(), testSyncRequest("500"))

			if result.Status != domain.SyncFailed {
				t.Fatalf("expected failure, got %+v", result)
			}
			if result.Step != tt.wantStep {
				t.Fatalf("expected step %q, got %q", tt.wantStep, result.Step)
			}
			if !strings.HasPrefix(result.Error, tt.wantStep+": ") {
				t.Fatalf("error %q does not name the step", result.Error)
			}
			if result.CustomerID != tt.wantCust || result.InvoiceID != tt.wantInv || result.PaymentID != "" {
				t.Fatalf("unexpected ids %+v", result)
			}
			if got := strings.Join(tt.client.calls, ","); got != tt.wantCalls {
				t.Fatalf("expected calls %q, got %q", tt.wantCalls, got)
			}
		})
	}
}

func TestSyncPayment_InvoiceFailureKeepsServiceMessage(t *testing.T) {
	client := &accountingClientStub{
		foundCustomerID: "C42",
		invoiceErr:      &quickbooks.APIError{Op: "create invoice", StatusCode: 429, Message: "rate limited"},
	}
	syncer, _ := newTestSync(credentialSourceStub{cred: connectedCred, ok: true}, client)

	result := syncer.SyncPayment(context.Background(), testSyncRequest("500"))

	if result.Error != "create invoice: rate limited" {
		t.Fatalf("unexpected error %q", result.Error)
	}
	if result.CustomerID != "C42" {
		t.Fatalf("expected customer id to be kept, got %q", result.CustomerID)
	}
}

func TestSyncPayment_DisabledWithoutCredential(t *testing.T) {
	client := &accountingClientStub{}
	syncer, built := newTestSync(credentialSourceStub{}, client)

	result := syncer.SyncPayment(context.Background(), testSyncRequest("500"))

	if result.Status != domain.SyncDisabled {
		t.Fatalf("expected disabled, got %+v", result)
	}
	if *built != 0 || len(client.calls) != 0 {
		t.Fatalf("expected no client activity, built=%d calls=%v", *built, client.calls)
	}
}

func TestSyncPayment_CredentialLoadFailure(t *testing.T) {
	client := &accountingClientStub{}
	syncer, built := newTestSync(credentialSourceStub{err: errors.New("connection refused")}, client)

	result := syncer.SyncPayment(context.Background(), testSyncRequest("500"))

	if result.Status != domain.SyncFailed || result.Step != "load credentials" {
		t.Fatalf("unexpected result %+v", result)
	}
	if *built != 0 {
		t.Fatal("expected no client to be built")
	}
}

func TestSyncPayment_SkipsWithoutItems(t *testing.T) {
	client := &accountingClientStub{}
	syncer, built := newTestSync(credentialSourceStub{cred: connectedCred, ok: true}, client)

	result := syncer.SyncPayment(context.Background(), testSyncRequest())

	if result.Status != domain.SyncSkipped {
		t.Fatalf("expected skipped, got %+v", result)
	}
	if *built != 0 {
		t.Fatal("expected no client to be built")
	}
}

func TestCustomerInvoices(t *testing.T) {
	t.Run("disconnected", func(t *testing.T) {
		syncer, _ := newTestSync(credentialSourceStub{}, &accountingClientStub{})
		if _, err := syncer.CustomerInvoices(context.Background(), "C42"); !errors.Is(err, ErrAccountingDisabled) {
			t.Fatalf("expected ErrAccountingDisabled, got %v", err)
		}
	})

	t.Run("connected", func(t *testing.T) {
		syncer, _ := newTestSync(credentialSourceStub{cred: connectedCred, ok: true}, &accountingClientStub{})
		invoices, err := syncer.CustomerInvoices(context.Background(), "C42")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(invoices) != 1 || invoices[0].CustomerRef.Value != "C42" {
			t.Fatalf("unexpected invoices %+v", invoices)
		}
	})
}
