/**
 * @description
 * This package provides a client for the QuickBooks Online accounting API. A
 * Client is bound to one company (realm) and one access token; callers build a
 * new Client whenever the stored credential changes.
 *
 * @dependencies
 * - github.com/shopspring/decimal: Money amounts in request payloads.
 */
package quickbooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

const (
	dateLayout         = "2006-01-02"
	maxDocNumberLength = 21
	defaultLineLabel   = "School Fee"
)

// docSequence feeds document and payment reference numbers. Seeded from the
// clock so references stay unique across restarts.
var docSequence atomic.Int64

func init() {
	docSequence.Store(time.Now().UnixMilli())
}

// Address is the billing address sent with new customers.
type Address struct {
	Line1   string `json:"Line1,omitempty"`
	City    string `json:"City,omitempty"`
	Country string `json:"Country,omitempty"`
}

// Config holds endpoint settings and the business defaults used when input
// records are incomplete.
type Config struct {
	BaseURL                string
	Timeout                time.Duration
	PlaceholderEmailDomain string
	PlaceholderPhone       string
	DefaultDueToday        bool
	ItemRef                string
	DepositAccountRef      string
	PaymentMethodRefs      map[string]string
	BillAddress            Address
	Now                    func() time.Time
}

// Client is a client for one accounting company.
type Client struct {
	BaseURL     string
	RealmID     string
	AccessToken string
	HTTPClient  *http.Client
	cfg         Config
}

// New creates a client bound to realmID using accessToken for bearer auth.
func New(cfg Config, realmID, accessToken string) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Client{
		BaseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		RealmID:     realmID,
		AccessToken: accessToken,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		cfg: cfg,
	}
}

// CustomerInput is the party a customer record is created for.
type CustomerInput struct {
	FirstName  string
	MiddleName string
	LastName   string
	Email      string
	Phone      string
}

// InvoiceLine is one billed fee.
type InvoiceLine struct {
	Amount      decimal.Decimal
	DueDate     *time.Time
	FeeTypeName string
}

// InvoiceInput describes the invoice raised for one student payment.
type InvoiceInput struct {
	CustomerID   string
	StudentCode  string
	StudentFirst string
	StudentLast  string
	Grade        string
	Lines        []InvoiceLine
}

type ref struct {
	Value string `json:"value"`
}

type customerPayload struct {
	DisplayName      string  `json:"DisplayName"`
	CompanyName      string  `json:"CompanyName,omitempty"`
	GivenName        string  `json:"GivenName,omitempty"`
	MiddleName       string  `json:"MiddleName,omitempty"`
	FamilyName       string  `json:"FamilyName,omitempty"`
	PrimaryEmailAddr emailV  `json:"PrimaryEmailAddr"`
	PrimaryPhone     phoneV  `json:"PrimaryPhone"`
	BillAddr         Address `json:"BillAddr"`
}

type emailV struct {
	Address string `json:"Address"`
}

type phoneV struct {
	FreeFormNumber string `json:"FreeFormNumber"`
}

type salesItemLineDetail struct {
	ItemRef   ref         `json:"ItemRef"`
	Qty       int         `json:"Qty"`
	UnitPrice json.Number `json:"UnitPrice"`
}

type invoiceLinePayload struct {
	DetailType          string              `json:"DetailType"`
	Amount              json.Number         `json:"Amount"`
	Description         string              `json:"Description"`
	SalesItemLineDetail salesItemLineDetail `json:"SalesItemLineDetail"`
}

type invoicePayload struct {
	CustomerRef ref                  `json:"CustomerRef"`
	Line        []invoiceLinePayload `json:"Line"`
	TxnDate     string               `json:"TxnDate"`
	DueDate     string               `json:"DueDate,omitempty"`
	DocNumber   string               `json:"DocNumber"`
	PrivateNote string               `json:"PrivateNote,omitempty"`
}

type linkedTxn struct {
	TxnID   string `json:"TxnId"`
	TxnType string `json:"TxnType"`
}

type paymentLinePayload struct {
	Amount    json.Number `json:"Amount"`
	LinkedTxn []linkedTxn `json:"LinkedTxn"`
}

type paymentPayload struct {
	PaymentRefNum       string               `json:"PaymentRefNum"`
	TotalAmt            json.Number          `json:"TotalAmt"`
	TxnDate             string               `json:"TxnDate"`
	PaymentMethodRef    *ref                 `json:"PaymentMethodRef,omitempty"`
	DepositToAccountRef *ref                 `json:"DepositToAccountRef,omitempty"`
	Line                []paymentLinePayload `json:"Line"`
}

// FindCustomer returns the id of the first customer whose email or phone
// equals term. No match yields an empty id and a nil error.
func (c *Client) FindCustomer(ctx context.Context, term string) (string, error) {
	query, err := Select("Customer").
		Where(Eq("PrimaryEmailAddr.Address", term)).
		Or(Eq("PrimaryPhone.FreeFormNumber", term)).
		Build()
	if err != nil {
		return "", &APIError{Op: "find customer", Message: err.Error(), Err: err}
	}

	var resp struct {
		QueryResponse struct {
			Customer []Entity `json:"Customer"`
		} `json:"QueryResponse"`
	}
	if err := c.query(ctx, "find customer", "customers", query, &resp); err != nil {
		return "", err
	}
	if len(resp.QueryResponse.Customer) == 0 {
		return "", nil
	}
	return string(resp.QueryResponse.Customer[0].ID), nil
}

// CreateCustomer creates a customer for the party, substituting placeholder
// contact details when email or phone is missing.
func (c *Client) CreateCustomer(ctx context.Context, in CustomerInput) (string, error) {
	payload := customerPayload{
		DisplayName:      strings.TrimSpace(in.FirstName + " " + in.LastName),
		CompanyName:      in.LastName,
		GivenName:        in.FirstName,
		MiddleName:       in.MiddleName,
		FamilyName:       in.LastName,
		PrimaryEmailAddr: emailV{Address: c.customerEmail(in)},
		PrimaryPhone:     phoneV{FreeFormNumber: c.customerPhone(in)},
		BillAddr:         c.cfg.BillAddress,
	}
	return c.create(ctx, "create customer", "customers", "Customer", payload)
}

// CreateInvoice raises one invoice with a line per fee.
func (c *Client) CreateInvoice(ctx context.Context, in InvoiceInput) (string, error) {
	today := c.cfg.Now().Format(dateLayout)
	studentLabel := fmt.Sprintf("%s %s (%s)", in.StudentFirst, in.StudentLast, in.Grade)

	lines := make([]invoiceLinePayload, 0, len(in.Lines))
	for _, line := range in.Lines {
		label := strings.TrimSpace(line.FeeTypeName)
		if label == "" {
			label = defaultLineLabel
		}
		lines = append(lines, invoiceLinePayload{
			DetailType:  "SalesItemLineDetail",
			Amount:      amountNumber(line.Amount),
			Description: label + " - " + studentLabel,
			SalesItemLineDetail: salesItemLineDetail{
				ItemRef:   ref{Value: c.cfg.ItemRef},
				Qty:       1,
				UnitPrice: amountNumber(line.Amount),
			},
		})
	}

	payload := invoicePayload{
		CustomerRef: ref{Value: in.CustomerID},
		Line:        lines,
		TxnDate:     today,
		DocNumber:   DocNumber(in.StudentCode, docSequence.Add(1)),
		PrivateNote: fmt.Sprintf("School fees for %s %s - %s", in.StudentFirst, in.StudentLast, in.Grade),
	}
	if len(in.Lines) > 0 && in.Lines[0].DueDate != nil {
		payload.DueDate = in.Lines[0].DueDate.Format(dateLayout)
	} else if c.cfg.DefaultDueToday {
		payload.DueDate = today
	}

	return c.create(ctx, "create invoice", "invoices", "Invoice", payload)
}

// RecordPayment records amount against exactly one invoice. An empty method
// is treated as cash.
func (c *Client) RecordPayment(ctx context.Context, invoiceID string, amount decimal.Decimal, method string) (string, error) {
	method = strings.ToLower(strings.TrimSpace(method))
	if method == "" {
		method = "cash"
	}

	payload := paymentPayload{
		PaymentRefNum: "PAY-" + strconv.FormatInt(docSequence.Add(1), 36),
		TotalAmt:      amountNumber(amount),
		TxnDate:       c.cfg.Now().Format(dateLayout),
		Line: []paymentLinePayload{{
			Amount:    amountNumber(amount),
			LinkedTxn: []linkedTxn{{TxnID: invoiceID, TxnType: "Invoice"}},
		}},
	}
	if methodRef, ok := c.cfg.PaymentMethodRefs[method]; ok && methodRef != "" {
		payload.PaymentMethodRef = &ref{Value: methodRef}
	}
	if c.cfg.DepositAccountRef != "" {
		payload.DepositToAccountRef = &ref{Value: c.cfg.DepositAccountRef}
	}

	return c.create(ctx, "record payment", "payments", "Payment", payload)
}

// ListCustomerInvoices returns the invoices raised against a customer.
func (c *Client) ListCustomerInvoices(ctx context.Context, customerID string) ([]Invoice, error) {
	query, err := Select("Invoice").Where(Eq("CustomerRef", customerID)).Build()
	if err != nil {
		return nil, &APIError{Op: "list invoices", Message: err.Error(), Err: err}
	}
	var resp struct {
		QueryResponse struct {
			Invoice []Invoice `json:"Invoice"`
		} `json:"QueryResponse"`
	}
	if err := c.query(ctx, "list invoices", "invoices", query, &resp); err != nil {
		return nil, err
	}
	return resp.QueryResponse.Invoice, nil
}

// ListCustomerPayments returns the payments recorded for a customer.
func (c *Client) ListCustomerPayments(ctx context.Context, customerID string) ([]Payment, error) {
	query, err := Select("Payment").Where(Eq("CustomerRef", customerID)).Build()
	if err != nil {
		return nil, &APIError{Op: "list payments", Message: err.Error(), Err: err}
	}
	var resp struct {
		QueryResponse struct {
			Payment []Payment `json:"Payment"`
		} `json:"QueryResponse"`
	}
	if err := c.query(ctx, "list payments", "payments", query, &resp); err != nil {
		return nil, err
	}
	return resp.QueryResponse.Payment, nil
}

func amountNumber(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

// DocNumber renders an invoice document number for a student code. The
// sequence suffix is kept whole; the code is shortened to fit the limit.
func DocNumber(studentCode string, seq int64) string {
	suffix := strconv.FormatInt(seq, 36)
	code := strings.TrimSpace(studentCode)
	room := maxDocNumberLength - len("INV-") - len("-") - len(suffix)
	if room < 0 {
		room = 0
	}
	if len(code) > room {
		code = code[:room]
	}
	return "INV-" + code + "-" + suffix
}

func (c *Client) customerEmail(in CustomerInput) string {
	if email := strings.TrimSpace(in.Email); email != "" {
		return email
	}
	return fmt.Sprintf("%s.%s@%s", strings.ToLower(in.FirstName), strings.ToLower(in.LastName), c.cfg.PlaceholderEmailDomain)
}

func (c *Client) customerPhone(in CustomerInput) string {
	if phone := strings.TrimSpace(in.Phone); phone != "" {
		return phone
	}
	return c.cfg.PlaceholderPhone
}

func (c *Client) endpoint(resource string) string {
	return fmt.Sprintf("%s/company/%s/%s", c.BaseURL, url.PathEscape(c.RealmID), resource)
}

func (c *Client) create(ctx context.Context, op, resource, entity string, payload interface{}) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", &APIError{Op: op, Message: fmt.Sprintf("failed to marshal %s request: %v", entity, err), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(resource), bytes.NewReader(body))
	if err != nil {
		return "", newTransportError(op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	respBody, err := c.do(req, op)
	if err != nil {
		return "", err
	}

	id := extractID(respBody, entity)
	if id == "" {
		return "", &APIError{Op: op, Message: fmt.Sprintf("quickbooks %s: response did not include a %s id", op, entity)}
	}
	return id, nil
}

func (c *Client) query(ctx context.Context, op, resource, statement string, out interface{}) error {
	endpoint := c.endpoint(resource) + "?query=" + url.QueryEscape(statement)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return newTransportError(op, err)
	}

	respBody, err := c.do(req, op)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &APIError{Op: op, Message: fmt.Sprintf("quickbooks %s: malformed response: %v", op, err), Err: err}
	}
	return nil
}

func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, newTransportError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newTransportError(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := newResponseError(op, resp.StatusCode, body)
		log.Printf("level=warn component=quickbooks_client op=%q realm=%s status=%d msg=%q", op, c.RealmID, resp.StatusCode, apiErr.Message)
		return nil, apiErr
	}
	return body, nil
}

// extractID accepts {"<Entity>":{"Id":..}}, {"Id":..} and
// {"QueryResponse":{"<Entity>":[{"Id":..}]}}.
func extractID(body []byte, entity string) string {
	var envelope map[string]json.RawMessage
	if json.Unmarshal(body, &envelope) != nil {
		return ""
	}

	if raw, ok := envelope[entity]; ok {
		var e Entity
		if json.Unmarshal(raw, &e) == nil && e.ID != "" {
			return string(e.ID)
		}
	}
	if raw, ok := envelope["Id"]; ok {
		var id ID
		if json.Unmarshal(raw, &id) == nil && id != "" {
			return string(id)
		}
	}
	if raw, ok := envelope["QueryResponse"]; ok {
		var qr map[string]json.RawMessage
		if json.Unmarshal(raw, &qr) != nil {
			return ""
		}
		var list []Entity
		if json.Unmarshal(qr[entity], &list) == nil && len(list) > 0 {
			return string(list[0].ID)
		}
	}
	return ""
}
