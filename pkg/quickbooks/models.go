package quickbooks

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// ID is an accounting entity id. The API sends ids as strings, but numeric
// ids are accepted too.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// Entity is the minimal shape shared by every accounting record.
type Entity struct {
	ID ID `json:"Id"`
}

// Reference points at another entity, e.g. the customer on an invoice.
type Reference struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
}

// Invoice is an invoice as returned by the query endpoint.
type Invoice struct {
	ID          ID              `json:"Id"`
	DocNumber   string          `json:"DocNumber,omitempty"`
	TxnDate     string          `json:"TxnDate,omitempty"`
	DueDate     string          `json:"DueDate,omitempty"`
	TotalAmt    decimal.Decimal `json:"TotalAmt"`
	Balance     decimal.Decimal `json:"Balance"`
	CustomerRef Reference       `json:"CustomerRef"`
	PrivateNote string          `json:"PrivateNote,omitempty"`
}

// Payment is a received payment as returned by the query endpoint.
type Payment struct {
	ID            ID              `json:"Id"`
	PaymentRefNum string          `json:"PaymentRefNum,omitempty"`
	TxnDate       string          `json:"TxnDate,omitempty"`
	TotalAmt      decimal.Decimal `json:"TotalAmt"`
	CustomerRef   Reference       `json:"CustomerRef"`
}
