package quickbooks

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// APIError is returned for every failed call: transport errors, non-2xx
// responses and 2xx responses without a usable entity id.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("quickbooks %s failed with status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("quickbooks %s failed", e.Op)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// faultEnvelope covers the two error shapes the accounting API returns:
// {"Fault":{"Error":[...]}} and {"error":{"message":...}} / {"error":"...","error_description":"..."}.
type faultEnvelope struct {
	Fault *struct {
		Error []struct {
			Message string `json:"Message"`
			Detail  string `json:"Detail"`
			Code    string `json:"code"`
		} `json:"Error"`
		Type string `json:"type"`
	} `json:"Fault"`
	Error            json.RawMessage `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

func newTransportError(op string, err error) *APIError {
	return &APIError{Op: op, Message: err.Error(), Err: err}
}

// newResponseError builds an APIError from a non-2xx response, preferring the
// description supplied by the service over generic status text.
func newResponseError(op string, statusCode int, body []byte) *APIError {
	apiErr := &APIError{Op: op, StatusCode: statusCode}
	if msg := serviceMessage(body); msg != "" {
		apiErr.Message = msg
		return apiErr
	}
	statusText := http.StatusText(statusCode)
	if statusText == "" {
		statusText = "unexpected status"
	}
	apiErr.Message = fmt.Sprintf("quickbooks %s failed: %d %s", op, statusCode, statusText)
	return apiErr
}

func serviceMessage(body []byte) string {
	var envelope faultEnvelope
	if len(body) == 0 || json.Unmarshal(body, &envelope) != nil {
		return ""
	}

	if envelope.Fault != nil && len(envelope.Fault.Error) > 0 {
		first := envelope.Fault.Error[0]
		if detail := strings.TrimSpace(first.Detail); detail != "" {
			return detail
		}
		if msg := strings.TrimSpace(first.Message); msg != "" {
			return msg
		}
	}

	if len(envelope.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(envelope.Error, &nested) == nil && strings.TrimSpace(nested.Message) != "" {
			return strings.TrimSpace(nested.Message)
		}
		var code string
		if json.Unmarshal(envelope.Error, &code) == nil {
			if desc := strings.TrimSpace(envelope.ErrorDescription); desc != "" {
				return desc
			}
			return strings.TrimSpace(code)
		}
	}

	return ""
}
