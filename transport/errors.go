package transport

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind classifies a failed request.
type Kind int

const (
	// KindTransport covers network, DNS and timeout failures: no response
	// was received.
	KindTransport Kind = iota + 1
	// KindValidation is a 422 whose body maps field names to messages.
	KindValidation
	// KindUnexpected is every other non-2xx status or an undecodable body.
	KindUnexpected
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindValidation:
		return "validation"
	case KindUnexpected:
		return "unexpected"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is returned for every failed request.
type Error struct {
	Kind   Kind
	Method string
	URL    string
	Status int

	// Fields holds the per-field messages of a validation error.
	Fields map[string]string

	// Body is the raw response body, if one was read.
	Body []byte
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindTransport:
		return fmt.Sprintf("transport: %s %s: %v", e.Method, e.URL, e.Err)
	case KindValidation:
		return fmt.Sprintf("transport: %s %s: validation failed on %d field(s)", e.Method, e.URL, len(e.Fields))
	default:
		if e.Err != nil {
			return fmt.Sprintf("transport: %s %s: status %d: %v", e.Method, e.URL, e.Status, e.Err)
		}
		return fmt.Sprintf("transport: %s %s: unexpected status %d", e.Method, e.URL, e.Status)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or 0 when err is not a transport Error.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return 0
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}

// ValidationFields returns the per-field messages of a validation failure,
// or nil for any other error.
func ValidationFields(err error) map[string]string {
	var te *Error
	if errors.As(err, &te) && te.Kind == KindValidation {
		return te.Fields
	}
	return nil
}

// validationBody is the documented 422 shape: {"error": {"field": "message"}}.
type validationBody struct {
	Error map[string]string `json:"error"`
}

// parseValidation decodes a 422 body. It reports false for any other shape.
func parseValidation(body []byte) (map[string]string, bool) {
	var vb validationBody
	if err := json.Unmarshal(body, &vb); err != nil {
		return nil, false
	}
	if len(vb.Error) == 0 {
		return nil, false
	}
	return vb.Error, true
}
