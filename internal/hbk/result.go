package hbk

import (
	"fmt"
	"net/http"
)

// ErrorKind classifies why an operation failed.
type ErrorKind string

const (
	// KindTransport: the request could not be sent or got no response.
	KindTransport ErrorKind = "transport"
	// KindUnexpectedStatus: a response arrived with a status code outside
	// the operation's contract.
	KindUnexpectedStatus ErrorKind = "unexpected_status"
	// KindDecode: a response arrived with the expected status but its body
	// could not be interpreted.
	KindDecode ErrorKind = "decode"
)

// OpError describes a failed operation.
type OpError struct {
	Kind    ErrorKind
	Op      string
	ID      string // backup ID, empty for list-level operations
	Status  int    // HTTP status, 0 when no response was received
	Message string
	Err     error
}

func (e *OpError) Error() string {
	target := e.Op
	if e.ID != "" {
		target = e.Op + " " + e.ID
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d)", target, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: %s", target, e.Message)
}

func (e *OpError) Unwrap() error { return e.Err }

// Result is the outcome envelope returned by every backend operation.
// Callers must check OK; a failed Result always carries Err.
type Result struct {
	OK  bool
	Err *OpError
}

// Success returns a successful Result.
func Success() Result { return Result{OK: true} }

// Failure returns a failed Result carrying err.
func Failure(err *OpError) Result { return Result{Err: err} }

// Message returns the failure text suitable for showing to a user,
// or an empty string on success.
func (r Result) Message() string {
	if r.OK || r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// statusMessage picks the most useful description of an unexpected response:
// the response body if it has one, otherwise the status text.
func statusMessage(status int, statusText string, body []byte) string {
	if len(body) > 0 {
		return string(body)
	}
	if statusText != "" {
		return statusText
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("status %d", status)
}
