package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport covers network failures, timeouts and non-2xx statuses.
	ErrTransport = errors.New("transport error")
	// ErrDecode means a response body was not valid JSON at either envelope layer.
	ErrDecode = errors.New("decode error")
	// ErrSemantic means the payload decoded but reported an error or lacked required fields.
	ErrSemantic = errors.New("semantic error")
)

// Error describes a failed upstream call.
type Error struct {
	Kind    error  // one of ErrTransport, ErrDecode, ErrSemantic
	Op      string // "start lab", "list files", ...
	Status  int    // HTTP status when one was received
	Message string // upstream message, surfaced verbatim for ErrSemantic
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Status != 0 && e.Err == nil:
		return fmt.Sprintf("%s: server returned status %d", e.Op, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// UserMessage is the text shown to the person who triggered the call.
func UserMessage(err error) string {
	var re *Error
	if errors.As(err, &re) && errors.Is(re.Kind, ErrSemantic) && re.Message != "" {
		return re.Message
	}
	return err.Error()
}

func transport(op string, status int, err error) *Error {
	return &Error{Kind: ErrTransport, Op: op, Status: status, Err: err}
}

func decodeErr(op string, err error) *Error {
	return &Error{Kind: ErrDecode, Op: op, Err: fmt.Errorf("decode response: %w", err)}
}

// Semantic builds an ErrSemantic error carrying msg verbatim.
func Semantic(op, msg string) *Error {
	return &Error{Kind: ErrSemantic, Op: op, Message: msg}
}
