package protocol

import "fmt"

// Kind is the error taxonomy shared by every layer of the bridge engine.
// Callers should branch on Kind, not on error message text.
type Kind string

const (
	KindChildError    Kind = "CHILD_ERROR"
	KindSecurity      Kind = "SECURITY"
	KindTimeout       Kind = "TIMEOUT"
	KindTimeoutBorrow Kind = "TIMEOUT_BORROW"
	KindTransport     Kind = "TRANSPORT"
	KindNotReady      Kind = "NOT_READY"
	KindPoolShutdown  Kind = "POOL_SHUTDOWN"
	KindTamper        Kind = "TAMPER"
	KindNotFound      Kind = "NOT_FOUND"
	KindConfig        Kind = "CONFIG"
	KindSerialization Kind = "SERIALIZATION"
	KindUnknownCmd    Kind = "UNKNOWN_COMMAND"
)

// Error wraps an underlying cause with a taxonomy Kind and, for
// CHILD_ERROR, the child's traceback verbatim.
type Error struct {
	Kind      Kind
	Message   string
	Traceback string
	Cause     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Cause.Error())
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error from kind and an underlying cause.
func Wrap(kind Kind, cause error) *Error {
	if cause == nil {
		return &Error{Kind: kind}
	}
	return &Error{Kind: kind, Message: cause.Error(), Cause: cause}
}

// WithTraceback attaches a child traceback to a CHILD_ERROR.
func (e *Error) WithTraceback(tb string) *Error {
	e.Traceback = tb
	return e
}

// KindOf extracts the taxonomy Kind from err, or "" if err is not (or does
// not wrap) a *Error.
func KindOf(err error) Kind {
	var pe *Error
	if as(err, &pe) {
		return pe.Kind
	}
	return ""
}

// as is a tiny errors.As wrapper kept local to avoid importing "errors"
// just for this one call site in every caller of KindOf.
func as(err error, target **Error) bool {
	for err != nil {
		if pe, ok := err.(*Error); ok {
			*target = pe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
