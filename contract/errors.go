package contract

import "fmt"

// ErrorKind classifies ledger failures. The kind prefixes the error string so chaincode
// clients can branch on it without parsing free text.
type ErrorKind string

const (
	KindNotFound          ErrorKind = "NOT_FOUND"
	KindAlreadyExists     ErrorKind = "ALREADY_EXISTS"
	KindUnauthorized      ErrorKind = "UNAUTHORIZED"
	KindInvalidState      ErrorKind = "INVALID_STATE"
	KindInvalidInput      ErrorKind = "INVALID_INPUT"
	KindTemporalViolation ErrorKind = "TEMPORAL_VIOLATION"
	KindDuplicate         ErrorKind = "DUPLICATE"
)

// LedgerError is a domain failure. Every guard returns one of these before any write happens.
type LedgerError struct {
	Kind    ErrorKind
	Message string
}

func (e *LedgerError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches any LedgerError of the same kind, so errors.Is(err, ErrNotFound) works on
// wrapped errors carrying specific messages.
func (e *LedgerError) Is(target error) bool {
	t, ok := target.(*LedgerError)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is.
var (
	ErrNotFound          = &LedgerError{Kind: KindNotFound}
	ErrAlreadyExists     = &LedgerError{Kind: KindAlreadyExists}
	ErrUnauthorized      = &LedgerError{Kind: KindUnauthorized}
	ErrInvalidState      = &LedgerError{Kind: KindInvalidState}
	ErrInvalidInput      = &LedgerError{Kind: KindInvalidInput}
	ErrTemporalViolation = &LedgerError{Kind: KindTemporalViolation}
	ErrDuplicate         = &LedgerError{Kind: KindDuplicate}
)

func ledgerError(kind ErrorKind, format string, args ...interface{}) *LedgerError {
	return &LedgerError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...interface{}) error {
	return ledgerError(KindNotFound, format, args...)
}

func alreadyExists(format string, args ...interface{}) error {
	return ledgerError(KindAlreadyExists, format, args...)
}

func unauthorized(format string, args ...interface{}) error {
	return ledgerError(KindUnauthorized, format, args...)
}

func invalidState(format string, args ...interface{}) error {
	return ledgerError(KindInvalidState, format, args...)
}

func invalidInput(format string, args ...interface{}) error {
	return ledgerError(KindInvalidInput, format, args...)
}

func temporalViolation(format string, args ...interface{}) error {
	return ledgerError(KindTemporalViolation, format, args...)
}

func duplicate(format string, args ...interface{}) error {
	return ledgerError(KindDuplicate, format, args...)
}
