package wealth

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by the ledger, the scheduler and the
// aggregator matches exactly one of them with errors.Is.
var (
	// ErrValidation reports missing or contradictory fields in a request.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound reports an unknown account, transaction, schedule entry or category.
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a lost update detected on an optimistic balance write.
	// The operation can be retried.
	ErrConflict = errors.New("concurrent update conflict")
	// ErrConsistency reports stored data that violates a ledger invariant.
	ErrConsistency = errors.New("ledger inconsistency")
)

// Error carries the kind of failure and the context it happened in.
type Error struct {
	Kind      error  // one of ErrValidation, ErrNotFound, ErrConflict, ErrConsistency
	Op        string // operation that failed, e.g. "apply"
	AccountID string // account involved, if any
	Type      TxType // transaction type involved, if any
	Msg       string
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Type != "" {
		fmt.Fprintf(&b, " (type %s)", e.Type)
	}
	if e.AccountID != "" {
		fmt.Fprintf(&b, " (account %s)", e.AccountID)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Kind }

func validationf(op string, format string, args ...any) *Error {
	return &Error{Kind: ErrValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// NotFound returns an ErrNotFound error for the given kind of object.
// Store implementations use it so that callers see a uniform message.
func NotFound(op, what, id string) error {
	return &Error{Kind: ErrNotFound, Op: op, Msg: fmt.Sprintf("%s %q", what, id)}
}

// Conflict returns an ErrConflict error for an account whose version moved.
func Conflict(op, accountID string) error {
	return &Error{Kind: ErrConflict, Op: op, AccountID: accountID, Msg: "balance was modified concurrently"}
}

// withAccount sets the account context of err when it is an *Error without one.
func withAccount(err error, accountID string) error {
	var e *Error
	if errors.As(err, &e) && e.AccountID == "" {
		c := *e
		c.AccountID = accountID
		return &c
	}
	return err
}

// withType sets the transaction type context of err when it is an *Error without one.
func withType(err error, t TxType) error {
	var e *Error
	if errors.As(err, &e) && e.Type == "" {
		c := *e
		c.Type = t
		return &c
	}
	return err
}

// withOp sets the operation of err when it is an *Error.
func withOp(err error, op string) error {
	var e *Error
	if errors.As(err, &e) {
		c := *e
		c.Op = op
		return &c
	}
	return err
}
