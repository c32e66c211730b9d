package tipping

import "errors"

// Kind classifies engine failures so callers can branch without matching on
// message text.
type Kind string

const (
	KindSelfReference     Kind = "SelfReferenceNotAllowed"
	KindZeroAmount        Kind = "ZeroAmount"
	KindDuplicateRecord   Kind = "DuplicateRecord"
	KindInsufficientFunds Kind = "InsufficientFunds"
	KindUnauthorized      Kind = "Unauthorized"
	KindRecordNotFound    Kind = "RecordNotFound"
	KindRecordMismatch    Kind = "RecordMismatch"
	KindOverflow          Kind = "Overflow"
	KindModulePaused      Kind = "ModulePaused"
	KindInvalidNonce      Kind = "InvalidNonce"
)

// Error is the structured failure returned by every ledger operation.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return "tipping: " + e.Message
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind
}

func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

var (
	ErrSelfTip           = NewError(KindSelfReference, "you cannot tip yourself")
	ErrZeroAmount        = NewError(KindZeroAmount, "the tip amount must be greater than 0")
	ErrDuplicateRecord   = NewError(KindDuplicateRecord, "tip account already initialized for tipper")
	ErrInsufficientFunds = NewError(KindInsufficientFunds, "insufficient funds for tip")
	ErrUnauthorized      = NewError(KindUnauthorized, "request not signed by tipper")
	ErrRecordNotFound    = NewError(KindRecordNotFound, "tip account not initialized")
	ErrTipperMismatch    = NewError(KindRecordMismatch, "the tipper in the tip account does not match the provided tipper")
	ErrCreatorMismatch   = NewError(KindRecordMismatch, "the creator in the tip account does not match the provided creator")
	ErrOverflow          = NewError(KindOverflow, "arithmetic overflow when adding tip amount")
	ErrModulePaused      = NewError(KindModulePaused, "tipping module paused")
	ErrInvalidNonce      = NewError(KindInvalidNonce, "request nonce does not match account nonce")
	errNilState          = errors.New("tipping engine: state not configured")
	errBalanceOutOfRange = errors.New("tipping engine: balance does not fit 256 bits")
)

// KindOf extracts the kind of a ledger error.
func KindOf(err error) (Kind, bool) {
	var target *Error
	if errors.As(err, &target) && target != nil {
		return target.Kind, true
	}
	return "", false
}

// IsKind reports whether err carries the supplied kind.
func IsKind(err error, kind Kind) bool {
	got, ok := KindOf(err)
	return ok && got == kind
}
