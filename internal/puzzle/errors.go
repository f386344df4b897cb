package puzzle

import (
	"errors"
	"fmt"
)

// ErrorKind classifies protocol failures. The values are stable API and
// wire identifiers.
type ErrorKind string

const (
	KindNotYourTurn         ErrorKind = "not_your_turn"
	KindPendingResolution   ErrorKind = "pending_resolution"
	KindInvalidPosition     ErrorKind = "invalid_position"
	KindPositionOccupied    ErrorKind = "position_occupied"
	KindPieceNotFound       ErrorKind = "piece_not_found"
	KindNoPendingCheck      ErrorKind = "no_pending_check"
	KindWrongDecider        ErrorKind = "wrong_decider"
	KindHintBudgetExhausted ErrorKind = "hint_budget_exhausted"
	KindGameNotActive       ErrorKind = "game_not_active"
	KindSnapshotRejected    ErrorKind = "snapshot_rejected"
)

// Error is a structured protocol failure. Expected rule violations are
// returned as *Error; anything else surfacing from the engine is an
// infrastructure or programming error.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Errorf builds a protocol error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a protocol kind to an underlying error.
func WrapError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Message: err.Error(), cause: err}
}

// KindOf extracts the protocol kind from err, or "" for non-protocol
// errors.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsKind reports whether err carries the given protocol kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
