package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument indicates malformed input: empty text, oversized batch,
	// unsupported model, bad budget.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConflict indicates a vector dimension mismatch.
	// The affected collection must be rebuilt.
	ErrConflict = errors.New("conflict")

	// ErrTimeout indicates an embedding request exceeded its deadline.
	ErrTimeout = errors.New("timeout")

	// ErrModelNotReady indicates the embedding backend is unavailable.
	ErrModelNotReady = errors.New("model not ready")

	// ErrWorkerExited indicates the embedding worker died with the request in flight.
	ErrWorkerExited = errors.New("embedding worker exited")

	// ErrQuerySyntax indicates the keyword search primitive rejected the query syntax.
	ErrQuerySyntax = errors.New("query syntax error")

	// ErrClosed indicates the component has been shut down.
	ErrClosed = errors.New("closed")

	// ErrCardHeld indicates another article already owns an entity card ID.
	ErrCardHeld = errors.New("entity card held by another article")
)

// Code is the machine-readable error taxonomy exposed to callers.
type Code string

// Error codes.
const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeConflict        Code = "CONFLICT"
	CodeTimeout         Code = "TIMEOUT"
	CodeModelNotReady   Code = "MODEL_NOT_READY"
	CodeNotFound        Code = "NOT_FOUND"
	CodeInternal        Code = "INTERNAL"
)

// Error attaches a Code and the failing operation to an underlying error.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an *Error.
func NewError(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// ConflictError reports a dimension mismatch on a collection and names the recovery.
type ConflictError struct {
	Collection Collection
	Have       int
	Want       int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: collection %q has dimension %d, got %d; rebuild it with `quill rebuild --collection %s`",
		e.Collection, e.Have, e.Want, e.Collection)
}

// Is makes errors.Is(err, ErrConflict) match.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// CardHeldError reports that an article's card was not stored because
// Holder already owns CardID. The article waits as a claimant and takes the
// card over when Holder releases it.
type CardHeldError struct {
	CardID string
	Holder string
}

func (e *CardHeldError) Error() string {
	return fmt.Sprintf("entity card %q is held by %s", e.CardID, e.Holder)
}

// Is makes errors.Is(err, ErrCardHeld) match.
func (e *CardHeldError) Is(target error) bool {
	return target == ErrCardHeld
}

// CodeOf classifies any error into the taxonomy.
// A nil error has an empty code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}

	switch {
	case errors.Is(err, ErrInvalidArgument):
		return CodeInvalidArgument
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	case errors.Is(err, ErrModelNotReady), errors.Is(err, ErrWorkerExited):
		return CodeModelNotReady
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	default:
		return CodeInternal
	}
}
