package walkthrough

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrNotFound          = errors.New("walkthrough not found")
	ErrForbidden         = errors.New("not allowed to perform this action")
	ErrConflict          = errors.New("walkthrough was modified concurrently, reload and try again")
	ErrDefaultImmutable  = errors.New("default walkthroughs cannot be deleted, only superseded")
	ErrFormatUnavailable = errors.New("spreadsheet import is not available, export the sheet as CSV instead")
	ErrUnknownFormat     = errors.New("unknown import format")
	ErrOrganizationReq   = errors.New("a target organization is required")
)

// ParseError reports input that a parser could not read at all.
type ParseError struct {
	Format Format
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not read %s input: %s", e.Format, e.Reason)
}

func newParseError(f Format, format string, args ...interface{}) error {
	return &ParseError{Format: f, Reason: fmt.Sprintf(format, args...)}
}

// InvalidScriptError is returned when a guarded operation fails validation.
type InvalidScriptError struct {
	Problems []string
}

func (e *InvalidScriptError) Error() string {
	return "walkthrough is not valid: " + strings.Join(e.Problems, "; ")
}

// TransitionError is returned when the document's status does not allow the action.
type TransitionError struct {
	Action Action
	From   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s a walkthrough that is %s", e.Action, e.From)
}

// StoreError wraps a persistence failure. The document is left unchanged and the operation may be retried.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Temporary marks store failures as retryable.
func (e *StoreError) Temporary() bool { return true }

// NewStoreError wraps err unless it is already one of the package's sentinel errors.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch errors.Cause(err) {
	case ErrNotFound, ErrConflict:
		return err
	}
	if _, ok := errors.Cause(err).(*StoreError); ok {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// IsRetryable reports whether err is a transient store failure.
func IsRetryable(err error) bool {
	_, ok := errors.Cause(err).(*StoreError)
	return ok
}
