package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies pipeline errors
type ErrorKind string

const (
	KindInput            ErrorKind = "INPUT_ERROR"
	KindHardCheck        ErrorKind = "HARD_CHECK_FAILURE"
	KindSoftCheck        ErrorKind = "SOFT_CHECK_WARNING"
	KindExecution        ErrorKind = "EXECUTION_ERROR"
	KindUnsupportedAsset ErrorKind = "UNSUPPORTED_ASSET"
)

var (
	// ErrIllegalTransition is returned when an inbound call is not allowed in the current stage
	ErrIllegalTransition = errors.New("illegal stage transition")

	// ErrNotCancellable is returned when cancel is requested after execution started
	ErrNotCancellable = errors.New("transfer cannot be cancelled once execution has started")

	// ErrAcknowledgementRequired is returned by confirm while warnings are unacknowledged
	ErrAcknowledgementRequired = errors.New("warnings must be acknowledged before confirming")

	// ErrCancelled is returned by submit when the run was cancelled while checks were in flight
	ErrCancelled = errors.New("pipeline run was cancelled")

	ErrSessionNotFound = errors.New("session not found")
	ErrReceiptNotFound = errors.New("receipt not found")
)

// Error is a classified pipeline error
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a kind and the failing operation
func NewError(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind: kind,
		Op:   op,
		Err:  err,
	}
}

// NewUnsupportedAssetError reports an asset symbol with no registered rules
func NewUnsupportedAssetError(symbol string) error {
	return &Error{
		Kind: KindUnsupportedAsset,
		Op:   "get rules",
		Err:  fmt.Errorf("asset %q is not supported", symbol),
	}
}

// KindOf returns the kind of a classified error, or "" when err is not one
func KindOf(err error) ErrorKind {
	var pipelineErr *Error
	if errors.As(err, &pipelineErr) {
		return pipelineErr.Kind
	}
	return ""
}

// FieldError is an inline error attached to a form field or a security check
type FieldError struct {
	Field   string
	Message string
}

// Form fields that can carry a FieldError. Check failures use the check name as field.
const (
	FieldAsset     = "asset"
	FieldAmount    = "amount"
	FieldRecipient = "recipient"
	FieldFee       = "fee"
)

// FieldErrors groups the field-level errors of one submission
type FieldErrors []FieldError

func (fe FieldErrors) Error() string {
	parts := make([]string, 0, len(fe))
	for _, f := range fe {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return strings.Join(parts, "; ")
}
