package utils

import (
	"errors"
	"fmt"
)

// Rejection kinds. Every business-rule refusal carries one of these stable,
// machine-readable kinds alongside a human-readable message.
const (
	RejectInvalidTransition   = "invalid_transition"
	RejectNotAuthorized       = "not_authorized"
	RejectWindowViolation     = "window_violation"
	RejectSlotTaken           = "slot_taken"
	RejectInsufficientCredits = "insufficient_credits"
	RejectAlreadyRefunded     = "already_refunded"
	RejectRefundWithoutDebit  = "refund_without_debit"
	RejectNotFound            = "not_found"
	RejectInvalidArgument     = "invalid_argument"
	RejectStorageFailure      = "storage_failure"
)

// Rejection is a typed refusal of an operation. Guard violations are returned
// as rejections and are never retried automatically; only storage_failure is
// transient and safe to retry.
type Rejection struct {
	Kind    string
	Message string
	Err     error
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Kind, r.Message)
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

// NewRejection builds a rejection with the given kind and message.
func NewRejection(kind, message string) *Rejection {
	return &Rejection{Kind: kind, Message: message}
}

// WrapStorageFailure tags an underlying storage error as a retryable
// storage_failure rejection. The internal error is kept for logging but is
// never surfaced to callers.
func WrapStorageFailure(err error) *Rejection {
	return &Rejection{Kind: RejectStorageFailure, Message: "a storage error occurred, please retry", Err: err}
}

// RejectionKind extracts the kind from err, or returns false if err is not a
// rejection.
func RejectionKind(err error) (string, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Kind, true
	}
	return "", false
}

// IsRejection reports whether err is a rejection of the given kind.
func IsRejection(err error, kind string) bool {
	k, ok := RejectionKind(err)
	return ok && k == kind
}
