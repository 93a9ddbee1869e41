package domain

import (
	"errors"
	"fmt"
)

// Store and engine sentinel errors.
var (
	// ErrNotFound means the auction (or bid) id is unknown.
	ErrNotFound = errors.New("auction not found")
	// ErrConflict means a CompareAndUpdate saw a stale version; the caller
	// must reload and retry.
	ErrConflict = errors.New("version conflict")
	// ErrContention means the bounded CAS retry budget was exhausted; the
	// client should resubmit.
	ErrContention = errors.New("auction under contention, retry")
	// ErrInvalidTransition means a lifecycle move violates the status machine.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// RejectReason enumerates why a bid was refused. The string values are part
// of the client-facing API.
type RejectReason string

const (
	RejectNotActive           RejectReason = "not_active"
	RejectExpired             RejectReason = "expired"
	RejectSelfBid             RejectReason = "self_bid"
	RejectTooLow              RejectReason = "too_low"
	RejectBelowIncrement      RejectReason = "below_increment"
	RejectInsufficientDeposit RejectReason = "insufficient_deposit"
)

// RejectionError is the terminal outcome of a failed bid validation. No
// state was mutated.
type RejectionError struct {
	Reason RejectReason
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("bid rejected: %s", e.Reason)
}

// AsRejection unwraps err into a RejectionError if it is one.
func AsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}
