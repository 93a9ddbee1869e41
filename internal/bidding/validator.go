package bidding

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/brandon99-hub/Auction/internal/domain"
)

// Validate decides whether a proposed bid is acceptable against a snapshot
// of auction state. It is a pure function: no side effects, deterministic
// for given inputs, so the engine can rerun it after a CAS retry and tests
// can replay sequences.
//
// Checks run in order and the first failure wins. The deposit qualification
// is resolved by the caller (it belongs to the payments collaborator) and
// passed in as a plain bool to keep this function deterministic.
func Validate(a *domain.Auction, bidderID string, amount decimal.Decimal, now time.Time, hasDeposit bool) error {
	if a.Status != domain.StatusActive {
		return &domain.RejectionError{Reason: domain.RejectNotActive}
	}
	if !now.Before(a.EndTime) {
		return &domain.RejectionError{Reason: domain.RejectExpired}
	}
	if bidderID == a.SellerID {
		return &domain.RejectionError{Reason: domain.RejectSelfBid}
	}
	if !amount.GreaterThan(a.CurrentPrice) {
		return &domain.RejectionError{Reason: domain.RejectTooLow}
	}
	if amount.Sub(a.CurrentPrice).LessThan(a.MinimumIncrement) {
		return &domain.RejectionError{Reason: domain.RejectBelowIncrement}
	}
	if !hasDeposit {
		return &domain.RejectionError{Reason: domain.RejectInsufficientDeposit}
	}
	return nil
}
