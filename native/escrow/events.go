package escrow

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"deedescrow/core/types"
)

const (
	EventTypeListed      = "escrow.listed"
	EventTypeDeposited   = "escrow.deposited"
	EventTypeContributed = "escrow.contributed"
	EventTypeInspected   = "escrow.inspected"
	EventTypeApproved    = "escrow.approved"
	EventTypeFinalized   = "escrow.finalized"
	EventTypeCancelled   = "escrow.cancelled"
)

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

// Event returns the underlying event payload.
func (e escrowEvent) Event() *types.Event { return e.evt }

// NewListedEvent returns the canonical payload for a new listing cycle.
func NewListedEvent(l *Listing) *types.Event {
	attrs := listingAttributes(l)
	attrs["purchasePrice"] = l.PurchasePrice.String()
	attrs["escrowAmount"] = l.EscrowAmount.String()
	return &types.Event{Type: EventTypeListed, Attributes: attrs}
}

// NewDepositedEvent returns the payload emitted when the buyer deposits
// earnest funds.
func NewDepositedEvent(l *Listing, amount *big.Int) *types.Event {
	return newFundingEvent(EventTypeDeposited, l, l.Buyer, amount)
}

// NewContributedEvent returns the payload emitted when the lender funds a
// listing.
func NewContributedEvent(l *Listing, lender [20]byte, amount *big.Int) *types.Event {
	return newFundingEvent(EventTypeContributed, l, lender, amount)
}

// NewInspectedEvent returns the payload emitted when the inspector records an
// outcome.
func NewInspectedEvent(l *Listing) *types.Event {
	attrs := listingAttributes(l)
	attrs["passed"] = strconv.FormatBool(l.InspectionPassed)
	return &types.Event{Type: EventTypeInspected, Attributes: attrs}
}

// NewApprovedEvent returns the payload emitted when an empowered identity
// approves the sale.
func NewApprovedEvent(l *Listing, approver [20]byte) *types.Event {
	attrs := listingAttributes(l)
	attrs["approver"] = hex.EncodeToString(approver[:])
	attrs["approvals"] = strconv.Itoa(len(l.Approvals))
	return &types.Event{Type: EventTypeApproved, Attributes: attrs}
}

// NewFinalizedEvent returns the payload emitted when the sale settles.
func NewFinalizedEvent(l *Listing, paid, refunded *big.Int) *types.Event {
	attrs := listingAttributes(l)
	attrs["paidToSeller"] = paid.String()
	attrs["refundedToBuyer"] = refunded.String()
	return &types.Event{Type: EventTypeFinalized, Attributes: attrs}
}

// NewCancelledEvent returns the payload emitted when the seller aborts the
// sale. Outcome is "refunded" or "forfeited".
func NewCancelledEvent(l *Listing, outcome string, amount *big.Int) *types.Event {
	attrs := listingAttributes(l)
	attrs["outcome"] = outcome
	attrs["amount"] = amount.String()
	return &types.Event{Type: EventTypeCancelled, Attributes: attrs}
}

func newFundingEvent(eventType string, l *Listing, from [20]byte, amount *big.Int) *types.Event {
	attrs := listingAttributes(l)
	attrs["from"] = hex.EncodeToString(from[:])
	attrs["amount"] = amount.String()
	attrs["balance"] = l.Balance.String()
	return &types.Event{Type: eventType, Attributes: attrs}
}

func listingAttributes(l *Listing) map[string]string {
	return map[string]string{
		"assetId": strconv.FormatUint(l.AssetID, 10),
		"cycle":   strconv.FormatUint(l.Cycle, 10),
		"seller":  hex.EncodeToString(l.Seller[:]),
		"buyer":   hex.EncodeToString(l.Buyer[:]),
	}
}
