package escrow

import (
	"errors"

	nativecommon "deedescrow/native/common"
)

var (
	ErrUnauthorized        = errors.New("escrow: unauthorized")
	ErrUnknownListing      = errors.New("escrow: unknown listing")
	ErrTransferRejected    = errors.New("escrow: transfer rejected")
	ErrInspectionNotPassed = errors.New("escrow: inspection not passed")
	ErrApprovalIncomplete  = errors.New("escrow: approval incomplete")
	ErrInsufficientFunds   = errors.New("escrow: insufficient funds")
	ErrListingActive       = errors.New("escrow: listing already active")
	ErrInvalidAmount       = errors.New("escrow: invalid amount")
	ErrInvalidBuyer        = errors.New("escrow: invalid buyer")
	ErrPayoutRejected      = errors.New("escrow: payout rejected")
	ErrModulePaused        = nativecommon.ErrModulePaused
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrUnauthorized, "Unauthorized"},
	{ErrUnknownListing, "UnknownListing"},
	{ErrTransferRejected, "TransferRejected"},
	{ErrInspectionNotPassed, "InspectionNotPassed"},
	{ErrApprovalIncomplete, "ApprovalIncomplete"},
	{ErrInsufficientFunds, "InsufficientFunds"},
	{ErrListingActive, "ListingActive"},
	{ErrInvalidAmount, "InvalidAmount"},
	{ErrInvalidBuyer, "InvalidBuyer"},
	{ErrPayoutRejected, "PayoutRejected"},
	{ErrModulePaused, "ModulePaused"},
}

// ErrorKind returns the short kind name of an engine error ("Unauthorized",
// "UnknownListing", ...) or the empty string when err is not an engine error.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, candidate := range errorKinds {
		if errors.Is(err, candidate.err) {
			return candidate.kind
		}
	}
	return ""
}
