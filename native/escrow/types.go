package escrow

import (
	"bytes"
	"math/big"
)

// Roles are the fixed identities the engine is constructed with. The seller
// creates, finalizes and cancels listings, the inspector certifies the deed's
// condition and the lender supplies gap funding and co-approves the sale.
type Roles struct {
	Seller    [20]byte
	Inspector [20]byte
	Lender    [20]byte
}

// Listing is the escrow record kept for one deed. A deed keeps a single
// record across listing cycles; IsListed is true only while the current cycle
// is active.
type Listing struct {
	AssetID          uint64
	IsListed         bool
	Seller           [20]byte
	Buyer            [20]byte
	PurchasePrice    *big.Int
	EscrowAmount     *big.Int
	InspectionPassed bool
	Approvals        [][20]byte
	Balance          *big.Int
	Cycle            uint64
	ListedAt         uint64
	ClosedAt         uint64
}

// Clone returns a deep copy of the listing.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	out := *l
	out.PurchasePrice = cloneBigInt(l.PurchasePrice)
	out.EscrowAmount = cloneBigInt(l.EscrowAmount)
	out.Balance = cloneBigInt(l.Balance)
	out.Approvals = append([][20]byte(nil), l.Approvals...)
	return &out
}

// HasApproved reports whether identity has approved the current cycle.
func (l *Listing) HasApproved(identity [20]byte) bool {
	if l == nil {
		return false
	}
	for _, approver := range l.Approvals {
		if approver == identity {
			return true
		}
	}
	return false
}

func (l *Listing) approve(identity [20]byte) bool {
	if l.HasApproved(identity) {
		return false
	}
	l.Approvals = append(l.Approvals, identity)
	// Keep the record canonical so equal approval sets encode identically.
	for i := len(l.Approvals) - 1; i > 0 && bytes.Compare(l.Approvals[i][:], l.Approvals[i-1][:]) < 0; i-- {
		l.Approvals[i], l.Approvals[i-1] = l.Approvals[i-1], l.Approvals[i]
	}
	return true
}

func (l *Listing) normalize() {
	if l.PurchasePrice == nil {
		l.PurchasePrice = big.NewInt(0)
	}
	if l.EscrowAmount == nil {
		l.EscrowAmount = big.NewInt(0)
	}
	if l.Balance == nil {
		l.Balance = big.NewInt(0)
	}
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
