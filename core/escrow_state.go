package core

import (
	"fmt"
	"math/big"

	"deedescrow/core/state"
	"deedescrow/core/types"
	"deedescrow/native/bank"
	"deedescrow/native/escrow"
	"deedescrow/native/registry"
)

// escrowStore opens state transactions for the escrow engine.
type escrowStore struct {
	node *Node
}

func (s *escrowStore) Update(fn func(escrow.State) error) error {
	return s.node.update(func(tx *state.Txn, reg *registry.Registry, ledger *bank.Ledger) error {
		return fn(&escrowState{tx: tx, registry: reg, ledger: ledger})
	})
}

func (s *escrowStore) View(fn func(escrow.State) error) error {
	return s.node.view(func(tx *state.Txn, reg *registry.Registry, ledger *bank.Ledger) error {
		return fn(&escrowState{tx: tx, registry: reg, ledger: ledger})
	})
}

// escrowState adapts one state transaction to the view the engine expects.
type escrowState struct {
	tx       *state.Txn
	registry *registry.Registry
	ledger   *bank.Ledger
}

func (s *escrowState) GetListing(assetID uint64) (*escrow.Listing, bool, error) {
	var listing escrow.Listing
	ok, err := s.tx.KVGet(listingKey(assetID), &listing)
	if err != nil {
		return nil, false, fmt.Errorf("core: load listing %d: %w", assetID, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &listing, true, nil
}

func (s *escrowState) PutListing(listing *escrow.Listing) error {
	if listing == nil {
		return fmt.Errorf("core: nil listing")
	}
	return s.tx.KVPut(listingKey(listing.AssetID), listing)
}

func (s *escrowState) Balance(addr [20]byte) (*big.Int, error) {
	return s.ledger.Balance(addr)
}

func (s *escrowState) Transfer(from, to [20]byte, amount *big.Int) error {
	return s.ledger.Transfer(from, to, amount)
}

func (s *escrowState) OwnerOf(assetID uint64) ([20]byte, error) {
	return s.registry.OwnerOf(assetID)
}

func (s *escrowState) CanTransferDeed(operator, from [20]byte, assetID uint64) error {
	return s.registry.CanTransfer(operator, from, assetID)
}

func (s *escrowState) TransferDeed(operator, from, to [20]byte, assetID uint64) error {
	return s.registry.TransferFrom(operator, from, to, assetID)
}

func (s *escrowState) AppendEvent(evt *types.Event) error {
	if evt == nil {
		return nil
	}
	_, err := s.tx.AppendEvent(*evt, eventScopes(evt)...)
	return err
}

func (s *escrowState) IsPaused(module string) bool {
	return s.tx.IsPaused(module)
}
