package core

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"

	"deedescrow/core/events"
	"deedescrow/core/state"
	"deedescrow/core/types"
	"deedescrow/native/bank"
	nativecommon "deedescrow/native/common"
	"deedescrow/native/escrow"
	"deedescrow/native/registry"
	"deedescrow/observability"
	"deedescrow/storage"
)

// RegistryModule labels the deed registry account.
const RegistryModule = nativecommon.ModuleRegistry

var (
	ErrUnknownModule   = errors.New("core: unknown module")
	ErrModuleAccount   = errors.New("core: module accounts cannot act through the public surface")
	ErrInvalidIdentity = errors.New("core: identity required")
)

var listingPrefix = []byte("escrow/listing/")

func listingKey(assetID uint64) []byte {
	return append(append([]byte(nil), listingPrefix...), strconv.FormatUint(assetID, 10)...)
}

// AssetScope is the event log scope holding every event about one deed.
func AssetScope(assetID uint64) string {
	return "asset/" + strconv.FormatUint(assetID, 10)
}

// Node wires the state manager, the bank ledger, the deed registry and the
// escrow engine together. Every mutation runs in one state transaction that
// spans all three modules.
type Node struct {
	state    *state.Manager
	engine   *escrow.Engine
	emitter  events.Emitter
	logger   *slog.Logger
	registry [20]byte
}

// NewNode creates a node persisting to db with the supplied escrow roles.
func NewNode(db storage.Database, roles escrow.Roles, logger *slog.Logger) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database required")
	}
	zero := [20]byte{}
	if roles.Seller == zero || roles.Inspector == zero || roles.Lender == zero {
		return nil, fmt.Errorf("core: seller, inspector and lender identities are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	n := &Node{
		state:    state.NewManager(db),
		logger:   logger,
		registry: bank.ModuleAddress(RegistryModule),
	}
	n.emitter = events.Multi{observability.Events()}
	n.engine = escrow.NewEngine(&escrowStore{node: n}, roles)
	n.engine.SetRegistryAddress(n.registry)
	n.engine.SetEmitter(emitterFunc(n.emit))
	n.engine.SetLogger(logger.With(slog.String("module", escrow.ModuleName)))
	return n, nil
}

// SetEmitter adds a downstream subscriber for committed events.
func (n *Node) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		n.emitter = events.Multi{observability.Events()}
		return
	}
	n.emitter = events.Multi{observability.Events(), emitter}
}

// Escrow exposes the escrow engine.
func (n *Node) Escrow() *escrow.Engine { return n.engine }

// EscrowAddress returns the vault identity of the escrow engine.
func (n *Node) EscrowAddress() [20]byte { return n.engine.Address() }

// RegistryAddress returns the identity of the deed registry.
func (n *Node) RegistryAddress() [20]byte { return n.registry }

func (n *Node) emit(evt events.Event) {
	if evt == nil {
		return
	}
	n.emitter.Emit(evt)
	if evt.EventType() == escrow.EventTypeDeposited || evt.EventType() == escrow.EventTypeContributed ||
		evt.EventType() == escrow.EventTypeFinalized || evt.EventType() == escrow.EventTypeCancelled {
		if balance, err := n.engine.GetBalance(); err == nil {
			observability.Events().SetVaultBalance(balance)
		}
	}
}

type emitterFunc func(events.Event)

func (f emitterFunc) Emit(evt events.Event) { f(evt) }

// payloadEvent is implemented by module events that carry a types.Event.
type payloadEvent interface {
	Event() *types.Event
}

// txEmitter persists module events into the transaction log as they are
// emitted and buffers them for delivery once the transaction commits.
type txEmitter struct {
	tx      *state.Txn
	pending []events.Event
	err     error
}

func (e *txEmitter) Emit(evt events.Event) {
	if e.err != nil {
		return
	}
	if payload, ok := evt.(payloadEvent); ok && payload.Event() != nil {
		if _, err := e.tx.AppendEvent(*payload.Event(), eventScopes(payload.Event())...); err != nil {
			e.err = err
			return
		}
	}
	e.pending = append(e.pending, evt)
}

func eventScopes(evt *types.Event) []string {
	for _, attr := range []string{"assetId", "deedId"} {
		if raw, ok := evt.Attributes[attr]; ok {
			if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
				return []string{AssetScope(id)}
			}
		}
	}
	return nil
}

// update runs fn in a state transaction with the registry and bank bound to
// it. Registry events are delivered after a successful commit.
func (n *Node) update(fn func(tx *state.Txn, reg *registry.Registry, ledger *bank.Ledger) error) error {
	var delivered []events.Event
	err := n.state.Update(func(tx *state.Txn) error {
		collector := &txEmitter{tx: tx}
		reg := registry.New(tx)
		reg.SetEmitter(collector)
		if err := fn(tx, reg, bank.New(tx)); err != nil {
			return err
		}
		if collector.err != nil {
			return fmt.Errorf("core: persist event: %w", collector.err)
		}
		delivered = collector.pending
		return nil
	})
	if err != nil {
		return err
	}
	for _, evt := range delivered {
		n.emit(evt)
	}
	return nil
}

func (n *Node) view(fn func(tx *state.Txn, reg *registry.Registry, ledger *bank.Ledger) error) error {
	return n.state.View(func(tx *state.Txn) error {
		return fn(tx, registry.New(tx), bank.New(tx))
	})
}

// MintDeed mints a new deed owned by the caller.
func (n *Node) MintDeed(caller [20]byte, uri string) (uint64, error) {
	if n.isModuleAccount(caller) {
		return 0, ErrModuleAccount
	}
	var id uint64
	err := n.update(func(tx *state.Txn, reg *registry.Registry, _ *bank.Ledger) error {
		if err := nativecommon.Guard(tx, RegistryModule); err != nil {
			return err
		}
		var err error
		id, err = reg.Mint(caller, uri)
		return err
	})
	return id, err
}

// ApproveDeed lets the deed owner authorise an operator, typically the escrow.
func (n *Node) ApproveDeed(caller, operator [20]byte, id uint64) error {
	if n.isModuleAccount(caller) {
		return ErrModuleAccount
	}
	return n.update(func(tx *state.Txn, reg *registry.Registry, _ *bank.Ledger) error {
		if err := nativecommon.Guard(tx, RegistryModule); err != nil {
			return err
		}
		return reg.Approve(caller, operator, id)
	})
}

// TransferDeed moves a deed on behalf of its owner. Module accounts are
// refused as callers, so deeds in escrow custody only move through the escrow
// engine.
func (n *Node) TransferDeed(caller, from, to [20]byte, id uint64) error {
	if n.isModuleAccount(caller) {
		return ErrModuleAccount
	}
	return n.update(func(tx *state.Txn, reg *registry.Registry, _ *bank.Ledger) error {
		if err := nativecommon.Guard(tx, RegistryModule); err != nil {
			return err
		}
		return reg.TransferFrom(caller, from, to, id)
	})
}

// Deed returns the registry record for id.
func (n *Node) Deed(id uint64) (*registry.Deed, error) {
	var out *registry.Deed
	err := n.view(func(_ *state.Txn, reg *registry.Registry, _ *bank.Ledger) error {
		var err error
		out, err = reg.Deed(id)
		return err
	})
	return out, err
}

// OwnerOf returns the current holder of deed id.
func (n *Node) OwnerOf(id uint64) ([20]byte, error) {
	deed, err := n.Deed(id)
	if err != nil {
		return [20]byte{}, err
	}
	return deed.Owner, nil
}

// TokenURI returns the metadata URI of deed id.
func (n *Node) TokenURI(id uint64) (string, error) {
	deed, err := n.Deed(id)
	if err != nil {
		return "", err
	}
	return deed.URI, nil
}

// Balance returns the fund balance of addr.
func (n *Node) Balance(addr [20]byte) (*big.Int, error) {
	var out *big.Int
	err := n.view(func(_ *state.Txn, _ *registry.Registry, ledger *bank.Ledger) error {
		var err error
		out, err = ledger.Balance(addr)
		return err
	})
	return out, err
}

func (n *Node) isModuleAccount(addr [20]byte) bool {
	return addr == n.engine.Address() || addr == n.registry
}

// Credit is the operator faucet. Module accounts are excluded so the vault
// only ever holds funds attributed to a listing.
func (n *Node) Credit(addr [20]byte, amount *big.Int) error {
	if addr == ([20]byte{}) {
		return ErrInvalidIdentity
	}
	if n.isModuleAccount(addr) {
		return ErrModuleAccount
	}
	err := n.update(func(_ *state.Txn, _ *registry.Registry, ledger *bank.Ledger) error {
		return ledger.Credit(addr, amount)
	})
	if err == nil {
		n.logger.Info("account credited", slog.String("account", fmt.Sprintf("%x", addr)), slog.String("amount", amount.String()))
	}
	return err
}

// SetReceiveBlocked flags addr as refusing incoming transfers.
func (n *Node) SetReceiveBlocked(addr [20]byte, blocked bool) error {
	if addr == ([20]byte{}) {
		return ErrInvalidIdentity
	}
	if n.isModuleAccount(addr) {
		return ErrModuleAccount
	}
	return n.update(func(_ *state.Txn, _ *registry.Registry, ledger *bank.Ledger) error {
		return ledger.SetReceiveBlocked(addr, blocked)
	})
}

// SetPaused pauses or resumes a module.
func (n *Node) SetPaused(module string, paused bool) error {
	if !nativecommon.IsKnownModule(module) {
		return fmt.Errorf("%w: %q", ErrUnknownModule, module)
	}
	err := n.update(func(tx *state.Txn, _ *registry.Registry, _ *bank.Ledger) error {
		return tx.SetPaused(module, paused)
	})
	if err == nil {
		n.logger.Warn("module pause toggled", slog.String("module", module), slog.Bool("paused", paused))
	}
	return err
}

// IsPaused reports whether module is paused.
func (n *Node) IsPaused(module string) (bool, error) {
	var paused bool
	err := n.view(func(tx *state.Txn, _ *registry.Registry, _ *bank.Ledger) error {
		paused = tx.IsPaused(module)
		return nil
	})
	return paused, err
}

// Events returns the persisted event log for assetID, or the global log when
// assetID is zero.
func (n *Node) Events(assetID uint64) ([]state.LoggedEvent, error) {
	scope := ""
	if assetID != 0 {
		scope = AssetScope(assetID)
	}
	var out []state.LoggedEvent
	err := n.view(func(tx *state.Txn, _ *registry.Registry, _ *bank.Ledger) error {
		var err error
		out, err = tx.Events(scope)
		return err
	})
	return out, err
}
