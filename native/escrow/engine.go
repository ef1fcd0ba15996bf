package escrow

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"deedescrow/core/events"
	"deedescrow/core/types"
	"deedescrow/native/bank"
	nativecommon "deedescrow/native/common"
)

// ModuleName labels the escrow module for pausing and for deriving its vault
// account.
const ModuleName = nativecommon.ModuleEscrow

// State is the transactional view of the service that the engine reads and
// mutates. Every call made during one engine operation belongs to the same
// transaction.
type State interface {
	GetListing(assetID uint64) (*Listing, bool, error)
	PutListing(listing *Listing) error
	Balance(addr [20]byte) (*big.Int, error)
	Transfer(from, to [20]byte, amount *big.Int) error
	OwnerOf(assetID uint64) ([20]byte, error)
	CanTransferDeed(operator, from [20]byte, assetID uint64) error
	TransferDeed(operator, from, to [20]byte, assetID uint64) error
	AppendEvent(evt *types.Event) error
	IsPaused(module string) bool
}

// Store opens transactions over State. Update commits only when fn returns
// nil; View never persists anything.
type Store interface {
	Update(fn func(State) error) error
	View(fn func(State) error) error
}

// Engine is the deed escrow state machine. It holds custody of listed deeds
// and of the funds deposited against them in its vault account.
type Engine struct {
	mu       sync.Mutex
	store    Store
	roles    Roles
	vault    [20]byte
	registry [20]byte
	emitter  events.Emitter
	logger   *slog.Logger
	nowFn    func() int64
}

// NewEngine creates an escrow engine bound to the fixed participant roles.
func NewEngine(store Store, roles Roles) *Engine {
	return &Engine{
		store:   store,
		roles:   roles,
		vault:   bank.ModuleAddress(ModuleName),
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the emitter notified after each committed operation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetLogger configures the engine logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// SetNowFunc overrides the clock used for listing timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	e.nowFn = now
}

// SetRegistryAddress records the identity of the deed registry the engine
// settles against.
func (e *Engine) SetRegistryAddress(addr [20]byte) { e.registry = addr }

// Address returns the engine's own identity: the vault account holding
// escrowed funds and the custodian of listed deeds.
func (e *Engine) Address() [20]byte { return e.vault }

// RegistryAddress returns the configured deed registry identity.
func (e *Engine) RegistryAddress() [20]byte { return e.registry }

// Roles returns the participant roles fixed at construction.
func (e *Engine) Roles() Roles { return e.roles }

// Seller returns the configured seller identity.
func (e *Engine) Seller() [20]byte { return e.roles.Seller }

// Inspector returns the configured inspector identity.
func (e *Engine) Inspector() [20]byte { return e.roles.Inspector }

// Lender returns the configured lender identity.
func (e *Engine) Lender() [20]byte { return e.roles.Lender }

func (e *Engine) now() uint64 {
	if e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	ts := e.nowFn()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

// txn carries the state view of one operation and the events it produced.
type txn struct {
	State
	pending []*types.Event
}

func (t *txn) record(evt *types.Event) {
	t.pending = append(t.pending, evt)
}

// update runs fn as one atomic engine operation. Events are persisted inside
// the transaction and emitted only once it has committed.
func (e *Engine) update(op string, assetID uint64, fn func(*txn) error) error {
	if e == nil || e.store == nil {
		return errors.New("escrow engine: store not configured")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var committed []*types.Event
	err := e.store.Update(func(st State) error {
		if err := nativecommon.Guard(st, ModuleName); err != nil {
			return err
		}
		tx := &txn{State: st}
		if err := fn(tx); err != nil {
			return err
		}
		for _, evt := range tx.pending {
			if err := st.AppendEvent(evt); err != nil {
				return fmt.Errorf("escrow engine: persist event: %w", err)
			}
		}
		committed = tx.pending
		return nil
	})
	if err != nil {
		e.logger.Warn("escrow operation rejected",
			slog.String("op", op),
			slog.Uint64("asset_id", assetID),
			slog.String("kind", ErrorKind(err)),
			slog.Any("error", err))
		return err
	}
	for _, evt := range committed {
		e.emitter.Emit(escrowEvent{evt: evt})
	}
	e.logger.Debug("escrow operation applied",
		slog.String("op", op),
		slog.Uint64("asset_id", assetID),
		slog.Int("events", len(committed)))
	return nil
}

func (e *Engine) view(fn func(State) error) error {
	if e == nil || e.store == nil {
		return errors.New("escrow engine: store not configured")
	}
	return e.store.View(fn)
}

func activeListing(st State, assetID uint64) (*Listing, error) {
	listing, ok, err := st.GetListing(assetID)
	if err != nil {
		return nil, err
	}
	if !ok || listing == nil || !listing.IsListed {
		return nil, fmt.Errorf("%w: asset %d", ErrUnknownListing, assetID)
	}
	listing.normalize()
	return listing, nil
}

func validAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// List pulls custody of the deed into the escrow vault and opens a new listing
// cycle. The caller must be the configured seller, must currently hold the
// deed and must have approved the escrow as transfer operator.
func (e *Engine) List(caller [20]byte, assetID uint64, buyer [20]byte, purchasePrice, escrowAmount *big.Int) error {
	return e.update("list", assetID, func(tx *txn) error {
		if caller != e.roles.Seller {
			return fmt.Errorf("%w: only the seller may list", ErrUnauthorized)
		}
		if err := validAmount(purchasePrice); err != nil {
			return fmt.Errorf("%w: purchase price", err)
		}
		if err := validAmount(escrowAmount); err != nil {
			return fmt.Errorf("%w: escrow amount", err)
		}
		if escrowAmount.Cmp(purchasePrice) > 0 {
			return fmt.Errorf("%w: escrow amount exceeds purchase price", ErrInvalidAmount)
		}
		if buyer == ([20]byte{}) || buyer == e.vault {
			return ErrInvalidBuyer
		}
		previous, exists, err := tx.GetListing(assetID)
		if err != nil {
			return err
		}
		if exists && previous.IsListed {
			return fmt.Errorf("%w: asset %d", ErrListingActive, assetID)
		}
		holder, err := tx.OwnerOf(assetID)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrTransferRejected, err)
		}
		if holder != caller {
			return fmt.Errorf("%w: caller does not hold asset %d", ErrUnauthorized, assetID)
		}
		if err := tx.TransferDeed(e.vault, caller, e.vault, assetID); err != nil {
			return fmt.Errorf("%w: %w", ErrTransferRejected, err)
		}
		var cycle uint64 = 1
		if exists {
			cycle = previous.Cycle + 1
		}
		listing := &Listing{
			AssetID:       assetID,
			IsListed:      true,
			Seller:        caller,
			Buyer:         buyer,
			PurchasePrice: cloneBigInt(purchasePrice),
			EscrowAmount:  cloneBigInt(escrowAmount),
			Balance:       big.NewInt(0),
			Cycle:         cycle,
			ListedAt:      e.now(),
		}
		if err := tx.PutListing(listing); err != nil {
			return err
		}
		tx.record(NewListedEvent(listing))
		return nil
	})
}

// DepositEarnest moves amount from the buyer into the vault and credits it to
// the listing. Any non-negative amount is accepted.
func (e *Engine) DepositEarnest(caller [20]byte, assetID uint64, amount *big.Int) error {
	return e.update("depositEarnest", assetID, func(tx *txn) error {
		listing, err := activeListing(tx, assetID)
		if err != nil {
			return err
		}
		if caller != listing.Buyer {
			return fmt.Errorf("%w: only the buyer may deposit earnest", ErrUnauthorized)
		}
		if err := validAmount(amount); err != nil {
			return err
		}
		if err := e.fund(tx, caller, listing, amount); err != nil {
			return err
		}
		tx.record(NewDepositedEvent(listing, amount))
		return nil
	})
}

// Contribute moves gap funding from the lender into the vault and credits it
// to the listing.
func (e *Engine) Contribute(caller [20]byte, assetID uint64, amount *big.Int) error {
	return e.update("contribute", assetID, func(tx *txn) error {
		listing, err := activeListing(tx, assetID)
		if err != nil {
			return err
		}
		if caller != e.roles.Lender {
			return fmt.Errorf("%w: only the lender may contribute", ErrUnauthorized)
		}
		if err := validAmount(amount); err != nil {
			return err
		}
		if err := e.fund(tx, caller, listing, amount); err != nil {
			return err
		}
		tx.record(NewContributedEvent(listing, caller, amount))
		return nil
	})
}

func (e *Engine) fund(tx *txn, from [20]byte, listing *Listing, amount *big.Int) error {
	if err := tx.Transfer(from, e.vault, amount); err != nil {
		if errors.Is(err, bank.ErrInsufficientBalance) {
			return fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
		}
		return err
	}
	listing.Balance = new(big.Int).Add(listing.Balance, amount)
	return tx.PutListing(listing)
}

// UpdateInspectionStatus records the inspector's verdict. The last call before
// the listing closes wins.
func (e *Engine) UpdateInspectionStatus(caller [20]byte, assetID uint64, passed bool) error {
	return e.update("updateInspectionStatus", assetID, func(tx *txn) error {
		listing, err := activeListing(tx, assetID)
		if err != nil {
			return err
		}
		if caller != e.roles.Inspector {
			return fmt.Errorf("%w: only the inspector may record inspections", ErrUnauthorized)
		}
		listing.InspectionPassed = passed
		if err := tx.PutListing(listing); err != nil {
			return err
		}
		tx.record(NewInspectedEvent(listing))
		return nil
	})
}

// ApproveSale records the caller's consent. Only the buyer, the seller and the
// lender may approve; approving twice leaves the listing untouched.
func (e *Engine) ApproveSale(caller [20]byte, assetID uint64) error {
	return e.update("approveSale", assetID, func(tx *txn) error {
		listing, err := activeListing(tx, assetID)
		if err != nil {
			return err
		}
		if caller != listing.Buyer && caller != listing.Seller && caller != e.roles.Lender {
			return fmt.Errorf("%w: caller is not an approving party", ErrUnauthorized)
		}
		if !listing.approve(caller) {
			return nil
		}
		if err := tx.PutListing(listing); err != nil {
			return err
		}
		tx.record(NewApprovedEvent(listing, caller))
		return nil
	})
}

func (e *Engine) fullyApproved(l *Listing) bool {
	return l.HasApproved(l.Buyer) && l.HasApproved(l.Seller) && l.HasApproved(e.roles.Lender)
}

// FinalizeSale settles the listing: the purchase price goes to the seller, any
// surplus back to the buyer and the deed to the buyer. Guards are evaluated in
// order and the first failure is returned with nothing changed.
func (e *Engine) FinalizeSale(caller [20]byte, assetID uint64) error {
	return e.update("finalizeSale", assetID, func(tx *txn) error {
		listing, err := activeListing(tx, assetID)
		if err != nil {
			return err
		}
		if caller != listing.Seller {
			return fmt.Errorf("%w: only the seller may finalize", ErrUnauthorized)
		}
		if !listing.InspectionPassed {
			return ErrInspectionNotPassed
		}
		if !e.fullyApproved(listing) {
			return ErrApprovalIncomplete
		}
		if listing.Balance.Cmp(listing.PurchasePrice) < 0 {
			return fmt.Errorf("%w: held %s, price %s", ErrInsufficientFunds, listing.Balance, listing.PurchasePrice)
		}
		if err := e.checkCustody(tx, assetID); err != nil {
			return err
		}

		price := cloneBigInt(listing.PurchasePrice)
		surplus := new(big.Int).Sub(listing.Balance, price)
		if err := tx.Transfer(e.vault, listing.Seller, price); err != nil {
			return fmt.Errorf("%w: pay seller: %w", ErrPayoutRejected, err)
		}
		if surplus.Sign() > 0 {
			if err := tx.Transfer(e.vault, listing.Buyer, surplus); err != nil {
				return fmt.Errorf("%w: refund surplus: %w", ErrPayoutRejected, err)
			}
		}
		if err := tx.TransferDeed(e.vault, e.vault, listing.Buyer, assetID); err != nil {
			return fmt.Errorf("%w: %w", ErrTransferRejected, err)
		}
		e.close(listing)
		if err := tx.PutListing(listing); err != nil {
			return err
		}
		tx.record(NewFinalizedEvent(listing, price, surplus))
		return nil
	})
}

// CancelSale aborts the listing and returns the deed to the seller. Held funds
// are refunded to the buyer when the inspection has not passed and forfeited
// to the seller otherwise.
func (e *Engine) CancelSale(caller [20]byte, assetID uint64) error {
	return e.update("cancelSale", assetID, func(tx *txn) error {
		listing, err := activeListing(tx, assetID)
		if err != nil {
			return err
		}
		if caller != listing.Seller {
			return fmt.Errorf("%w: only the seller may cancel", ErrUnauthorized)
		}
		if err := e.checkCustody(tx, assetID); err != nil {
			return err
		}
		held := cloneBigInt(listing.Balance)
		recipient, outcome := listing.Buyer, "refunded"
		if listing.InspectionPassed {
			recipient, outcome = listing.Seller, "forfeited"
		}
		if err := tx.Transfer(e.vault, recipient, held); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrPayoutRejected, outcome, err)
		}
		if err := tx.TransferDeed(e.vault, e.vault, listing.Seller, assetID); err != nil {
			return fmt.Errorf("%w: %w", ErrTransferRejected, err)
		}
		e.close(listing)
		if err := tx.PutListing(listing); err != nil {
			return err
		}
		tx.record(NewCancelledEvent(listing, outcome, held))
		return nil
	})
}

// checkCustody confirms the vault still holds the deed and can move it.
func (e *Engine) checkCustody(tx *txn, assetID uint64) error {
	holder, err := tx.OwnerOf(assetID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransferRejected, err)
	}
	if holder != e.vault {
		return fmt.Errorf("%w: escrow does not hold asset %d", ErrTransferRejected, assetID)
	}
	if err := tx.CanTransferDeed(e.vault, e.vault, assetID); err != nil {
		return fmt.Errorf("%w: %w", ErrTransferRejected, err)
	}
	return nil
}

func (e *Engine) close(listing *Listing) {
	listing.IsListed = false
	listing.Balance = big.NewInt(0)
	listing.ClosedAt = e.now()
}

// Listing returns a copy of the listing record for assetID, including closed
// cycles. ErrUnknownListing is returned when the asset was never listed.
func (e *Engine) Listing(assetID uint64) (*Listing, error) {
	var out *Listing
	err := e.view(func(st State) error {
		listing, ok, err := st.GetListing(assetID)
		if err != nil {
			return err
		}
		if !ok || listing == nil {
			return fmt.Errorf("%w: asset %d", ErrUnknownListing, assetID)
		}
		listing.normalize()
		out = listing.Clone()
		return nil
	})
	return out, err
}

// lookup returns the stored listing or an empty record, mirroring accessor
// semantics where unknown keys read as zero values.
func (e *Engine) lookup(assetID uint64) (*Listing, error) {
	listing, err := e.Listing(assetID)
	if errors.Is(err, ErrUnknownListing) {
		empty := &Listing{AssetID: assetID}
		empty.normalize()
		return empty, nil
	}
	return listing, err
}

// IsListed reports whether assetID has an active listing.
func (e *Engine) IsListed(assetID uint64) (bool, error) {
	listing, err := e.lookup(assetID)
	if err != nil {
		return false, err
	}
	return listing.IsListed, nil
}

// Buyer returns the buyer recorded for assetID.
func (e *Engine) Buyer(assetID uint64) ([20]byte, error) {
	listing, err := e.lookup(assetID)
	if err != nil {
		return [20]byte{}, err
	}
	return listing.Buyer, nil
}

// PurchasePrice returns the purchase price recorded for assetID.
func (e *Engine) PurchasePrice(assetID uint64) (*big.Int, error) {
	listing, err := e.lookup(assetID)
	if err != nil {
		return nil, err
	}
	return listing.PurchasePrice, nil
}

// EscrowAmount returns the earnest amount recorded for assetID.
func (e *Engine) EscrowAmount(assetID uint64) (*big.Int, error) {
	listing, err := e.lookup(assetID)
	if err != nil {
		return nil, err
	}
	return listing.EscrowAmount, nil
}

// InspectionPassed returns the inspector's latest verdict for assetID.
func (e *Engine) InspectionPassed(assetID uint64) (bool, error) {
	listing, err := e.lookup(assetID)
	if err != nil {
		return false, err
	}
	return listing.InspectionPassed, nil
}

// Approval reports whether identity has approved the sale of assetID.
func (e *Engine) Approval(assetID uint64, identity [20]byte) (bool, error) {
	listing, err := e.lookup(assetID)
	if err != nil {
		return false, err
	}
	return listing.HasApproved(identity), nil
}

// ListingBalance returns the funds held against assetID.
func (e *Engine) ListingBalance(assetID uint64) (*big.Int, error) {
	listing, err := e.lookup(assetID)
	if err != nil {
		return nil, err
	}
	return listing.Balance, nil
}

// GetBalance returns the aggregate balance of the escrow vault.
func (e *Engine) GetBalance() (*big.Int, error) {
	var out *big.Int
	err := e.view(func(st State) error {
		balance, err := st.Balance(e.vault)
		if err != nil {
			return err
		}
		out = cloneBigInt(balance)
		return nil
	})
	return out, err
}
