package escrow

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"testing"

	"deedescrow/core/events"
	"deedescrow/core/types"
	"deedescrow/native/bank"
)

type mockState struct {
	listings map[uint64]*Listing
	balances map[[20]byte]*big.Int
	blocked  map[[20]byte]bool
	owners   map[uint64][20]byte
	approved map[uint64][20]byte
	paused   map[string]bool
	events   []*types.Event
}

func newMockState() *mockState {
	return &mockState{
		listings: make(map[uint64]*Listing),
		balances: make(map[[20]byte]*big.Int),
		blocked:  make(map[[20]byte]bool),
		owners:   make(map[uint64][20]byte),
		approved: make(map[uint64][20]byte),
		paused:   make(map[string]bool),
	}
}

func (m *mockState) clone() *mockState {
	out := newMockState()
	for k, v := range m.listings {
		out.listings[k] = v.Clone()
	}
	for k, v := range m.balances {
		out.balances[k] = new(big.Int).Set(v)
	}
	for k, v := range m.blocked {
		out.blocked[k] = v
	}
	for k, v := range m.owners {
		out.owners[k] = v
	}
	for k, v := range m.approved {
		out.approved[k] = v
	}
	for k, v := range m.paused {
		out.paused[k] = v
	}
	out.events = append(out.events, m.events...)
	return out
}

// snapshot renders the state into comparable strings so that equal balances
// compare equal regardless of their internal big.Int representation.
func (m *mockState) snapshot() map[string]string {
	out := make(map[string]string)
	for id, l := range m.listings {
		out[fmt.Sprintf("listing/%d", id)] = fmt.Sprintf("%v|%x|%x|%s|%s|%v|%x|%s|%d|%d|%d",
			l.IsListed, l.Seller, l.Buyer, l.PurchasePrice, l.EscrowAmount, l.InspectionPassed,
			l.Approvals, l.Balance, l.Cycle, l.ListedAt, l.ClosedAt)
	}
	for addr, bal := range m.balances {
		out[fmt.Sprintf("balance/%x", addr)] = bal.String()
	}
	for addr, blocked := range m.blocked {
		out[fmt.Sprintf("blocked/%x", addr)] = fmt.Sprint(blocked)
	}
	for id, owner := range m.owners {
		out[fmt.Sprintf("owner/%d", id)] = fmt.Sprintf("%x", owner)
	}
	for id, operator := range m.approved {
		out[fmt.Sprintf("approved/%d", id)] = fmt.Sprintf("%x", operator)
	}
	out["events"] = fmt.Sprint(len(m.events))
	return out
}

func (m *mockState) GetListing(assetID uint64) (*Listing, bool, error) {
	listing, ok := m.listings[assetID]
	if !ok {
		return nil, false, nil
	}
	return listing.Clone(), true, nil
}

func (m *mockState) PutListing(listing *Listing) error {
	m.listings[listing.AssetID] = listing.Clone()
	return nil
}

func (m *mockState) Balance(addr [20]byte) (*big.Int, error) {
	if bal, ok := m.balances[addr]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (m *mockState) Transfer(from, to [20]byte, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	fromBal, _ := m.Balance(from)
	if fromBal.Cmp(amount) < 0 {
		return bank.ErrInsufficientBalance
	}
	if m.blocked[to] {
		return bank.ErrReceiveBlocked
	}
	toBal, _ := m.Balance(to)
	m.balances[from] = new(big.Int).Sub(fromBal, amount)
	m.balances[to] = new(big.Int).Add(toBal, amount)
	return nil
}

var (
	errMockUnknownDeed = errors.New("mock registry: unknown deed")
	errMockNotOwner    = errors.New("mock registry: not owner")
	errMockNotApproved = errors.New("mock registry: not approved")
)

func (m *mockState) OwnerOf(assetID uint64) ([20]byte, error) {
	owner, ok := m.owners[assetID]
	if !ok {
		return [20]byte{}, errMockUnknownDeed
	}
	return owner, nil
}

func (m *mockState) CanTransferDeed(operator, from [20]byte, assetID uint64) error {
	owner, err := m.OwnerOf(assetID)
	if err != nil {
		return err
	}
	if owner != from {
		return errMockNotOwner
	}
	if operator != owner && m.approved[assetID] != operator {
		return errMockNotApproved
	}
	return nil
}

func (m *mockState) TransferDeed(operator, from, to [20]byte, assetID uint64) error {
	if err := m.CanTransferDeed(operator, from, assetID); err != nil {
		return err
	}
	m.owners[assetID] = to
	delete(m.approved, assetID)
	return nil
}

func (m *mockState) AppendEvent(evt *types.Event) error {
	m.events = append(m.events, evt)
	return nil
}

func (m *mockState) IsPaused(module string) bool { return m.paused[module] }

type mockStore struct {
	committed *mockState
}

func (s *mockStore) Update(fn func(State) error) error {
	work := s.committed.clone()
	if err := fn(work); err != nil {
		return err
	}
	s.committed = work
	return nil
}

func (s *mockStore) View(fn func(State) error) error {
	return fn(s.committed.clone())
}

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) {
	c.events = append(c.events, evt)
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

var (
	seller    = newTestAddress(0x11)
	buyer     = newTestAddress(0x22)
	inspector = newTestAddress(0x33)
	lender    = newTestAddress(0x44)
	stranger  = newTestAddress(0x55)
)

type testHarness struct {
	engine  *Engine
	store   *mockStore
	emitter *capturingEmitter
}

// newTestEngine mints deed 1 to the seller, approves the escrow as operator
// and funds the buyer and lender with 5 units each.
func newTestEngine(t *testing.T) *testHarness {
	t.Helper()
	store := &mockStore{committed: newMockState()}
	engine := NewEngine(store, Roles{Seller: seller, Inspector: inspector, Lender: lender})
	engine.SetNowFunc(func() int64 { return 1_700_000_000 })
	emitter := &capturingEmitter{}
	engine.SetEmitter(emitter)

	st := store.committed
	st.owners[1] = seller
	st.approved[1] = engine.Address()
	st.balances[buyer] = big.NewInt(5)
	st.balances[lender] = big.NewInt(5)
	return &testHarness{engine: engine, store: store, emitter: emitter}
}

func (h *testHarness) list(t *testing.T) {
	t.Helper()
	if err := h.engine.List(seller, 1, buyer, big.NewInt(10), big.NewInt(5)); err != nil {
		t.Fatalf("list: %v", err)
	}
}

func (h *testHarness) readyToFinalize(t *testing.T) {
	t.Helper()
	h.list(t)
	if err := h.engine.DepositEarnest(buyer, 1, big.NewInt(5)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := h.engine.UpdateInspectionStatus(inspector, 1, true); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	for _, who := range [][20]byte{buyer, seller, lender} {
		if err := h.engine.ApproveSale(who, 1); err != nil {
			t.Fatalf("approve: %v", err)
		}
	}
	if err := h.engine.Contribute(lender, 1, big.NewInt(5)); err != nil {
		t.Fatalf("contribute: %v", err)
	}
}

func (h *testHarness) balance(addr [20]byte) *big.Int {
	bal, _ := h.store.committed.Balance(addr)
	return bal
}

func (h *testHarness) owner(id uint64) [20]byte {
	owner, _ := h.store.committed.OwnerOf(id)
	return owner
}

func mustBalance(t *testing.T, engine *Engine) *big.Int {
	t.Helper()
	bal, err := engine.GetBalance()
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	return bal
}

func TestListPullsCustody(t *testing.T) {
	h := newTestEngine(t)
	h.list(t)

	if h.owner(1) != h.engine.Address() {
		t.Fatalf("expected escrow to hold the deed")
	}
	listed, err := h.engine.IsListed(1)
	if err != nil || !listed {
		t.Fatalf("expected listing active, got %v err=%v", listed, err)
	}
	gotBuyer, _ := h.engine.Buyer(1)
	if gotBuyer != buyer {
		t.Fatalf("unexpected buyer %x", gotBuyer)
	}
	price, _ := h.engine.PurchasePrice(1)
	earnest, _ := h.engine.EscrowAmount(1)
	if price.Cmp(big.NewInt(10)) != 0 || earnest.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("unexpected terms price=%s earnest=%s", price, earnest)
	}
	listing, err := h.engine.Listing(1)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if listing.Cycle != 1 || listing.ListedAt != 1_700_000_000 {
		t.Fatalf("unexpected listing metadata %+v", listing)
	}
	if len(h.emitter.events) != 1 || h.emitter.events[0].EventType() != EventTypeListed {
		t.Fatalf("expected listed event, got %v", h.emitter.events)
	}
}

func TestScenarioDepositEarnest(t *testing.T) {
	h := newTestEngine(t)
	h.list(t)
	if err := h.engine.DepositEarnest(buyer, 1, big.NewInt(5)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if bal := mustBalance(t, h.engine); bal.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("expected balance 5, got %s", bal)
	}
	held, _ := h.engine.ListingBalance(1)
	if held.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("expected listing balance 5, got %s", held)
	}
}

func TestScenarioFinalize(t *testing.T) {
	h := newTestEngine(t)
	h.readyToFinalize(t)

	if err := h.engine.FinalizeSale(seller, 1); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if bal := mustBalance(t, h.engine); bal.Sign() != 0 {
		t.Fatalf("expected empty vault, got %s", bal)
	}
	if h.owner(1) != buyer {
		t.Fatalf("expected buyer to hold the deed")
	}
	if got := h.balance(seller); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("expected seller paid 10, got %s", got)
	}
	listed, _ := h.engine.IsListed(1)
	if listed {
		t.Fatalf("expected listing closed")
	}
	last := h.emitter.events[len(h.emitter.events)-1]
	if last.EventType() != EventTypeFinalized {
		t.Fatalf("expected finalized event, got %s", last.EventType())
	}
}

func TestFinalizeRefundsSurplusToBuyer(t *testing.T) {
	h := newTestEngine(t)
	h.store.committed.balances[lender] = big.NewInt(7)
	h.list(t)
	if err := h.engine.DepositEarnest(buyer, 1, big.NewInt(5)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := h.engine.Contribute(lender, 1, big.NewInt(7)); err != nil {
		t.Fatalf("contribute: %v", err)
	}
	if err := h.engine.UpdateInspectionStatus(inspector, 1, true); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	for _, who := range [][20]byte{buyer, seller, lender} {
		if err := h.engine.ApproveSale(who, 1); err != nil {
			t.Fatalf("approve: %v", err)
		}
	}
	if err := h.engine.FinalizeSale(seller, 1); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if got := h.balance(buyer); got.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("expected surplus 2 refunded to buyer, got %s", got)
	}
	if got := h.balance(seller); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("expected seller paid 10, got %s", got)
	}
}

func TestFinalizeGuardsLeaveStateUnchanged(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, h *testHarness)
		want  error
	}{
		{
			name: "inspection never passed",
			setup: func(t *testing.T, h *testHarness) {
				h.list(t)
				if err := h.engine.DepositEarnest(buyer, 1, big.NewInt(5)); err != nil {
					t.Fatalf("deposit: %v", err)
				}
			},
			want: ErrInspectionNotPassed,
		},
		{
			name: "inspection reported before approvals",
			setup: func(t *testing.T, h *testHarness) {
				h.list(t)
				_ = h.engine.ApproveSale(buyer, 1)
			},
			want: ErrInspectionNotPassed,
		},
		{
			name: "lender has not approved",
			setup: func(t *testing.T, h *testHarness) {
				h.list(t)
				_ = h.engine.UpdateInspectionStatus(inspector, 1, true)
				_ = h.engine.ApproveSale(buyer, 1)
				_ = h.engine.ApproveSale(seller, 1)
			},
			want: ErrApprovalIncomplete,
		},
		{
			name: "balance below price",
			setup: func(t *testing.T, h *testHarness) {
				h.list(t)
				_ = h.engine.DepositEarnest(buyer, 1, big.NewInt(5))
				_ = h.engine.UpdateInspectionStatus(inspector, 1, true)
				for _, who := range [][20]byte{buyer, seller, lender} {
					_ = h.engine.ApproveSale(who, 1)
				}
			},
			want: ErrInsufficientFunds,
		},
		{
			name: "inspection revoked",
			setup: func(t *testing.T, h *testHarness) {
				h.readyToFinalize(t)
				_ = h.engine.UpdateInspectionStatus(inspector, 1, false)
			},
			want: ErrInspectionNotPassed,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestEngine(t)
			tc.setup(t, h)
			before := h.store.committed.snapshot()
			emitted := len(h.emitter.events)

			err := h.engine.FinalizeSale(seller, 1)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !reflect.DeepEqual(before, h.store.committed.snapshot()) {
				t.Fatalf("state changed after failed finalize")
			}
			if len(h.emitter.events) != emitted {
				t.Fatalf("events emitted for failed finalize")
			}
			if h.owner(1) != h.engine.Address() {
				t.Fatalf("custody moved after failed finalize")
			}
		})
	}
}

func TestFinalizeSellerCannotReceiveFunds(t *testing.T) {
	h := newTestEngine(t)
	h.readyToFinalize(t)
	h.store.committed.blocked[seller] = true
	before := h.store.committed.snapshot()

	err := h.engine.FinalizeSale(seller, 1)
	if !errors.Is(err, ErrPayoutRejected) || !errors.Is(err, bank.ErrReceiveBlocked) {
		t.Fatalf("expected payout rejection, got %v", err)
	}
	if !reflect.DeepEqual(before, h.store.committed.snapshot()) {
		t.Fatalf("state changed after rejected payout")
	}
	listed, _ := h.engine.IsListed(1)
	if !listed || h.owner(1) != h.engine.Address() {
		t.Fatalf("listing must stay active with custody in escrow")
	}

	delete(h.store.committed.blocked, seller)
	if err := h.engine.FinalizeSale(seller, 1); err != nil {
		t.Fatalf("retry finalize: %v", err)
	}
	if h.owner(1) != buyer {
		t.Fatalf("expected buyer to hold the deed after retry")
	}
}

func TestScenarioCancelRefundsBuyer(t *testing.T) {
	h := newTestEngine(t)
	h.list(t)
	if err := h.engine.DepositEarnest(buyer, 1, big.NewInt(5)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if got := h.balance(buyer); got.Sign() != 0 {
		t.Fatalf("expected buyer balance 0 after deposit, got %s", got)
	}
	if err := h.engine.CancelSale(seller, 1); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := h.balance(buyer); got.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("expected buyer refunded 5, got %s", got)
	}
	if h.owner(1) != seller {
		t.Fatalf("expected deed returned to seller")
	}
	if bal := mustBalance(t, h.engine); bal.Sign() != 0 {
		t.Fatalf("expected empty vault, got %s", bal)
	}
}

func TestCancelAfterPassedInspectionForfeitsToSeller(t *testing.T) {
	h := newTestEngine(t)
	h.list(t)
	_ = h.engine.DepositEarnest(buyer, 1, big.NewInt(5))
	_ = h.engine.Contribute(lender, 1, big.NewInt(3))
	if err := h.engine.UpdateInspectionStatus(inspector, 1, true); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if err := h.engine.CancelSale(seller, 1); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := h.balance(seller); got.Cmp(big.NewInt(8)) != 0 {
		t.Fatalf("expected seller to receive 8, got %s", got)
	}
	if got := h.balance(buyer); got.Sign() != 0 {
		t.Fatalf("expected buyer to receive nothing, got %s", got)
	}
	if h.owner(1) != seller {
		t.Fatalf("expected deed returned to seller")
	}
}

func TestInspectionLastWriteWins(t *testing.T) {
	h := newTestEngine(t)
	h.list(t)
	_ = h.engine.DepositEarnest(buyer, 1, big.NewInt(5))
	for _, passed := range []bool{true, false, true, true, false} {
		if err := h.engine.UpdateInspectionStatus(inspector, 1, passed); err != nil {
			t.Fatalf("inspect: %v", err)
		}
	}
	passed, _ := h.engine.InspectionPassed(1)
	if passed {
		t.Fatalf("expected last verdict false")
	}
	if err := h.engine.CancelSale(seller, 1); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := h.balance(buyer); got.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("expected refund to buyer, got %s", got)
	}
}

func TestApproveSaleIsIdempotent(t *testing.T) {
	h := newTestEngine(t)
	h.list(t)
	if err := h.engine.ApproveSale(buyer, 1); err != nil {
		t.Fatalf("approve: %v", err)
	}
	once := h.store.committed.snapshot()
	emitted := len(h.emitter.events)

	if err := h.engine.ApproveSale(buyer, 1); err != nil {
		t.Fatalf("approve again: %v", err)
	}
	if !reflect.DeepEqual(once, h.store.committed.snapshot()) {
		t.Fatalf("second approval changed state")
	}
	if len(h.emitter.events) != emitted {
		t.Fatalf("second approval emitted an event")
	}
	approved, _ := h.engine.Approval(1, buyer)
	if !approved {
		t.Fatalf("expected buyer approval recorded")
	}
	approved, _ = h.engine.Approval(1, lender)
	if approved {
		t.Fatalf("lender approval must not be recorded")
	}
}

func TestUnauthorizedCallers(t *testing.T) {
	tests := []struct {
		name string
		run  func(e *Engine) error
	}{
		{"list by stranger", func(e *Engine) error { return e.List(stranger, 1, buyer, big.NewInt(10), big.NewInt(5)) }},
		{"deposit by lender", func(e *Engine) error { return e.DepositEarnest(lender, 1, big.NewInt(1)) }},
		{"contribute by buyer", func(e *Engine) error { return e.Contribute(buyer, 1, big.NewInt(1)) }},
		{"inspect by seller", func(e *Engine) error { return e.UpdateInspectionStatus(seller, 1, true) }},
		{"approve by inspector", func(e *Engine) error { return e.ApproveSale(inspector, 1) }},
		{"approve by stranger", func(e *Engine) error { return e.ApproveSale(stranger, 1) }},
		{"finalize by buyer", func(e *Engine) error { return e.FinalizeSale(buyer, 1) }},
		{"cancel by buyer", func(e *Engine) error { return e.CancelSale(buyer, 1) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestEngine(t)
			if tc.name != "list by stranger" {
				h.list(t)
			}
			before := h.store.committed.snapshot()
			if err := tc.run(h.engine); !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
			if !reflect.DeepEqual(before, h.store.committed.snapshot()) {
				t.Fatalf("state changed after unauthorized call")
			}
		})
	}
}

func TestOperationsRequireActiveListing(t *testing.T) {
	h := newTestEngine(t)
	ops := map[string]func() error{
		"deposit":    func() error { return h.engine.DepositEarnest(buyer, 1, big.NewInt(1)) },
		"contribute": func() error { return h.engine.Contribute(lender, 1, big.NewInt(1)) },
		"inspect":    func() error { return h.engine.UpdateInspectionStatus(inspector, 1, true) },
		"approve":    func() error { return h.engine.ApproveSale(buyer, 1) },
		"finalize":   func() error { return h.engine.FinalizeSale(seller, 1) },
		"cancel":     func() error { return h.engine.CancelSale(seller, 1) },
	}
	for name, op := range ops {
		if err := op(); !errors.Is(err, ErrUnknownListing) {
			t.Fatalf("%s: expected ErrUnknownListing, got %v", name, err)
		}
	}
	if _, err := h.engine.Listing(1); !errors.Is(err, ErrUnknownListing) {
		t.Fatalf("expected ErrUnknownListing from Listing, got %v", err)
	}
	listed, err := h.engine.IsListed(1)
	if err != nil || listed {
		t.Fatalf("expected unlisted asset to read false, got %v err=%v", listed, err)
	}
}

func TestListRejections(t *testing.T) {
	t.Run("escrow not approved", func(t *testing.T) {
		h := newTestEngine(t)
		delete(h.store.committed.approved, 1)
		before := h.store.committed.snapshot()
		err := h.engine.List(seller, 1, buyer, big.NewInt(10), big.NewInt(5))
		if !errors.Is(err, ErrTransferRejected) || !errors.Is(err, errMockNotApproved) {
			t.Fatalf("expected TransferRejected, got %v", err)
		}
		if !reflect.DeepEqual(before, h.store.committed.snapshot()) {
			t.Fatalf("state changed after rejected list")
		}
	})
	t.Run("seller does not hold deed", func(t *testing.T) {
		h := newTestEngine(t)
		h.store.committed.owners[1] = stranger
		err := h.engine.List(seller, 1, buyer, big.NewInt(10), big.NewInt(5))
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})
	t.Run("unknown deed", func(t *testing.T) {
		h := newTestEngine(t)
		err := h.engine.List(seller, 9, buyer, big.NewInt(10), big.NewInt(5))
		if !errors.Is(err, ErrTransferRejected) {
			t.Fatalf("expected ErrTransferRejected, got %v", err)
		}
	})
	t.Run("invalid terms", func(t *testing.T) {
		h := newTestEngine(t)
		cases := []struct {
			price, earnest *big.Int
			buyer          [20]byte
			want           error
		}{
			{big.NewInt(-1), big.NewInt(0), buyer, ErrInvalidAmount},
			{big.NewInt(10), nil, buyer, ErrInvalidAmount},
			{big.NewInt(5), big.NewInt(6), buyer, ErrInvalidAmount},
			{big.NewInt(10), big.NewInt(5), [20]byte{}, ErrInvalidBuyer},
			{big.NewInt(10), big.NewInt(5), h.engine.Address(), ErrInvalidBuyer},
		}
		for i, c := range cases {
			if err := h.engine.List(seller, 1, c.buyer, c.price, c.earnest); !errors.Is(err, c.want) {
				t.Fatalf("case %d: expected %v, got %v", i, c.want, err)
			}
		}
	})
	t.Run("already active", func(t *testing.T) {
		h := newTestEngine(t)
		h.list(t)
		err := h.engine.List(seller, 1, buyer, big.NewInt(10), big.NewInt(5))
		if !errors.Is(err, ErrListingActive) {
			t.Fatalf("expected ErrListingActive, got %v", err)
		}
	})
}

func TestRelistStartsFreshCycle(t *testing.T) {
	h := newTestEngine(t)
	h.list(t)
	_ = h.engine.UpdateInspectionStatus(inspector, 1, true)
	_ = h.engine.ApproveSale(buyer, 1)
	// Inspection passed with nothing held: cancel forfeits zero to the seller.
	if err := h.engine.CancelSale(seller, 1); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	h.store.committed.approved[1] = h.engine.Address()
	if err := h.engine.List(seller, 1, stranger, big.NewInt(20), big.NewInt(2)); err != nil {
		t.Fatalf("relist: %v", err)
	}
	listing, err := h.engine.Listing(1)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if listing.Cycle != 2 || listing.InspectionPassed || len(listing.Approvals) != 0 || listing.Buyer != stranger {
		t.Fatalf("expected a fresh cycle, got %+v", listing)
	}
}

func TestDepositValidation(t *testing.T) {
	h := newTestEngine(t)
	h.list(t)
	if err := h.engine.DepositEarnest(buyer, 1, big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := h.engine.DepositEarnest(buyer, 1, big.NewInt(6)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if err := h.engine.DepositEarnest(buyer, 1, big.NewInt(0)); err != nil {
		t.Fatalf("zero deposit should be accepted: %v", err)
	}
	if err := h.engine.DepositEarnest(buyer, 1, big.NewInt(2)); err != nil {
		t.Fatalf("underpaying deposit should be accepted: %v", err)
	}
	held, _ := h.engine.ListingBalance(1)
	if held.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("expected listing balance 2, got %s", held)
	}
}

func TestAuthorizationPrecedesInputValidation(t *testing.T) {
	h := newTestEngine(t)
	if err := h.engine.List(stranger, 1, [20]byte{}, big.NewInt(-1), big.NewInt(5)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("list by stranger with bad terms: expected ErrUnauthorized, got %v", err)
	}
	if err := h.engine.DepositEarnest(buyer, 1, big.NewInt(-1)); !errors.Is(err, ErrUnknownListing) {
		t.Fatalf("deposit on unlisted asset: expected ErrUnknownListing, got %v", err)
	}
	if err := h.engine.Contribute(lender, 1, big.NewInt(-1)); !errors.Is(err, ErrUnknownListing) {
		t.Fatalf("contribute on unlisted asset: expected ErrUnknownListing, got %v", err)
	}
	h.list(t)
	if err := h.engine.DepositEarnest(stranger, 1, big.NewInt(-1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("deposit by stranger: expected ErrUnauthorized, got %v", err)
	}
	if err := h.engine.Contribute(buyer, 1, nil); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("contribute by buyer: expected ErrUnauthorized, got %v", err)
	}
	if err := h.engine.Contribute(lender, 1, big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("negative contribution: expected ErrInvalidAmount, got %v", err)
	}
}

func TestVaultBalanceMatchesActiveListings(t *testing.T) {
	h := newTestEngine(t)
	second := newTestAddress(0x66)
	st := h.store.committed
	st.owners[2] = seller
	st.approved[2] = h.engine.Address()
	st.balances[second] = big.NewInt(4)

	h.readyToFinalize(t)
	if err := h.engine.List(seller, 2, second, big.NewInt(8), big.NewInt(4)); err != nil {
		t.Fatalf("list second: %v", err)
	}
	if err := h.engine.DepositEarnest(second, 2, big.NewInt(4)); err != nil {
		t.Fatalf("deposit second: %v", err)
	}
	if bal := mustBalance(t, h.engine); bal.Cmp(big.NewInt(14)) != 0 {
		t.Fatalf("expected vault 14, got %s", bal)
	}
	if err := h.engine.FinalizeSale(seller, 1); err != nil {
		t.Fatalf("finalize first: %v", err)
	}
	remaining, _ := h.engine.ListingBalance(2)
	if bal := mustBalance(t, h.engine); bal.Cmp(remaining) != 0 || bal.Cmp(big.NewInt(4)) != 0 {
		t.Fatalf("vault %s does not match active listing balance %s", bal, remaining)
	}
}

func TestPausedModuleBlocksMutations(t *testing.T) {
	h := newTestEngine(t)
	h.list(t)
	h.store.committed.paused[ModuleName] = true

	if err := h.engine.DepositEarnest(buyer, 1, big.NewInt(1)); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if listed, err := h.engine.IsListed(1); err != nil || !listed {
		t.Fatalf("queries must keep working while paused, got %v err=%v", listed, err)
	}
}

func TestEventsPersistedWithState(t *testing.T) {
	h := newTestEngine(t)
	h.readyToFinalize(t)
	if err := h.engine.FinalizeSale(seller, 1); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	persisted := h.store.committed.events
	if len(persisted) != len(h.emitter.events) {
		t.Fatalf("persisted %d events but emitted %d", len(persisted), len(h.emitter.events))
	}
	want := []string{
		EventTypeListed, EventTypeDeposited, EventTypeInspected,
		EventTypeApproved, EventTypeApproved, EventTypeApproved,
		EventTypeContributed, EventTypeFinalized,
	}
	for i, evt := range persisted {
		if evt.Type != want[i] || h.emitter.events[i].EventType() != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], evt.Type)
		}
	}
	final := persisted[len(persisted)-1]
	if final.Attributes["paidToSeller"] != "10" || final.Attributes["refundedToBuyer"] != "0" {
		t.Fatalf("unexpected finalized attributes %v", final.Attributes)
	}
}

func TestErrorKind(t *testing.T) {
	cases := map[error]string{
		ErrUnauthorized:                        "Unauthorized",
		ErrUnknownListing:                      "UnknownListing",
		ErrTransferRejected:                    "TransferRejected",
		ErrInspectionNotPassed:                 "InspectionNotPassed",
		ErrApprovalIncomplete:                  "ApprovalIncomplete",
		ErrInsufficientFunds:                   "InsufficientFunds",
		errors.New("other"):                    "",
		errors.Join(ErrPayoutRejected, bank.ErrReceiveBlocked): "PayoutRejected",
	}
	for err, want := range cases {
		if got := ErrorKind(err); got != want {
			t.Fatalf("ErrorKind(%v) = %q, want %q", err, got, want)
		}
	}
}
