package state

import (
	"errors"
	"math/big"
	"testing"

	"deedescrow/core/types"
	"deedescrow/storage"
)

func newTestManager(t *testing.T) (*Manager, *storage.MemDB) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(func() { _ = db.Close() })
	return NewManager(db), db
}

func TestUpdateCommitsOnSuccess(t *testing.T) {
	mgr, _ := newTestManager(t)

	if err := mgr.Update(func(tx *Txn) error {
		if err := tx.KVPut([]byte("listing/1"), uint64(42)); err != nil {
			return err
		}
		var got uint64
		ok, err := tx.KVGet([]byte("listing/1"), &got)
		if err != nil || !ok || got != 42 {
			t.Fatalf("expected pending write to be visible, got %d ok=%v err=%v", got, ok, err)
		}
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	var got uint64
	if err := mgr.View(func(tx *Txn) error {
		ok, err := tx.KVGet([]byte("listing/1"), &got)
		if !ok {
			t.Fatalf("expected committed key")
		}
		return err
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
	if got != 42 {
		t.Fatalf("unexpected value %d", got)
	}
}

func TestUpdateDiscardsOnError(t *testing.T) {
	mgr, db := newTestManager(t)
	if err := mgr.Update(func(tx *Txn) error {
		return tx.KVPut([]byte("kept"), uint64(1))
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	before := db.Keys()

	boom := errors.New("boom")
	err := mgr.Update(func(tx *Txn) error {
		if err := tx.KVPut([]byte("kept"), uint64(2)); err != nil {
			return err
		}
		if err := tx.KVPut([]byte("dropped"), uint64(3)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	after := db.Keys()
	if len(before) != len(after) {
		t.Fatalf("expected no new keys, before=%d after=%d", len(before), len(after))
	}
	_ = mgr.View(func(tx *Txn) error {
		var v uint64
		if _, err := tx.KVGet([]byte("kept"), &v); err != nil {
			t.Fatalf("get: %v", err)
		}
		if v != 1 {
			t.Fatalf("expected original value 1, got %d", v)
		}
		return nil
	})
}

func TestViewRejectsWrites(t *testing.T) {
	mgr, _ := newTestManager(t)
	err := mgr.View(func(tx *Txn) error {
		return tx.KVPut([]byte("x"), uint64(1))
	})
	if !errors.Is(err, ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
}

func TestKVDeleteAndAppend(t *testing.T) {
	mgr, _ := newTestManager(t)
	err := mgr.Update(func(tx *Txn) error {
		if err := tx.KVPut([]byte("gone"), uint64(7)); err != nil {
			return err
		}
		if err := tx.KVDelete([]byte("gone")); err != nil {
			return err
		}
		if ok, _ := tx.KVGet([]byte("gone"), nil); ok {
			t.Fatalf("expected deleted key to be absent")
		}
		for _, v := range [][]byte{{0x01}, {0x02}, {0x01}} {
			if err := tx.KVAppend([]byte("index"), v); err != nil {
				return err
			}
		}
		var list [][]byte
		if err := tx.KVGetList([]byte("index"), &list); err != nil {
			return err
		}
		if len(list) != 2 {
			t.Fatalf("expected deduplicated list of 2, got %d", len(list))
		}
		var empty [][]byte
		if err := tx.KVGetList([]byte("missing"), &empty); err != nil {
			return err
		}
		if empty == nil || len(empty) != 0 {
			t.Fatalf("expected empty non-nil slice")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
}

func TestAccountsRoundTrip(t *testing.T) {
	mgr, _ := newTestManager(t)
	var addr [20]byte
	addr[0] = 0xAB

	err := mgr.Update(func(tx *Txn) error {
		acc, err := tx.GetAccount(addr)
		if err != nil {
			return err
		}
		if acc.Balance.Sign() != 0 {
			t.Fatalf("expected zero balance for new account")
		}
		acc.Balance = big.NewInt(500)
		acc.ReceiveBlocked = true
		return tx.PutAccount(addr, acc)
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	_ = mgr.View(func(tx *Txn) error {
		acc, err := tx.GetAccount(addr)
		if err != nil {
			t.Fatalf("get account: %v", err)
		}
		if acc.Balance.Cmp(big.NewInt(500)) != 0 || !acc.ReceiveBlocked {
			t.Fatalf("unexpected account %+v", acc)
		}
		return nil
	})
}

func TestEventLogScopes(t *testing.T) {
	mgr, _ := newTestManager(t)
	err := mgr.Update(func(tx *Txn) error {
		if _, err := tx.AppendEvent(types.Event{Type: "escrow.listed", Attributes: map[string]string{"assetId": "1"}}, "asset/1"); err != nil {
			return err
		}
		_, err := tx.AppendEvent(types.Event{Type: "registry.minted", Attributes: map[string]string{"deedId": "2"}})
		return err
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	_ = mgr.View(func(tx *Txn) error {
		all, err := tx.Events("")
		if err != nil {
			t.Fatalf("events: %v", err)
		}
		if len(all) != 2 || all[0].Sequence != 1 || all[1].Sequence != 2 {
			t.Fatalf("unexpected global log %+v", all)
		}
		scoped, err := tx.Events("asset/1")
		if err != nil {
			t.Fatalf("scoped events: %v", err)
		}
		if len(scoped) != 1 || scoped[0].Event.Type != "escrow.listed" || scoped[0].Event.Attributes["assetId"] != "1" {
			t.Fatalf("unexpected scoped log %+v", scoped)
		}
		return nil
	})
}

func TestPauseFlags(t *testing.T) {
	mgr, _ := newTestManager(t)
	if err := mgr.Update(func(tx *Txn) error { return tx.SetPaused("escrow", true) }); err != nil {
		t.Fatalf("pause: %v", err)
	}
	_ = mgr.View(func(tx *Txn) error {
		if !tx.IsPaused("escrow") {
			t.Fatalf("expected escrow paused")
		}
		if tx.IsPaused("registry") {
			t.Fatalf("registry should not be paused")
		}
		return nil
	})
	if err := mgr.Update(func(tx *Txn) error { return tx.SetPaused("escrow", false) }); err != nil {
		t.Fatalf("resume: %v", err)
	}
	_ = mgr.View(func(tx *Txn) error {
		if tx.IsPaused("escrow") {
			t.Fatalf("expected escrow resumed")
		}
		return nil
	})
}
