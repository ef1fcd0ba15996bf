package bank

import (
	"errors"
	"math/big"
	"testing"

	"deedescrow/core/types"
)

type memAccounts map[[20]byte]*types.Account

func (m memAccounts) GetAccount(addr [20]byte) (*types.Account, error) {
	if acc, ok := m[addr]; ok {
		return acc.Copy(), nil
	}
	return types.NewAccount(), nil
}

func (m memAccounts) PutAccount(addr [20]byte, account *types.Account) error {
	m[addr] = account.Copy()
	return nil
}

func addr(fill byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = fill
	}
	return a
}

func TestTransfer(t *testing.T) {
	accounts := memAccounts{}
	ledger := New(accounts)
	alice, bob := addr(0x01), addr(0x02)

	if err := ledger.Credit(alice, big.NewInt(10)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := ledger.Transfer(alice, bob, big.NewInt(4)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	aliceBal, _ := ledger.Balance(alice)
	bobBal, _ := ledger.Balance(bob)
	if aliceBal.Cmp(big.NewInt(6)) != 0 || bobBal.Cmp(big.NewInt(4)) != 0 {
		t.Fatalf("unexpected balances alice=%s bob=%s", aliceBal, bobBal)
	}
}

func TestTransferFailures(t *testing.T) {
	alice, bob := addr(0x01), addr(0x02)
	tests := []struct {
		name    string
		amount  *big.Int
		blocked bool
		want    error
	}{
		{name: "negative", amount: big.NewInt(-1), want: ErrNegativeAmount},
		{name: "nil", amount: nil, want: ErrNegativeAmount},
		{name: "insufficient", amount: big.NewInt(11), want: ErrInsufficientBalance},
		{name: "blocked", amount: big.NewInt(1), blocked: true, want: ErrReceiveBlocked},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			accounts := memAccounts{}
			ledger := New(accounts)
			if err := ledger.Credit(alice, big.NewInt(10)); err != nil {
				t.Fatalf("credit: %v", err)
			}
			if err := ledger.SetReceiveBlocked(bob, tc.blocked); err != nil {
				t.Fatalf("block: %v", err)
			}
			err := ledger.Transfer(alice, bob, tc.amount)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			bal, _ := ledger.Balance(alice)
			if bal.Cmp(big.NewInt(10)) != 0 {
				t.Fatalf("sender balance changed to %s", bal)
			}
		})
	}
}

func TestZeroTransferIsNoop(t *testing.T) {
	accounts := memAccounts{}
	ledger := New(accounts)
	blocked := addr(0x09)
	if err := ledger.SetReceiveBlocked(blocked, true); err != nil {
		t.Fatalf("block: %v", err)
	}
	if err := ledger.Transfer(addr(0x01), blocked, big.NewInt(0)); err != nil {
		t.Fatalf("zero transfer: %v", err)
	}
}

func TestModuleAddressStable(t *testing.T) {
	if ModuleAddress("escrow") != ModuleAddress("escrow") {
		t.Fatalf("module address not deterministic")
	}
	if ModuleAddress("escrow") == ModuleAddress("registry") {
		t.Fatalf("distinct labels must not collide")
	}
}
