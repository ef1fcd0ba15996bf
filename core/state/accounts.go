package state

import (
	"math/big"

	"deedescrow/core/types"
)

var accountPrefix = []byte("account/")

func accountKey(addr [20]byte) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr[:])
	return buf
}

type storedAccount struct {
	Balance        *big.Int
	ReceiveBlocked bool
}

// GetAccount returns the account for addr, or an empty account when none has
// been written yet.
func (t *Txn) GetAccount(addr [20]byte) (*types.Account, error) {
	var stored storedAccount
	ok, err := t.KVGet(accountKey(addr), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return types.NewAccount(), nil
	}
	account := &types.Account{Balance: stored.Balance, ReceiveBlocked: stored.ReceiveBlocked}
	if account.Balance == nil {
		account.Balance = big.NewInt(0)
	}
	return account, nil
}

// PutAccount persists the account for addr.
func (t *Txn) PutAccount(addr [20]byte, account *types.Account) error {
	if account == nil {
		account = types.NewAccount()
	}
	balance := account.Balance
	if balance == nil {
		balance = big.NewInt(0)
	}
	return t.KVPut(accountKey(addr), storedAccount{Balance: balance, ReceiveBlocked: account.ReceiveBlocked})
}
