package types

import "math/big"

// Account holds the fund balance of an identity. ReceiveBlocked marks an
// account that refuses incoming transfers.
type Account struct {
	Balance        *big.Int `json:"balance"`
	ReceiveBlocked bool     `json:"receiveBlocked"`
}

// NewAccount returns an empty account with a zero balance.
func NewAccount() *Account {
	return &Account{Balance: big.NewInt(0)}
}

// Copy returns a deep copy of the account.
func (a *Account) Copy() *Account {
	if a == nil {
		return NewAccount()
	}
	out := &Account{Balance: big.NewInt(0), ReceiveBlocked: a.ReceiveBlocked}
	if a.Balance != nil {
		out.Balance.Set(a.Balance)
	}
	return out
}
