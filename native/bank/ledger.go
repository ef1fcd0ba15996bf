package bank

import (
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"deedescrow/core/types"
)

var (
	ErrNegativeAmount      = errors.New("bank: amount must not be negative")
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrReceiveBlocked      = errors.New("bank: recipient does not accept funds")
)

type accountState interface {
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error
}

// Ledger moves funds between accounts held in state.
type Ledger struct {
	state accountState
}

// New returns a ledger backed by st.
func New(st accountState) *Ledger {
	return &Ledger{state: st}
}

// ModuleAddress derives the account controlled by a module from its label.
func ModuleAddress(label string) [20]byte {
	var addr [20]byte
	hash := ethcrypto.Keccak256([]byte("deedescrow/module/" + label))
	copy(addr[:], hash[len(hash)-20:])
	return addr
}

func (l *Ledger) ready() error {
	if l == nil || l.state == nil {
		return fmt.Errorf("bank: state not configured")
	}
	return nil
}

// Balance returns the balance of addr.
func (l *Ledger) Balance(addr [20]byte) (*big.Int, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	account, err := l.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(account.Balance), nil
}

// Credit mints amount into addr. It bypasses the receive-block flag and is
// reserved for the operator faucet.
func (l *Ledger) Credit(addr [20]byte, amount *big.Int) error {
	if err := l.ready(); err != nil {
		return err
	}
	if err := validateAmount(amount); err != nil {
		return err
	}
	account, err := l.state.GetAccount(addr)
	if err != nil {
		return err
	}
	account.Balance = new(big.Int).Add(account.Balance, amount)
	return l.state.PutAccount(addr, account)
}

// Transfer moves amount from one account to another. Zero-value transfers
// succeed without touching state.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if err := l.ready(); err != nil {
		return err
	}
	if err := validateAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	sender, err := l.state.GetAccount(from)
	if err != nil {
		return err
	}
	if sender.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, sender.Balance, amount)
	}
	recipient, err := l.state.GetAccount(to)
	if err != nil {
		return err
	}
	if recipient.ReceiveBlocked {
		return ErrReceiveBlocked
	}
	if from == to {
		return nil
	}
	sender.Balance = new(big.Int).Sub(sender.Balance, amount)
	recipient.Balance = new(big.Int).Add(recipient.Balance, amount)
	if err := l.state.PutAccount(from, sender); err != nil {
		return err
	}
	return l.state.PutAccount(to, recipient)
}

// SetReceiveBlocked marks addr as refusing (or accepting again) incoming
// transfers.
func (l *Ledger) SetReceiveBlocked(addr [20]byte, blocked bool) error {
	if err := l.ready(); err != nil {
		return err
	}
	account, err := l.state.GetAccount(addr)
	if err != nil {
		return err
	}
	account.ReceiveBlocked = blocked
	return l.state.PutAccount(addr, account)
}

func validateAmount(amount *big.Int) error {
	if amount == nil {
		return fmt.Errorf("%w: amount required", ErrNegativeAmount)
	}
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	return nil
}
