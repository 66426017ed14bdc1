// Package ledger exposes the token balance ledger consumed by settlement.
// The ledger is external to the trade core; only the adapter surface is
// specified here, together with an in-memory implementation.
package ledger

import (
	"errors"
	"sync"

	"ampere/internal/core"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrOverflow            = errors.New("balance overflow")
)

// Adapter is the ledger surface the settlement engine drives. All methods
// are atomic and overflow-checked.
type Adapter interface {
	Credit(account core.AccountID, amount uint64) error
	Debit(account core.AccountID, amount uint64) error
	Balance(account core.AccountID) uint64
}

// Memory is an in-process ledger keyed by account.
type Memory struct {
	mu       sync.Mutex
	balances map[core.AccountID]uint64
}

func NewMemory() *Memory {
	return &Memory{balances: make(map[core.AccountID]uint64)}
}

func (l *Memory) Credit(account core.AccountID, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next, err := core.CheckedAdd(l.balances[account], amount)
	if err != nil {
		return ErrOverflow
	}
	l.balances[account] = next
	return nil
}

func (l *Memory) Debit(account core.AccountID, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	bal := l.balances[account]
	if bal < amount {
		return ErrInsufficientBalance
	}
	l.balances[account] = bal - amount
	return nil
}

func (l *Memory) Balance(account core.AccountID) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account]
}

// Mint provisions freshly issued tokens to an account.
func (l *Memory) Mint(account core.AccountID, amount uint64) error {
	return l.Credit(account, amount)
}
