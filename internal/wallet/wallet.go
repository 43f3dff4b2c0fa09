// Package wallet is the external collaborator that holds participants'
// real-currency token balances. The engine only ever debits entry fees.
package wallet

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrInsufficientBalance is returned when a debit exceeds the balance.
var ErrInsufficientBalance = errors.New("wallet: insufficient balance")

// Wallet debits real-currency tokens, e.g. tournament entry fees.
type Wallet interface {
	// Debit removes amount from the user's balance. Atomic: either the
	// full amount is debited or nothing changes.
	Debit(ctx context.Context, userID string, amount decimal.Decimal) error
}

// MemoryWallet is an in-memory Wallet for tests and development.
type MemoryWallet struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
}

// NewMemoryWallet creates an empty in-memory wallet.
func NewMemoryWallet() *MemoryWallet {
	return &MemoryWallet{balances: make(map[string]decimal.Decimal)}
}

// Credit adds amount to the user's balance.
func (w *MemoryWallet) Credit(userID string, amount decimal.Decimal) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[userID] = w.balances[userID].Add(amount)
}

// Balance returns the user's current balance.
func (w *MemoryWallet) Balance(userID string) decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[userID]
}

func (w *MemoryWallet) Debit(_ context.Context, userID string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	balance := w.balances[userID]
	if balance.LessThan(amount) {
		return ErrInsufficientBalance
	}
	w.balances[userID] = balance.Sub(amount)
	return nil
}
