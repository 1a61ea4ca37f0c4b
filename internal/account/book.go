// Package account tracks the currently selected trading account and its
// balance state. The dispatcher writes into the book directly for
// execution and deposit messages; UI layers read from it.
package account

import (
	"log/slog"
	"sync"
)

// Balance is the cash/margin state for one account.
type Balance struct {
	Deposit      float64
	Withdrawable float64
	TotalMargin  float64
	UpdatedAt    int64 // µs since epoch
}

// Book holds balances per account plus the selection used to filter
// deposit updates.
type Book struct {
	logger *slog.Logger

	mu       sync.RWMutex
	selected string
	balances map[string]Balance
}

// NewBook creates an empty book with no account selected.
func NewBook(logger *slog.Logger) *Book {
	if logger == nil {
		logger = slog.Default()
	}

	return &Book{
		logger:   logger,
		balances: make(map[string]Balance),
	}
}

// Select sets the current account. Deposit updates for other accounts are
// published but not applied.
func (b *Book) Select(accountNo string) {
	b.mu.Lock()
	b.selected = accountNo
	b.mu.Unlock()
}

// Selected returns the currently selected account number, or "".
func (b *Book) Selected() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.selected
}

// ApplyExecution propagates post-fill deposit and total-margin fields into
// the account's balance, regardless of selection.
func (b *Book) ApplyExecution(accountNo string, deposit, totalMargin float64, ts int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bal := b.balances[accountNo]
	bal.Deposit = deposit
	bal.TotalMargin = totalMargin
	bal.UpdatedAt = ts
	b.balances[accountNo] = bal
}

// ApplyDeposit updates the deposit balance only when accountNo matches the
// current selection. Returns whether the write was applied.
func (b *Book) ApplyDeposit(accountNo string, deposit, withdrawable float64, ts int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if accountNo != b.selected {
		return false
	}

	bal := b.balances[accountNo]
	bal.Deposit = deposit
	bal.Withdrawable = withdrawable
	bal.UpdatedAt = ts
	b.balances[accountNo] = bal
	return true
}

// Balance returns a copy of the balance for accountNo.
func (b *Book) Balance(accountNo string) (Balance, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bal, ok := b.balances[accountNo]
	return bal, ok
}
