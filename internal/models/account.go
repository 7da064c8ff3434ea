package models

import (
	"time"

	"github.com/vaultpay/accounts/internal/apperr"
)

// AccountStatus is stored as a string in the database, not an ordinal.
type AccountStatus string

const (
	AccountActive AccountStatus = "ACTIVE"
	AccountClosed AccountStatus = "CLOSED"
)

// Account is the aggregate mutated by transfers. Balance is kept in the
// smallest currency unit and must never go negative. Mutations happen only
// through Debit/Credit while the caller holds the account's distributed lock.
type Account struct {
	ID             int64         `json:"id" db:"id"`
	UserID         int64         `json:"user_id" db:"user_id"`
	AccountNumber  string        `json:"account_number" db:"account_number"`
	Status         AccountStatus `json:"status" db:"status"`
	Balance        int64         `json:"balance" db:"balance"`
	RegisteredAt   time.Time     `json:"registered_at" db:"registered_at"`
	UnregisteredAt *time.Time    `json:"unregistered_at,omitempty" db:"unregistered_at"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
}

// Debit removes amount from the balance. It is a pure state transition: no
// locking, no I/O. The caller must already hold the account lock.
func (a *Account) Debit(amount int64) error {
	if a.Status != AccountActive {
		return apperr.New(apperr.AccountAlreadyClosed)
	}
	if amount > a.Balance {
		return apperr.New(apperr.InsufficientFunds)
	}
	a.Balance -= amount
	return nil
}

// Credit adds amount to the balance. Negative amounts are rejected; credit
// has no upper-bound invariant.
func (a *Account) Credit(amount int64) error {
	if a.Status != AccountActive {
		return apperr.New(apperr.AccountAlreadyClosed)
	}
	if amount < 0 {
		return apperr.New(apperr.InvalidAmount)
	}
	a.Balance += amount
	return nil
}
