package store

import (
	"context"

	"github.com/vaultpay/accounts/internal/models"
)

// Ledger is the durable account/transaction table surface the core consumes.
// Find methods return (nil, nil) when the row is absent; absence is not an
// error here, callers decide what it means.
type Ledger interface {
	FindUserByID(ctx context.Context, id int64) (*models.User, error)
	FindAccountByNumber(ctx context.Context, number string) (*models.Account, error)
	FindTransactionByID(ctx context.Context, transactionID string) (*models.Transaction, error)
	SaveAccount(ctx context.Context, account *models.Account) error
	// AppendTransaction is append-only; rows are never updated or deleted.
	AppendTransaction(ctx context.Context, entry *models.Transaction) error
}

// UnitOfWork scopes a group of Ledger operations to one database
// transaction: fn's writes commit together or not at all. Each call opens an
// independent transaction, so a compensating write can be committed even
// when the unit of work that preceded it rolled back.
type UnitOfWork interface {
	Ledger
	WithinTx(ctx context.Context, fn func(Ledger) error) error
}
