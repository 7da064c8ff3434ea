package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/vaultpay/accounts/internal/models"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresStore implements UnitOfWork over Postgres. Reads issued inside
// WithinTx lock the account row with FOR UPDATE; reads on the root store do
// not.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindUserByID(ctx context.Context, id int64) (*models.User, error) {
	return findUserByID(ctx, s.db, id)
}

func (s *PostgresStore) FindAccountByNumber(ctx context.Context, number string) (*models.Account, error) {
	return findAccountByNumber(ctx, s.db, number, false)
}

func (s *PostgresStore) FindTransactionByID(ctx context.Context, transactionID string) (*models.Transaction, error) {
	return findTransactionByID(ctx, s.db, transactionID)
}

func (s *PostgresStore) SaveAccount(ctx context.Context, account *models.Account) error {
	return saveAccount(ctx, s.db, account)
}

func (s *PostgresStore) AppendTransaction(ctx context.Context, entry *models.Transaction) error {
	return appendTransaction(ctx, s.db, entry)
}

// WithinTx runs fn against a transaction-scoped Ledger. Commit on nil,
// rollback otherwise. The deferred rollback is a no-op after a successful
// commit.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(Ledger) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit tx: %w", err)
	}
	return nil
}

// txStore is the transaction-scoped view handed to WithinTx callbacks.
type txStore struct {
	tx *sql.Tx
}

func (s *txStore) FindUserByID(ctx context.Context, id int64) (*models.User, error) {
	return findUserByID(ctx, s.tx, id)
}

func (s *txStore) FindAccountByNumber(ctx context.Context, number string) (*models.Account, error) {
	return findAccountByNumber(ctx, s.tx, number, true)
}

func (s *txStore) FindTransactionByID(ctx context.Context, transactionID string) (*models.Transaction, error) {
	return findTransactionByID(ctx, s.tx, transactionID)
}

func (s *txStore) SaveAccount(ctx context.Context, account *models.Account) error {
	return saveAccount(ctx, s.tx, account)
}

func (s *txStore) AppendTransaction(ctx context.Context, entry *models.Transaction) error {
	return appendTransaction(ctx, s.tx, entry)
}

func findUserByID(ctx context.Context, q queryer, id int64) (*models.User, error) {
	var user models.User
	err := q.QueryRowContext(ctx, `
		SELECT id, name, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id).Scan(&user.ID, &user.Name, &user.CreatedAt, &user.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find user %d: %w", id, err)
	}
	return &user, nil
}

func findAccountByNumber(ctx context.Context, q queryer, number string, forUpdate bool) (*models.Account, error) {
	query := `
		SELECT id, user_id, account_number, status, balance,
		       registered_at, unregistered_at, created_at, updated_at
		FROM accounts
		WHERE account_number = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var account models.Account
	err := q.QueryRowContext(ctx, query, number).Scan(
		&account.ID, &account.UserID, &account.AccountNumber, &account.Status,
		&account.Balance, &account.RegisteredAt, &account.UnregisteredAt,
		&account.CreatedAt, &account.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find account %s: %w", number, err)
	}
	return &account, nil
}

func findTransactionByID(ctx context.Context, q queryer, transactionID string) (*models.Transaction, error) {
	var entry models.Transaction
	err := q.QueryRowContext(ctx, `
		SELECT id, transaction_id, transaction_type, transaction_result,
		       account_number, counterparty, amount, balance_snapshot,
		       transacted_at, created_at
		FROM transactions
		WHERE transaction_id = $1
	`, transactionID).Scan(
		&entry.ID, &entry.TransactionID, &entry.Type, &entry.Result,
		&entry.AccountNumber, &entry.Counterparty, &entry.Amount,
		&entry.BalanceSnapshot, &entry.TransactedAt, &entry.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find transaction %s: %w", transactionID, err)
	}
	return &entry, nil
}

func saveAccount(ctx context.Context, q queryer, account *models.Account) error {
	result, err := q.ExecContext(ctx, `
		UPDATE accounts
		SET status = $1, balance = $2, unregistered_at = $3, updated_at = $4
		WHERE id = $5
	`, account.Status, account.Balance, account.UnregisteredAt, time.Now(), account.ID)

	if err != nil {
		return fmt.Errorf("store: save account %s: %w", account.AccountNumber, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: save account %s: %w", account.AccountNumber, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("store: save account %s: no row updated", account.AccountNumber)
	}
	return nil
}

func appendTransaction(ctx context.Context, q queryer, entry *models.Transaction) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	err := q.QueryRowContext(ctx, `
		INSERT INTO transactions
		(transaction_id, transaction_type, transaction_result, account_number,
		 counterparty, amount, balance_snapshot, transacted_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, entry.TransactionID, entry.Type, entry.Result, entry.AccountNumber,
		entry.Counterparty, entry.Amount, entry.BalanceSnapshot,
		entry.TransactedAt, entry.CreatedAt).Scan(&entry.ID)

	if err != nil {
		log.Printf("[STORE] Failed to append transaction %s: %v", entry.TransactionID, err)
		return fmt.Errorf("store: append transaction %s: %w", entry.TransactionID, err)
	}
	return nil
}
