package models

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TransactionUse    TransactionType = "USE"
	TransactionCancel TransactionType = "CANCEL"
	TransactionSend   TransactionType = "SEND"
)

type TransactionResult string

const (
	ResultSuccess TransactionResult = "SUCCESS"
	ResultFail    TransactionResult = "FAIL"
)

// Transaction is one ledger entry: an immutable record of one attempted
// balance-affecting operation. Entries are append-only and never span two
// accounts; a transfer records the debiting leg only, with the counterparty
// number alongside.
type Transaction struct {
	ID              int64             `json:"id" db:"id"`
	TransactionID   string            `json:"transaction_id" db:"transaction_id"`
	Type            TransactionType   `json:"transaction_type" db:"transaction_type"`
	Result          TransactionResult `json:"transaction_result" db:"transaction_result"`
	AccountNumber   string            `json:"account_number" db:"account_number"`
	Counterparty    string            `json:"counterparty,omitempty" db:"counterparty"`
	Amount          int64             `json:"amount" db:"amount"`
	BalanceSnapshot int64             `json:"balance_snapshot" db:"balance_snapshot"`
	TransactedAt    time.Time         `json:"transacted_at" db:"transacted_at"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
}

// NewTransactionID returns a fresh 32-character lowercase hex identifier
// (128 random bits, no separators). Collisions are negligible; the unique
// index on transactions.transaction_id backstops them anyway.
func NewTransactionID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}
