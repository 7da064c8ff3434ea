package services

import (
	"context"
	"log"
	"time"

	"github.com/vaultpay/accounts/internal/apperr"
	"github.com/vaultpay/accounts/internal/events"
	"github.com/vaultpay/accounts/internal/locker"
	"github.com/vaultpay/accounts/internal/models"
	"github.com/vaultpay/accounts/internal/store"
)

// TransferService coordinates the full two-account transfer: lock the source
// account, validate, mutate both sides in one unit of work, and on domain
// failure persist a compensating FAIL entry in a separate, independently
// committed unit of work so audit history survives the rollback.
type TransferService struct {
	store     store.UnitOfWork
	locker    locker.Locker
	publisher events.Publisher // optional; nil disables event publishing
}

func NewTransferService(uow store.UnitOfWork, lk locker.Locker, publisher events.Publisher) *TransferService {
	return &TransferService{
		store:     uow,
		locker:    lk,
		publisher: publisher,
	}
}

// TransferRecord is what the request layer gets back; translation to wire
// format happens elsewhere.
type TransferRecord struct {
	TransactionID     string    `json:"transactionId"`
	FromAccountNumber string    `json:"fromAccountNumber"`
	ToAccountNumber   string    `json:"toAccountNumber,omitempty"`
	Amount            int64     `json:"amount"`
	BalanceSnapshot   int64     `json:"balanceSnapshot"`
	TransactedAt      time.Time `json:"transactedAt"`
}

// Transfer moves amount from the user's account to the destination account.
// The source account number is the lock key; only the debiting side needs
// serialization. Validation order is fixed: user, source account, ownership,
// source status, balance, destination account, destination status — the
// first failing check wins.
func (s *TransferService) Transfer(ctx context.Context, userID int64, fromNumber string, amount int64, toNumber string) (*TransferRecord, error) {
	var record *TransferRecord

	err := s.locker.WithAccountLock(ctx, fromNumber, func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ledger store.Ledger) error {
			user, err := ledger.FindUserByID(ctx, userID)
			if err != nil {
				return err
			}
			if user == nil {
				return apperr.New(apperr.UserNotFound)
			}

			source, err := ledger.FindAccountByNumber(ctx, fromNumber)
			if err != nil {
				return err
			}
			if source == nil {
				return apperr.New(apperr.AccountNotFound)
			}
			if source.UserID != user.ID {
				return apperr.New(apperr.UserAccountMismatch)
			}
			if source.Status != models.AccountActive {
				return apperr.New(apperr.AccountAlreadyClosed)
			}
			if amount > source.Balance {
				return apperr.New(apperr.InsufficientFunds)
			}

			dest, err := ledger.FindAccountByNumber(ctx, toNumber)
			if err != nil {
				return err
			}
			if dest == nil {
				return apperr.New(apperr.AccountNotFound)
			}
			if dest.Status != models.AccountActive {
				return apperr.New(apperr.AccountAlreadyClosed)
			}

			if err := source.Debit(amount); err != nil {
				return err
			}
			if err := dest.Credit(amount); err != nil {
				return err
			}

			entry := &models.Transaction{
				TransactionID:   models.NewTransactionID(),
				Type:            models.TransactionSend,
				Result:          models.ResultSuccess,
				AccountNumber:   source.AccountNumber,
				Counterparty:    dest.AccountNumber,
				Amount:          amount,
				BalanceSnapshot: source.Balance,
				TransactedAt:    time.Now(),
			}
			if err := ledger.AppendTransaction(ctx, entry); err != nil {
				return err
			}
			if err := ledger.SaveAccount(ctx, source); err != nil {
				return err
			}
			if err := ledger.SaveAccount(ctx, dest); err != nil {
				return err
			}

			record = &TransferRecord{
				TransactionID:     entry.TransactionID,
				FromAccountNumber: source.AccountNumber,
				ToAccountNumber:   dest.AccountNumber,
				Amount:            amount,
				BalanceSnapshot:   source.Balance,
				TransactedAt:      entry.TransactedAt,
			}
			return nil
		})
	})

	if err != nil {
		// The lock is already released here; the FAIL entry commits in its
		// own unit of work so the rollback above cannot take it down.
		if apperr.IsDomain(err) {
			log.Printf("[TRANSFER] Failed to send balance from %s: %v", fromNumber, err)
			s.saveFailedTransaction(models.TransactionUse, fromNumber, amount)
		}
		return nil, err
	}

	s.publish(ctx, entryEvent(record, models.TransactionSend))
	return record, nil
}

// Cancel reverses a previous transaction in full. Partial cancellation is
// unsupported and originals are not marked consumed, so a stale-but-valid id
// may be cancelled again.
func (s *TransferService) Cancel(ctx context.Context, transactionID, accountNumber string, amount int64) (*TransferRecord, error) {
	var record *TransferRecord

	err := s.locker.WithAccountLock(ctx, accountNumber, func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ledger store.Ledger) error {
			original, err := ledger.FindTransactionByID(ctx, transactionID)
			if err != nil {
				return err
			}
			if original == nil {
				return apperr.New(apperr.TransactionNotFound)
			}

			account, err := ledger.FindAccountByNumber(ctx, accountNumber)
			if err != nil {
				return err
			}
			if account == nil {
				return apperr.New(apperr.AccountNotFound)
			}
			if original.AccountNumber != account.AccountNumber {
				return apperr.New(apperr.TransactionAccountMismatch)
			}
			if original.Amount != amount {
				return apperr.New(apperr.CancelMustBeFull)
			}
			if original.TransactedAt.Before(time.Now().AddDate(-1, 0, 0)) {
				return apperr.New(apperr.TooOldToCancel)
			}

			if err := account.Credit(amount); err != nil {
				return err
			}

			entry := &models.Transaction{
				TransactionID:   models.NewTransactionID(),
				Type:            models.TransactionCancel,
				Result:          models.ResultSuccess,
				AccountNumber:   account.AccountNumber,
				Amount:          amount,
				BalanceSnapshot: account.Balance,
				TransactedAt:    time.Now(),
			}
			if err := ledger.AppendTransaction(ctx, entry); err != nil {
				return err
			}
			if err := ledger.SaveAccount(ctx, account); err != nil {
				return err
			}

			record = &TransferRecord{
				TransactionID:     entry.TransactionID,
				FromAccountNumber: account.AccountNumber,
				Amount:            amount,
				BalanceSnapshot:   account.Balance,
				TransactedAt:      entry.TransactedAt,
			}
			return nil
		})
	})

	if err != nil {
		if apperr.IsDomain(err) {
			log.Printf("[CANCEL] Failed to cancel transaction %s: %v", transactionID, err)
			s.saveFailedTransaction(models.TransactionCancel, accountNumber, amount)
		}
		return nil, err
	}

	s.publish(ctx, entryEvent(record, models.TransactionCancel))
	return record, nil
}

// QueryTransaction is a pure read; it never writes compensating entries.
func (s *TransferService) QueryTransaction(ctx context.Context, transactionID string) (*models.Transaction, error) {
	entry, err := s.store.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, apperr.New(apperr.TransactionNotFound)
	}
	return entry, nil
}

// saveFailedTransaction records the compensating FAIL entry. It runs on a
// detached context: the audit row must land even if the request was
// cancelled. Best-effort — if the account row does not exist there is
// nothing to reference, and the miss is only logged.
func (s *TransferService) saveFailedTransaction(txType models.TransactionType, accountNumber string, amount int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.store.WithinTx(ctx, func(ledger store.Ledger) error {
		account, err := ledger.FindAccountByNumber(ctx, accountNumber)
		if err != nil {
			return err
		}
		if account == nil {
			log.Printf("[AUDIT] No account %s to attach FAIL entry to", accountNumber)
			return nil
		}

		return ledger.AppendTransaction(ctx, &models.Transaction{
			TransactionID:   models.NewTransactionID(),
			Type:            txType,
			Result:          models.ResultFail,
			AccountNumber:   account.AccountNumber,
			Amount:          amount,
			BalanceSnapshot: account.Balance,
			TransactedAt:    time.Now(),
		})
	})
	if err != nil {
		log.Printf("[AUDIT] Failed to persist FAIL entry for %s: %v", accountNumber, err)
	}
}

func entryEvent(record *TransferRecord, txType models.TransactionType) events.TransactionEvent {
	return events.TransactionEvent{
		TransactionID:   record.TransactionID,
		Type:            string(txType),
		Result:          string(models.ResultSuccess),
		AccountNumber:   record.FromAccountNumber,
		Counterparty:    record.ToAccountNumber,
		Amount:          record.Amount,
		BalanceSnapshot: record.BalanceSnapshot,
		TransactedAt:    record.TransactedAt,
	}
}

// publish is best-effort: a broker outage must not fail a committed transfer.
func (s *TransferService) publish(ctx context.Context, event events.TransactionEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishTransaction(ctx, event); err != nil {
		log.Printf("[EVENTS] Dropping transaction event %s: %v", event.TransactionID, err)
	}
}
