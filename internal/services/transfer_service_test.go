package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vaultpay/accounts/internal/apperr"
	"github.com/vaultpay/accounts/internal/locker"
	"github.com/vaultpay/accounts/internal/models"
)

const (
	sourceNumber = "1000000001"
	destNumber   = "1000000002"
)

func seedTransferFixture(f *fakeStore) {
	f.addUser(models.User{ID: 1, Name: "Ada"})
	f.addUser(models.User{ID: 2, Name: "Ben"})
	f.addAccount(models.Account{
		ID: 1, UserID: 1, AccountNumber: sourceNumber,
		Status: models.AccountActive, Balance: 10000,
	})
	f.addAccount(models.Account{
		ID: 2, UserID: 2, AccountNumber: destNumber,
		Status: models.AccountActive, Balance: 500,
	})
}

func TestTransferService_Transfer(t *testing.T) {
	ctx := context.Background()

	t.Run("successful transfer", func(t *testing.T) {
		f := newFakeStore()
		seedTransferFixture(f)
		publisher := &fakePublisher{}
		svc := NewTransferService(f, newFakeLocker(), publisher)

		record, err := svc.Transfer(ctx, 1, sourceNumber, 200, destNumber)
		assert.NoError(t, err)
		assert.Len(t, record.TransactionID, 32)
		assert.Equal(t, int64(9800), record.BalanceSnapshot)
		assert.Equal(t, sourceNumber, record.FromAccountNumber)
		assert.Equal(t, destNumber, record.ToAccountNumber)

		assert.Equal(t, int64(9800), f.balance(sourceNumber))
		assert.Equal(t, int64(700), f.balance(destNumber))

		entries := f.entriesFor(sourceNumber)
		assert.Len(t, entries, 1)
		assert.Equal(t, models.TransactionSend, entries[0].Type)
		assert.Equal(t, models.ResultSuccess, entries[0].Result)
		assert.Equal(t, destNumber, entries[0].Counterparty)
		assert.Equal(t, int64(9800), entries[0].BalanceSnapshot)

		published := publisher.published()
		assert.Len(t, published, 1)
		assert.Equal(t, record.TransactionID, published[0].TransactionID)
		assert.Equal(t, "SEND", published[0].Type)
	})

	t.Run("insufficient funds writes FAIL entry", func(t *testing.T) {
		f := newFakeStore()
		seedTransferFixture(f)
		f.addAccount(models.Account{
			ID: 3, UserID: 1, AccountNumber: "1000000003",
			Status: models.AccountActive, Balance: 100,
		})
		publisher := &fakePublisher{}
		svc := NewTransferService(f, newFakeLocker(), publisher)

		record, err := svc.Transfer(ctx, 1, "1000000003", 200, destNumber)
		assert.Nil(t, record)
		assert.Equal(t, apperr.InsufficientFunds, apperr.CodeOf(err))

		assert.Equal(t, int64(100), f.balance("1000000003"))
		assert.Equal(t, int64(500), f.balance(destNumber))

		entries := f.entriesFor("1000000003")
		assert.Len(t, entries, 1)
		assert.Equal(t, models.TransactionUse, entries[0].Type)
		assert.Equal(t, models.ResultFail, entries[0].Result)
		assert.Equal(t, int64(200), entries[0].Amount)
		assert.Equal(t, int64(100), entries[0].BalanceSnapshot)

		assert.Empty(t, publisher.published())
	})

	t.Run("validation order", func(t *testing.T) {
		closedAt := time.Now()
		tests := []struct {
			name   string
			seed   func(f *fakeStore)
			userID int64
			from   string
			to     string
			want   apperr.Code
		}{
			{
				name:   "unknown user",
				userID: 99, from: sourceNumber, to: destNumber,
				want: apperr.UserNotFound,
			},
			{
				name:   "unknown source account",
				userID: 1, from: "9999999999", to: destNumber,
				want: apperr.AccountNotFound,
			},
			{
				name:   "account owned by someone else",
				userID: 2, from: sourceNumber, to: destNumber,
				want: apperr.UserAccountMismatch,
			},
			{
				name: "closed source account",
				seed: func(f *fakeStore) {
					f.addAccount(models.Account{
						ID: 1, UserID: 1, AccountNumber: sourceNumber,
						Status: models.AccountClosed, Balance: 10000,
						UnregisteredAt: &closedAt,
					})
				},
				userID: 1, from: sourceNumber, to: destNumber,
				want: apperr.AccountAlreadyClosed,
			},
			{
				name:   "unknown destination account",
				userID: 1, from: sourceNumber, to: "9999999999",
				want: apperr.AccountNotFound,
			},
			{
				name: "closed destination account",
				seed: func(f *fakeStore) {
					f.addAccount(models.Account{
						ID: 2, UserID: 2, AccountNumber: destNumber,
						Status: models.AccountClosed, Balance: 500,
						UnregisteredAt: &closedAt,
					})
				},
				userID: 1, from: sourceNumber, to: destNumber,
				want: apperr.AccountAlreadyClosed,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				f := newFakeStore()
				seedTransferFixture(f)
				if tt.seed != nil {
					tt.seed(f)
				}
				svc := NewTransferService(f, newFakeLocker(), nil)

				_, err := svc.Transfer(ctx, tt.userID, tt.from, 200, tt.to)
				assert.Equal(t, tt.want, apperr.CodeOf(err))
				assert.Equal(t, int64(500), f.balance(destNumber))
			})
		}
	})

	t.Run("lock contention aborts before any work", func(t *testing.T) {
		f := newFakeStore()
		seedTransferFixture(f)
		lk := &failingLocker{}
		svc := NewTransferService(f, lk, nil)

		record, err := svc.Transfer(ctx, 1, sourceNumber, 200, destNumber)
		assert.Nil(t, record)
		assert.ErrorIs(t, err, locker.ErrLockAcquisitionFailed)
		assert.False(t, apperr.IsDomain(err))
		assert.Equal(t, 1, lk.attempts)

		// Infra failure: no debit, no audit entry.
		assert.Equal(t, int64(10000), f.balance(sourceNumber))
		assert.Empty(t, f.entriesFor(sourceNumber))
	})
}

func TestTransferService_Transfer_Concurrent(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore()
	f.addUser(models.User{ID: 1, Name: "Ada"})
	f.addAccount(models.Account{
		ID: 1, UserID: 1, AccountNumber: sourceNumber,
		Status: models.AccountActive, Balance: 300,
	})
	f.addAccount(models.Account{
		ID: 2, UserID: 1, AccountNumber: destNumber,
		Status: models.AccountActive, Balance: 0,
	})
	svc := NewTransferService(f, newFakeLocker(), nil)

	results := make([]error, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.Transfer(ctx, 1, sourceNumber, 300, destNumber)
		}(i)
	}
	wg.Wait()

	var succeeded, failed int
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.Equal(t, apperr.InsufficientFunds, apperr.CodeOf(err))
			failed++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, failed)

	// Exactly one debit landed; the loser never went below zero.
	assert.Equal(t, int64(0), f.balance(sourceNumber))
	assert.Equal(t, int64(300), f.balance(destNumber))

	entries := f.entriesFor(sourceNumber)
	assert.Len(t, entries, 2)
	var sends, fails int
	for _, entry := range entries {
		switch {
		case entry.Type == models.TransactionSend && entry.Result == models.ResultSuccess:
			sends++
		case entry.Type == models.TransactionUse && entry.Result == models.ResultFail:
			fails++
		}
	}
	assert.Equal(t, 1, sends)
	assert.Equal(t, 1, fails)
}

func TestTransferService_Cancel(t *testing.T) {
	ctx := context.Background()
	originalID := models.NewTransactionID()

	seedCancelFixture := func(f *fakeStore) {
		f.addAccount(models.Account{
			ID: 1, UserID: 1, AccountNumber: sourceNumber,
			Status: models.AccountActive, Balance: 9800,
		})
		f.addTransaction(models.Transaction{
			TransactionID: originalID,
			Type:          models.TransactionSend,
			Result:        models.ResultSuccess,
			AccountNumber: sourceNumber,
			Counterparty:  destNumber,
			Amount:        200, BalanceSnapshot: 9800,
			TransactedAt: time.Now().Add(-time.Hour),
		})
	}

	t.Run("successful cancellation", func(t *testing.T) {
		f := newFakeStore()
		seedCancelFixture(f)
		publisher := &fakePublisher{}
		svc := NewTransferService(f, newFakeLocker(), publisher)

		record, err := svc.Cancel(ctx, originalID, sourceNumber, 200)
		assert.NoError(t, err)
		assert.NotEqual(t, originalID, record.TransactionID)
		assert.Len(t, record.TransactionID, 32)
		assert.Equal(t, int64(10000), record.BalanceSnapshot)
		assert.Equal(t, int64(10000), f.balance(sourceNumber))

		entries := f.entriesFor(sourceNumber)
		assert.Len(t, entries, 2)
		latest := entries[1]
		assert.Equal(t, models.TransactionCancel, latest.Type)
		assert.Equal(t, models.ResultSuccess, latest.Result)
		assert.Equal(t, int64(10000), latest.BalanceSnapshot)

		published := publisher.published()
		assert.Len(t, published, 1)
		assert.Equal(t, "CANCEL", published[0].Type)
	})

	t.Run("unknown transaction", func(t *testing.T) {
		f := newFakeStore()
		seedCancelFixture(f)
		svc := NewTransferService(f, newFakeLocker(), nil)

		_, err := svc.Cancel(ctx, models.NewTransactionID(), sourceNumber, 200)
		assert.Equal(t, apperr.TransactionNotFound, apperr.CodeOf(err))
		assert.Equal(t, int64(9800), f.balance(sourceNumber))
	})

	t.Run("transaction belongs to another account", func(t *testing.T) {
		f := newFakeStore()
		seedCancelFixture(f)
		f.addAccount(models.Account{
			ID: 2, UserID: 2, AccountNumber: destNumber,
			Status: models.AccountActive, Balance: 500,
		})
		svc := NewTransferService(f, newFakeLocker(), nil)

		_, err := svc.Cancel(ctx, originalID, destNumber, 200)
		assert.Equal(t, apperr.TransactionAccountMismatch, apperr.CodeOf(err))
	})

	t.Run("partial cancellation rejected", func(t *testing.T) {
		for _, amount := range []int64{100, 300} {
			f := newFakeStore()
			seedCancelFixture(f)
			svc := NewTransferService(f, newFakeLocker(), nil)

			_, err := svc.Cancel(ctx, originalID, sourceNumber, amount)
			assert.Equal(t, apperr.CancelMustBeFull, apperr.CodeOf(err))
			assert.Equal(t, int64(9800), f.balance(sourceNumber))
		}
	})

	t.Run("too old to cancel", func(t *testing.T) {
		f := newFakeStore()
		f.addAccount(models.Account{
			ID: 1, UserID: 1, AccountNumber: sourceNumber,
			Status: models.AccountActive, Balance: 9800,
		})
		staleID := models.NewTransactionID()
		f.addTransaction(models.Transaction{
			TransactionID: staleID,
			Type:          models.TransactionSend,
			Result:        models.ResultSuccess,
			AccountNumber: sourceNumber,
			Amount:        200, BalanceSnapshot: 9800,
			TransactedAt: time.Now().AddDate(0, 0, -400),
		})
		svc := NewTransferService(f, newFakeLocker(), nil)

		_, err := svc.Cancel(ctx, staleID, sourceNumber, 200)
		assert.Equal(t, apperr.TooOldToCancel, apperr.CodeOf(err))
		assert.Equal(t, int64(9800), f.balance(sourceNumber))

		// The rejection itself is audited.
		entries := f.entriesFor(sourceNumber)
		assert.Len(t, entries, 2)
		assert.Equal(t, models.TransactionCancel, entries[1].Type)
		assert.Equal(t, models.ResultFail, entries[1].Result)
	})

	t.Run("repeat cancellation of the same original", func(t *testing.T) {
		f := newFakeStore()
		seedCancelFixture(f)
		svc := NewTransferService(f, newFakeLocker(), nil)

		_, err := svc.Cancel(ctx, originalID, sourceNumber, 200)
		assert.NoError(t, err)
		_, err = svc.Cancel(ctx, originalID, sourceNumber, 200)
		assert.NoError(t, err)
		assert.Equal(t, int64(10200), f.balance(sourceNumber))
	})
}

func TestTransferService_QueryTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore()
	entryID := models.NewTransactionID()
	f.addTransaction(models.Transaction{
		TransactionID: entryID,
		Type:          models.TransactionSend,
		Result:        models.ResultSuccess,
		AccountNumber: sourceNumber,
		Amount:        200, BalanceSnapshot: 9800,
		TransactedAt: time.Now(),
	})
	svc := NewTransferService(f, newFakeLocker(), nil)

	t.Run("existing transaction", func(t *testing.T) {
		entry, err := svc.QueryTransaction(ctx, entryID)
		assert.NoError(t, err)
		assert.Equal(t, entryID, entry.TransactionID)
		assert.Equal(t, int64(200), entry.Amount)
	})

	t.Run("unknown transaction never writes audit entries", func(t *testing.T) {
		before := len(f.entriesFor(sourceNumber))
		_, err := svc.QueryTransaction(ctx, models.NewTransactionID())
		assert.Equal(t, apperr.TransactionNotFound, apperr.CodeOf(err))
		assert.Len(t, f.entriesFor(sourceNumber), before)
	})
}
