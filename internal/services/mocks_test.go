package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/vaultpay/accounts/internal/events"
	"github.com/vaultpay/accounts/internal/locker"
	"github.com/vaultpay/accounts/internal/models"
	"github.com/vaultpay/accounts/internal/store"
)

// fakeStore is an in-memory UnitOfWork. WithinTx stages writes against a
// transaction view and applies them only when fn returns nil, so rollback
// semantics hold. The whole transaction runs under one mutex.
type fakeStore struct {
	mu           sync.Mutex
	users        map[int64]models.User
	accounts     map[string]models.Account
	transactions []models.Transaction
	nextEntryID  int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[int64]models.User),
		accounts: make(map[string]models.Account),
	}
}

func (f *fakeStore) addUser(user models.User) {
	f.users[user.ID] = user
}

func (f *fakeStore) addAccount(account models.Account) {
	f.accounts[account.AccountNumber] = account
}

func (f *fakeStore) addTransaction(entry models.Transaction) {
	f.nextEntryID++
	entry.ID = f.nextEntryID
	f.transactions = append(f.transactions, entry)
}

func (f *fakeStore) balance(number string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts[number].Balance
}

// entriesFor returns committed ledger entries for an account, oldest first.
func (f *fakeStore) entriesFor(number string) []models.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Transaction
	for _, entry := range f.transactions {
		if entry.AccountNumber == number {
			out = append(out, entry)
		}
	}
	return out
}

func (f *fakeStore) FindUserByID(ctx context.Context, id int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookupUser(id), nil
}

func (f *fakeStore) FindAccountByNumber(ctx context.Context, number string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookupAccount(number), nil
}

func (f *fakeStore) FindTransactionByID(ctx context.Context, transactionID string) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookupTransaction(transactionID), nil
}

func (f *fakeStore) SaveAccount(ctx context.Context, account *models.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[account.AccountNumber] = *account
	return nil
}

func (f *fakeStore) AppendTransaction(ctx context.Context, entry *models.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextEntryID++
	entry.ID = f.nextEntryID
	f.transactions = append(f.transactions, *entry)
	return nil
}

func (f *fakeStore) WithinTx(ctx context.Context, fn func(store.Ledger) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tx := &fakeTx{store: f}
	if err := fn(tx); err != nil {
		return err
	}
	tx.apply()
	return nil
}

func (f *fakeStore) lookupUser(id int64) *models.User {
	if user, ok := f.users[id]; ok {
		copied := user
		return &copied
	}
	return nil
}

func (f *fakeStore) lookupAccount(number string) *models.Account {
	if account, ok := f.accounts[number]; ok {
		copied := account
		return &copied
	}
	return nil
}

func (f *fakeStore) lookupTransaction(transactionID string) *models.Transaction {
	for _, entry := range f.transactions {
		if entry.TransactionID == transactionID {
			copied := entry
			return &copied
		}
	}
	return nil
}

// fakeTx stages writes until apply. Reads see staged writes first, then
// committed state. Callers must hold fakeStore.mu for the full transaction.
type fakeTx struct {
	store          *fakeStore
	stagedAccounts []models.Account
	stagedEntries  []models.Transaction
}

func (t *fakeTx) FindUserByID(ctx context.Context, id int64) (*models.User, error) {
	return t.store.lookupUser(id), nil
}

func (t *fakeTx) FindAccountByNumber(ctx context.Context, number string) (*models.Account, error) {
	for i := len(t.stagedAccounts) - 1; i >= 0; i-- {
		if t.stagedAccounts[i].AccountNumber == number {
			copied := t.stagedAccounts[i]
			return &copied, nil
		}
	}
	return t.store.lookupAccount(number), nil
}

func (t *fakeTx) FindTransactionByID(ctx context.Context, transactionID string) (*models.Transaction, error) {
	for i := range t.stagedEntries {
		if t.stagedEntries[i].TransactionID == transactionID {
			copied := t.stagedEntries[i]
			return &copied, nil
		}
	}
	return t.store.lookupTransaction(transactionID), nil
}

func (t *fakeTx) SaveAccount(ctx context.Context, account *models.Account) error {
	t.stagedAccounts = append(t.stagedAccounts, *account)
	return nil
}

func (t *fakeTx) AppendTransaction(ctx context.Context, entry *models.Transaction) error {
	entry.ID = t.store.nextEntryID + int64(len(t.stagedEntries)) + 1
	t.stagedEntries = append(t.stagedEntries, *entry)
	return nil
}

func (t *fakeTx) apply() {
	for _, account := range t.stagedAccounts {
		t.store.accounts[account.AccountNumber] = account
	}
	for _, entry := range t.stagedEntries {
		t.store.nextEntryID++
		entry.ID = t.store.nextEntryID
		t.store.transactions = append(t.store.transactions, entry)
	}
}

// fakeLocker serializes callers per account number with local mutexes.
type fakeLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	calls []string
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *fakeLocker) WithAccountLock(ctx context.Context, accountNumber string, fn func(context.Context) error) error {
	l.mu.Lock()
	lock, ok := l.locks[accountNumber]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[accountNumber] = lock
	}
	l.calls = append(l.calls, accountNumber)
	l.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn(ctx)
}

// failingLocker simulates lock contention; fn is never invoked.
type failingLocker struct {
	attempts int
}

func (l *failingLocker) WithAccountLock(ctx context.Context, accountNumber string, fn func(context.Context) error) error {
	l.attempts++
	return fmt.Errorf("lock %s: %w", locker.LockKey(accountNumber), locker.ErrLockAcquisitionFailed)
}

// fakePublisher records published events.
type fakePublisher struct {
	mu     sync.Mutex
	events []events.TransactionEvent
	err    error
}

func (p *fakePublisher) PublishTransaction(ctx context.Context, event events.TransactionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) published() []events.TransactionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.TransactionEvent, len(p.events))
	copy(out, p.events)
	return out
}
