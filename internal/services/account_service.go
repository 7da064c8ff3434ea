package services

import (
	"context"

	"github.com/vaultpay/accounts/internal/apperr"
	"github.com/vaultpay/accounts/internal/models"
	"github.com/vaultpay/accounts/internal/store"
)

// AccountService serves read-only account lookups. Mutations go through
// TransferService; nothing here takes locks.
type AccountService struct {
	store store.Ledger
}

func NewAccountService(ledger store.Ledger) *AccountService {
	return &AccountService{store: ledger}
}

func (s *AccountService) GetAccountByNumber(ctx context.Context, number string) (*models.Account, error) {
	account, err := s.store.FindAccountByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, apperr.New(apperr.AccountNotFound)
	}
	return account, nil
}
