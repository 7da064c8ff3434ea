package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/vaultpay/accounts/internal/apperr"
	"github.com/vaultpay/accounts/internal/locker"
	"github.com/vaultpay/accounts/internal/services"
)

type TransferHandler struct {
	transfers *services.TransferService
	accounts  *services.AccountService
	validator *services.ValidationHelper
}

func NewTransferHandler(transfers *services.TransferService, accounts *services.AccountService) *TransferHandler {
	return &TransferHandler{
		transfers: transfers,
		accounts:  accounts,
		validator: services.NewValidationHelper(),
	}
}

type SendBalanceRequest struct {
	UserID          int64  `json:"userId" validate:"required,gt=0"`
	AccountNumber   string `json:"accountNumber" validate:"required,len=10,numeric"`
	Amount          int64  `json:"amount" validate:"required,gt=0"`
	ToAccountNumber string `json:"toAccountNumber" validate:"required,len=10,numeric"`
}

type CancelBalanceRequest struct {
	TransactionID string `json:"transactionId" validate:"required,len=32,hexadecimal"`
	AccountNumber string `json:"accountNumber" validate:"required,len=10,numeric"`
	Amount        int64  `json:"amount" validate:"required,gt=0"`
}

// SendBalance transfers funds between two accounts
// @Summary Send balance to another account
// @Description Transfer funds from the user's account to a destination account under a distributed account lock
// @Tags transfers
// @Accept json
// @Produce json
// @Param transfer body SendBalanceRequest true "Transfer details"
// @Success 200 {object} services.TransferRecord
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /transfer/send [post]
func (h *TransferHandler) SendBalance(w http.ResponseWriter, r *http.Request) {
	var req SendBalanceRequest
	if !h.decode(w, r, &req) {
		return
	}

	record, err := h.transfers.Transfer(r.Context(), req.UserID, req.AccountNumber, req.Amount, req.ToAccountNumber)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(record)
}

// CancelBalance reverses a previous transaction in full
// @Summary Cancel a transaction
// @Description Credit back the full amount of a previous transaction; partial cancellation is rejected
// @Tags transfers
// @Accept json
// @Produce json
// @Param cancel body CancelBalanceRequest true "Cancellation details"
// @Success 200 {object} services.TransferRecord
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /transaction/cancel [post]
func (h *TransferHandler) CancelBalance(w http.ResponseWriter, r *http.Request) {
	var req CancelBalanceRequest
	if !h.decode(w, r, &req) {
		return
	}

	record, err := h.transfers.Cancel(r.Context(), req.TransactionID, req.AccountNumber, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(record)
}

// QueryTransaction retrieves a ledger entry by transaction id
// @Summary Get a transaction
// @Description Retrieve a ledger entry by its transaction id
// @Tags transfers
// @Produce json
// @Param transactionId path string true "Transaction ID"
// @Success 200 {object} models.Transaction
// @Failure 404 {object} services.ErrorResponse
// @Router /transaction/{transactionId} [get]
func (h *TransferHandler) QueryTransaction(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionId")

	entry, err := h.transfers.QueryTransaction(r.Context(), transactionID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entry)
}

// BalanceEnquiry retrieves the status and balance of an account
// @Summary Get account balance
// @Description Retrieve status and balance for an account number
// @Tags accounts
// @Produce json
// @Param accountNumber query string true "Account number"
// @Success 200 {object} object{accountNumber=string,status=string,balance=int64}
// @Failure 404 {object} services.ErrorResponse
// @Router /accounts/balance-enquiry [get]
func (h *TransferHandler) BalanceEnquiry(w http.ResponseWriter, r *http.Request) {
	number := r.URL.Query().Get("accountNumber")
	if number == "" {
		services.SendErrorResponse(w, "accountNumber is required", http.StatusBadRequest, nil)
		return
	}

	account, err := h.accounts.GetAccountByNumber(r.Context(), number)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"accountNumber": account.AccountNumber,
		"status":        account.Status,
		"balance":       account.Balance,
	})
}

// decode reads a single JSON object into dst and validates it. Returns false
// after writing the error response.
func (h *TransferHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	if err := h.validator.ValidateStruct(dst); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

// writeError translates core failures into wire responses. Domain errors map
// by stable code; lock timeouts come back 503 so callers know to retry with
// backoff rather than treat it as a business outcome.
func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, locker.ErrLockAcquisitionFailed) {
		services.SendDomainErrorResponse(w, "LOCK_ACQUISITION_FAILED", "Account is busy, retry later", http.StatusServiceUnavailable)
		return
	}

	var de *apperr.Error
	if errors.As(err, &de) {
		services.SendDomainErrorResponse(w, string(de.Code), de.Message, domainStatus(de.Code))
		return
	}

	log.Printf("[HTTP] Unexpected error: %v", err)
	services.SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
}

func domainStatus(code apperr.Code) int {
	switch code {
	case apperr.UserNotFound, apperr.AccountNotFound, apperr.TransactionNotFound:
		return http.StatusNotFound
	case apperr.UserAccountMismatch:
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}
