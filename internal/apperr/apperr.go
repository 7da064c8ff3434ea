package apperr

import (
	"errors"
	"fmt"
)

// Code is a stable machine-readable identifier for a domain failure.
// Codes are part of the API contract and must not be renamed.
type Code string

const (
	UserNotFound               Code = "USER_NOT_FOUND"
	AccountNotFound            Code = "ACCOUNT_NOT_FOUND"
	UserAccountMismatch        Code = "USER_ACCOUNT_MISMATCH"
	AccountAlreadyClosed       Code = "ACCOUNT_ALREADY_CLOSED"
	InsufficientFunds          Code = "INSUFFICIENT_FUNDS"
	InvalidAmount              Code = "INVALID_AMOUNT"
	TransactionNotFound        Code = "TRANSACTION_NOT_FOUND"
	TransactionAccountMismatch Code = "TRANSACTION_ACCOUNT_MISMATCH"
	CancelMustBeFull           Code = "CANCEL_MUST_BE_FULL"
	TooOldToCancel             Code = "TOO_OLD_TO_CANCEL"
)

var messages = map[Code]string{
	UserNotFound:               "user not found",
	AccountNotFound:            "account not found",
	UserAccountMismatch:        "user does not own this account",
	AccountAlreadyClosed:       "account is already closed",
	InsufficientFunds:          "amount exceeds account balance",
	InvalidAmount:              "amount is invalid",
	TransactionNotFound:        "transaction not found",
	TransactionAccountMismatch: "transaction does not belong to this account",
	CancelMustBeFull:           "cancellation amount must equal the original amount",
	TooOldToCancel:             "transaction is too old to cancel",
}

// Error is an expected, recoverable-by-caller domain failure. Infrastructure
// failures (lock timeouts, store outages) are plain errors and are never
// represented as an *Error.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New builds a domain error for the given code using its canonical message.
func New(code Code) *Error {
	msg, ok := messages[code]
	if !ok {
		msg = "unknown error"
	}
	return &Error{Code: code, Message: msg}
}

// IsDomain reports whether err is (or wraps) a domain error.
func IsDomain(err error) bool {
	var de *Error
	return errors.As(err, &de)
}

// CodeOf extracts the domain code from err, or "" if err is not a domain error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
