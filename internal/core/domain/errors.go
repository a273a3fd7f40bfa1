package domain

import "errors"

var (
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrCreditLimitExceeded = errors.New("credit limit exceeded")
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
	ErrTransactionFinal    = errors.New("transaction already finalized")
)
