package transaction

import "errors"

// Service errors
var (
	ErrTransactionNotFound     = errors.New("transaction not found")
	ErrDuplicateTransaction    = errors.New("duplicate transaction")
	ErrInvalidAmount           = errors.New("invalid transaction amount")
	ErrInvalidType             = errors.New("invalid transaction type")
	ErrInvalidStatusTransition = errors.New("invalid transaction status transition")
)
