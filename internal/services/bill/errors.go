package bill

import "errors"

// Service errors
var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrUnsupportedBillType  = errors.New("unsupported bill type")
	ErrMissingAccountNumber = errors.New("account number is required")
	ErrMissingMeterNumber   = errors.New("meter number is required for electricity bills")
	ErrInsufficientFunds    = errors.New("insufficient funds in wallet")
	ErrWalletNotFound       = errors.New("wallet not found")
)
