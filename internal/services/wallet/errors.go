package wallet

import "errors"

// Service errors
var (
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInsufficientFunds      = errors.New("insufficient funds in wallet")
	ErrWalletNotFound         = errors.New("wallet not found")
	ErrConcurrentModification = errors.New("concurrent wallet modification")
	ErrCardDeclined           = errors.New("card charge declined")
)
