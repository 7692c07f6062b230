package wallet

import "time"

// Default configuration values
const (
	DefaultCurrency     = "USD"
	DefaultDebitRetries = 3
	DefaultRetryBackoff = 25 * time.Millisecond
)
