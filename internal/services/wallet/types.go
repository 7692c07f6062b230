package wallet

import (
	"context"
	"time"

	"billvend/internal/models"
)

// Service is the wallet ledger contract used by the payment saga and the
// HTTP handlers.
type Service interface {
	// Fund credits the wallet unconditionally, creating it if absent.
	Fund(ctx context.Context, userID uint, amount float64) (*models.Wallet, error)

	// FundFromCard charges a card first and only credits the wallet after
	// the charge succeeds. A card failure never touches the ledger.
	FundFromCard(ctx context.Context, userID uint, amount float64, card CardInput) (*models.Wallet, error)

	// Debit conditionally decrements the balance. Serializable against
	// concurrent debits on the same wallet.
	Debit(ctx context.Context, userID uint, amount float64) (*models.Wallet, error)

	// Refund is the compensation credit: identical to Fund, and like Fund
	// it upserts, so compensation cannot fail for a missing wallet.
	Refund(ctx context.Context, userID uint, amount float64) (*models.Wallet, error)

	GetBalance(ctx context.Context, userID uint) (float64, error)
	GetWallet(ctx context.Context, userID uint) (*models.Wallet, error)
}

// Config holds configuration for wallet operations.
type Config struct {
	DefaultCurrency string
	// DebitRetries bounds the version-conflict retry loop in Debit.
	DebitRetries int
	RetryBackoff time.Duration
}

// Cache is the wallet-snapshot cache used on the read path and
// invalidated after every mutation.
type Cache interface {
	GetWallet(ctx context.Context, userID uint) (*models.Wallet, error)
	CacheWallet(ctx context.Context, wallet *models.Wallet) error
	InvalidateWallet(ctx context.Context, userID uint) error
}

// CardInput carries raw card details (or a pre-issued token) for a
// card-funded top-up.
type CardInput struct {
	CardNumber  string `json:"card_number"`
	ExpiryMonth string `json:"expiry_month"`
	ExpiryYear  string `json:"expiry_year"`
	CVC         string `json:"cvc"`
}

// CardCharger settles a top-up against an external card processor before
// the wallet is credited.
type CardCharger interface {
	Charge(ctx context.Context, card CardInput, amount float64, currency string) (chargeID string, err error)
}
