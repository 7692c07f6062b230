package repositories

import (
	"context"
	"errors"

	"billvend/internal/models"
)

var (
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrVersionConflict means the wallet row changed between the read and
	// the conditional write. The caller retries with a fresh read.
	ErrVersionConflict = errors.New("wallet version conflict")
)

// WalletRepository is the atomic primitive layer under the wallet ledger.
// UpsertAdd and CompareAndSetBalance are the only two write paths; both
// increment the version counter exactly once per successful write.
type WalletRepository interface {
	GetByUserID(ctx context.Context, userID uint) (*models.Wallet, error)

	// UpsertAdd atomically adds amount to the wallet balance, creating the
	// wallet at zero first if the user has none. Used by Fund and Refund,
	// which must never fail for a missing wallet.
	UpsertAdd(ctx context.Context, userID uint, amount float64) (*models.Wallet, error)

	// CompareAndSetBalance writes newBalance only if the stored version
	// still equals version. Returns ErrVersionConflict when another writer
	// got there first, ErrWalletNotFound when the row is gone.
	CompareAndSetBalance(ctx context.Context, userID uint, version int64, newBalance float64) (*models.Wallet, error)
}
