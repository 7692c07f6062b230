package repositories

import (
	"context"
	"errors"

	"billvend/internal/models"
)

var (
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	ErrTransactionConflict  = errors.New("transaction status conflict")
)

// TransactionRepository persists payment-attempt records. Rows are append
// and update only; nothing ever deletes a transaction.
type TransactionRepository interface {
	Create(ctx context.Context, tx *models.Transaction) error
	GetByTransactionID(ctx context.Context, transactionID string) (*models.Transaction, error)
	GetByUserID(ctx context.Context, userID uint) ([]models.Transaction, error)

	// Update persists mutated status fields of an existing record. The
	// write only lands if the stored status still equals fromStatus;
	// a row changed by a concurrent writer yields ErrTransactionConflict.
	Update(ctx context.Context, tx *models.Transaction, fromStatus string) error
}
