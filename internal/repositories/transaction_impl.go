package repositories

import (
	"context"
	"errors"
	"fmt"

	"billvend/internal/models"

	"gorm.io/gorm"
)

type transactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{
		db: db,
	}
}

func (r *transactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	if err := r.db.WithContext(ctx).Create(tx).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateTransaction
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *transactionRepository) GetByTransactionID(ctx context.Context, transactionID string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &tx, nil
}

func (r *transactionRepository) GetByUserID(ctx context.Context, userID uint) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get user transactions: %w", err)
	}
	return txs, nil
}

func (r *transactionRepository) Update(ctx context.Context, tx *models.Transaction, fromStatus string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("transaction_id = ? AND status = ?", tx.TransactionID, fromStatus).
		Updates(map[string]interface{}{
			"status":                  tx.Status,
			"external_transaction_id": tx.ExternalTransactionID,
			"failure_reason":          tx.FailureReason,
			"reversal_transaction_id": tx.ReversalTransactionID,
			"completed_at":            tx.CompletedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update transaction: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Distinguish a concurrent writer from a missing row.
		if _, err := r.GetByTransactionID(ctx, tx.TransactionID); err != nil {
			return err
		}
		return ErrTransactionConflict
	}
	return nil
}
