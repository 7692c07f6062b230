package repositories

import (
	"context"
	"errors"
	"fmt"

	"billvend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type walletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) WalletRepository {
	return &walletRepository{
		db: db,
	}
}

func (r *walletRepository) GetByUserID(ctx context.Context, userID uint) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wallet, nil
}

func (r *walletRepository) UpsertAdd(ctx context.Context, userID uint, amount float64) (*models.Wallet, error) {
	wallet := models.Wallet{
		UserID:  userID,
		Balance: amount,
		Version: 1,
	}

	// Single round trip: insert the wallet, or add to the existing balance
	// and bump the version if the user already has one.
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"balance":    gorm.Expr("wallets.balance + ?", amount),
			"version":    gorm.Expr("wallets.version + 1"),
			"updated_at": gorm.Expr("NOW()"),
		}),
	}).Create(&wallet).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert wallet: %w", err)
	}

	return r.GetByUserID(ctx, userID)
}

func (r *walletRepository) CompareAndSetBalance(ctx context.Context, userID uint, version int64, newBalance float64) (*models.Wallet, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("user_id = ? AND version = ?", userID, version).
		Updates(map[string]interface{}{
			"balance": newBalance,
			"version": version + 1,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update wallet: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Distinguish a concurrent writer from a missing row.
		if _, err := r.GetByUserID(ctx, userID); err != nil {
			return nil, err
		}
		return nil, ErrVersionConflict
	}

	return r.GetByUserID(ctx, userID)
}
