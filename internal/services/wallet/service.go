package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"billvend/internal/models"
	"billvend/internal/repositories"
)

type service struct {
	repo    repositories.WalletRepository
	cache   Cache
	charger CardCharger
	config  Config
	logger  *slog.Logger
}

// NewService creates a new wallet service. The charger is optional; when
// nil, FundFromCard is rejected.
func NewService(
	repo repositories.WalletRepository,
	cache Cache,
	charger CardCharger,
	config Config,
	logger *slog.Logger,
) Service {
	if repo == nil {
		panic("repo is required")
	}
	if cache == nil {
		panic("cache is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if config.DefaultCurrency == "" {
		config.DefaultCurrency = DefaultCurrency
	}
	if config.DebitRetries <= 0 {
		config.DebitRetries = DefaultDebitRetries
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = DefaultRetryBackoff
	}

	return &service{
		repo:    repo,
		cache:   cache,
		charger: charger,
		config:  config,
		logger:  logger.With("service", "wallet"),
	}
}

func (s *service) Fund(ctx context.Context, userID uint, amount float64) (*models.Wallet, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	w, err := s.repo.UpsertAdd(ctx, userID, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to fund wallet: %w", err)
	}

	s.invalidate(ctx, userID)
	s.logger.Info("wallet funded", "user_id", userID, "amount", amount, "balance", w.Balance)
	return w, nil
}

func (s *service) FundFromCard(ctx context.Context, userID uint, amount float64, card CardInput) (*models.Wallet, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if s.charger == nil {
		return nil, errors.New("card funding is not configured")
	}

	chargeID, err := s.charger.Charge(ctx, card, amount, s.config.DefaultCurrency)
	if err != nil {
		s.logger.Warn("card charge failed", "user_id", userID, "amount", amount, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrCardDeclined, err)
	}

	w, err := s.Fund(ctx, userID, amount)
	if err != nil {
		// The card was charged but the ledger write failed. Surface loudly;
		// this needs an operator, the processor side cannot be unwound here.
		s.logger.Error("CRITICAL: card charged but wallet credit failed",
			"user_id", userID, "amount", amount, "charge_id", chargeID, "error", err)
		return nil, err
	}

	s.logger.Info("card top-up completed", "user_id", userID, "amount", amount, "charge_id", chargeID)
	return w, nil
}

func (s *service) Debit(ctx context.Context, userID uint, amount float64) (*models.Wallet, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	for attempt := 0; attempt < s.config.DebitRetries; attempt++ {
		w, err := s.repo.GetByUserID(ctx, userID)
		if err != nil {
			if errors.Is(err, repositories.ErrWalletNotFound) {
				return nil, ErrWalletNotFound
			}
			return nil, fmt.Errorf("failed to read wallet: %w", err)
		}

		if w.Balance < amount {
			return nil, ErrInsufficientFunds
		}

		updated, err := s.repo.CompareAndSetBalance(ctx, userID, w.Version, w.Balance-amount)
		if err == nil {
			s.invalidate(ctx, userID)
			s.logger.Info("wallet debited", "user_id", userID, "amount", amount, "balance", updated.Balance)
			return updated, nil
		}
		if !errors.Is(err, repositories.ErrVersionConflict) {
			return nil, fmt.Errorf("failed to debit wallet: %w", err)
		}

		// Another writer won; re-read and try again against the fresh
		// balance and version.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.config.RetryBackoff * time.Duration(attempt+1)):
		}
	}

	s.logger.Warn("debit gave up after version conflicts", "user_id", userID, "amount", amount)
	return nil, ErrConcurrentModification
}

func (s *service) Refund(ctx context.Context, userID uint, amount float64) (*models.Wallet, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	w, err := s.repo.UpsertAdd(ctx, userID, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to refund wallet: %w", err)
	}

	s.invalidate(ctx, userID)
	s.logger.Info("wallet refunded", "user_id", userID, "amount", amount, "balance", w.Balance)
	return w, nil
}

func (s *service) GetBalance(ctx context.Context, userID uint) (float64, error) {
	w, err := s.GetWallet(ctx, userID)
	if err != nil {
		return 0, err
	}
	return w.Balance, nil
}

func (s *service) GetWallet(ctx context.Context, userID uint) (*models.Wallet, error) {
	if w, err := s.cache.GetWallet(ctx, userID); err == nil {
		return w, nil
	}

	w, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrWalletNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	if err := s.cache.CacheWallet(ctx, w); err != nil {
		s.logger.Debug("failed to cache wallet", "user_id", userID, "error", err)
	}
	return w, nil
}

func (s *service) invalidate(ctx context.Context, userID uint) {
	if err := s.cache.InvalidateWallet(ctx, userID); err != nil {
		s.logger.Debug("failed to invalidate wallet cache", "user_id", userID, "error", err)
	}
}
