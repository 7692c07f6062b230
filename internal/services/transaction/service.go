// Package transaction owns the payment-attempt ledger and its status
// state machine. Statuses move strictly forward:
//
//	PENDING -> PROCESSING -> COMPLETED | FAILED
//	FAILED  -> REVERSED (only via MarkReversed, paired with a completed
//	           REVERSAL transaction)
//
// COMPLETED and REVERSED are terminal. The guards here are what make the
// queue handlers idempotent: a redelivered job that tries to repeat an
// already-applied transition gets ErrInvalidStatusTransition instead of a
// second side effect.
package transaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"billvend/internal/models"
	"billvend/internal/repositories"
)

var validTransitions = map[string][]string{
	models.TransactionStatusPending:    {models.TransactionStatusProcessing, models.TransactionStatusFailed},
	models.TransactionStatusProcessing: {models.TransactionStatusCompleted, models.TransactionStatusFailed},
	models.TransactionStatusFailed:     {models.TransactionStatusReversed},
	models.TransactionStatusCompleted:  {},
	models.TransactionStatusReversed:   {},
}

func canTransition(from, to string) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Service is the transaction ledger contract.
type Service interface {
	// Create inserts a PENDING transaction. The id is caller-generated and
	// globally unique; reuse fails with ErrDuplicateTransaction.
	Create(ctx context.Context, id string, userID uint, amount float64, txType string, bill *models.BillDetails, metadata models.JSON) (*models.Transaction, error)

	// UpdateStatus applies a forward status transition. COMPLETED stamps
	// the completion time. REVERSED cannot be set here; use MarkReversed.
	UpdateStatus(ctx context.Context, id, status, externalTransactionID, failureReason string) (*models.Transaction, error)

	// MarkReversed moves a FAILED transaction to REVERSED and records the
	// id of the completed reversal transaction that compensated it.
	MarkReversed(ctx context.Context, id, reversalTransactionID string) (*models.Transaction, error)

	Get(ctx context.Context, id string) (*models.Transaction, error)
	GetUserTransactions(ctx context.Context, userID uint) ([]models.Transaction, error)
}

type service struct {
	repo   repositories.TransactionRepository
	logger *slog.Logger
}

func NewService(repo repositories.TransactionRepository, logger *slog.Logger) Service {
	if repo == nil {
		panic("repo is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &service{
		repo:   repo,
		logger: logger.With("service", "transaction"),
	}
}

func (s *service) Create(ctx context.Context, id string, userID uint, amount float64, txType string, bill *models.BillDetails, metadata models.JSON) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if txType != models.TransactionTypeBillPayment && txType != models.TransactionTypeReversal {
		return nil, ErrInvalidType
	}

	tx := &models.Transaction{
		TransactionID: id,
		UserID:        userID,
		Amount:        amount,
		Type:          txType,
		Status:        models.TransactionStatusPending,
		Metadata:      metadata,
	}
	if bill != nil {
		tx.BillType = bill.BillType
		tx.AccountNumber = bill.AccountNumber
		tx.MeterNumber = bill.MeterNumber
	}

	if err := s.repo.Create(ctx, tx); err != nil {
		if errors.Is(err, repositories.ErrDuplicateTransaction) {
			return nil, ErrDuplicateTransaction
		}
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	s.logger.Info("transaction created", "transaction_id", id, "user_id", userID,
		"type", txType, "amount", amount)
	return tx, nil
}

func (s *service) UpdateStatus(ctx context.Context, id, status, externalTransactionID, failureReason string) (*models.Transaction, error) {
	if status == models.TransactionStatusReversed {
		return nil, ErrInvalidStatusTransition
	}

	tx, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canTransition(tx.Status, status) {
		s.logger.Warn("rejected status transition", "transaction_id", id,
			"from", tx.Status, "to", status)
		return nil, ErrInvalidStatusTransition
	}

	fromStatus := tx.Status
	tx.Status = status
	if externalTransactionID != "" {
		tx.ExternalTransactionID = externalTransactionID
	}
	if failureReason != "" {
		tx.FailureReason = failureReason
	}
	if status == models.TransactionStatusCompleted {
		now := time.Now().UTC()
		tx.CompletedAt = &now
	}

	if err := s.repo.Update(ctx, tx, fromStatus); err != nil {
		if errors.Is(err, repositories.ErrTransactionConflict) {
			// A concurrent writer moved the record first; only its
			// transition counts.
			s.logger.Warn("lost status transition race", "transaction_id", id,
				"from", fromStatus, "to", status)
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}

	s.logger.Info("transaction status updated", "transaction_id", id, "status", status)
	return tx, nil
}

func (s *service) MarkReversed(ctx context.Context, id, reversalTransactionID string) (*models.Transaction, error) {
	tx, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canTransition(tx.Status, models.TransactionStatusReversed) {
		return nil, ErrInvalidStatusTransition
	}

	fromStatus := tx.Status
	tx.Status = models.TransactionStatusReversed
	tx.ReversalTransactionID = reversalTransactionID

	if err := s.repo.Update(ctx, tx, fromStatus); err != nil {
		if errors.Is(err, repositories.ErrTransactionConflict) {
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("failed to mark transaction reversed: %w", err)
	}

	s.logger.Info("transaction marked reversed", "transaction_id", id,
		"reversal_transaction_id", reversalTransactionID)
	return tx, nil
}

func (s *service) Get(ctx context.Context, id string) (*models.Transaction, error) {
	return s.get(ctx, id)
}

func (s *service) GetUserTransactions(ctx context.Context, userID uint) ([]models.Transaction, error) {
	txs, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}

func (s *service) get(ctx context.Context, id string) (*models.Transaction, error) {
	tx, err := s.repo.GetByTransactionID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTransactionNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}
