package bill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"billvend/internal/models"
	"billvend/internal/queue"
	"billvend/internal/services/transaction"
	"billvend/internal/services/wallet"
)

// Service is the payment orchestrator contract.
type Service interface {
	// PayBill runs Phase 1 synchronously and hands the rest to the queue.
	PayBill(ctx context.Context, userID uint, req PayBillRequest) (*PaymentResult, error)

	// HandlePaymentJob is the process-payment worker (Phase 2).
	HandlePaymentJob(ctx context.Context, job *queue.Job) error

	// HandleReversalJob is the process-reversal worker (Phase 3).
	HandleReversalJob(ctx context.Context, job *queue.Job) error

	GetTransaction(ctx context.Context, transactionID string) (*models.Transaction, error)
	GetUserTransactions(ctx context.Context, userID uint) ([]models.Transaction, error)
}

// Registrar is the handler-registration half of the queue.
type Registrar interface {
	Register(kind string, handler queue.HandlerFunc)
}

type service struct {
	wallets      wallet.Service
	transactions transaction.Service
	gateway      Gateway
	enqueuer     queue.Enqueuer
	config       Config
	logger       *slog.Logger
}

func NewService(
	wallets wallet.Service,
	transactions transaction.Service,
	gateway Gateway,
	enqueuer queue.Enqueuer,
	config Config,
	logger *slog.Logger,
) Service {
	if wallets == nil {
		panic("wallet service is required")
	}
	if transactions == nil {
		panic("transaction service is required")
	}
	if gateway == nil {
		panic("gateway is required")
	}
	if enqueuer == nil {
		panic("enqueuer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &service{
		wallets:      wallets,
		transactions: transactions,
		gateway:      gateway,
		enqueuer:     enqueuer,
		config:       config.withDefaults(),
		logger:       logger.With("service", "bill"),
	}
}

// RegisterHandlers wires the Phase 2/3 workers onto the queue.
func RegisterHandlers(r Registrar, svc Service) {
	r.Register(queue.KindProcessPayment, svc.HandlePaymentJob)
	r.Register(queue.KindProcessReversal, svc.HandleReversalJob)
}

func validateRequest(req PayBillRequest) error {
	if req.Amount <= 0 {
		return ErrInvalidAmount
	}
	if !supportedBillTypes[req.BillType] {
		return ErrUnsupportedBillType
	}
	if req.AccountNumber == "" {
		return ErrMissingAccountNumber
	}
	if req.BillType == BillTypeElectricity && req.MeterNumber == "" {
		return ErrMissingMeterNumber
	}
	return nil
}

// PayBill is Phase 1. The ordering matters: the transaction record exists
// before money moves, and money moves before the job is enqueued. Any
// failure after the debit refunds inline so the caller never sees an error
// with their balance still reduced.
func (s *service) PayBill(ctx context.Context, userID uint, req PayBillRequest) (*PaymentResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	transactionID := "txn-" + uuid.NewString()
	details := &models.BillDetails{
		BillType:      req.BillType,
		AccountNumber: req.AccountNumber,
		MeterNumber:   req.MeterNumber,
	}

	if _, err := s.transactions.Create(ctx, transactionID, userID, req.Amount,
		models.TransactionTypeBillPayment, details, nil); err != nil {
		return nil, fmt.Errorf("failed to create payment transaction: %w", err)
	}

	if _, err := s.wallets.Debit(ctx, userID, req.Amount); err != nil {
		s.failTransaction(ctx, transactionID, err.Error())
		switch {
		case errors.Is(err, wallet.ErrInsufficientFunds):
			return nil, ErrInsufficientFunds
		case errors.Is(err, wallet.ErrWalletNotFound):
			return nil, ErrWalletNotFound
		default:
			return nil, fmt.Errorf("failed to debit wallet: %w", err)
		}
	}

	if _, err := s.transactions.UpdateStatus(ctx, transactionID,
		models.TransactionStatusProcessing, "", ""); err != nil {
		return nil, s.compensateInitiation(ctx, transactionID, userID, req.Amount,
			fmt.Errorf("failed to move transaction to processing: %w", err))
	}

	job := PaymentJob{
		TransactionID: transactionID,
		UserID:        userID,
		BillType:      req.BillType,
		AccountNumber: req.AccountNumber,
		Amount:        req.Amount,
		MeterNumber:   req.MeterNumber,
	}
	if err := s.enqueuer.Enqueue(ctx, queue.KindProcessPayment, job); err != nil {
		return nil, s.compensateInitiation(ctx, transactionID, userID, req.Amount,
			fmt.Errorf("failed to enqueue payment job: %w", err))
	}

	s.logger.Info("payment initiated", "transaction_id", transactionID,
		"user_id", userID, "bill_type", req.BillType, "amount", req.Amount)

	return &PaymentResult{
		TransactionID: transactionID,
		Status:        models.TransactionStatusProcessing,
		Message:       "payment is being processed",
	}, nil
}

// compensateInitiation is the Phase-1 rollback: refund the debit, fail the
// transaction, surface the original error. Deliberately leaves no REVERSAL
// record; the payment never reached the gateway.
func (s *service) compensateInitiation(ctx context.Context, transactionID string, userID uint, amount float64, cause error) error {
	if _, err := s.wallets.Refund(ctx, userID, amount); err != nil {
		// Money is taken and the automatic path is out of moves.
		s.logger.Error("CRITICAL: initiation rollback refund failed, manual intervention required",
			"transaction_id", transactionID, "user_id", userID, "amount", amount, "error", err)
	}
	s.failTransaction(ctx, transactionID, cause.Error())
	return cause
}

func (s *service) failTransaction(ctx context.Context, transactionID, reason string) {
	if _, err := s.transactions.UpdateStatus(ctx, transactionID,
		models.TransactionStatusFailed, "", reason); err != nil {
		s.logger.Error("failed to mark transaction failed",
			"transaction_id", transactionID, "error", err)
	}
}

// HandlePaymentJob is Phase 2. It re-derives the action from the persisted
// status so redeliveries are safe: only a PROCESSING transaction triggers
// a gateway call, and a FAILED one without a reversal back-reference
// re-enqueues compensation (covering a crash between the status write and
// the enqueue on a previous attempt).
func (s *service) HandlePaymentJob(ctx context.Context, job *queue.Job) error {
	var payload PaymentJob
	if err := queue.DecodePayload(job, &payload); err != nil {
		s.logger.Error("undecodable payment job", "job_id", job.ID, "error", err)
		return err
	}

	tx, err := s.transactions.Get(ctx, payload.TransactionID)
	if err != nil {
		return fmt.Errorf("failed to load transaction %s: %w", payload.TransactionID, err)
	}

	switch tx.Status {
	case models.TransactionStatusProcessing:
		// fall through to the gateway call
	case models.TransactionStatusFailed:
		if tx.ReversalTransactionID == "" {
			return s.enqueueReversal(ctx, payload.TransactionID, payload.UserID,
				payload.Amount, tx.FailureReason)
		}
		return nil
	case models.TransactionStatusCompleted, models.TransactionStatusReversed:
		s.logger.Info("payment job redelivered for settled transaction",
			"transaction_id", payload.TransactionID, "status", tx.Status)
		return nil
	default:
		return fmt.Errorf("transaction %s in unexpected status %s", payload.TransactionID, tx.Status)
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.config.GatewayTimeout)
	defer cancel()

	result, err := s.gateway.ProcessPayment(gwCtx, GatewayRequest{
		TransactionID: payload.TransactionID,
		BillType:      payload.BillType,
		AccountNumber: payload.AccountNumber,
		MeterNumber:   payload.MeterNumber,
		Amount:        payload.Amount,
	})

	if err == nil && result.Success {
		if _, err := s.transactions.UpdateStatus(ctx, payload.TransactionID,
			models.TransactionStatusCompleted, result.ExternalTransactionID, ""); err != nil {
			if errors.Is(err, transaction.ErrInvalidStatusTransition) {
				return nil
			}
			return fmt.Errorf("failed to complete transaction %s: %w", payload.TransactionID, err)
		}
		s.logger.Info("payment completed", "transaction_id", payload.TransactionID,
			"external_transaction_id", result.ExternalTransactionID)
		return nil
	}

	// Decline, timeout and transport error all land here. The payment is
	// never retried against the gateway; only the compensation runs.
	reason := failureReason(result, err)
	s.logger.Warn("gateway payment failed", "transaction_id", payload.TransactionID,
		"reason", reason)

	if _, err := s.transactions.UpdateStatus(ctx, payload.TransactionID,
		models.TransactionStatusFailed, "", reason); err != nil {
		if !errors.Is(err, transaction.ErrInvalidStatusTransition) {
			return fmt.Errorf("failed to fail transaction %s: %w", payload.TransactionID, err)
		}
	}
	return s.enqueueReversal(ctx, payload.TransactionID, payload.UserID, payload.Amount, reason)
}

func failureReason(result *GatewayResult, err error) string {
	if err != nil {
		return err.Error()
	}
	if result.ErrorCode != "" {
		return fmt.Sprintf("%s: %s", result.ErrorCode, result.Message)
	}
	return result.Message
}

func (s *service) enqueueReversal(ctx context.Context, transactionID string, userID uint, amount float64, reason string) error {
	job := ReversalJob{
		TransactionID: transactionID,
		UserID:        userID,
		Amount:        amount,
		Reason:        reason,
	}
	if err := s.enqueuer.Enqueue(ctx, queue.KindProcessReversal, job); err != nil {
		return fmt.Errorf("failed to enqueue reversal for %s: %w", transactionID, err)
	}
	s.logger.Info("reversal enqueued", "transaction_id", transactionID, "amount", amount)
	return nil
}

// HandleReversalJob is Phase 3. The reversal transaction id is derived
// from the original, so a redelivered job finds the existing record and
// skips whatever already happened instead of refunding twice.
func (s *service) HandleReversalJob(ctx context.Context, job *queue.Job) error {
	var payload ReversalJob
	if err := queue.DecodePayload(job, &payload); err != nil {
		s.logger.Error("undecodable reversal job", "job_id", job.ID, "error", err)
		return err
	}

	original, err := s.transactions.Get(ctx, payload.TransactionID)
	if err != nil {
		return fmt.Errorf("failed to load transaction %s: %w", payload.TransactionID, err)
	}
	if original.Status == models.TransactionStatusReversed {
		return nil
	}
	if original.Status != models.TransactionStatusFailed {
		return fmt.Errorf("cannot reverse transaction %s in status %s",
			payload.TransactionID, original.Status)
	}

	reversalID := "rev-" + payload.TransactionID
	reversal, err := s.transactions.Create(ctx, reversalID, payload.UserID, payload.Amount,
		models.TransactionTypeReversal, nil, models.JSON{
			"original_transaction_id": payload.TransactionID,
			"reason":                  payload.Reason,
		})
	if err != nil {
		if !errors.Is(err, transaction.ErrDuplicateTransaction) {
			return fmt.Errorf("failed to create reversal transaction: %w", err)
		}
		if reversal, err = s.transactions.Get(ctx, reversalID); err != nil {
			return fmt.Errorf("failed to load reversal transaction %s: %w", reversalID, err)
		}
	}

	switch reversal.Status {
	case models.TransactionStatusCompleted:
		// Refund already applied on an earlier delivery.
		return s.markOriginalReversed(ctx, payload.TransactionID, reversalID)
	case models.TransactionStatusFailed:
		// Escalated to operators on an earlier delivery; never auto-retried.
		s.logger.Error("reversal previously failed, awaiting manual intervention",
			"transaction_id", payload.TransactionID, "reversal_transaction_id", reversalID)
		return nil
	case models.TransactionStatusProcessing:
		// Another delivery holds the claim, or a crash left the refund
		// in doubt. Either way a second refund here could double-credit
		// the wallet, so this stays with operators.
		s.logger.Error("reversal in flight or in doubt, awaiting manual intervention",
			"transaction_id", payload.TransactionID, "reversal_transaction_id", reversalID)
		return nil
	}

	// The PENDING -> PROCESSING transition is the claim on the refund.
	// Only the delivery whose write lands may touch the wallet.
	if _, err := s.transactions.UpdateStatus(ctx, reversalID,
		models.TransactionStatusProcessing, "", ""); err != nil {
		if errors.Is(err, transaction.ErrInvalidStatusTransition) {
			s.logger.Warn("lost reversal claim to a concurrent delivery",
				"transaction_id", payload.TransactionID, "reversal_transaction_id", reversalID)
			return nil
		}
		return fmt.Errorf("failed to start reversal %s: %w", reversalID, err)
	}

	if _, err := s.wallets.Refund(ctx, payload.UserID, payload.Amount); err != nil {
		// The fund that should have been returned is stuck. Mark it and
		// stop; this path must reach an operator, not a retry loop.
		s.logger.Error("CRITICAL: reversal refund failed, manual intervention required",
			"transaction_id", payload.TransactionID, "reversal_transaction_id", reversalID,
			"user_id", payload.UserID, "amount", payload.Amount, "error", err)
		s.failTransaction(ctx, reversalID, fmt.Sprintf("refund failed: %v", err))
		return nil
	}

	if _, err := s.transactions.UpdateStatus(ctx, reversalID,
		models.TransactionStatusCompleted, "", ""); err != nil {
		return fmt.Errorf("failed to complete reversal %s: %w", reversalID, err)
	}

	s.logger.Info("wallet refunded", "transaction_id", payload.TransactionID,
		"reversal_transaction_id", reversalID, "amount", payload.Amount)

	return s.markOriginalReversed(ctx, payload.TransactionID, reversalID)
}

func (s *service) markOriginalReversed(ctx context.Context, transactionID, reversalID string) error {
	if _, err := s.transactions.MarkReversed(ctx, transactionID, reversalID); err != nil {
		if errors.Is(err, transaction.ErrInvalidStatusTransition) {
			return nil
		}
		return fmt.Errorf("failed to mark %s reversed: %w", transactionID, err)
	}
	s.logger.Info("transaction reversed", "transaction_id", transactionID,
		"reversal_transaction_id", reversalID)
	return nil
}

func (s *service) GetTransaction(ctx context.Context, transactionID string) (*models.Transaction, error) {
	return s.transactions.Get(ctx, transactionID)
}

func (s *service) GetUserTransactions(ctx context.Context, userID uint) ([]models.Transaction, error) {
	return s.transactions.GetUserTransactions(ctx, userID)
}
