package bill

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billvend/internal/models"
	"billvend/internal/queue"
	"billvend/internal/repositories"
	"billvend/internal/services/transaction"
	"billvend/internal/services/wallet"
)

// ---- fakes -----------------------------------------------------------------

// fakeWalletRepo backs the wallet service with map storage and real CAS
// semantics. beforeUpsert, when set, runs at the top of UpsertAdd so tests
// can hold a refund mid-flight.
type fakeWalletRepo struct {
	mu           sync.Mutex
	wallets      map[uint]*models.Wallet
	beforeUpsert func()
}

func newFakeWalletRepo() *fakeWalletRepo {
	return &fakeWalletRepo{wallets: make(map[uint]*models.Wallet)}
}

func (f *fakeWalletRepo) GetByUserID(_ context.Context, userID uint) (*models.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.wallets[userID]
	if !ok {
		return nil, repositories.ErrWalletNotFound
	}
	cp := *w
	return &cp, nil
}

func (f *fakeWalletRepo) UpsertAdd(_ context.Context, userID uint, amount float64) (*models.Wallet, error) {
	if f.beforeUpsert != nil {
		f.beforeUpsert()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.wallets[userID]
	if !ok {
		w = &models.Wallet{UserID: userID}
		f.wallets[userID] = w
	}
	w.Balance += amount
	w.Version++
	cp := *w
	return &cp, nil
}

func (f *fakeWalletRepo) CompareAndSetBalance(_ context.Context, userID uint, version int64, newBalance float64) (*models.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.wallets[userID]
	if !ok {
		return nil, repositories.ErrWalletNotFound
	}
	if w.Version != version {
		return nil, repositories.ErrVersionConflict
	}
	w.Balance = newBalance
	w.Version++
	cp := *w
	return &cp, nil
}

type noopCache struct{}

func (noopCache) GetWallet(ctx context.Context, userID uint) (*models.Wallet, error) {
	return nil, repositories.ErrWalletNotFound
}
func (noopCache) CacheWallet(ctx context.Context, wallet *models.Wallet) error { return nil }
func (noopCache) InvalidateWallet(ctx context.Context, userID uint) error { return nil }

type fakeTransactionRepo struct {
	mu   sync.Mutex
	rows map[string]*models.Transaction
}

func newFakeTransactionRepo() *fakeTransactionRepo {
	return &fakeTransactionRepo{rows: make(map[string]*models.Transaction)}
}

func (f *fakeTransactionRepo) Create(_ context.Context, tx *models.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[tx.TransactionID]; ok {
		return repositories.ErrDuplicateTransaction
	}
	cp := *tx
	f.rows[tx.TransactionID] = &cp
	return nil
}

func (f *fakeTransactionRepo) GetByTransactionID(_ context.Context, id string) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.rows[id]
	if !ok {
		return nil, repositories.ErrTransactionNotFound
	}
	cp := *tx
	return &cp, nil
}

func (f *fakeTransactionRepo) GetByUserID(_ context.Context, userID uint) ([]models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Transaction
	for _, tx := range f.rows {
		if tx.UserID == userID {
			out = append(out, *tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (f *fakeTransactionRepo) Update(_ context.Context, tx *models.Transaction, fromStatus string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.rows[tx.TransactionID]
	if !ok {
		return repositories.ErrTransactionNotFound
	}
	if cur.Status != fromStatus {
		return repositories.ErrTransactionConflict
	}
	cp := *tx
	f.rows[tx.TransactionID] = &cp
	return nil
}

// countByType counts stored transactions of the given type, so tests can
// assert the audit-trail shape directly.
func (f *fakeTransactionRepo) countByType(txType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, tx := range f.rows {
		if tx.Type == txType {
			n++
		}
	}
	return n
}

// captureEnqueuer records enqueued jobs instead of running them, letting
// tests drive the worker phases by hand.
type captureEnqueuer struct {
	mu       sync.Mutex
	jobs     []capturedJob
	failKind string
}

type capturedJob struct {
	kind    string
	payload json.RawMessage
}

func (c *captureEnqueuer) Enqueue(_ context.Context, kind string, payload interface{}) error {
	if kind == c.failKind {
		return errors.New("queue unavailable")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.jobs = append(c.jobs, capturedJob{kind: kind, payload: data})
	c.mu.Unlock()
	return nil
}

func (c *captureEnqueuer) pop(t *testing.T, wantKind string) *queue.Job {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.jobs, "expected a %s job to be enqueued", wantKind)
	j := c.jobs[0]
	c.jobs = c.jobs[1:]
	require.Equal(t, wantKind, j.kind)
	return &queue.Job{ID: "job-1", Kind: j.kind, Payload: j.payload, Attempts: 1}
}

func (c *captureEnqueuer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.jobs)
}

// scriptedGateway answers with a fixed result or error.
type scriptedGateway struct {
	result *GatewayResult
	err    error
	calls  int
}

func (g *scriptedGateway) ProcessPayment(ctx context.Context, req GatewayRequest) (*GatewayResult, error) {
	g.calls++
	return g.result, g.err
}

// ---- harness ---------------------------------------------------------------

type harness struct {
	svc     Service
	wallets wallet.Service
	txRepo  *fakeTransactionRepo
	wRepo   *fakeWalletRepo
	queue   *captureEnqueuer
	gateway *scriptedGateway
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	wRepo := newFakeWalletRepo()
	txRepo := newFakeTransactionRepo()
	wallets := wallet.NewService(wRepo, noopCache{}, nil, wallet.Config{RetryBackoff: time.Millisecond}, nil)
	transactions := transaction.NewService(txRepo, nil)
	enq := &captureEnqueuer{}
	gw := &scriptedGateway{result: &GatewayResult{Success: true, ExternalTransactionID: "EXT-1", Message: "ok"}}

	return &harness{
		svc:     NewService(wallets, transactions, gw, enq, Config{}, nil),
		wallets: wallets,
		txRepo:  txRepo,
		wRepo:   wRepo,
		queue:   enq,
		gateway: gw,
	}
}

func (h *harness) balance(t *testing.T, userID uint) float64 {
	t.Helper()
	b, err := h.wallets.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return b
}

func (h *harness) tx(t *testing.T, id string) *models.Transaction {
	t.Helper()
	tx, err := h.svc.GetTransaction(context.Background(), id)
	require.NoError(t, err)
	return tx
}

var electricityBill = PayBillRequest{
	BillType:      BillTypeElectricity,
	AccountNumber: "ACC-12345",
	Amount:        40,
	MeterNumber:   "MTR-9",
}

// ---- tests -----------------------------------------------------------------

func TestPayBill_HappyPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.wallets.Fund(ctx, 1, 100)
	require.NoError(t, err)

	res, err := h.svc.PayBill(ctx, 1, electricityBill)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusProcessing, res.Status)
	assert.Equal(t, 60.0, h.balance(t, 1))

	job := h.queue.pop(t, queue.KindProcessPayment)
	var payload PaymentJob
	require.NoError(t, queue.DecodePayload(job, &payload))
	assert.Equal(t, res.TransactionID, payload.TransactionID)
	assert.Equal(t, "MTR-9", payload.MeterNumber)

	require.NoError(t, h.svc.HandlePaymentJob(ctx, job))

	tx := h.tx(t, res.TransactionID)
	assert.Equal(t, models.TransactionStatusCompleted, tx.Status)
	assert.Equal(t, "EXT-1", tx.ExternalTransactionID)
	require.NotNil(t, tx.CompletedAt)
	assert.Equal(t, 60.0, h.balance(t, 1))
	assert.Zero(t, h.queue.count())
}

func TestPayBill_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  PayBillRequest
		want error
	}{
		{"zero amount", PayBillRequest{BillType: BillTypeWater, AccountNumber: "ACC-1x", Amount: 0}, ErrInvalidAmount},
		{"negative amount", PayBillRequest{BillType: BillTypeWater, AccountNumber: "ACC-1x", Amount: -3}, ErrInvalidAmount},
		{"unknown bill type", PayBillRequest{BillType: "gas", AccountNumber: "ACC-1x", Amount: 10}, ErrUnsupportedBillType},
		{"missing account", PayBillRequest{BillType: BillTypeWater, Amount: 10}, ErrMissingAccountNumber},
		{"electricity without meter", PayBillRequest{BillType: BillTypeElectricity, AccountNumber: "ACC-1x", Amount: 10}, ErrMissingMeterNumber},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.PayBill(ctx, 1, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	// Rejected inputs never touch the ledger or the queue.
	assert.Zero(t, h.queue.count())
	assert.Empty(t, h.txRepo.rows)
}

func TestPayBill_InsufficientFunds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.wallets.Fund(ctx, 1, 10)
	require.NoError(t, err)

	_, err = h.svc.PayBill(ctx, 1, electricityBill)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	assert.Equal(t, 10.0, h.balance(t, 1))
	assert.Zero(t, h.queue.count())

	// The attempt is on record as FAILED, not stuck PENDING.
	txs, err := h.svc.GetUserTransactions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, models.TransactionStatusFailed, txs[0].Status)
}

func TestPayBill_NoWallet(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.PayBill(context.Background(), 99, electricityBill)
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestPayBill_EnqueueFailureRefundsInline(t *testing.T) {
	h := newHarness(t)
	h.queue.failKind = queue.KindProcessPayment
	ctx := context.Background()

	_, err := h.wallets.Fund(ctx, 1, 100)
	require.NoError(t, err)

	_, err = h.svc.PayBill(ctx, 1, electricityBill)
	require.Error(t, err)

	// Balance restored synchronously, attempt FAILED, and no REVERSAL
	// record: the rollback happened before the payment ever left Phase 1.
	assert.Equal(t, 100.0, h.balance(t, 1))
	txs, err := h.svc.GetUserTransactions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, models.TransactionStatusFailed, txs[0].Status)
	assert.Zero(t, h.txRepo.countByType(models.TransactionTypeReversal))
}

func TestPaymentJob_GatewayDeclineTriggersReversal(t *testing.T) {
	h := newHarness(t)
	h.gateway.result = &GatewayResult{Success: false, Message: "provider rejected", ErrorCode: GatewayErrServiceUnavailable}
	ctx := context.Background()

	_, err := h.wallets.Fund(ctx, 1, 100)
	require.NoError(t, err)
	res, err := h.svc.PayBill(ctx, 1, electricityBill)
	require.NoError(t, err)
	assert.Equal(t, 60.0, h.balance(t, 1))

	require.NoError(t, h.svc.HandlePaymentJob(ctx, h.queue.pop(t, queue.KindProcessPayment)))

	tx := h.tx(t, res.TransactionID)
	assert.Equal(t, models.TransactionStatusFailed, tx.Status)
	assert.Contains(t, tx.FailureReason, GatewayErrServiceUnavailable)

	require.NoError(t, h.svc.HandleReversalJob(ctx, h.queue.pop(t, queue.KindProcessReversal)))

	// Net wallet effect of a reversed payment is zero.
	assert.Equal(t, 100.0, h.balance(t, 1))

	original := h.tx(t, res.TransactionID)
	assert.Equal(t, models.TransactionStatusReversed, original.Status)
	assert.Equal(t, "rev-"+res.TransactionID, original.ReversalTransactionID)

	reversal := h.tx(t, "rev-"+res.TransactionID)
	assert.Equal(t, models.TransactionTypeReversal, reversal.Type)
	assert.Equal(t, models.TransactionStatusCompleted, reversal.Status)
	assert.Equal(t, res.TransactionID, reversal.Metadata["original_transaction_id"])
}

func TestPaymentJob_TransportErrorTriggersReversal(t *testing.T) {
	h := newHarness(t)
	h.gateway.result = nil
	h.gateway.err = errors.New("connection reset")
	ctx := context.Background()

	_, err := h.wallets.Fund(ctx, 1, 100)
	require.NoError(t, err)
	res, err := h.svc.PayBill(ctx, 1, electricityBill)
	require.NoError(t, err)

	require.NoError(t, h.svc.HandlePaymentJob(ctx, h.queue.pop(t, queue.KindProcessPayment)))

	tx := h.tx(t, res.TransactionID)
	assert.Equal(t, models.TransactionStatusFailed, tx.Status)
	assert.Contains(t, tx.FailureReason, "connection reset")
	assert.Equal(t, 1, h.queue.count())
}

func TestPaymentJob_RedeliveryAfterCompletionIsNoop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.wallets.Fund(ctx, 1, 100)
	require.NoError(t, err)
	res, err := h.svc.PayBill(ctx, 1, electricityBill)
	require.NoError(t, err)

	job := h.queue.pop(t, queue.KindProcessPayment)
	require.NoError(t, h.svc.HandlePaymentJob(ctx, job))
	require.Equal(t, 1, h.gateway.calls)

	// Same job again: settled transaction, gateway not called twice.
	require.NoError(t, h.svc.HandlePaymentJob(ctx, job))
	assert.Equal(t, 1, h.gateway.calls)
	assert.Equal(t, models.TransactionStatusCompleted, h.tx(t, res.TransactionID).Status)
}

func TestPaymentJob_RedeliveryAfterFailureReenqueuesReversal(t *testing.T) {
	h := newHarness(t)
	h.gateway.result = &GatewayResult{Success: false, Message: "declined", ErrorCode: GatewayErrInsufficientCredit}
	ctx := context.Background()

	_, err := h.wallets.Fund(ctx, 1, 100)
	require.NoError(t, err)
	_, err = h.svc.PayBill(ctx, 1, electricityBill)
	require.NoError(t, err)

	job := h.queue.pop(t, queue.KindProcessPayment)
	require.NoError(t, h.svc.HandlePaymentJob(ctx, job))
	require.Equal(t, 1, h.queue.count())

	// Redelivery sees FAILED with no reversal applied yet: it re-enqueues
	// compensation instead of calling the gateway again.
	require.NoError(t, h.svc.HandlePaymentJob(ctx, job))
	assert.Equal(t, 1, h.gateway.calls)
	assert.Equal(t, 2, h.queue.count())
}

func TestReversalJob_DoubleDeliveryDoesNotDoubleRefund(t *testing.T) {
	h := newHarness(t)
	h.gateway.result = &GatewayResult{Success: false, Message: "declined", ErrorCode: GatewayErrInsufficientCredit}
	ctx := context.Background()

	_, err := h.wallets.Fund(ctx, 1, 100)
	require.NoError(t, err)
	res, err := h.svc.PayBill(ctx, 1, electricityBill)
	require.NoError(t, err)
	require.NoError(t, h.svc.HandlePaymentJob(ctx, h.queue.pop(t, queue.KindProcessPayment)))

	job := h.queue.pop(t, queue.KindProcessReversal)
	require.NoError(t, h.svc.HandleReversalJob(ctx, job))
	require.Equal(t, 100.0, h.balance(t, 1))

	require.NoError(t, h.svc.HandleReversalJob(ctx, job))
	assert.Equal(t, 100.0, h.balance(t, 1))
	assert.Equal(t, 1, h.txRepo.countByType(models.TransactionTypeReversal))
	assert.Equal(t, models.TransactionStatusReversed, h.tx(t, res.TransactionID).Status)
}

func TestReversalJob_ConcurrentDeliveriesRefundOnce(t *testing.T) {
	h := newHarness(t)
	h.gateway.result = &GatewayResult{Success: false, Message: "declined", ErrorCode: GatewayErrServiceUnavailable}
	ctx := context.Background()

	_, err := h.wallets.Fund(ctx, 1, 100)
	require.NoError(t, err)
	res, err := h.svc.PayBill(ctx, 1, electricityBill)
	require.NoError(t, err)
	require.NoError(t, h.svc.HandlePaymentJob(ctx, h.queue.pop(t, queue.KindProcessPayment)))

	job := h.queue.pop(t, queue.KindProcessReversal)
	dup := &queue.Job{ID: "job-2", Kind: job.Kind, Payload: job.Payload, Attempts: 1}

	// Hold the first delivery inside the refund while the duplicate runs.
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.wRepo.beforeUpsert = func() {
		once.Do(func() {
			close(entered)
			<-release
		})
	}

	done := make(chan error, 1)
	go func() { done <- h.svc.HandleReversalJob(ctx, job) }()
	<-entered

	// The duplicate finds the claimed reversal and must not touch the
	// wallet.
	require.NoError(t, h.svc.HandleReversalJob(ctx, dup))
	require.Equal(t, 60.0, h.balance(t, 1))

	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, 100.0, h.balance(t, 1))
	assert.Equal(t, 1, h.txRepo.countByType(models.TransactionTypeReversal))
	assert.Equal(t, models.TransactionStatusReversed, h.tx(t, res.TransactionID).Status)
}

func TestReversalJob_InDoubtReversalIsNotRefundedAgain(t *testing.T) {
	h := newHarness(t)
	h.gateway.result = &GatewayResult{Success: false, Message: "declined", ErrorCode: GatewayErrServiceUnavailable}
	ctx := context.Background()

	_, err := h.wallets.Fund(ctx, 1, 100)
	require.NoError(t, err)
	res, err := h.svc.PayBill(ctx, 1, electricityBill)
	require.NoError(t, err)
	require.NoError(t, h.svc.HandlePaymentJob(ctx, h.queue.pop(t, queue.KindProcessPayment)))

	// A worker claimed the reversal and crashed; whether its refund
	// landed is unknown. Redelivery must leave the record to operators
	// instead of refunding on top of it.
	reversalID := "rev-" + res.TransactionID
	h.txRepo.rows[reversalID] = &models.Transaction{
		TransactionID: reversalID,
		UserID:        1,
		Amount:        40,
		Type:          models.TransactionTypeReversal,
		Status:        models.TransactionStatusProcessing,
	}

	require.NoError(t, h.svc.HandleReversalJob(ctx, h.queue.pop(t, queue.KindProcessReversal)))
	assert.Equal(t, 60.0, h.balance(t, 1))
	assert.Equal(t, models.TransactionStatusFailed, h.tx(t, res.TransactionID).Status)
	assert.Equal(t, models.TransactionStatusProcessing, h.tx(t, reversalID).Status)
}

func TestReversalJob_RequiresFailedOriginal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.wallets.Fund(ctx, 1, 100)
	require.NoError(t, err)
	res, err := h.svc.PayBill(ctx, 1, electricityBill)
	require.NoError(t, err)
	require.NoError(t, h.svc.HandlePaymentJob(ctx, h.queue.pop(t, queue.KindProcessPayment)))

	payload, err := json.Marshal(ReversalJob{TransactionID: res.TransactionID, UserID: 1, Amount: 40, Reason: "stray"})
	require.NoError(t, err)
	err = h.svc.HandleReversalJob(ctx, &queue.Job{ID: "j", Kind: queue.KindProcessReversal, Payload: payload})
	require.Error(t, err)

	// Completed payment untouched, no refund applied.
	assert.Equal(t, 60.0, h.balance(t, 1))
	assert.Equal(t, models.TransactionStatusCompleted, h.tx(t, res.TransactionID).Status)
}

func TestMockGateway(t *testing.T) {
	ctx := context.Background()

	t.Run("settles well-formed requests at full success rate", func(t *testing.T) {
		gw := NewMockGateway(1, 0)
		res, err := gw.ProcessPayment(ctx, GatewayRequest{AccountNumber: "ACC-12345", Amount: 10})
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.NotEmpty(t, res.ExternalTransactionID)
	})

	t.Run("declines unrecognizable accounts", func(t *testing.T) {
		gw := NewMockGateway(1, 0)
		res, err := gw.ProcessPayment(ctx, GatewayRequest{AccountNumber: "0000123", Amount: 10})
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, GatewayErrInvalidAccount, res.ErrorCode)
	})

	t.Run("times out against an expired context", func(t *testing.T) {
		gw := NewMockGateway(1, time.Second)
		expired, cancel := context.WithTimeout(ctx, time.Millisecond)
		defer cancel()
		_, err := gw.ProcessPayment(expired, GatewayRequest{AccountNumber: "ACC-12345", Amount: 10})
		require.Error(t, err)
		assert.Contains(t, err.Error(), GatewayErrTimeout)
	})
}

func TestEndToEnd_ThroughMemoryQueue(t *testing.T) {
	wRepo := newFakeWalletRepo()
	txRepo := newFakeTransactionRepo()
	wallets := wallet.NewService(wRepo, noopCache{}, nil, wallet.Config{RetryBackoff: time.Millisecond}, nil)
	transactions := transaction.NewService(txRepo, nil)
	gw := &scriptedGateway{result: &GatewayResult{Success: false, Message: "declined", ErrorCode: GatewayErrServiceUnavailable}}

	q := queue.NewMemoryQueue(queue.Config{MaxAttempts: 3, BackoffBase: time.Millisecond, JobTimeout: time.Second}, nil)
	svc := NewService(wallets, transactions, gw, q, Config{}, nil)
	RegisterHandlers(q, svc)
	q.Start(2)
	defer q.Shutdown()

	ctx := context.Background()
	_, err := wallets.Fund(ctx, 1, 100)
	require.NoError(t, err)

	res, err := svc.PayBill(ctx, 1, electricityBill)
	require.NoError(t, err)

	// Decline flows through both workers: FAILED, then REVERSED with the
	// debit returned.
	require.Eventually(t, func() bool {
		tx, err := svc.GetTransaction(ctx, res.TransactionID)
		return err == nil && tx.Status == models.TransactionStatusReversed
	}, 5*time.Second, 10*time.Millisecond)

	b, err := wallets.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 100.0, b)
}
