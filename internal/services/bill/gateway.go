package bill

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Gateway error codes surfaced in GatewayResult.ErrorCode.
const (
	GatewayErrInvalidAccount     = "INVALID_ACCOUNT"
	GatewayErrServiceUnavailable = "SERVICE_UNAVAILABLE"
	GatewayErrInsufficientCredit = "INSUFFICIENT_CREDIT"
	GatewayErrTimeout            = "TIMEOUT"
)

// GatewayRequest is the settlement attempt sent to the external biller.
type GatewayRequest struct {
	TransactionID string
	BillType      string
	AccountNumber string
	MeterNumber   string
	Amount        float64
}

// GatewayResult is the biller's answer. Success false with an ErrorCode is
// an explicit decline; a transport problem comes back as an error instead.
type GatewayResult struct {
	Success               bool
	ExternalTransactionID string
	Message               string
	ErrorCode             string
}

// Gateway settles a bill with a third-party provider. Declines, timeouts
// and transport errors are all possible and are all treated the same way
// by the payment worker: the transaction fails and compensation runs.
type Gateway interface {
	ProcessPayment(ctx context.Context, req GatewayRequest) (*GatewayResult, error)
}

// MockGateway simulates a third-party biller for local development and
// tests. Account numbers starting with "0000" are always declined as
// invalid; otherwise outcomes follow SuccessRate.
type MockGateway struct {
	// SuccessRate in [0,1]. 1 means every well-formed request settles.
	SuccessRate float64
	// Latency per call, observed before answering. Calls whose context
	// expires first return a TIMEOUT error.
	Latency time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

func NewMockGateway(successRate float64, latency time.Duration) *MockGateway {
	return &MockGateway{
		SuccessRate: successRate,
		Latency:     latency,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (g *MockGateway) ProcessPayment(ctx context.Context, req GatewayRequest) (*GatewayResult, error) {
	if g.Latency > 0 {
		timer := time.NewTimer(g.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: gateway call timed out: %w", GatewayErrTimeout, ctx.Err())
		case <-timer.C:
		}
	}

	if len(req.AccountNumber) < 5 || strings.HasPrefix(req.AccountNumber, "0000") {
		return &GatewayResult{
			Success:   false,
			Message:   "account number not recognized by provider",
			ErrorCode: GatewayErrInvalidAccount,
		}, nil
	}

	g.mu.Lock()
	roll := g.rng.Float64()
	declineRoll := g.rng.Float64()
	g.mu.Unlock()

	if roll < g.SuccessRate {
		return &GatewayResult{
			Success:               true,
			ExternalTransactionID: "EXT-" + uuid.NewString(),
			Message:               "payment settled",
		}, nil
	}

	if declineRoll < 0.5 {
		return &GatewayResult{
			Success:   false,
			Message:   "provider temporarily unavailable",
			ErrorCode: GatewayErrServiceUnavailable,
		}, nil
	}
	return &GatewayResult{
		Success:   false,
		Message:   "provider rejected the payment",
		ErrorCode: GatewayErrInsufficientCredit,
	}, nil
}
