package bill

import "time"

// Supported bill types.
const (
	BillTypeElectricity = "electricity"
	BillTypeWater       = "water"
	BillTypeInternet    = "internet"
	BillTypeTV          = "tv"
	BillTypeAirtime     = "airtime"
)

// DefaultGatewayTimeout bounds one gateway call in the payment worker.
// A gateway that blows past it is routed to the failure path like any
// other decline.
const DefaultGatewayTimeout = 10 * time.Second

// PayBillRequest is the Phase-1 input.
type PayBillRequest struct {
	BillType      string  `json:"bill_type"`
	AccountNumber string  `json:"account_number"`
	Amount        float64 `json:"amount"`
	MeterNumber   string  `json:"meter_number,omitempty"`
}

// PaymentResult is the synchronous Phase-1 answer. Status is PROCESSING
// on success; the final outcome arrives through the workers.
type PaymentResult struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Message       string `json:"message"`
}

// PaymentJob is the process-payment queue payload. Field names are a wire
// contract: in-flight jobs may be consumed by a newer binary.
type PaymentJob struct {
	TransactionID string  `json:"transactionId"`
	UserID        uint    `json:"userId"`
	BillType      string  `json:"billType"`
	AccountNumber string  `json:"accountNumber"`
	Amount        float64 `json:"amount"`
	MeterNumber   string  `json:"meterNumber,omitempty"`
}

// ReversalJob is the process-reversal queue payload.
type ReversalJob struct {
	TransactionID string  `json:"transactionId"`
	UserID        uint    `json:"userId"`
	Amount        float64 `json:"amount"`
	Reason        string  `json:"reason"`
}

// Config holds orchestrator tuning.
type Config struct {
	GatewayTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.GatewayTimeout <= 0 {
		c.GatewayTimeout = DefaultGatewayTimeout
	}
	return c
}

var supportedBillTypes = map[string]bool{
	BillTypeElectricity: true,
	BillTypeWater:       true,
	BillTypeInternet:    true,
	BillTypeTV:          true,
	BillTypeAirtime:     true,
}
