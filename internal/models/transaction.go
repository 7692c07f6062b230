package models

import (
	"time"
)

// Transaction types
const (
	TransactionTypeBillPayment = "BILL_PAYMENT"
	TransactionTypeReversal    = "REVERSAL"
)

// Transaction statuses
const (
	TransactionStatusPending    = "PENDING"
	TransactionStatusProcessing = "PROCESSING"
	TransactionStatusCompleted  = "COMPLETED"
	TransactionStatusFailed     = "FAILED"
	TransactionStatusReversed   = "REVERSED"
)

// BillDetails describes the bill a payment transaction targets. Only
// BILL_PAYMENT transactions carry one.
type BillDetails struct {
	BillType      string `json:"billType,omitempty"`
	AccountNumber string `json:"accountNumber,omitempty"`
	MeterNumber   string `json:"meterNumber,omitempty"`
}

// Transaction is one payment attempt in the ledger. Records are never
// deleted; the status lifecycle is the audit trail.
type Transaction struct {
	ID            uint    `gorm:"primarykey" json:"-"`
	TransactionID string  `gorm:"uniqueIndex;not null" json:"transaction_id"`
	UserID        uint    `gorm:"index;not null" json:"user_id"`
	Amount        float64 `gorm:"not null" json:"amount"`
	Type          string  `gorm:"not null" json:"type"`
	Status        string  `gorm:"not null;default:'PENDING'" json:"status"`

	BillType      string `gorm:"default:''" json:"bill_type,omitempty"`
	AccountNumber string `gorm:"default:''" json:"account_number,omitempty"`
	MeterNumber   string `gorm:"default:''" json:"meter_number,omitempty"`

	ExternalTransactionID string `gorm:"default:''" json:"external_transaction_id,omitempty"`
	FailureReason         string `gorm:"default:''" json:"failure_reason,omitempty"`

	// Set only on the original transaction once a paired REVERSAL
	// transaction has COMPLETED.
	ReversalTransactionID string `gorm:"default:''" json:"reversal_transaction_id,omitempty"`

	Metadata    JSON       `gorm:"type:jsonb" json:"metadata,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Bill returns the embedded bill details, or nil for transactions that do
// not target a bill (reversals).
func (t *Transaction) Bill() *BillDetails {
	if t.BillType == "" && t.AccountNumber == "" {
		return nil
	}
	return &BillDetails{
		BillType:      t.BillType,
		AccountNumber: t.AccountNumber,
		MeterNumber:   t.MeterNumber,
	}
}
