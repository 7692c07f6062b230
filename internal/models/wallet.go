package models

import (
	"time"
)

// Wallet holds a single balance record per user. All balance mutations go
// through the wallet repository, which bumps Version on every successful
// write so concurrent debits surface as version conflicts instead of lost
// updates.
type Wallet struct {
	ID        uint      `gorm:"primarykey" json:"-"`
	UserID    uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	Balance   float64   `gorm:"not null;default:0" json:"balance"`
	Version   int64     `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
