package domain

import (
	"time"

	"github.com/google/uuid"
)

// Wallet is the authoritative balance record for one owner (1:1, enforced by a unique
// index on owner_id). Balances are stored in minor currency units (e.g. kobo) so money
// math never touches floating point.
type Wallet struct {
	ID                uuid.UUID  `json:"id"`
	OwnerID           uuid.UUID  `json:"owner_id"`
	Balance           int64      `json:"balance"` // minor units, never negative
	Currency          string     `json:"currency"`
	IsActive          bool       `json:"is_active"`
	IsFrozen          bool       `json:"is_frozen"`
	LastTransactionAt *time.Time `json:"last_transaction_at,omitempty"`
	TotalCredits      int64      `json:"total_credits"`
	TotalDebits       int64      `json:"total_debits"`
	TransactionCount  int64      `json:"transaction_count"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}
