package domain

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EntryKind defines the direction of a ledger entry. The amount on an entry is always
// positive; the sign of the movement is carried by the kind, never by the number.
type EntryKind string

const (
	EntryKindCredit      EntryKind = "credit"
	EntryKindDebit       EntryKind = "debit"
	EntryKindTransferOut EntryKind = "transfer_out"
	EntryKindTransferIn  EntryKind = "transfer_in"
)

// Value implements the driver.Valuer interface for EntryKind.
func (k EntryKind) Value() (driver.Value, error) {
	return string(k), nil
}

// Scan implements the sql.Scanner interface for EntryKind.
func (k *EntryKind) Scan(value interface{}) error {
	strVal, ok := value.(string)
	if !ok {
		bytesVal, ok := value.([]byte)
		if !ok {
			return fmt.Errorf("failed to scan EntryKind: value is not string or []byte, it is %T", value)
		}
		strVal = string(bytesVal)
	}
	*k = EntryKind(strVal)
	switch *k {
	case EntryKindCredit, EntryKindDebit, EntryKindTransferOut, EntryKindTransferIn:
		return nil
	default:
		return fmt.Errorf("unknown EntryKind value: %s", strVal)
	}
}

// EntryStatus is the lifecycle state of a ledger entry. Completed entries are immutable;
// corrections are new compensating entries, never edits.
type EntryStatus string

const (
	EntryStatusPending               EntryStatus = "pending"
	EntryStatusCompleted             EntryStatus = "completed"
	EntryStatusFailed                EntryStatus = "failed"
	EntryStatusPendingReconciliation EntryStatus = "pending_reconciliation"
)

// EntryCategory describes what the money movement was for.
type EntryCategory string

const (
	CategoryFunding     EntryCategory = "funding"
	CategoryAirtime     EntryCategory = "airtime"
	CategoryData        EntryCategory = "data"
	CategoryElectricity EntryCategory = "electricity"
	CategoryCable       EntryCategory = "cable"
	CategoryBetting     EntryCategory = "betting"
	CategoryEducation   EntryCategory = "education"
	CategoryTransfer    EntryCategory = "transfer"
	CategoryWithdrawal  EntryCategory = "withdrawal"
)

// LedgerEntry is one row of the append-only transaction log. WalletID and OwnerID are
// nil only for pending_reconciliation rows, where the funding event could not be matched
// to a wallet and the full gateway payload is retained for operator resolution.
type LedgerEntry struct {
	ID                uuid.UUID     `json:"id"`
	WalletID          *uuid.UUID    `json:"wallet_id,omitempty"`
	OwnerID           *uuid.UUID    `json:"owner_id,omitempty"`
	Kind              EntryKind     `json:"kind"`
	Amount            int64         `json:"amount"` // minor units, always > 0
	PreviousBalance   int64         `json:"previous_balance"`
	NewBalance        int64         `json:"new_balance"`
	Provider          string        `json:"provider"`           // gateway or VTU provider name, "" for internal
	ExternalReference string        `json:"external_reference"` // idempotency key per (provider, reference)
	Category          EntryCategory `json:"category"`
	Status            EntryStatus   `json:"status"`
	Description       string        `json:"description,omitempty"`
	GatewayPayload    []byte        `json:"-"` // raw webhook body, reconciliation rows only
	CreatedAt         time.Time     `json:"created_at"`
}

// SignedAmount returns the amount with the sign implied by the entry kind.
func (e *LedgerEntry) SignedAmount() int64 {
	switch e.Kind {
	case EntryKindCredit, EntryKindTransferIn:
		return e.Amount
	default:
		return -e.Amount
	}
}
