package http

import (
	"time"

	"github.com/swiftbills/vtu-backend/internal/wallet_service/domain"
)

// SpendRequest DTO for POST /api/v1/wallet/spend. Amount is in minor units (kobo).
type SpendRequest struct {
	ServiceType string            `json:"service_type" validate:"required,oneof=airtime data electricity cable betting education"`
	Amount      int64             `json:"amount" validate:"required,gt=0"`
	Pin         string            `json:"pin" validate:"required,len=4,numeric"`
	Params      map[string]string `json:"params" validate:"required"`
}

// TransferRequest DTO for POST /api/v1/wallet/transfer.
type TransferRequest struct {
	RecipientID string `json:"recipient_id" validate:"required,uuid"`
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Narration   string `json:"narration" validate:"max=140"`
}

// BalanceResponse DTO for GET /api/v1/wallet/balance.
type BalanceResponse struct {
	Balance  int64  `json:"balance"`
	Currency string `json:"currency"`
}

// LedgerEntryResponse is one row of the transaction listing.
type LedgerEntryResponse struct {
	ID                string    `json:"id"`
	Kind              string    `json:"kind"`
	Amount            int64     `json:"amount"`
	PreviousBalance   int64     `json:"previous_balance"`
	NewBalance        int64     `json:"new_balance"`
	Provider          string    `json:"provider"`
	ExternalReference string    `json:"external_reference"`
	Category          string    `json:"category"`
	Status            string    `json:"status"`
	Description       string    `json:"description,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// TransactionsResponse DTO for GET /api/v1/wallet/transactions.
type TransactionsResponse struct {
	Entries []LedgerEntryResponse `json:"entries"`
	Limit   int                   `json:"limit"`
	Offset  int                   `json:"offset"`
}

// TransferResponse DTO for POST /api/v1/wallet/transfer.
type TransferResponse struct {
	Reference  string `json:"reference"`
	Amount     int64  `json:"amount"`
	NewBalance int64  `json:"new_balance"`
}

// GenericErrorResponse is the error envelope for all wallet endpoints.
type GenericErrorResponse struct {
	Error string `json:"error"`
}

func toLedgerEntryResponse(e domain.LedgerEntry) LedgerEntryResponse {
	return LedgerEntryResponse{
		ID:                e.ID.String(),
		Kind:              string(e.Kind),
		Amount:            e.Amount,
		PreviousBalance:   e.PreviousBalance,
		NewBalance:        e.NewBalance,
		Provider:          e.Provider,
		ExternalReference: e.ExternalReference,
		Category:          string(e.Category),
		Status:            string(e.Status),
		Description:       e.Description,
		CreatedAt:         e.CreatedAt,
	}
}
