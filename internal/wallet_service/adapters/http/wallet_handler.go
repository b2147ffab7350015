package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/swiftbills/vtu-backend/internal/wallet_service/app"
	"github.com/swiftbills/vtu-backend/internal/wallet_service/domain"
	"github.com/swiftbills/vtu-backend/internal/wallet_service/middleware"
)

// Spender is the purchase surface the handler needs; *app.PurchaseService satisfies it.
// Keeping it an interface makes the handler testable with mocks.
type Spender interface {
	Spend(ctx context.Context, req app.SpendRequest) (*app.SpendResult, error)
}

// WalletReader covers balance and statement reads plus transfers.
type WalletReader interface {
	Balance(ctx context.Context, ownerID uuid.UUID) (int64, string, error)
	Entries(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error)
	TransferBetweenOwners(ctx context.Context, fromOwnerID, toOwnerID uuid.UUID, amount int64, description string) (*domain.LedgerEntry, *domain.LedgerEntry, error)
}

type WalletHandler struct {
	spender  Spender
	ledger   WalletReader
	validate *validator.Validate
	logger   *slog.Logger
}

func NewWalletHandler(spender Spender, ledger WalletReader, validate *validator.Validate, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{
		spender:  spender,
		ledger:   ledger,
		validate: validate,
		logger:   logger.With("handler", "wallet"),
	}
}

// RegisterRoutes registers wallet routes; the caller applies auth middleware.
func (h *WalletHandler) RegisterRoutes(r chi.Router) {
	r.Post("/wallet/spend", h.handleSpend)
	r.Get("/wallet/balance", h.handleBalance)
	r.Get("/wallet/transactions", h.handleTransactions)
	r.Post("/wallet/transfer", h.handleTransfer)
}

func (h *WalletHandler) handleSpend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	authUser, ok := middleware.FromContext(ctx)
	if !ok {
		h.jsonError(w, logger, "User not authenticated", http.StatusUnauthorized)
		return
	}
	logger = logger.With("auth_user_id", authUser.ID)

	var req SpendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "Failed to decode spend request", "error", err)
		h.jsonError(w, logger, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		logger.WarnContext(ctx, "Spend request failed validation", "error", err)
		h.jsonError(w, logger, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.spender.Spend(ctx, app.SpendRequest{
		OwnerID:     authUser.ID,
		ServiceType: req.ServiceType,
		AmountMinor: req.Amount,
		PIN:         req.Pin,
		Params:      req.Params,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnsupportedService):
			h.jsonError(w, logger, "Unsupported service type", http.StatusBadRequest)
		case errors.Is(err, domain.ErrInvalidAmount):
			h.jsonError(w, logger, err.Error(), http.StatusBadRequest)
		case errors.Is(err, domain.ErrUserNotFound), errors.Is(err, domain.ErrWalletNotFound):
			h.jsonError(w, logger, "Account not found", http.StatusNotFound)
		default:
			logger.ErrorContext(ctx, "Spend failed", "error", err)
			h.jsonError(w, logger, "Failed to process purchase", http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, logger, spendStatusCode(result.Status), result)
}

// spendStatusCode maps the orchestrator's terminal statuses onto HTTP codes. A known
// provider failure is still a well-formed 200 response with status in the body; an
// indeterminate outcome answers 202 because resolution is pending.
func spendStatusCode(status app.SpendStatus) int {
	switch status {
	case app.SpendStatusInvalidPin:
		return http.StatusUnauthorized
	case app.SpendStatusAccountLocked:
		return http.StatusLocked
	case app.SpendStatusInsufficientBalance:
		return http.StatusPaymentRequired
	case app.SpendStatusIndeterminate:
		return http.StatusAccepted
	default:
		return http.StatusOK
	}
}

func (h *WalletHandler) handleBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	authUser, ok := middleware.FromContext(ctx)
	if !ok {
		h.jsonError(w, logger, "User not authenticated", http.StatusUnauthorized)
		return
	}

	balance, currency, err := h.ledger.Balance(ctx, authUser.ID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to fetch balance", "error", err, "owner_id", authUser.ID)
		h.jsonError(w, logger, "Failed to retrieve balance", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, logger, http.StatusOK, BalanceResponse{Balance: balance, Currency: currency})
}

func (h *WalletHandler) handleTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	authUser, ok := middleware.FromContext(ctx)
	if !ok {
		h.jsonError(w, logger, "User not authenticated", http.StatusUnauthorized)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	// Clamped here so the response metadata matches the page actually served.
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := h.ledger.Entries(ctx, authUser.ID, limit, offset)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to list transactions", "error", err, "owner_id", authUser.ID)
		h.jsonError(w, logger, "Failed to retrieve transactions", http.StatusInternalServerError)
		return
	}

	resp := TransactionsResponse{Entries: make([]LedgerEntryResponse, 0, len(entries)), Limit: limit, Offset: offset}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, toLedgerEntryResponse(e))
	}
	h.writeJSON(w, logger, http.StatusOK, resp)
}

func (h *WalletHandler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	authUser, ok := middleware.FromContext(ctx)
	if !ok {
		h.jsonError(w, logger, "User not authenticated", http.StatusUnauthorized)
		return
	}

	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, logger, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.jsonError(w, logger, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	recipientID, err := uuid.Parse(req.RecipientID)
	if err != nil || recipientID == authUser.ID {
		h.jsonError(w, logger, "Invalid recipient", http.StatusBadRequest)
		return
	}

	outEntry, _, err := h.ledger.TransferBetweenOwners(ctx, authUser.ID, recipientID, req.Amount, req.Narration)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInsufficientBalance):
			h.jsonError(w, logger, "Insufficient balance", http.StatusPaymentRequired)
		case errors.Is(err, domain.ErrInvalidAmount):
			h.jsonError(w, logger, "Invalid transfer amount", http.StatusBadRequest)
		case errors.Is(err, domain.ErrWalletFrozen):
			h.jsonError(w, logger, "Wallet is frozen", http.StatusForbidden)
		case errors.Is(err, domain.ErrWalletInactive):
			h.jsonError(w, logger, "Wallet is not active", http.StatusForbidden)
		default:
			logger.ErrorContext(ctx, "Transfer failed", "error", err, "owner_id", authUser.ID)
			h.jsonError(w, logger, "Failed to process transfer", http.StatusInternalServerError)
		}
		return
	}

	logger.InfoContext(ctx, "Transfer processed",
		"owner_id", authUser.ID, "recipient_id", recipientID, "amount", req.Amount, "reference", outEntry.ExternalReference)
	h.writeJSON(w, logger, http.StatusOK, TransferResponse{
		Reference:  outEntry.ExternalReference,
		Amount:     outEntry.Amount,
		NewBalance: outEntry.NewBalance,
	})
}

func (h *WalletHandler) writeJSON(w http.ResponseWriter, logger *slog.Logger, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn("Failed to write JSON response", "error", err)
	}
}

func (h *WalletHandler) jsonError(w http.ResponseWriter, logger *slog.Logger, message string, statusCode int) {
	logger.Warn("API Error Response", "status_code", statusCode, "message", message)
	h.writeJSON(w, logger, statusCode, GenericErrorResponse{Error: message})
}
