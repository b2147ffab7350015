package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"

	"github.com/swiftbills/vtu-backend/internal/wallet_service/adapters/paymentgateway"
	"github.com/swiftbills/vtu-backend/internal/wallet_service/app"
	"github.com/swiftbills/vtu-backend/internal/wallet_service/domain"
)

const MaxWebhookBodySize = 1 << 20 // 1 MB

// FundingProcessor is the interface required by the WebhookHandler for processing
// gateway notifications. This makes testing easier by allowing mocks.
type FundingProcessor interface {
	GatewayAdapter(name string) (paymentgateway.Adapter, bool)
	HandleGatewayWebhook(ctx context.Context, gatewayName string, rawBody []byte, signature string) (*app.WebhookResult, error)
}

type WebhookHandler struct {
	funding FundingProcessor
	logger  *slog.Logger
}

func NewWebhookHandler(funding FundingProcessor, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		funding: funding,
		logger:  logger.With("component", "webhook_handler"),
	}
}

func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/payments/{gateway}", h.HandlePaymentWebhook)
}

// HandlePaymentWebhook receives funding notifications from a payment gateway. Every
// terminal outcome answers 2xx so the gateway stops redelivering; only transient
// processing failures answer 5xx.
func (h *WebhookHandler) HandlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	gatewayName := chi.URLParam(r, "gateway")
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx), "gateway", gatewayName)

	adapter, ok := h.funding.GatewayAdapter(gatewayName)
	if !ok {
		logger.WarnContext(ctx, "Webhook for unknown gateway")
		http.Error(w, "Unknown payment gateway", http.StatusNotFound)
		return
	}
	signature := r.Header.Get(adapter.SignatureHeader())

	r.Body = http.MaxBytesReader(w, r.Body, MaxWebhookBodySize)
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to read webhook request body", "error", err)
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
		} else {
			http.Error(w, "Error reading request body", http.StatusBadRequest)
		}
		return
	}

	logger.InfoContext(ctx, "Received payment webhook",
		"remote_addr", r.RemoteAddr, "payload_size", len(rawBody), "signature_present", signature != "")

	result, err := h.funding.HandleGatewayWebhook(ctx, gatewayName, rawBody, signature)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSignatureInvalid):
			http.Error(w, "Webhook signature verification failed", http.StatusBadRequest)
		case errors.Is(err, domain.ErrUnknownGateway):
			http.Error(w, "Unknown payment gateway", http.StatusNotFound)
		case errors.Is(err, domain.ErrRetryable):
			logger.ErrorContext(ctx, "Transient error processing webhook, gateway should retry", "error", err)
			http.Error(w, "Internal server error processing webhook", http.StatusInternalServerError)
		default:
			logger.WarnContext(ctx, "Rejected malformed webhook", "error", err)
			http.Error(w, "Malformed webhook payload", http.StatusBadRequest)
		}
		return
	}

	logger.InfoContext(ctx, "Payment webhook processed", "status", result.Status)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		logger.WarnContext(ctx, "Failed to write webhook response", "error", err)
	}
}
