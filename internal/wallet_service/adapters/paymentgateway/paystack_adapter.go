package paymentgateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/swiftbills/vtu-backend/internal/wallet_service/domain"
)

const paystackEventChargeSuccess = "charge.success"

// PaystackAdapter verifies and parses Paystack webhook deliveries. Paystack signs the
// raw body with HMAC-SHA512 using the account secret key and sends the hex digest in
// x-paystack-signature.
type PaystackAdapter struct {
	secret []byte
	logger *slog.Logger
}

func NewPaystackAdapter(secret string, logger *slog.Logger) *PaystackAdapter {
	return &PaystackAdapter{
		secret: []byte(secret),
		logger: logger.With("adapter", "paystack"),
	}
}

func (a *PaystackAdapter) Name() string { return "paystack" }

func (a *PaystackAdapter) SignatureHeader() string { return "x-paystack-signature" }

type paystackWebhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"` // already in kobo
		Currency  string `json:"currency"`
		Status    string `json:"status"`
		PaidAt    string `json:"paid_at"`
		Customer  struct {
			Email        string `json:"email"`
			CustomerCode string `json:"customer_code"`
		} `json:"customer"`
		Authorization struct {
			ReceiverBankAccountNumber string `json:"receiver_bank_account_number"`
		} `json:"authorization"`
	} `json:"data"`
}

func (a *PaystackAdapter) VerifyAndParse(ctx context.Context, rawBody []byte, signature string) (*FundingEvent, error) {
	mac := hmac.New(sha512.New, a.secret)
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	if signature == "" || !hmac.Equal([]byte(expected), []byte(signature)) {
		a.logger.WarnContext(ctx, "Paystack webhook signature mismatch", "signature_present", signature != "")
		return nil, domain.ErrSignatureInvalid
	}

	var payload paystackWebhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse paystack webhook payload: %w", err)
	}

	occurredAt := time.Now().UTC()
	if payload.Data.PaidAt != "" {
		if t, err := time.Parse(time.RFC3339, payload.Data.PaidAt); err == nil {
			occurredAt = t
		}
	}

	return &FundingEvent{
		Provider:             a.Name(),
		Reference:            payload.Data.Reference,
		EventType:            payload.Event,
		Success:              payload.Event == paystackEventChargeSuccess && payload.Data.Status == "success",
		AmountMinor:          payload.Data.Amount,
		Currency:             payload.Data.Currency,
		CustomerEmail:        payload.Data.Customer.Email,
		VirtualAccountNumber: payload.Data.Authorization.ReceiverBankAccountNumber,
		GatewayCustomerID:    payload.Data.Customer.CustomerCode,
		Raw:                  rawBody,
		OccurredAt:           occurredAt,
	}, nil
}
