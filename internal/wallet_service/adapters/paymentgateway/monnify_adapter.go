package paymentgateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/swiftbills/vtu-backend/internal/wallet_service/domain"
)

const monnifyEventSuccessfulTransaction = "SUCCESSFUL_TRANSACTION"

// MonnifyAdapter verifies and parses Monnify webhook deliveries (reserved virtual
// account funding). Monnify signs the raw body with HMAC-SHA512 using the client secret
// and sends the hex digest in monnify-signature.
type MonnifyAdapter struct {
	secret []byte
	logger *slog.Logger
}

func NewMonnifyAdapter(secret string, logger *slog.Logger) *MonnifyAdapter {
	return &MonnifyAdapter{
		secret: []byte(secret),
		logger: logger.With("adapter", "monnify"),
	}
}

func (a *MonnifyAdapter) Name() string { return "monnify" }

func (a *MonnifyAdapter) SignatureHeader() string { return "monnify-signature" }

type monnifyWebhookPayload struct {
	EventType string `json:"eventType"`
	EventData struct {
		TransactionReference string  `json:"transactionReference"`
		PaymentReference     string  `json:"paymentReference"`
		AmountPaid           float64 `json:"amountPaid"` // major units (naira)
		PaymentStatus        string  `json:"paymentStatus"`
		PaidOn               string  `json:"paidOn"`
		Customer             struct {
			Email string `json:"email"`
		} `json:"customer"`
		DestinationAccountInformation struct {
			AccountNumber string `json:"accountNumber"`
		} `json:"destinationAccountInformation"`
	} `json:"eventData"`
}

func (a *MonnifyAdapter) VerifyAndParse(ctx context.Context, rawBody []byte, signature string) (*FundingEvent, error) {
	mac := hmac.New(sha512.New, a.secret)
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	if signature == "" || !hmac.Equal([]byte(expected), []byte(signature)) {
		a.logger.WarnContext(ctx, "Monnify webhook signature mismatch", "signature_present", signature != "")
		return nil, domain.ErrSignatureInvalid
	}

	var payload monnifyWebhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse monnify webhook payload: %w", err)
	}

	occurredAt := time.Now().UTC()
	if payload.EventData.PaidOn != "" {
		// Monnify timestamps look like "2023-05-10 12:05:33.0".
		if t, err := time.Parse("2006-01-02 15:04:05.0", payload.EventData.PaidOn); err == nil {
			occurredAt = t
		}
	}

	return &FundingEvent{
		Provider:             a.Name(),
		Reference:            payload.EventData.TransactionReference,
		EventType:            payload.EventType,
		Success:              payload.EventType == monnifyEventSuccessfulTransaction && payload.EventData.PaymentStatus == "PAID",
		AmountMinor:          int64(math.Round(payload.EventData.AmountPaid * 100)),
		Currency:             "NGN",
		CustomerEmail:        payload.EventData.Customer.Email,
		VirtualAccountNumber: payload.EventData.DestinationAccountInformation.AccountNumber,
		Raw:                  rawBody,
		OccurredAt:           occurredAt,
	}, nil
}
