package paymentgateway

import (
	"context"
	"time"
)

// FundingEvent is a payment-gateway notification normalized into the fields the funding
// processor cares about. Raw keeps the untouched payload for reconciliation rows.
type FundingEvent struct {
	Provider             string // gateway name, e.g. "paystack"
	Reference            string // gateway transaction reference, the idempotency key
	EventType            string // gateway-native event name
	Success              bool   // true only for a confirmed "payment succeeded" event
	AmountMinor          int64
	Currency             string
	CustomerEmail        string
	VirtualAccountNumber string
	GatewayCustomerID    string
	Raw                  []byte
	OccurredAt           time.Time
}

// Adapter verifies and parses webhook deliveries for one payment gateway, keeping the
// funding processor gateway-agnostic.
type Adapter interface {
	Name() string
	// SignatureHeader is the HTTP header the gateway carries its signature in.
	SignatureHeader() string
	// VerifyAndParse checks the HMAC signature over the raw body and normalizes the
	// payload. A bad signature returns domain.ErrSignatureInvalid; signatures are
	// verified per request, never cached.
	VerifyAndParse(ctx context.Context, rawBody []byte, signature string) (*FundingEvent, error)
}
