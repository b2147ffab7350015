package vtuprovider

import "context"

// Outcome is the three-way classification every provider response is normalized into
// before it reaches the purchase orchestrator. Timeouts and ambiguous responses are
// always Indeterminate, never inferred as success or failure.
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeKnownFailure  Outcome = "known_failure"
	OutcomeIndeterminate Outcome = "indeterminate"
)

// PurchaseRequest holds what a provider needs to fulfil one service purchase.
type PurchaseRequest struct {
	RequestID   string // our idempotency key, e.g. "airtime_1715160000123456789_a1b2c3d4"
	ServiceType string // airtime, data, electricity, cable, betting, education
	AmountMinor int64
	Params      map[string]string // service-specific: phone, serviceID, billersCode, variation_code...
}

// PurchaseResponse is the normalized outcome of a provider call.
type PurchaseResponse struct {
	Outcome           Outcome
	ProviderReference string         // provider order/transaction id, set on success
	Message           string         // provider's human-readable status or failure reason
	Data              map[string]any // optional payload: tokens, PINs, customer names
}

// Adapter is the interface a VTU provider integration implements.
type Adapter interface {
	Name() string
	// Purchase submits the request. Transport-level errors (including timeouts) are
	// returned as errors and must be treated as an indeterminate outcome by callers.
	Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResponse, error)
}
