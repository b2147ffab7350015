package vtuprovider

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// MockAdapter is a configurable in-process provider for development and tests.
type MockAdapter struct {
	logger  *slog.Logger
	Outcome Outcome
	Message string
}

func NewMockAdapter(logger *slog.Logger, outcome Outcome, message string) *MockAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &MockAdapter{
		logger:  logger.With("provider", "mock"),
		Outcome: outcome,
		Message: message,
	}
}

func (m *MockAdapter) Name() string { return "mock" }

func (m *MockAdapter) Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResponse, error) {
	m.logger.InfoContext(ctx, "MockAdapter: Purchase called",
		"request_id", req.RequestID, "service_type", req.ServiceType, "outcome", m.Outcome)

	resp := &PurchaseResponse{
		Outcome: m.Outcome,
		Message: m.Message,
	}
	if m.Outcome == OutcomeSuccess {
		resp.ProviderReference = "mock_" + uuid.NewString()
		resp.Data = map[string]any{"simulated": true}
	}
	return resp, nil
}
