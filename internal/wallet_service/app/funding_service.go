package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/swiftbills/vtu-backend/internal/wallet_service/adapters/paymentgateway"
	"github.com/swiftbills/vtu-backend/internal/wallet_service/domain"
	"github.com/swiftbills/vtu-backend/internal/wallet_service/repository"
)

// WebhookStatus is the terminal classification of one webhook delivery.
type WebhookStatus string

const (
	WebhookStatusCredited               WebhookStatus = "credited"
	WebhookStatusDuplicate              WebhookStatus = "duplicate"
	WebhookStatusIgnored                WebhookStatus = "ignored"
	WebhookStatusReconciliationRequired WebhookStatus = "reconciliation_required"
)

// WebhookResult is returned to the HTTP adapter; every status acknowledges the gateway.
type WebhookResult struct {
	Status WebhookStatus       `json:"status"`
	Entry  *domain.LedgerEntry `json:"entry,omitempty"`
}

// FundingService converts payment-gateway success notifications into exactly one wallet
// credit per (gateway, reference), regardless of how many times the gateway redelivers.
type FundingService struct {
	ledger     *LedgerService
	userRepo   repository.UserRepository
	ledgerRepo repository.LedgerRepository
	gateways   map[string]paymentgateway.Adapter
	db         DB
	publisher  Publisher
	currency   string
	logger     *slog.Logger
}

func NewFundingService(
	ledger *LedgerService,
	userRepo repository.UserRepository,
	ledgerRepo repository.LedgerRepository,
	gateways map[string]paymentgateway.Adapter,
	db DB,
	publisher Publisher,
	currency string,
	logger *slog.Logger,
) *FundingService {
	return &FundingService{
		ledger:     ledger,
		userRepo:   userRepo,
		ledgerRepo: ledgerRepo,
		gateways:   gateways,
		db:         db,
		publisher:  publisher,
		currency:   currency,
		logger:     logger.With("service", "funding"),
	}
}

// GatewayAdapter returns the adapter registered under name, if any. The HTTP layer uses
// it to pick the right signature header.
func (s *FundingService) GatewayAdapter(name string) (paymentgateway.Adapter, bool) {
	a, ok := s.gateways[name]
	return a, ok
}

// HandleGatewayWebhook runs the ordered funding pipeline: verify signature, filter to
// payment-success events, dedupe on (gateway, reference), resolve the destination
// wallet, credit. Any failure after verification that is transient is wrapped in
// domain.ErrRetryable so the HTTP layer answers 5xx and the gateway redelivers.
func (s *FundingService) HandleGatewayWebhook(ctx context.Context, gatewayName string, rawBody []byte, signature string) (*WebhookResult, error) {
	adapter, ok := s.gateways[gatewayName]
	if !ok {
		return nil, domain.ErrUnknownGateway
	}

	event, err := adapter.VerifyAndParse(ctx, rawBody, signature)
	if err != nil {
		if errors.Is(err, domain.ErrSignatureInvalid) {
			// Audit trail only; nothing is persisted for forged requests.
			s.logger.WarnContext(ctx, "Rejected webhook with invalid signature",
				"gateway", gatewayName, "payload_size", len(rawBody))
			fundingEventsCounter.WithLabelValues(gatewayName, "signature_invalid").Inc()
		}
		return nil, err
	}

	if !event.Success {
		s.logger.InfoContext(ctx, "Ignoring non-success gateway event",
			"gateway", gatewayName, "event_type", event.EventType, "reference", event.Reference)
		fundingEventsCounter.WithLabelValues(gatewayName, "ignored").Inc()
		return &WebhookResult{Status: WebhookStatusIgnored}, nil
	}

	if event.Reference == "" || event.AmountMinor <= 0 {
		return nil, fmt.Errorf("malformed success event from %s: reference=%q amount=%d",
			gatewayName, event.Reference, event.AmountMinor)
	}

	// A charge in another currency must not be credited as if its minor units were
	// the ledger currency's; it goes to reconciliation for an operator to resolve.
	if event.Currency != "" && !strings.EqualFold(event.Currency, s.currency) {
		s.logger.WarnContext(ctx, "Funding event currency mismatch",
			"gateway", gatewayName, "reference", event.Reference, "currency", event.Currency, "expected", s.currency)
		return s.recordForReconciliation(ctx, event)
	}

	// Idempotency check. Gateways redeliver notifications; a reference we have already
	// recorded is acknowledged as a duplicate with no further action.
	existing, err := s.ledger.FindEntryByReference(ctx, event.Provider, event.Reference)
	if err == nil {
		s.logger.InfoContext(ctx, "Duplicate funding notification",
			"gateway", gatewayName, "reference", event.Reference, "entry_id", existing.ID)
		fundingEventsCounter.WithLabelValues(gatewayName, "duplicate").Inc()
		return &WebhookResult{Status: WebhookStatusDuplicate, Entry: existing}, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: idempotency lookup failed: %v", domain.ErrRetryable, err)
	}

	user, err := s.resolveUser(ctx, event)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return s.recordForReconciliation(ctx, event)
		}
		return nil, fmt.Errorf("%w: wallet resolution failed: %v", domain.ErrRetryable, err)
	}

	entry, err := s.ledger.Fund(ctx, user.ID, event.AmountMinor, event.Provider, event.Reference,
		fmt.Sprintf("Wallet funding via %s", gatewayName))
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateReference) {
			// Lost the race against a concurrent delivery of the same reference; the
			// unique constraint guarantees only one credit happened.
			winner, findErr := s.ledger.FindEntryByReference(ctx, event.Provider, event.Reference)
			if findErr != nil {
				return nil, fmt.Errorf("%w: duplicate lookup failed: %v", domain.ErrRetryable, findErr)
			}
			fundingEventsCounter.WithLabelValues(gatewayName, "duplicate").Inc()
			return &WebhookResult{Status: WebhookStatusDuplicate, Entry: winner}, nil
		}
		return nil, fmt.Errorf("%w: credit failed: %v", domain.ErrRetryable, err)
	}

	fundingEventsCounter.WithLabelValues(gatewayName, "credited").Inc()
	s.logger.InfoContext(ctx, "Wallet funded from gateway webhook",
		"gateway", gatewayName, "reference", event.Reference, "owner_id", user.ID, "amount", event.AmountMinor)
	return &WebhookResult{Status: WebhookStatusCredited, Entry: entry}, nil
}

// resolveUser maps gateway-supplied identity onto a user: customer email, then virtual
// account number, then gateway customer id.
func (s *FundingService) resolveUser(ctx context.Context, event *paymentgateway.FundingEvent) (*domain.User, error) {
	lookups := []struct {
		value string
		find  func(context.Context, repository.Querier, string) (*domain.User, error)
	}{
		{event.CustomerEmail, s.userRepo.GetByEmail},
		{event.VirtualAccountNumber, s.userRepo.GetByVirtualAccountNumber},
		{event.GatewayCustomerID, s.userRepo.GetByGatewayCustomerID},
	}

	for _, l := range lookups {
		if l.value == "" {
			continue
		}
		user, err := l.find(ctx, s.db, l.value)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, domain.ErrUserNotFound) {
			return nil, err
		}
	}
	return nil, domain.ErrUserNotFound
}

type reconciliationRequiredEvent struct {
	EntryID   uuid.UUID `json:"entry_id"`
	Gateway   string    `json:"gateway"`
	Reference string    `json:"reference"`
	Amount    int64     `json:"amount"`
	Email     string    `json:"email,omitempty"`
	Account   string    `json:"account,omitempty"`
}

// recordForReconciliation persists the unmatched funding event durably (money is never
// discarded) and still acknowledges the gateway so it stops retrying. The row carries
// the full raw payload for operator resolution and shares the (provider, reference)
// uniqueness with regular credits, so redeliveries of an unmatched event also dedupe.
func (s *FundingService) recordForReconciliation(ctx context.Context, event *paymentgateway.FundingEvent) (*WebhookResult, error) {
	entry := &domain.LedgerEntry{
		Kind:              domain.EntryKindCredit,
		Amount:            event.AmountMinor,
		Provider:          event.Provider,
		ExternalReference: event.Reference,
		Category:          domain.CategoryFunding,
		Status:            domain.EntryStatusPendingReconciliation,
		Description:       fmt.Sprintf("Unmatched funding: email=%q account=%q customer=%q", event.CustomerEmail, event.VirtualAccountNumber, event.GatewayCustomerID),
		GatewayPayload:    event.Raw,
	}

	created, err := s.ledgerRepo.Create(ctx, s.db, entry)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateReference) {
			fundingEventsCounter.WithLabelValues(event.Provider, "duplicate").Inc()
			return &WebhookResult{Status: WebhookStatusDuplicate}, nil
		}
		return nil, fmt.Errorf("%w: recording reconciliation entry failed: %v", domain.ErrRetryable, err)
	}

	s.logger.WarnContext(ctx, "Funding event requires manual reconciliation",
		"gateway", event.Provider, "reference", event.Reference, "amount", event.AmountMinor)
	fundingEventsCounter.WithLabelValues(event.Provider, "reconciliation_required").Inc()

	if s.publisher != nil {
		payload, merr := json.Marshal(reconciliationRequiredEvent{
			EntryID:   created.ID,
			Gateway:   event.Provider,
			Reference: event.Reference,
			Amount:    event.AmountMinor,
			Email:     event.CustomerEmail,
			Account:   event.VirtualAccountNumber,
		})
		if merr == nil {
			if perr := s.publisher.Publish(ctx, SubjectReconciliationRequired, payload); perr != nil {
				s.logger.WarnContext(ctx, "Failed to publish reconciliation event", "error", perr, "entry_id", created.ID)
			}
		}
	}

	return &WebhookResult{Status: WebhookStatusReconciliationRequired, Entry: created}, nil
}
