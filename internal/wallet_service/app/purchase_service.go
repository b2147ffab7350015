package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/swiftbills/vtu-backend/internal/wallet_service/adapters/vtuprovider"
	"github.com/swiftbills/vtu-backend/internal/wallet_service/domain"
	"github.com/swiftbills/vtu-backend/internal/wallet_service/repository"
)

// SpendStatus is the terminal classification of one spend attempt.
type SpendStatus string

const (
	SpendStatusSuccess             SpendStatus = "success"
	SpendStatusKnownFailure        SpendStatus = "known_failure"
	SpendStatusIndeterminate       SpendStatus = "indeterminate"
	SpendStatusAccountLocked       SpendStatus = "account_locked"
	SpendStatusInsufficientBalance SpendStatus = "insufficient_balance"
	SpendStatusInvalidPin          SpendStatus = "invalid_pin"
)

// SpendRequest is one user-initiated purchase of an external service.
type SpendRequest struct {
	OwnerID     uuid.UUID
	ServiceType string
	AmountMinor int64
	PIN         string
	Params      map[string]string
}

// SpendResult is what the route layer renders back to the caller.
type SpendResult struct {
	Status            SpendStatus         `json:"status"`
	Message           string              `json:"message,omitempty"`
	AttemptsRemaining int                 `json:"attempts_remaining,omitempty"`
	LockedForSeconds  int64               `json:"locked_for_seconds,omitempty"`
	ProviderReference string              `json:"provider_reference,omitempty"`
	ProviderData      map[string]any      `json:"provider_data,omitempty"`
	Entry             *domain.LedgerEntry `json:"entry,omitempty"`
}

// ServiceLimits bound the spend amount per service type, in minor units.
type ServiceLimits struct {
	Min int64
	Max int64
}

// DefaultServiceLimits mirrors the per-service bounds enforced at the route layer of
// the original deployment (amounts in kobo).
func DefaultServiceLimits() map[string]ServiceLimits {
	return map[string]ServiceLimits{
		"airtime":     {Min: 50_00, Max: 50_000_00},
		"data":        {Min: 50_00, Max: 100_000_00},
		"electricity": {Min: 500_00, Max: 500_000_00},
		"cable":       {Min: 100_00, Max: 200_000_00},
		"betting":     {Min: 100_00, Max: 100_000_00},
		"education":   {Min: 100_00, Max: 500_000_00},
	}
}

var serviceCategories = map[string]domain.EntryCategory{
	"airtime":     domain.CategoryAirtime,
	"data":        domain.CategoryData,
	"electricity": domain.CategoryElectricity,
	"cable":       domain.CategoryCable,
	"betting":     domain.CategoryBetting,
	"education":   domain.CategoryEducation,
}

// PurchaseService is the only path by which a user spends wallet funds on an external
// service. PIN and balance checks run before the provider call, and the debit runs after
// it, so a wallet is debited if and only if the provider confirmed success.
type PurchaseService struct {
	ledger          *LedgerService
	userRepo        repository.UserRepository
	walletRepo      repository.WalletRepository
	provider        vtuprovider.Adapter
	attempts        AttemptTracker
	db              DB
	limits          map[string]ServiceLimits
	maxPinAttempts  int
	pinLockDuration time.Duration
	providerTimeout time.Duration
	logger          *slog.Logger
}

func NewPurchaseService(
	ledger *LedgerService,
	userRepo repository.UserRepository,
	walletRepo repository.WalletRepository,
	provider vtuprovider.Adapter,
	attempts AttemptTracker,
	db DB,
	limits map[string]ServiceLimits,
	maxPinAttempts int,
	pinLockDuration time.Duration,
	providerTimeout time.Duration,
	logger *slog.Logger,
) *PurchaseService {
	if limits == nil {
		limits = DefaultServiceLimits()
	}
	return &PurchaseService{
		ledger:          ledger,
		userRepo:        userRepo,
		walletRepo:      walletRepo,
		provider:        provider,
		attempts:        attempts,
		db:              db,
		limits:          limits,
		maxPinAttempts:  maxPinAttempts,
		pinLockDuration: pinLockDuration,
		providerTimeout: providerTimeout,
		logger:          logger.With("service", "purchase"),
	}
}

// Spend authorizes and executes one purchase. Money moves only after the provider
// confirms success; KnownFailure and Indeterminate outcomes never debit.
func (s *PurchaseService) Spend(ctx context.Context, req SpendRequest) (*SpendResult, error) {
	serviceType := strings.ToLower(req.ServiceType)
	category, ok := serviceCategories[serviceType]
	if !ok {
		return nil, domain.ErrUnsupportedService
	}
	limits, ok := s.limits[serviceType]
	if !ok || req.AmountMinor < limits.Min || req.AmountMinor > limits.Max {
		return nil, fmt.Errorf("%w: amount %d outside [%d, %d] for %s",
			domain.ErrInvalidAmount, req.AmountMinor, limits.Min, limits.Max, serviceType)
	}

	ownerKey := req.OwnerID.String()

	// A locked account does not consume an attempt.
	if locked, remaining := s.attempts.CheckLocked(ownerKey); locked {
		s.logger.WarnContext(ctx, "Spend attempt while locked", "owner_id", ownerKey, "remaining", remaining)
		purchasesCounter.WithLabelValues(serviceType, string(SpendStatusAccountLocked)).Inc()
		return &SpendResult{
			Status:           SpendStatusAccountLocked,
			Message:          "too many failed pin attempts, try again later",
			LockedForSeconds: int64(remaining.Seconds() + 0.5),
		}, nil
	}

	user, err := s.userRepo.GetByID(ctx, s.db, req.OwnerID)
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.TransactionPinHash), []byte(req.PIN)); err != nil {
		locked, attemptsRemaining := s.attempts.RecordFailure(ownerKey, s.maxPinAttempts, s.pinLockDuration)
		if locked {
			pinLockoutsCounter.Inc()
			s.logger.WarnContext(ctx, "PIN lockout triggered", "owner_id", ownerKey)
			purchasesCounter.WithLabelValues(serviceType, string(SpendStatusAccountLocked)).Inc()
			return &SpendResult{
				Status:           SpendStatusAccountLocked,
				Message:          "too many failed pin attempts, try again later",
				LockedForSeconds: int64(s.pinLockDuration.Seconds()),
			}, nil
		}
		purchasesCounter.WithLabelValues(serviceType, string(SpendStatusInvalidPin)).Inc()
		return &SpendResult{
			Status:            SpendStatusInvalidPin,
			Message:           "incorrect transaction pin",
			AttemptsRemaining: attemptsRemaining,
		}, nil
	}
	s.attempts.RecordSuccess(ownerKey)

	wallet, err := s.walletRepo.GetByOwnerID(ctx, s.db, req.OwnerID)
	if err != nil {
		return nil, err
	}
	// Precheck only: the authoritative check happens against the locked row at debit
	// time, so a concurrent spend can still turn into InsufficientBalance below.
	if wallet.Balance < req.AmountMinor {
		purchasesCounter.WithLabelValues(serviceType, string(SpendStatusInsufficientBalance)).Inc()
		return &SpendResult{
			Status:  SpendStatusInsufficientBalance,
			Message: "wallet balance too low for this purchase",
		}, nil
	}

	requestID := fmt.Sprintf("%s_%d_%s", serviceType, time.Now().UnixNano(), uuid.NewString()[:8])

	providerCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	start := time.Now()
	resp, err := s.provider.Purchase(providerCtx, vtuprovider.PurchaseRequest{
		RequestID:   requestID,
		ServiceType: serviceType,
		AmountMinor: req.AmountMinor,
		Params:      req.Params,
	})
	providerRequestDurationHist.WithLabelValues(s.provider.Name()).Observe(time.Since(start).Seconds())

	if err != nil {
		// Timeouts and transport errors may have reached the provider. Never a debit,
		// never inferred as failure: the caller polls for resolution later.
		s.logger.WarnContext(ctx, "Provider call errored, outcome indeterminate",
			"error", err, "request_id", requestID, "owner_id", ownerKey)
		purchasesCounter.WithLabelValues(serviceType, string(SpendStatusIndeterminate)).Inc()
		return &SpendResult{
			Status:            SpendStatusIndeterminate,
			Message:           "provider did not confirm the transaction, check status later",
			ProviderReference: requestID,
		}, nil
	}

	switch resp.Outcome {
	case vtuprovider.OutcomeSuccess:
		reference := resp.ProviderReference
		if reference == "" {
			reference = requestID
		}
		entry, err := s.ledger.Debit(ctx, wallet.ID, req.AmountMinor, s.provider.Name(), reference,
			category, fmt.Sprintf("%s purchase", serviceType))
		if err != nil {
			if errors.Is(err, domain.ErrInsufficientBalance) {
				// Raced with another spend between precheck and debit. The provider
				// delivered, so this entry must be settled by operators.
				s.logger.ErrorContext(ctx, "Provider confirmed but debit rejected",
					"owner_id", ownerKey, "request_id", requestID, "reference", reference)
				purchasesCounter.WithLabelValues(serviceType, string(SpendStatusInsufficientBalance)).Inc()
				return &SpendResult{
					Status:  SpendStatusInsufficientBalance,
					Message: "wallet balance changed during purchase, contact support",
				}, nil
			}
			return nil, err
		}
		purchasesCounter.WithLabelValues(serviceType, string(SpendStatusSuccess)).Inc()
		s.logger.InfoContext(ctx, "Purchase completed",
			"owner_id", ownerKey, "service_type", serviceType, "amount", req.AmountMinor, "reference", reference)
		return &SpendResult{
			Status:            SpendStatusSuccess,
			Message:           resp.Message,
			ProviderReference: reference,
			ProviderData:      resp.Data,
			Entry:             entry,
		}, nil

	case vtuprovider.OutcomeKnownFailure:
		// The provider definitively rejected the request; the user is never charged.
		purchasesCounter.WithLabelValues(serviceType, string(SpendStatusKnownFailure)).Inc()
		s.logger.InfoContext(ctx, "Purchase failed at provider",
			"owner_id", ownerKey, "service_type", serviceType, "reason", resp.Message)
		return &SpendResult{
			Status:  SpendStatusKnownFailure,
			Message: resp.Message,
		}, nil

	default:
		purchasesCounter.WithLabelValues(serviceType, string(SpendStatusIndeterminate)).Inc()
		return &SpendResult{
			Status:            SpendStatusIndeterminate,
			Message:           resp.Message,
			ProviderReference: requestID,
		}, nil
	}
}
