package domain

import "errors"

var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
	ErrUnsupportedService  = errors.New("unsupported service type")

	// ErrDuplicateReference means a ledger entry already exists for the
	// (provider, reference) pair. For funding this is a no-op success, not a failure.
	ErrDuplicateReference = errors.New("duplicate external reference")

	ErrNotFound       = errors.New("not found")
	ErrWalletNotFound = errors.New("wallet not found")
	ErrUserNotFound   = errors.New("user not found")
	ErrWalletFrozen   = errors.New("wallet is frozen")
	ErrWalletInactive = errors.New("wallet is not active")
	ErrWalletNotEmpty = errors.New("wallet balance must be zero")

	ErrSignatureInvalid = errors.New("webhook signature verification failed")
	ErrUnknownGateway   = errors.New("unknown payment gateway")

	// ErrRetryable wraps transient storage failures. Webhook handlers map it to a 5xx
	// so the gateway redelivers; the idempotency check makes redelivery safe.
	ErrRetryable = errors.New("transient failure, retry")
)
