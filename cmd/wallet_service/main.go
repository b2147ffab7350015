package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/swiftbills/vtu-backend/internal/platform/config"
	"github.com/swiftbills/vtu-backend/internal/platform/database"
	"github.com/swiftbills/vtu-backend/internal/platform/logger"
	"github.com/swiftbills/vtu-backend/internal/platform/messagebroker"
	walletHttp "github.com/swiftbills/vtu-backend/internal/wallet_service/adapters/http"
	"github.com/swiftbills/vtu-backend/internal/wallet_service/adapters/paymentgateway"
	"github.com/swiftbills/vtu-backend/internal/wallet_service/adapters/vtuprovider"
	"github.com/swiftbills/vtu-backend/internal/wallet_service/app"
	"github.com/swiftbills/vtu-backend/internal/wallet_service/middleware"
	"github.com/swiftbills/vtu-backend/internal/wallet_service/repository/postgres"
)

const serviceName = "wallet_service"

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "service", serviceName, "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel)
	appLogger.Info("Wallet service starting...", "port", cfg.WalletServiceHTTPPort)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewDBPool(rootCtx, cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	appLogger.Info("Wallet service connected to PostgreSQL database")

	natsClient, err := messagebroker.NewNatsClient(cfg.NATSUrl, serviceName, appLogger)
	if err != nil {
		appLogger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()
	appLogger.Info("Successfully connected to NATS")

	walletRepo := postgres.NewPgWalletRepository(appLogger)
	ledgerRepo := postgres.NewPgLedgerRepository(appLogger)
	userRepo := postgres.NewPgUserRepository(appLogger)

	gateways := map[string]paymentgateway.Adapter{
		"paystack": paymentgateway.NewPaystackAdapter(cfg.PaystackWebhookSecret, appLogger),
		"monnify":  paymentgateway.NewMonnifyAdapter(cfg.MonnifyWebhookSecret, appLogger),
	}

	var provider vtuprovider.Adapter
	switch cfg.VTUProviderName {
	case "mock":
		provider = vtuprovider.NewMockAdapter(appLogger, vtuprovider.OutcomeSuccess, "simulated purchase")
	default:
		provider = vtuprovider.NewVTPassAdapter(appLogger, cfg.VTUProviderBaseURL, cfg.VTUProviderAPIKey, cfg.VTUProviderSecret,
			&http.Client{Timeout: cfg.VTUProviderTimeout})
	}
	appLogger.Info("VTU provider initialized", "provider", provider.Name())

	ledgerService := app.NewLedgerService(walletRepo, ledgerRepo, dbPool, natsClient, cfg.DefaultCurrency, appLogger)
	fundingService := app.NewFundingService(ledgerService, userRepo, ledgerRepo, gateways, dbPool, natsClient, cfg.DefaultCurrency, appLogger)
	attemptTracker := app.NewInMemoryAttemptTracker()
	purchaseService := app.NewPurchaseService(
		ledgerService, userRepo, walletRepo, provider, attemptTracker, dbPool,
		nil, cfg.PinMaxAttempts, cfg.PinLockoutDuration, cfg.VTUProviderTimeout, appLogger,
	)

	validate := validator.New()
	walletHandler := walletHttp.NewWalletHandler(purchaseService, ledgerService, validate, appLogger)
	webhookHandler := walletHttp.NewWebhookHandler(fundingService, appLogger)
	authMW := middleware.AuthMiddleware(cfg.JWTAccessSecret, appLogger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "Wallet service is healthy"})
	})

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Use(authMW)
		walletHandler.RegisterRoutes(v1)
	})

	// Gateway callbacks authenticate by signature, not by user JWT.
	webhookHandler.RegisterRoutes(r)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WalletServiceHTTPPort),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WalletServiceMetricsPort),
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(rootCtx)

	g.Go(func() error {
		appLogger.Info(fmt.Sprintf("Wallet API server listening on port %d", cfg.WalletServiceHTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("wallet API server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		appLogger.Info(fmt.Sprintf("Metrics server listening on port %d", cfg.WalletServiceMetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		appLogger.Info("Shutdown signal received, shutting down HTTP servers...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Wallet API server shutdown failed", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Metrics server shutdown failed", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Wallet service exited with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Wallet service shut down gracefully.")
}
