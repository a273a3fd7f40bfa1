package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"invoice-financing/config"
	"invoice-financing/internal/adapter/extractor"
	"invoice-financing/internal/adapter/gateway"
	httpHandler "invoice-financing/internal/adapter/http/handler"
	"invoice-financing/internal/adapter/identity"
	"invoice-financing/internal/adapter/registry"
	memStorage "invoice-financing/internal/adapter/storage/memory"
	pgStorage "invoice-financing/internal/adapter/storage/postgres"
	redisStorage "invoice-financing/internal/adapter/storage/redis"
	"invoice-financing/internal/core/ports"
	"invoice-financing/internal/service"
	"invoice-financing/pkg/logger"
	"invoice-financing/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// repositories groups the storage backend selected by database.driver.
type repositories struct {
	sellers    ports.SellerRepository
	lenders    ports.LenderRepository
	invoices   ports.InvoiceRepository
	bids       ports.BidRepository
	txns       ports.TransactionRepository
	audit      ports.AuditRepository
	transactor ports.DBTransactor
	health     []ports.HealthChecker
	close      func()
}

func main() {
	cfgPath := os.Getenv("INVFIN_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	gin.SetMode(cfg.Server.Mode)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("driver", cfg.Database.Driver).
		Msg("Starting invoice financing core")

	ctx := context.Background()

	repos, err := openRepositories(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer repos.close()

	// Redis is optional: without it webhook claims fall through to the
	// database and rate limiting is off.
	var (
		guard       ports.NotificationGuard
		rateLimiter ports.RateLimiter
	)
	if cfg.Redis.Enabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		log.Info().Msg("Redis connected")

		guard = redisStorage.NewNotificationGuard(rdb)
		if cfg.RateLimit.Enabled {
			rateLimiter = redisStorage.NewRateLimitStore(rdb)
		}
		repos.health = append(repos.health, redisStorage.NewHealthCheck(rdb))
	}

	// Core services
	vault, err := service.NewPIIVault(cfg.PII.EncryptionKey, cfg.PII.BlindIndexKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize PII vault")
	}
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	m := metrics.New()

	auditSvc := service.NewAuditService(repos.audit, log)

	// External collaborators
	gatewayClient := gateway.New(cfg.Gateway)
	gatewaySigner := service.NewGatewaySigner(cfg.Gateway.KeySecret, cfg.Gateway.WebhookSecret)
	registryClient := registry.New(cfg.Registry)
	extractorClient := extractor.New(cfg.Extractor)
	identityChain, err := buildIdentityChain(ctx, cfg.Identity, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize identity providers")
	}

	// Business services
	verifier := service.NewVerificationService(registryClient, repos.invoices, vault, m, log)
	authSvc := service.NewAuthService(
		repos.sellers, repos.lenders, repos.transactor,
		hashSvc, vault, tokenSvc, registryClient, identityChain, auditSvc, log,
	)
	invoiceSvc := service.NewInvoiceService(
		repos.sellers, repos.invoices, repos.transactor,
		vault, verifier, extractorClient, auditSvc, m, log,
	)
	bidSvc := service.NewBidService(repos.invoices, repos.bids, repos.lenders, repos.transactor, auditSvc, m, log)
	settlementSvc := service.NewSettlementService(
		repos.bids, repos.invoices, repos.sellers, repos.txns, repos.transactor,
		gatewayClient, gatewaySigner, guard, auditSvc, m,
		service.SettlementConfig{
			Currency:       cfg.Gateway.Currency,
			PlatformFlat:   cfg.Fees.PlatformFlat,
			PlatformBPS:    cfg.Fees.PlatformBPS,
			GatewayTimeout: cfg.Gateway.Timeout,
		},
		log,
	)
	ledgerSvc := service.NewLedgerService(
		repos.sellers, repos.lenders, repos.invoices, repos.bids, repos.txns, repos.transactor,
		gatewayClient, vault, auditSvc, m,
		service.LedgerConfig{Currency: cfg.Gateway.Currency, GatewayTimeout: cfg.Gateway.Timeout},
		log,
	)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:        authSvc,
		InvoiceSvc:     invoiceSvc,
		BidSvc:         bidSvc,
		SettlementSvc:  settlementSvc,
		LedgerSvc:      ledgerSvc,
		TokenSvc:       tokenSvc,
		RateLimiter:    rateLimiter,
		HealthCheckers: repos.health,
		AuditSvc:       auditSvc,
		Metrics:        m,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		Logger:         log,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	auditSvc.Wait()

	log.Info().Msg("Server exited")
}

func openRepositories(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*repositories, error) {
	if cfg.Database.InMemory() {
		log.Warn().Msg("Using in-memory storage; data is lost on exit")
		store := memStorage.NewStore()
		return &repositories{
			sellers:    memStorage.NewSellerRepo(store),
			lenders:    memStorage.NewLenderRepo(store),
			invoices:   memStorage.NewInvoiceRepo(store),
			bids:       memStorage.NewBidRepo(store),
			txns:       memStorage.NewTransactionRepo(store),
			audit:      memStorage.NewAuditRepo(store),
			transactor: store,
			close:      func() {},
		}, nil
	}

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("PostgreSQL connected")

	return &repositories{
		sellers:    pgStorage.NewSellerRepo(pool),
		lenders:    pgStorage.NewLenderRepo(pool),
		invoices:   pgStorage.NewInvoiceRepo(pool),
		bids:       pgStorage.NewBidRepo(pool),
		txns:       pgStorage.NewTransactionRepo(pool),
		audit:      pgStorage.NewAuditRepository(pool),
		transactor: pgStorage.NewTransactor(pool),
		health:     []ports.HealthChecker{pgStorage.NewHealthCheck(pool)},
		close:      pool.Close,
	}, nil
}

// buildIdentityChain orders the configured providers: Google first, then the generic OIDC issuer.
func buildIdentityChain(ctx context.Context, cfg config.IdentityConfig, log zerolog.Logger) (*service.VerifierChain, error) {
	var verifiers []ports.IdentityVerifier
	if cfg.Google.Enabled {
		g, err := identity.NewGoogleVerifier(ctx, cfg.Google.Audience, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("google verifier: %w", err)
		}
		verifiers = append(verifiers, g)
	}
	if cfg.OIDC.Enabled {
		verifiers = append(verifiers, identity.NewOIDCVerifier(cfg.OIDC, cfg.Timeout))
	}
	log.Info().Int("providers", len(verifiers)).Msg("External identity chain ready")
	return service.NewVerifierChain(cfg.Timeout, log, verifiers...), nil
}
