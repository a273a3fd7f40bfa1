package handler

import (
	"invoice-financing/internal/adapter/http/middleware"
	"invoice-financing/internal/core/domain"
	"invoice-financing/internal/core/ports"
	"invoice-financing/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const defaultMaxBodyBytes = 1 << 20

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AuthSvc        ports.AuthService
	InvoiceSvc     ports.InvoiceService
	BidSvc         ports.BidService
	SettlementSvc  ports.SettlementService
	LedgerSvc      ports.LedgerService
	TokenSvc       ports.TokenService
	RateLimiter    ports.RateLimiter // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	AuditSvc       ports.AuditService // nil = denied-access auditing disabled
	Metrics        *metrics.Metrics   // nil = no /metrics endpoint
	MaxBodyBytes   int64
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	maxBody := deps.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.Metrics(deps.Metrics))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.MaxBodySize(maxBody))
	r.Use(middleware.RequestMeta())
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditDenied(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	if deps.Metrics != nil {
		r.GET("/metrics", MetricsHandler(deps.Metrics.Registry))
	}

	rules := middleware.DefaultRateLimitRules()
	rl := func(group string) gin.HandlerFunc {
		rule, ok := rules[group]
		if deps.RateLimiter == nil || !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimiter, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	// --- Public routes ---
	authHandler := NewAuthHandler(deps.AuthSvc)
	auth := v1.Group("/auth")
	{
		auth.POST("/register/seller", rl("auth_register"), authHandler.RegisterSeller)
		auth.POST("/register/lender", rl("auth_register"), authHandler.RegisterLender)
		auth.POST("/login", rl("auth_login"), authHandler.Login)
		auth.POST("/login/external", rl("auth_login"), authHandler.LoginExternal)
	}

	// The gateway authenticates with a body signature, not a session.
	settlementHandler := NewSettlementHandler(deps.SettlementSvc, deps.Logger)
	v1.POST("/webhooks/gateway", settlementHandler.Webhook)

	// --- Session routes ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	sellerOnly := middleware.RequireRole(domain.RoleSeller)
	lenderOnly := middleware.RequireRole(domain.RoleLender)
	anyParty := middleware.RequireRole(domain.RoleSeller, domain.RoleLender)

	invoiceHandler := NewInvoiceHandler(deps.InvoiceSvc)
	bidHandler := NewBidHandler(deps.BidSvc)
	walletHandler := NewWalletHandler(deps.LedgerSvc)

	authed := v1.Group("", jwtAuth)

	me := authed.Group("", anyParty)
	{
		me.PUT("/me/bank-account", rl("read"), authHandler.UpdateBankAccount)
		me.GET("/wallet", rl("read"), walletHandler.GetWallet)
		me.GET("/wallet/transactions", rl("read"), walletHandler.ListTransactions)
		me.POST("/wallet/withdraw", rl("withdraw"), walletHandler.Withdraw)
		me.GET("/invoices/:id", rl("read"), invoiceHandler.Get)
		me.GET("/invoices/:id/bids", rl("read"), bidHandler.ListBids)
	}

	seller := authed.Group("", sellerOnly)
	{
		seller.POST("/invoices/extract", rl("extract"), invoiceHandler.Extract)
		seller.POST("/invoices", rl("invoices"), invoiceHandler.Submit)
		seller.GET("/invoices", rl("read"), invoiceHandler.ListMine)
		seller.POST("/invoices/:id/reverify", rl("invoices"), invoiceHandler.Reverify)
		seller.POST("/invoices/:id/bids/:bidId/accept", rl("bids"), bidHandler.AcceptBid)
		seller.POST("/invoices/:id/repay", rl("funding"), walletHandler.Repay)
	}

	lender := authed.Group("", lenderOnly)
	{
		lender.GET("/marketplace", rl("read"), invoiceHandler.Marketplace)
		lender.POST("/invoices/:id/bids", rl("bids"), bidHandler.PlaceBid)
		lender.POST("/bids/:id/funding-order", rl("funding"), settlementHandler.CreateFundingOrder)
		lender.POST("/bids/:id/verify-payment", rl("funding"), settlementHandler.VerifyPayment)
	}

	return r
}
