package handler

import (
	"payvia/internal/adapter/http/middleware"
	redisStore "payvia/internal/adapter/storage/redis"
	"payvia/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	UserSvc        ports.UserService
	LedgerSvc      ports.LedgerService
	SettlementSvc  ports.SettlementService
	QuoteSvc       ports.QuoteService
	HistorySvc     ports.HistoryService
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep — verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// API v1 routes
	v1 := r.Group("/api/v1")

	// --- Public routes (no auth) ---
	authHandler := NewAuthHandler(deps.UserSvc)
	auth := v1.Group("/auth")
	{
		auth.POST("/register", rl("auth_register"), authHandler.Register)
		auth.POST("/login", rl("auth_login"), authHandler.Login)
	}

	// --- JWT-authenticated routes ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	accountHandler := NewAccountHandler(deps.LedgerSvc, deps.HistorySvc)
	settlementHandler := NewSettlementHandler(deps.SettlementSvc, deps.QuoteSvc, deps.LedgerSvc)

	v1.POST("/auth/verify", jwtAuth, authHandler.Verify)

	accounts := v1.Group("/accounts/me", jwtAuth)
	{
		accounts.GET("", rl("reads"), accountHandler.GetAccount)
		accounts.GET("/balance", rl("reads"), accountHandler.GetBalance)
		accounts.GET("/history", rl("reads"), accountHandler.History)
		accounts.POST("/deposit", rl("deposits"), accountHandler.Deposit)
	}

	v1.POST("/transfers", jwtAuth, rl("transfers"), accountHandler.Transfer)

	settlements := v1.Group("/settlements", jwtAuth)
	{
		settlements.POST("/quote", rl("reads"), settlementHandler.Quote)
		settlements.POST("", rl("settlements"), settlementHandler.Create)
		settlements.GET("/:id", rl("reads"), settlementHandler.Get)
		settlements.POST("/:id/dispatch", rl("settlements"), settlementHandler.Dispatch)
		settlements.POST("/:id/poll", rl("reads"), settlementHandler.Poll)
		settlements.POST("/:id/cancel", rl("settlements"), settlementHandler.Cancel)
	}

	return r
}
