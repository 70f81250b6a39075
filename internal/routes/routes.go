// Package routes defines the API routing configuration.
// It sets up all HTTP routes and their corresponding handlers,
// including middleware and authentication requirements.
package routes

import (
	"delu/internal/config"
	"delu/internal/handlers"
	"delu/internal/metrics"
	"delu/internal/middleware"
	"delu/internal/repositories"
	"delu/internal/services/auth"
	"delu/internal/services/gig"
	"delu/internal/services/referral"
	"delu/internal/services/wallet"
	"delu/internal/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Services groups the wired service layer so main can reuse it for the
// background workers.
type Services struct {
	Auth   auth.Service
	Wallet wallet.Service
	Gig    gig.Service
}

// SetupRoutes wires repositories, services and handlers onto the app and
// returns the service layer.
func SetupRoutes(app *fiber.App, store storage.Store) *Services {
	ledgerRepo := repositories.NewLedgerRepository(repositories.DB)
	userRepo := repositories.NewUserRepository(repositories.DB, repositories.CacheService)

	collector := metrics.NewCollector()

	authService := auth.NewService(userRepo)
	referralService := referral.NewService(repositories.CacheService)
	walletService := wallet.NewService(
		ledgerRepo,
		referralService,
		wallet.Config{
			MinTopUpForReferral: config.GetFloatEnv("MIN_TOPUP_FOR_REFERRAL", wallet.DefaultMinTopUpForReferral),
			MaxLoadAmount:       config.GetFloatEnv("MAX_LOAD_AMOUNT", wallet.DefaultMaxLoadAmount),
			MaxWithdrawalAmount: config.GetFloatEnv("MAX_WITHDRAWAL_AMOUNT", wallet.DefaultMaxWithdrawalAmount),
		},
		collector,
		repositories.CacheService,
	)
	gigService := gig.NewService(
		ledgerRepo,
		gig.NewRedisAttemptLimiter(repositories.CacheService),
		collector,
		repositories.CacheService,
	)

	authHandler := handlers.NewAuthHandler(authService, store)
	gigHandler := handlers.NewGigHandler(gigService, store)
	walletHandler := handlers.NewWalletHandler(walletService, store)
	adminHandler := handlers.NewAdminHandler(walletService, ledgerRepo, userRepo)
	platformHandler := handlers.NewPlatformHandler(ledgerRepo, userRepo)

	app.Get("/health", handlers.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	// Public endpoints
	api.Post("/register", authHandler.Register)
	api.Post("/login", authHandler.Login)
	api.Post("/refresh", authHandler.RefreshToken)
	api.Get("/offer", platformHandler.OfferBar)
	api.Get("/gigs", gigHandler.ListOpenGigs)

	// Protected endpoints
	authMiddleware := middleware.NewAuthMiddleware(authService)
	protected := api.Use(authMiddleware.Handler)

	protected.Get("/me", authHandler.Me)
	protected.Get("/referral", platformHandler.ReferralInfo)
	protected.Post("/logout", authHandler.Logout)
	protected.Post("/change-password", authHandler.ChangePassword)

	gigs := protected.Group("/gigs")
	gigs.Post("/", gigHandler.CreateGig)
	gigs.Get("/mine", gigHandler.ListMyGigs)
	gigs.Get("/:id", gigHandler.GetGig)
	gigs.Post("/:id/accept", gigHandler.AcceptGig)
	gigs.Post("/:id/complete", gigHandler.CompleteGig)
	gigs.Post("/:id/rate", gigHandler.RateGig)

	walletGroup := protected.Group("/wallet")
	walletGroup.Get("/balance", walletHandler.GetBalance)
	walletGroup.Get("/transactions", walletHandler.GetTransactions)
	walletGroup.Post("/load", walletHandler.RequestLoad)
	walletGroup.Post("/withdraw", walletHandler.RequestWithdrawal)
	walletGroup.Get("/coupons/:code", walletHandler.ValidateCoupon)

	// Admin endpoints
	admin := app.Group("/api/admin", authMiddleware.Handler, middleware.AdminAuthMiddleware)
	admin.Get("/load-requests", adminHandler.ListLoadRequests)
	admin.Post("/load-requests/:id/approve", adminHandler.ApproveLoadRequest)
	admin.Post("/load-requests/:id/reject", adminHandler.RejectLoadRequest)
	admin.Get("/withdrawals", adminHandler.ListWithdrawalRequests)
	admin.Post("/withdrawals/:id/approve", adminHandler.ApproveWithdrawalRequest)
	admin.Post("/withdrawals/:id/reject", adminHandler.RejectWithdrawalRequest)
	admin.Post("/manual-credit", adminHandler.ManualCredit)
	admin.Get("/users", adminHandler.ListUsers)
	admin.Get("/users/:id", adminHandler.GetUser)
	admin.Delete("/users/:id", adminHandler.DeleteUser)
	admin.Get("/coupons", adminHandler.ListCoupons)
	admin.Post("/coupons", adminHandler.CreateCoupon)
	admin.Put("/coupons/:id", adminHandler.UpdateCoupon)
	admin.Delete("/coupons/:id", adminHandler.DeleteCoupon)
	admin.Get("/settings", adminHandler.GetSettings)
	admin.Put("/settings", adminHandler.UpdateSettings)

	return &Services{
		Auth:   authService,
		Wallet: walletService,
		Gig:    gigService,
	}
}
