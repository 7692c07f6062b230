// Package routes defines the API routing configuration.
// It wires repositories into services and services into handlers, and
// groups routes by authentication requirements.
package routes

import (
	"log/slog"

	"billvend/internal/config"
	"billvend/internal/handlers"
	"billvend/internal/middleware"
	"billvend/internal/queue"
	"billvend/internal/repositories"
	"billvend/internal/services/auth"
	"billvend/internal/services/bill"
	"billvend/internal/services/transaction"
	"billvend/internal/services/user"
	"billvend/internal/services/wallet"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Deps carries the shared infrastructure the route tree builds on.
type Deps struct {
	DB     *gorm.DB
	Queue  *queue.RedisQueue
	Logger *slog.Logger
}

// SetupRoutes configures all application routes and registers the queue
// workers. It returns nothing; the queue is started by the caller.
func SetupRoutes(app *fiber.App, deps Deps) {
	walletRepo := repositories.NewWalletRepository(deps.DB)
	userRepo := repositories.NewUserRepository(deps.DB)
	transactionRepo := repositories.NewTransactionRepository(deps.DB)

	charger := wallet.NewStripeCharger()
	walletService := wallet.NewService(
		walletRepo,
		repositories.CacheService,
		charger,
		wallet.Config{},
		deps.Logger,
	)
	transactionService := transaction.NewService(transactionRepo, deps.Logger)

	gateway := bill.NewMockGateway(
		config.GetFloatEnv("GATEWAY_SUCCESS_RATE", 0.9),
		config.GetDurationEnv("GATEWAY_LATENCY", 0),
	)
	billService := bill.NewService(
		walletService,
		transactionService,
		gateway,
		deps.Queue,
		bill.Config{GatewayTimeout: config.GetDurationEnv("GATEWAY_TIMEOUT", bill.DefaultGatewayTimeout)},
		deps.Logger,
	)
	bill.RegisterHandlers(deps.Queue, billService)

	authService := auth.NewService(userRepo, walletService, deps.Logger)
	userService := user.NewService(userRepo)

	authHandler := handlers.NewAuthHandler(authService)
	userHandler := handlers.NewUserHandler(userService)
	walletHandler := handlers.NewWalletHandler(walletService)
	billHandler := handlers.NewBillHandler(billService)
	transactionHandler := handlers.NewTransactionHandler(billService)

	app.Get("/health", handlers.HealthCheck)

	api := app.Group("/api")

	// Public endpoints
	api.Post("/register", authHandler.Register)
	api.Post("/login", authHandler.Login)
	api.Post("/refresh", authHandler.Refresh)

	// Authenticated endpoints
	authed := api.Group("", middleware.Auth)
	authed.Get("/me", userHandler.Me)
	authed.Put("/me", userHandler.UpdateMe)
	authed.Post("/password", authHandler.ChangePassword)

	authed.Get("/wallet/balance", walletHandler.GetBalance)
	authed.Post("/wallet/fund", walletHandler.Fund)
	authed.Post("/wallet/fund/card", walletHandler.FundFromCard)

	authed.Post("/bills/pay", billHandler.Pay)
	authed.Get("/transactions", transactionHandler.List)
	authed.Get("/transactions/:id", transactionHandler.Get)
}
