package routes

import (
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ashish6318/skillbarter-sub001/internal/config"
	"github.com/ashish6318/skillbarter-sub001/internal/handlers"
	"github.com/ashish6318/skillbarter-sub001/internal/middleware"
	"github.com/ashish6318/skillbarter-sub001/internal/repository"
	"github.com/ashish6318/skillbarter-sub001/internal/services"
	notifyws "github.com/ashish6318/skillbarter-sub001/internal/websocket"
)

// RegisterRoutes wires repositories, services and handlers and returns the
// reminder worker so the caller owns its lifecycle.
func RegisterRoutes(app *fiber.App, cfg *config.Config, db *pgxpool.Pool) *services.ReminderService {
	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)

	hub := notifyws.NewHub()
	go hub.Run()

	ledgerService := services.NewLedgerService(db, userRepo, transactionRepo, hub)
	sessionService := services.NewSessionService(db, sessionRepo, userRepo, ledgerService, hub)
	reminderService := services.NewReminderService(
		sessionRepo,
		sessionService,
		hub,
		cfg.ReminderInterval,
		cfg.ReminderWindow,
	)

	authHandler := handlers.NewAuthHandler(db, userRepo, cfg.JWTSecret, cfg.SignupBonus)
	creditHandler := handlers.NewCreditHandler(ledgerService, userRepo)
	sessionHandler := handlers.NewSessionHandler(sessionService)
	notificationHandler := handlers.NewNotificationHandler(hub, cfg.JWTSecret)

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Get("/me", middleware.AuthRequired(cfg.JWTSecret), authHandler.Me)

	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	credits := authProtected.Group("/credits")
	credits.Get("/balance", creditHandler.GetBalance)
	credits.Post("/purchase", creditHandler.Purchase)
	credits.Post("/transfer", creditHandler.Transfer)
	credits.Get("/history", creditHandler.History)
	credits.Get("/stats", creditHandler.Stats)

	sessions := authProtected.Group("/sessions")
	sessions.Post("", sessionHandler.RequestSession)
	sessions.Get("", sessionHandler.ListSessions)
	sessions.Get("/:id", sessionHandler.GetSession)
	sessions.Put("/:id/status", sessionHandler.UpdateStatus)
	sessions.Post("/:id/rate", sessionHandler.RateSession)
	sessions.Delete("/:id", sessionHandler.DeleteSession)

	api.Use("/v1/ws", notificationHandler.WebSocketAuth)
	api.Get("/v1/ws", websocket.New(notificationHandler.HandleWebSocket))

	return reminderService
}
