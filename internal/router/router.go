package router

import (
	"net/http"

	"gameshop-api/internal/handler"
	"gameshop-api/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler          *handler.Handler
	InventoryHandler *handler.InventoryHandler
	OrderHandler     *handler.OrderHandler
	WebhookHandler   *handler.WebhookHandler
	AdminHandler     *handler.AdminHandler
	LogHandler       *handler.LogHandler
	AuthHandler      *handler.AuthHandler

	// SessionAuth guards buyer routes, APIKeyAuth guards session minting
	// and AdminAuth guards /admin.
	SessionAuth func(http.Handler) http.Handler
	APIKeyAuth  func(http.Handler) http.Handler
	AdminAuth   func(http.Handler) http.Handler

	AllowedOrigins []string
}

func group(r chi.Router, mw func(http.Handler) http.Handler, fn func(r chi.Router)) {
	r.Group(func(r chi.Router) {
		if mw != nil {
			r.Use(mw)
		}
		fn(r)
	})
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key", "X-Token", "X-Login-Key"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// PUBLIC routes
		if cfg.Handler != nil {
			r.Get("/health", cfg.Handler.Health)
			r.Get("/ready", cfg.Handler.Ready)
		}
		if cfg.InventoryHandler != nil {
			r.Get("/accounts", cfg.InventoryHandler.ListAccounts)
			r.Get("/accounts/{id}", cfg.InventoryHandler.GetAccount)
			r.Get("/blind-boxes/{blindBoxId}", cfg.InventoryHandler.GetBlindBox)
		}

		// Gateway callbacks authenticate inside the adapter.
		if cfg.WebhookHandler != nil {
			r.Post("/payments/webhook", cfg.WebhookHandler.PaymentWebhook)
		}

		if cfg.AuthHandler != nil {
			r.Route("/auth", func(r chi.Router) {
				group(r, cfg.APIKeyAuth, func(r chi.Router) {
					r.Post("/token", cfg.AuthHandler.GenerateToken)
				})
				r.Post("/revoke", cfg.AuthHandler.RevokeToken)
				r.Post("/refresh", cfg.AuthHandler.RefreshToken)
			})
		}

		// Buyer routes
		if cfg.OrderHandler != nil {
			group(r, cfg.SessionAuth, func(r chi.Router) {
				r.Post("/purchases", cfg.OrderHandler.Purchase)
				r.Get("/orders", cfg.OrderHandler.ListOrders)
				r.Get("/orders/status", cfg.OrderHandler.OrderStatus)
				r.Get("/orders/{orderNumber}/credentials", cfg.OrderHandler.Credentials)
				r.Post("/blind-boxes/tear", cfg.OrderHandler.Tear)
				r.Post("/blind-boxes/{blindBoxId}/tear", cfg.OrderHandler.Tear)
			})
		}

		// Admin routes
		if cfg.AdminHandler != nil {
			r.Route("/admin", func(r chi.Router) {
				if cfg.AdminAuth != nil {
					r.Use(cfg.AdminAuth)
				}
				r.Get("/stats", cfg.AdminHandler.GetStats)
				r.Get("/health", cfg.AdminHandler.GetHealth)

				r.Post("/accounts", cfg.AdminHandler.CreateAccount)
				r.Get("/accounts", cfg.AdminHandler.ListAccounts)
				r.Put("/accounts/{id}/visibility", cfg.AdminHandler.SetAccountVisibility)

				r.Post("/blind-boxes", cfg.AdminHandler.CreateBlindBox)
				r.Post("/blind-boxes/{blindBoxId}/pool", cfg.AdminHandler.AddToPool)

				r.Put("/orders/{id}/status", cfg.AdminHandler.UpdateOrderStatus)
				r.Delete("/orders/{id}", cfg.AdminHandler.DeleteOrder)
				r.Put("/payments/{id}/status", cfg.AdminHandler.UpdatePaymentStatus)

				r.Post("/reservations/sweep", cfg.AdminHandler.SweepReservations)
				r.Post("/reconcile", cfg.AdminHandler.Reconcile)

				if cfg.LogHandler != nil {
					r.Get("/gateway-events", cfg.LogHandler.GetGatewayEvents)
				}
			})
		}
	})

	return r
}
