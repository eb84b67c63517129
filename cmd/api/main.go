package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gameshop-api/internal/cache"
	"gameshop-api/internal/config"
	"gameshop-api/internal/gateway"
	"gameshop-api/internal/handler"
	"gameshop-api/internal/middleware"
	"gameshop-api/internal/notify"
	"gameshop-api/internal/repository"
	"gameshop-api/internal/router"
	"gameshop-api/internal/secrets"
	"gameshop-api/internal/service"
)

func openStore(cfg config.StoreConfig) (repository.Store, *repository.SQLStore, error) {
	switch cfg.Driver {
	case "memory":
		return repository.NewMemoryStore(), nil, nil
	case "postgres", "postgresql":
		s, err := repository.NewPostgresStore(cfg.PostgresDSN())
		return s, s, err
	case "mysql":
		s, err := repository.NewMySQLStore(cfg.MySQLDSN())
		return s, s, err
	default: // sqlite
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		s, err := repository.NewSQLiteStore(cfg.Path)
		return s, s, err
	}
}

func openEventLog(cfg config.EventLogConfig, sqlStore *repository.SQLStore) (repository.EventLogRepository, error) {
	switch {
	case cfg.Type == "mongodb" || cfg.Type == "mongo":
		return repository.NewMongoDBEventLogRepository(cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
	case cfg.Type == "sql" && sqlStore != nil:
		return repository.NewSQLEventLogRepository(sqlStore)
	default:
		return repository.NewMemoryEventLogRepository(), nil
	}
}

func openGateway(cfg config.GatewayConfig, prefix string) (gateway.Gateway, error) {
	if cfg.Provider == "sepay" {
		return gateway.NewSePay(gateway.SePayConfig{
			AccountNumber:   cfg.AccountNumber,
			BankCode:        cfg.BankCode,
			APIToken:        cfg.APIToken,
			WebhookKey:      cfg.WebhookKey,
			ReferencePrefix: prefix,
			QRBaseURL:       cfg.QRBaseURL,
			APIBaseURL:      cfg.APIBaseURL,
			QRTTL:           cfg.QRTTL,
			LookupTimeout:   cfg.LookupTimeout,
		})
	}
	log.Println("Warning: using the sandbox payment gateway")
	return gateway.NewSandbox(cfg.QRTTL, cfg.SandboxKey), nil
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting GameShop API...")

	// Load configuration
	cfg := config.MustLoad()
	log.Printf("Environment: %s", cfg.App.Environment)

	// Inventory store
	store, sqlStore, err := openStore(cfg.Store)
	if err != nil {
		log.Fatalf("Failed to initialize %s store: %v", cfg.Store.Driver, err)
	}
	defer store.Close()
	log.Printf("%s store initialized", cfg.Store.Driver)

	events, err := openEventLog(cfg.EventLog, sqlStore)
	if err != nil {
		log.Fatalf("Failed to initialize gateway event log: %v", err)
	}
	defer events.Close()

	checks := map[string]handler.Pinger{"database": store}

	// Cache: Redis when configured, in-process otherwise
	var c cache.Cache
	if cfg.Cache.Type == "redis" {
		redisCache, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:      cfg.Cache.RedisAddress(),
			Password:  cfg.Cache.RedisPassword,
			DB:        cfg.Cache.RedisDB,
			KeyPrefix: cfg.Cache.RedisKeyPrefix,
		})
		if err != nil {
			log.Printf("Warning: Redis connection failed, falling back to memory cache: %v", err)
		} else {
			c = redisCache
			checks["cache"] = redisCache
			log.Println("Redis cache initialized")
		}
	}
	if c == nil {
		c = cache.NewMemoryCache()
		log.Println("Memory cache initialized")
	}
	defer c.Close()

	sealer, err := secrets.NewSealer(cfg.Security.CredentialsSecret)
	if err != nil {
		log.Fatalf("Failed to initialize credential sealer: %v", err)
	}

	gw, err := openGateway(cfg.Gateway, cfg.Payments.ReferencePrefix)
	if err != nil {
		log.Fatalf("Failed to initialize payment gateway: %v", err)
	}

	var notifier notify.Notifier = notify.LogNotifier{}
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.Timeout, cfg.Notify.MaxElapsed)
	}

	// Initialize services
	inventoryService := service.NewInventoryService(store, sealer)
	allocator := service.NewAllocator(store, service.AllocatorConfig{ReservationTTL: cfg.Reservations.TTL})
	ledger := service.NewOrderLedger(store, allocator, sealer, c)
	payments := service.NewPaymentService(store, gw, c, events, ledger, service.PaymentConfig{
		ReferencePrefix: cfg.Payments.ReferencePrefix,
		LookupCacheTTL:  cfg.Payments.LookupCacheTTL,
		ExpiryGrace:     cfg.Payments.ExpiryGrace,
	})
	reconciler := service.NewReconciler(store, ledger, payments, notifier, cfg.Reconcile.Batch)
	statusService := service.NewStatusService(store, payments, reconciler, c, cfg.Cache.StatusTTL)
	sweeper := service.NewReservationSweeper(store, ledger, allocator, cfg.Reservations.SweepBatch)
	purchases := service.NewPurchaseService(ledger, payments, allocator)
	sessions := service.NewSessionService(c, cfg.Security.SessionTTL)

	// Background jobs
	reconcileJob := service.NewScheduler("Reconciler", service.SchedulerConfig{
		Interval:     cfg.Reconcile.Interval,
		InitialDelay: 5 * time.Second,
	}, reconciler.ReconcilePending)
	sweepJob := service.NewScheduler("ReservationSweeper", service.SchedulerConfig{
		Interval: cfg.Reservations.SweepInterval,
	}, func(ctx context.Context) error {
		_, err := sweeper.Sweep(ctx)
		return err
	})
	reconcileJob.Start()
	sweepJob.Start()

	// Initialize handlers
	r := router.New(router.Config{
		Handler:          handler.New(cfg.App.Name, cfg.App.Version, checks),
		InventoryHandler: handler.NewInventoryHandler(inventoryService),
		OrderHandler:     handler.NewOrderHandler(purchases, ledger, statusService),
		WebhookHandler:   handler.NewWebhookHandler(gw, payments),
		AuthHandler:      handler.NewAuthHandler(sessions),
		LogHandler:       handler.NewLogHandler(events),
		AdminHandler: handler.NewAdminHandler(handler.AdminDeps{
			Store:      store,
			Inventory:  inventoryService,
			Ledger:     ledger,
			Payments:   payments,
			Reconciler: reconciler,
			Sweeper:    sweeper,
			Driver:     cfg.Store.Driver,
		}),
		SessionAuth:    middleware.RequireSession(sessions),
		APIKeyAuth:     middleware.RequireAPIKey(cfg.Security.Keys()),
		AdminAuth:      middleware.RequireLoginKey(cfg.Security.LoginKey),
		AllowedOrigins: cfg.Server.Origins(),
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	// Stop background jobs after the last request has finished
	reconcileJob.Stop()
	sweepJob.Stop()

	log.Println("Server stopped")
}
