package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"cases-miniapp-backend/internal/config"
	"cases-miniapp-backend/internal/handlers"
	"cases-miniapp-backend/internal/logger"
	"cases-miniapp-backend/internal/middleware"
	"cases-miniapp-backend/internal/models"
	"cases-miniapp-backend/internal/services"
	"cases-miniapp-backend/internal/telegram"
)

// backend bundles the ledger, audit sink and optional rate limiter a
// storage choice provides.
type backend struct {
	ledger  services.Ledger
	audit   services.AuditStore
	limiter middleware.Limiter
	health  func(ctx context.Context) error
	closer  io.Closer
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync()

	ctx := context.Background()

	store, err := openBackend(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("Failed to open ledger backend", zap.String("backend", cfg.LedgerBackend), zap.Error(err))
	}
	if store.closer != nil {
		defer store.closer.Close()
	}

	catalog, err := models.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		zl.Fatal("Failed to load catalog", zap.Error(err))
	}

	seed := cfg.DrawSeed
	if seed == "" {
		if seed, err = models.GenerateDrawSeed(); err != nil {
			zl.Fatal("Failed to generate draw seed", zap.Error(err))
		}
		zl.Info("DRAW_SEED not set, using a per-process seed")
	}

	rewards, err := services.NewRewardSelector(catalog, []byte(seed))
	if err != nil {
		zl.Fatal("Invalid catalog", zap.Error(err))
	}

	recorder := services.NewAuditRecorder(store.audit, cfg.AuditQueueSize, cfg.AuditWorkers, cfg.AuditTimeout, zl)
	defer recorder.Close()

	verifier := telegram.NewVerifier(cfg.BotToken, cfg.InitDataMaxAge)
	ledger := services.NewBoundedLedger(store.ledger, cfg.LedgerTimeout)
	hub := handlers.NewWebSocketHub(zl)

	opens := services.NewOpenService(verifier, ledger, rewards, recorder, zl)
	payments := services.NewPaymentService(
		ledger,
		telegram.NewBotClient(cfg.TelegramAPIURL, cfg.BotToken),
		hub,
		recorder,
		services.PaymentConfig{
			PriceStars:         cfg.PriceStars,
			OpensPerPurchase:   cfg.OpensPerPurchase,
			InvoiceTitle:       cfg.InvoiceTitle,
			InvoiceDescription: cfg.InvoiceDescription,
		},
		zl,
	)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Opens:         opens,
		Payments:      payments,
		JWT:           services.NewJWTService(cfg.AdminJWTSecret),
		Hub:           hub,
		Verifier:      verifier,
		Limiter:       store.limiter,
		WebhookSecret: cfg.WebhookSecret,
		Health:        store.health,
		Logger:        zl,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zl.Info("Server starting",
			zap.String("port", cfg.Port),
			zap.String("backend", cfg.LedgerBackend),
			zap.Int("catalog_items", len(catalog)),
			zap.Duration("init_data_max_age", cfg.InitDataMaxAge),
			zap.Bool("webhook_secret", cfg.WebhookSecret != ""),
			zap.Bool("admin_api", cfg.AdminJWTSecret != ""),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	zl.Info("Received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zl.Error("Server shutdown error", zap.Error(err))
	}
}

func openBackend(ctx context.Context, cfg *config.Config, zl *zap.Logger) (*backend, error) {
	var limiter middleware.Limiter
	if cfg.OpenRateLimit > 0 {
		limiter = middleware.NewLocalLimiter(cfg.OpenRateLimit, time.Minute)
	}

	switch cfg.LedgerBackend {
	case config.BackendRedis:
		redisService, err := services.NewRedisService(cfg)
		if err != nil {
			return nil, err
		}
		if cfg.OpenRateLimit > 0 {
			limiter = middleware.NewRedisLimiter(redisService, "open", cfg.OpenRateLimit, time.Minute)
		}
		return &backend{
			ledger:  redisService,
			audit:   redisService,
			limiter: limiter,
			health:  redisService.Ping,
			closer:  redisService,
		}, nil

	case config.BackendPostgres:
		pg, err := services.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &backend{ledger: pg, audit: pg, limiter: limiter, health: pg.Ping, closer: pg}, nil

	default:
		zl.Warn("Using the in-memory ledger; balances are lost on restart")
		return &backend{
			ledger:  services.NewMemoryLedger(),
			audit:   services.NewLogAuditStore(zl),
			limiter: limiter,
		}, nil
	}
}
