package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cases-miniapp-backend/internal/metrics"
	"cases-miniapp-backend/internal/middleware"
	"cases-miniapp-backend/internal/services"
	"cases-miniapp-backend/internal/telegram"
)

// RouterConfig wires the handlers. Health, when set, backs /health with a
// ledger store ping. WSPongWait of zero keeps the default keepalive.
type RouterConfig struct {
	Opens         *services.OpenService
	Payments      *services.PaymentService
	JWT           *services.JWTService
	Hub           *WebSocketHub
	Verifier      *telegram.Verifier
	Limiter       middleware.Limiter
	WebhookSecret string
	Health        func(ctx context.Context) error
	WSPongWait    time.Duration
	Logger        *zap.Logger
}

const healthTimeout = 2 * time.Second

func NewRouter(cfg RouterConfig) *gin.Engine {
	openHandler := NewOpenHandler(cfg.Opens)
	paymentHandler := NewPaymentHandler(cfg.Payments, cfg.Opens, cfg.Logger)
	adminHandler := NewAdminHandler(cfg.Payments, cfg.Logger)
	wsHandler := NewWebSocketHandler(cfg.Opens, cfg.Hub, cfg.WSPongWait, cfg.Logger)

	router := gin.New()
	router.Use(middleware.Recovery(cfg.Logger), middleware.RequestLogger(cfg.Logger), middleware.CORS())

	router.GET("/health", func(c *gin.Context) {
		if cfg.Health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
			defer cancel()
			if err := cfg.Health(ctx); err != nil {
				cfg.Logger.Warn("health check failed", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "ledger_unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	openChain := []gin.HandlerFunc{openHandler.OpenCase}
	if cfg.Limiter != nil {
		openChain = append([]gin.HandlerFunc{
			middleware.RateLimit(cfg.Limiter, ClientKey(cfg.Verifier), cfg.Logger),
		}, openChain...)
	}

	api := router.Group("/api")
	{
		api.GET("/open_case", openChain...)
		api.POST("/open_case", openChain...)

		api.GET("/balance", openHandler.Balance)
		api.POST("/balance", openHandler.Balance)

		api.GET("/create_invoice", paymentHandler.CreateInvoice)
		api.POST("/create_invoice", paymentHandler.CreateInvoice)

		webhook := api.Group("/tg_webhook", middleware.WebhookSecret(cfg.WebhookSecret))
		webhook.GET("", paymentHandler.Webhook)
		webhook.POST("", paymentHandler.Webhook)

		api.GET("/ws", wsHandler.HandleWebSocket)
	}

	admin := router.Group("/admin", middleware.AdminAuth(cfg.JWT))
	{
		admin.POST("/grant", adminHandler.Grant)
	}

	return router
}
