package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cases-miniapp-backend/internal/middleware"
	"cases-miniapp-backend/internal/models"
	"cases-miniapp-backend/internal/services"
)

type AdminHandler struct {
	payments *services.PaymentService
	logger   *zap.Logger
}

func NewAdminHandler(payments *services.PaymentService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{payments: payments, logger: logger}
}

func (h *AdminHandler) Grant(c *gin.Context) {
	var req models.GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.RequestID) > maxRequestIDLen {
		c.JSON(http.StatusBadRequest, errorResponse(models.ErrCodeBadPayload))
		return
	}
	req.Reason = models.GrantReasonAdmin

	res, err := h.payments.Grant(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, services.ErrLedgerUnavailable) {
			c.JSON(http.StatusServiceUnavailable, errorResponse(models.ErrCodeLedgerUnavailable))
			return
		}
		c.JSON(http.StatusBadRequest, errorResponse(models.ErrCodeBadPayload))
		return
	}

	h.logger.Info("admin grant",
		zap.String("admin", c.GetString(middleware.ContextAdminSubject)),
		zap.String("user_id", req.UserID),
		zap.Int64("delta", req.Delta),
		zap.Bool("replayed", res.Replayed),
	)

	c.JSON(http.StatusOK, gin.H{
		"ok":       true,
		"userId":   req.UserID,
		"balance":  res.Balance,
		"replayed": res.Replayed,
	})
}
