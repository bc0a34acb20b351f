package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cases-miniapp-backend/internal/models"
	"cases-miniapp-backend/internal/services"
	"cases-miniapp-backend/internal/telegram"
)

type PaymentHandler struct {
	payments *services.PaymentService
	opens    *services.OpenService
	logger   *zap.Logger
}

func NewPaymentHandler(payments *services.PaymentService, opens *services.OpenService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, opens: opens, logger: logger}
}

// CreateInvoice is only available to verified users.
func (h *PaymentHandler) CreateInvoice(c *gin.Context) {
	req := readClientRequest(c)

	vr := h.opens.Verify(req.InitData)
	if !services.Authorized(vr) {
		c.JSON(http.StatusUnauthorized, errorResponse(models.ErrCodeUnauthorized))
		return
	}

	link, err := h.payments.CreateInvoice(c.Request.Context(), vr.UserID)
	if err != nil {
		h.logger.Error("create invoice failed", zap.String("user_id", vr.UserID), zap.Error(err))
		c.JSON(http.StatusBadGateway, errorResponse(models.ErrCodeInvoiceFailed))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"link":    link.Link,
		"payload": link.Payload,
		"userId":  vr.UserID,
	})
}

// Webhook receives Bot API updates. Telegram redelivers on non-2xx, which
// is safe because grants are idempotent on the invoice payload.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	if c.Request.Method == http.MethodGet {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	var upd telegram.Update
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(models.ErrCodeBadPayload))
		return
	}

	res, err := h.payments.HandleUpdate(c.Request.Context(), upd)
	switch {
	case errors.Is(err, services.ErrBadPayment):
		c.JSON(http.StatusBadRequest, errorResponse(models.ErrCodeBadPayload))
		return
	case err != nil:
		h.logger.Error("webhook update failed", zap.Int64("update_id", upd.UpdateID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse(models.ErrCodeInternal))
		return
	}

	switch res.Kind {
	case services.UpdatePayment:
		c.JSON(http.StatusOK, gin.H{"ok": true, "userId": res.UserID, "newBalance": res.Balance})
	case services.UpdatePreCheckout:
		c.JSON(http.StatusOK, gin.H{"ok": true, "approved": res.Approved})
	default:
		c.JSON(http.StatusOK, gin.H{"ok": true, "skipped": true})
	}
}
