package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"cases-miniapp-backend/internal/models"
	"cases-miniapp-backend/internal/services"
)

type OpenHandler struct {
	opens *services.OpenService
}

func NewOpenHandler(opens *services.OpenService) *OpenHandler {
	return &OpenHandler{opens: opens}
}

// OpenCase answers 200 with a prize, 402 no_rights when the balance is
// empty, or 503 ledger_unavailable.
func (h *OpenHandler) OpenCase(c *gin.Context) {
	req := readClientRequest(c)
	if len(req.RequestID) > maxRequestIDLen {
		c.JSON(http.StatusBadRequest, errorResponse(models.ErrCodeBadPayload))
		return
	}

	res, err := h.opens.Open(c.Request.Context(), req)
	c.Header(HeaderRequestID, res.RequestID)

	validated := res.Validated
	resp := models.OpenResponse{
		UserID:    res.UserID,
		Balance:   res.Balance,
		Validated: &validated,
	}

	switch {
	case errors.Is(err, services.ErrNoEntitlement):
		resp.Error = models.ErrCodeNoRights
		c.JSON(http.StatusPaymentRequired, resp)
	case err != nil:
		resp.Error = models.ErrCodeLedgerUnavailable
		resp.Balance = nil
		c.JSON(http.StatusServiceUnavailable, resp)
	default:
		resp.OK = true
		resp.Prize = res.Prize
		c.JSON(http.StatusOK, resp)
	}
}

func (h *OpenHandler) Balance(c *gin.Context) {
	req := readClientRequest(c)

	res, err := h.opens.Balance(c.Request.Context(), req.InitData)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse(models.ErrCodeLedgerUnavailable))
		return
	}

	c.JSON(http.StatusOK, models.OpenResponse{
		OK:        true,
		UserID:    res.UserID,
		Balance:   &res.Balance,
		Validated: &res.Validated,
	})
}
