package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"cases-miniapp-backend/internal/models"
	"cases-miniapp-backend/internal/services"
	"cases-miniapp-backend/internal/telegram"
)

const (
	HeaderInitData  = "X-Init-Data"
	HeaderRequestID = "X-Request-Id"
	HeaderPlatform  = "X-Tg-Platform"
	HeaderVersion   = "X-Tg-Version"
	QueryInitData   = "initData"

	maxRequestIDLen = 128

	contextClientRequest = "client_request"
)

type clientBody struct {
	InitData  string `json:"initData"`
	RequestID string `json:"requestId"`
}

// readClientRequest collects init data from the JSON body, then the
// X-Init-Data header, then the initData query parameter. The body is cached
// so middleware and handlers can both read it.
func readClientRequest(c *gin.Context) models.OpenRequest {
	if v, ok := c.Get(contextClientRequest); ok {
		return v.(models.OpenRequest)
	}

	var body clientBody
	if c.Request.Method == http.MethodPost && c.Request.ContentLength != 0 {
		// A broken body falls through to the header and query sources.
		_ = c.ShouldBindBodyWith(&body, binding.JSON)
	}

	req := models.OpenRequest{
		InitData:  firstNonEmpty(body.InitData, c.GetHeader(HeaderInitData), c.Query(QueryInitData)),
		RequestID: firstNonEmpty(c.GetHeader(HeaderRequestID), body.RequestID),
		Platform:  c.GetHeader(HeaderPlatform),
		Version:   c.GetHeader(HeaderVersion),
		Source:    c.Request.UserAgent(),
	}
	c.Set(contextClientRequest, req)
	return req
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ClientKey keys rate limits by verified user id, falling back to the
// client IP for everyone else.
func ClientKey(verifier *telegram.Verifier) func(*gin.Context) string {
	return func(c *gin.Context) string {
		req := readClientRequest(c)
		if req.InitData != "" {
			if vr := verifier.Verify(req.InitData); services.Authorized(vr) {
				return "user:" + vr.UserID
			}
		}
		return "ip:" + c.ClientIP()
	}
}

func errorResponse(code string) models.OpenResponse {
	return models.OpenResponse{OK: false, Error: code}
}
