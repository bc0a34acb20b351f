package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"cases-miniapp-backend/internal/models"
	"cases-miniapp-backend/internal/services"
)

const (
	HeaderWebhookSecret = "X-Telegram-Bot-Api-Secret-Token"

	ContextAdminSubject = "admin_subject"
)

// AdminAuth requires an admin bearer token. The admin surface answers 404
// when no admin secret is configured.
func AdminAuth(jwtService *services.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !jwtService.Enabled() {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}

		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": models.ErrCodeUnauthorized})
			return
		}

		claims, err := jwtService.ValidateToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": models.ErrCodeUnauthorized})
			return
		}

		c.Set(ContextAdminSubject, claims.Subject)
		c.Next()
	}
}

// WebhookSecret checks Telegram's secret token header in constant time.
// An empty secret disables the check.
func WebhookSecret(secret string) gin.HandlerFunc {
	want := []byte(secret)
	return func(c *gin.Context) {
		if len(want) == 0 || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		got := []byte(c.GetHeader(HeaderWebhookSecret))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"ok": false, "error": models.ErrCodeForbidden})
			return
		}

		c.Next()
	}
}
