package router

import (
	"fmt"
	"net/http"

	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/utils"

	"github.com/gin-gonic/gin"
)

const CspNonceContextKey = "csp_nonce"

// NonceMiddleware creates a fresh nonce for each request, stores it in the
// context and sends a Content-Security-Policy that only allows scripts
// carrying it.
func NonceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		nonce, err := utils.GenerateSecureToken(32)
		if err != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Set(CspNonceContextKey, nonce)
		c.Header("Content-Security-Policy", fmt.Sprintf(
			"default-src 'self'; script-src 'self' https://cdn.jsdelivr.net 'nonce-%s'; img-src 'self' data:; style-src 'self' 'unsafe-inline'",
			nonce,
		))
		c.Next()
	}
}
