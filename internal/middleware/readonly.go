package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/apperrors"
)

// ReadOnlyMiddleware lets quotes and reads through but refuses anything that signs or
// spends: trades and allowance approvals.
func ReadOnlyMiddleware(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			c.Next()
			return
		}

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		switch c.FullPath() {
		case "/v1/quotes", "/v1/quotes/swap":
			c.Next()
			return
		}
		_ = c.Error(apperrors.New(apperrors.ErrReadOnly, "read-only mode enabled", nil))
		c.Abort()
	}
}
