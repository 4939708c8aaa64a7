package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/apperrors"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/logger"
)

// statusClientClosedRequest is nginx's code for a client that went away mid-request.
const statusClientClosedRequest = 499

func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if !c.Writer.Written() {
				c.AbortWithStatusJSON(statusClientClosedRequest, gin.H{"code": "CANCELLED", "message": err.Error()})
			}
			return
		}

		var appErr *apperrors.AppError
		if !errors.As(err, &appErr) {
			appErr = apperrors.New(apperrors.ErrInternal, err.Error(), err)
		}

		logFields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"code", appErr.Type,
			"request_id", c.GetString(ContextRequestID),
			"client_ip", c.ClientIP(),
		}
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			logger.LogError(c.Request.Context(), appErr, "request failed", logFields...)
		} else {
			logger.Warn(appErr.Error(), logFields...)
		}

		if !c.Writer.Written() {
			c.JSON(appErr.HTTPStatus, appErr)
		}
	}
}
