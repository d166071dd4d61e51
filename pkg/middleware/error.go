package middleware

import (
	"errors"
	"net/http"

	"licensing-controlplane/pkg/errutil"
	"licensing-controlplane/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error renders the last error attached to the gin context.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		var base errutil.BaseError
		if errors.As(last.Err, &base) {
			if base.Code.HTTPStatus() >= http.StatusInternalServerError {
				logger.FromContext(c.Request.Context()).Error("request failed",
					zap.String("path", c.FullPath()),
					zap.String("reason", base.Reason),
					zap.Error(last.Err),
				)
			}
			c.JSON(base.Code.HTTPStatus(), base.JSON())
			return
		}

		logger.FromContext(c.Request.Context()).Error("unhandled error", zap.String("path", c.FullPath()), zap.Error(last.Err))
		c.JSON(http.StatusInternalServerError, errutil.BaseError{
			Code:    errutil.StatusInternal,
			Message: "internal error",
		}.JSON())
	}
}
