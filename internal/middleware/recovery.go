package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/notehub/collab/internal/dto"
)

// Recovery recovers panics in REST handlers, logs them, and returns a
// structured 500 instead of letting gin's default handler close the
// connection uncleanly. The realtime connection's own dispatch loop has
// its own equivalent recover, since a panicking handler there must not
// take the rest of the hub down with it.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered in request handler",
					zap.Any("panic", r),
					zap.String("path", c.Request.URL.Path),
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, dto.ErrorResponse{
					BaseResponse: dto.BaseResponse{
						Success:   false,
						Timestamp: time.Now(),
						RequestID: c.GetString("request_id"),
					},
					Error: &dto.ErrorDetail{
						Code:    "INTERNAL_ERROR",
						Message: "internal server error",
					},
				})
			}
		}()
		c.Next()
	}
}
