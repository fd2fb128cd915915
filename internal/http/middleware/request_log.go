package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arunlm/medilab-backend/internal/platform/ctxutil"
	"github.com/arunlm/medilab-backend/internal/platform/logger"
)

// RequestLog emits one structured line per request after it completes.
func RequestLog(log *logger.Logger) gin.HandlerFunc {
	reqLog := log.With("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		kvs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes_out", c.Writer.Size(),
		}
		if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
			kvs = append(kvs, "trace_id", td.TraceID, "request_id", td.RequestID)
		}
		if len(c.Errors) > 0 {
			kvs = append(kvs, "gin_errors", c.Errors.String())
		}

		if c.Writer.Status() >= 500 {
			reqLog.Error("request completed", kvs...)
			return
		}
		reqLog.Info("request completed", kvs...)
	}
}
