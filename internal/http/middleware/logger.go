package middleware

import (
	"log"
	"net/http"
	"time"

	"busline/internal/domain"

	"github.com/gin-gonic/gin"
)

// Logger writes one access line per request. Server errors also carry the
// errors handlers attached with c.Error.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()
		line := "[HTTP] request_id=%s method=%s route=%s status=%d latency_ms=%.3f actor=%s"
		args := []any{
			GetRequestID(c), c.Request.Method, route, status,
			float64(time.Since(start).Microseconds()) / 1000.0,
			domain.ActorFromContext(c.Request.Context()),
		}
		if status >= http.StatusInternalServerError && len(c.Errors) > 0 {
			line += " err=%q"
			args = append(args, c.Errors.String())
		}
		log.Printf(line, args...)
	}
}
