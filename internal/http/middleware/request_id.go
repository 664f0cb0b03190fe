package middleware

import (
	"regexp"

	"busline/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDKey    = "request_id"
	requestIDHeader = "X-Request-ID"
)

// upstream ids are echoed only when they are short opaque tokens
var validRequestID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// RequestID tags the request with an id, reusing a sane upstream X-Request-ID.
// The id is copied onto the request context for service logs.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if !validRequestID.MatchString(rid) {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Header(requestIDHeader, rid)

		rc, _ := domain.FromContext(c.Request.Context())
		rc.RequestID = rid
		c.Request = c.Request.WithContext(domain.WithRequestContext(c.Request.Context(), rc))
		c.Next()
	}
}

func GetRequestID(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(requestIDKey)
}
