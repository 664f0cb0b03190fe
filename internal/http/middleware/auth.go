package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"busline/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const actorKey = "actor_id"

// Auth verifies the bearer token of operator endpoints and records the
// user_id claim as the acting operator. With an empty secret every request
// passes as the system actor.
func Auth(secret string) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		if secret == "" {
			setActor(c, domain.SystemActor, "")
			c.Next()
			return
		}

		raw := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		if raw == "" {
			abortUnauthorized(c, "missing bearer token")
			return
		}
		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return key, nil
		})
		if err != nil || !token.Valid {
			abortUnauthorized(c, "invalid token")
			return
		}
		actor := claimString(claims["user_id"])
		if actor == "" {
			abortUnauthorized(c, "token has no user_id")
			return
		}
		setActor(c, actor, claimString(claims["role"]))
		c.Next()
	}
}

func claimString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatInt(int64(x), 10)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

func setActor(c *gin.Context, actor, role string) {
	c.Set(actorKey, actor)
	rc, _ := domain.FromContext(c.Request.Context())
	rc.ActorID, rc.Role = actor, role
	c.Request = c.Request.WithContext(domain.WithRequestContext(c.Request.Context(), rc))
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":      msg,
		"code":       "unauthorized",
		"request_id": GetRequestID(c),
	})
}

// GetActor returns the operator set by Auth.
func GetActor(c *gin.Context) string {
	if v, ok := c.Get(actorKey); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return domain.SystemActor
}
