package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"busline/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func actorEcho(secret string) *gin.Engine {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/who", Auth(secret), func(c *gin.Context) {
		rc, _ := domain.FromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"actor": rc.ActorID, "request_id": rc.RequestID, "gin_actor": GetActor(c)})
	})
	return r
}

func TestRequestIDReusesSaneHeader(t *testing.T) {
	r := actorEcho("")
	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Fatalf("X-Request-ID = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/who", nil)
	req.Header.Set("X-Request-ID", "bad id with spaces")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got == "" || got == "bad id with spaces" {
		t.Fatalf("X-Request-ID = %q, want a fresh id", got)
	}
}

func TestAuthWithoutSecretUsesSystemActor(t *testing.T) {
	w := httptest.NewRecorder()
	actorEcho("").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/who", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body := w.Body.String(); !strings.Contains(body, `"actor":"system"`) {
		t.Fatalf("body = %s", body)
	}
}

func TestAuthRejectsWrongKeyAndAcceptsValidToken(t *testing.T) {
	r := actorEcho("k1")

	sign := func(key string, claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}
	call := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/who", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	exp := time.Now().Add(time.Hour).Unix()
	if w := call(""); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d", w.Code)
	}
	if w := call(sign("other", jwt.MapClaims{"user_id": "7", "exp": exp})); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key: status = %d", w.Code)
	}
	if w := call(sign("k1", jwt.MapClaims{"user_id": "7", "exp": time.Now().Add(-time.Hour).Unix()})); w.Code != http.StatusUnauthorized {
		t.Fatalf("expired: status = %d", w.Code)
	}
	if w := call(sign("k1", jwt.MapClaims{"exp": exp})); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing user_id: status = %d", w.Code)
	}
	w := call(sign("k1", jwt.MapClaims{"user_id": 7, "exp": exp}))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"actor":"7"`) || !strings.Contains(w.Body.String(), `"gin_actor":"7"`) {
		t.Fatalf("valid token: status = %d body = %s", w.Code, w.Body.String())
	}
}
