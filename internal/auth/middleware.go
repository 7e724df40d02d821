package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type ctxKey int

const claimsKey ctxKey = 1

func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(claimsKey).(Claims)
	return c, ok
}

func WithClaims(ctx context.Context, c Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

// publicPath lists routes that stay open: probes, metrics and the ledger webhook.
func publicPath(p string, open []string) bool {
	if p == "/healthz" || p == "/readyz" || p == "/metrics" {
		return true
	}
	for _, o := range open {
		if o != "" && p == o {
			return true
		}
	}
	return false
}

// Middleware verifies bearer tokens on /api, /swagger and /docs. Write methods
// also need an operator role. A nil jwt disables the check.
func Middleware(j *JWT, open ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if j == nil {
			c.Next()
			return
		}
		p := c.Request.URL.Path
		if publicPath(p, open) {
			c.Next()
			return
		}
		if !strings.HasPrefix(p, "/api/") && !strings.HasPrefix(p, "/swagger") && p != "/docs" {
			c.Next()
			return
		}
		tok := bearerToken(c.GetHeader("Authorization"))
		if tok == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "missing bearer token"})
			return
		}
		claims, err := j.Verify(tok)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "invalid token"})
			return
		}
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
		default:
			if !claims.CanWrite() {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "message": "role cannot write"})
				return
			}
		}
		c.Request = c.Request.WithContext(WithClaims(c.Request.Context(), claims))
		c.Next()
	}
}

func bearerToken(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	parts := strings.SplitN(v, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
