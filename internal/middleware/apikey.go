package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	// APIKeyHeader is the canonical header carrying the shared API key.
	APIKeyHeader = "X-API-Key"

	// APIKeyQueryParam is the fallback query parameter. Browser media elements
	// (<audio src=...>) cannot attach custom headers, so stream URLs embed the
	// key as ?apiKey= instead.
	APIKeyQueryParam = "apiKey"
)

// APIKeyMiddleware returns a Gin handler that gates every request behind the
// single shared API key.
//
// The key is read from the X-API-Key header first, then from the apiKey query
// parameter. A request with no key at all is rejected with 401; a request with
// a wrong key is rejected with 403. The comparison is constant-time so response
// timing leaks nothing about the configured key.
func APIKeyMiddleware(expected string) gin.HandlerFunc {
	want := []byte(expected)
	return func(c *gin.Context) {
		got := c.GetHeader(APIKeyHeader)
		if got == "" {
			got = c.Query(APIKeyQueryParam)
		}

		if got == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "API key required. Provide X-API-Key header or apiKey query parameter.",
			})
			return
		}

		if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Invalid API key",
			})
			return
		}

		c.Next()
	}
}
