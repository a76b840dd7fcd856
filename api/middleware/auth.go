package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/imagescout/models"
)

// IdentityKey is the gin context key holding the authenticated API key.
const IdentityKey = "api_key"

// Auth returns API-key authentication middleware. A key is read from, in
// order:
//
//	X-API-Key: <key>
//	Authorization: Bearer <key>
//	?api_key=<key>   (lets <img src> point at the proxy endpoint)
//
// With no keys configured every request passes.
func Auth(apiKeys []string) gin.HandlerFunc {
	var digests [][sha256.Size]byte
	for _, k := range apiKeys {
		if k != "" {
			digests = append(digests, sha256.Sum256([]byte(k)))
		}
	}
	if len(digests) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	valid := func(key string) bool {
		d := sha256.Sum256([]byte(key))
		ok := 0
		for i := range digests {
			ok |= subtle.ConstantTimeCompare(d[:], digests[i][:])
		}
		return ok == 1
	}

	return func(c *gin.Context) {
		key := extractAPIKey(c)
		switch {
		case key == "":
			unauthorized(c, "missing API key: provide X-API-Key header or Authorization: Bearer <key>")
		case !valid(key):
			unauthorized(c, "invalid API key")
		default:
			c.Set(IdentityKey, key)
			c.Next()
		}
	}
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
		Error: msg,
		Code:  models.ErrCodeUnauthorized,
	})
}

func extractAPIKey(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return c.Query("api_key")
}
