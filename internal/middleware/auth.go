package middleware

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/playmatatu/experiment/internal/auth"
	"github.com/playmatatu/experiment/internal/config"
	"golang.org/x/crypto/bcrypt"
)

// ClaimsKey is the gin context key holding *auth.Claims.
const ClaimsKey = "claims"

// RequireSession verifies the bearer token, or the token query parameter
// for WebSocket upgrades, and stores its claims on the context.
func RequireSession(iss *auth.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session token required"})
			return
		}

		claims, err := iss.Parse(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session token"})
			return
		}
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// Claims returns the claims stored by RequireSession.
func Claims(c *gin.Context) *auth.Claims {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*auth.Claims)
	return claims
}

// AdminAuth checks the X-Admin-Key header against the configured bcrypt
// hash. Without a configured hash every admin request is refused.
func AdminAuth(cfg *config.Config) gin.HandlerFunc {
	if cfg.AdminKeyHash == "" {
		log.Printf("[ADMIN] ADMIN_KEY_HASH not set; admin routes disabled")
	}
	return func(c *gin.Context) {
		key := c.GetHeader("X-Admin-Key")
		if cfg.AdminKeyHash == "" || key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin key required"})
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(cfg.AdminKeyHash), []byte(key)); err != nil {
			log.Printf("[ADMIN] rejected admin key from %s", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid admin key"})
			return
		}
		c.Next()
	}
}

// HashAdminKey returns the bcrypt hash to put in ADMIN_KEY_HASH.
func HashAdminKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
