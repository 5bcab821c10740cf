package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// appCtxKey is the Gin context key used to store the authenticated app ID.
const appCtxKey = "app_id"

// APIKeyMiddleware admits callers holding a key from API_KEYS. Every app
// shares the process's single bridge session and data layer; the app name
// only identifies who is calling.
func APIKeyMiddleware(keys map[string]string) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := strings.TrimSpace(c.GetHeader("X-API-Key"))
		appID, ok := keys[apiKey]
		if apiKey == "" || !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(appCtxKey, appID)
		c.Next()
	}
}

// AppID returns the app name bound to the caller's key, or "" when the
// request did not pass APIKeyMiddleware.
func AppID(c *gin.Context) string {
	v, _ := c.Get(appCtxKey)
	s, _ := v.(string)
	return s
}
