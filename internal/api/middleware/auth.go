package middleware

import (
	"net/http"
	"strings"

	"github.com/cvlogg/musicgrabber2/internal/config"
	"github.com/gin-gonic/gin"
)

// Auth checks the X-API-Key header (or api_key query parameter) against
// the configured key list. With no keys configured the API is open,
// which is the expected mode behind a private reverse proxy.
func Auth(cfg *config.SecurityConfig) gin.HandlerFunc {
	validKeys := make(map[string]string)
	for _, key := range cfg.APIKeys {
		validKeys[key.Key] = key.Name
	}

	return func(c *gin.Context) {
		if len(validKeys) == 0 {
			c.Next()
			return
		}

		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			apiKey = c.Query("api_key")
		}

		if apiKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing api key"})
			c.Abort()
			return
		}

		if name, ok := validKeys[apiKey]; ok {
			c.Set("api_key_name", name)
			c.Next()
			return
		}

		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
		c.Abort()
	}
}

func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-API-Key")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RequestLogger keeps probe noise out of the access log.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/health") {
			c.Next()
			return
		}
		c.Next()
	}
}
