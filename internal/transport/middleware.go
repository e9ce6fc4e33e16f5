package transport

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestLogger logs each request. The long-lived websocket upgrade and the
// discovery endpoint are logged at Debug to keep Info clean.
func RequestLogger(basePath string) gin.HandlerFunc {
	base := "/" + strings.Trim(basePath, "/")
	noisy := map[string]bool{
		strings.TrimSuffix(base, "/") + "/ws": true,
		"/healthz":                            true,
	}
	syncPrefix := strings.TrimSuffix(base, "/") + "/sync/"

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if c.Request.Method == "OPTIONS" {
			return
		}

		level := slog.LevelInfo
		path := c.Request.URL.Path
		if c.Request.Method == "GET" && (noisy[path] || strings.HasPrefix(path, syncPrefix)) {
			level = slog.LevelDebug
		}

		slog.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Mcp-Session-Id")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
