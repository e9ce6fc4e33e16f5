package transport

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	wshandler "github.com/alanyang/ipc-bridge/internal/transport/ws"
)

// NewRouter mounts the websocket hub under basePath. A non-nil mcpHandler is
// served at {basePath}/mcp.
func NewRouter(basePath string, hub *wshandler.Hub, mcpHandler http.Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(RequestLogger(basePath))
	r.Use(CORSMiddleware())

	base := "/" + strings.Trim(basePath, "/")
	if base == "/" {
		base = ""
	}
	api := r.Group(base)

	hub.Register(api)

	if mcpHandler != nil {
		api.Any("/mcp", gin.WrapH(mcpHandler))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "clients": hub.Clients()})
	})

	return r
}
