package wire

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	pgdb "github.com/alanyang/ipc-bridge/internal/adapter/postgres"
	pgeventbus "github.com/alanyang/ipc-bridge/internal/adapter/postgres/eventbus"
	"github.com/alanyang/ipc-bridge/internal/config"
	"github.com/alanyang/ipc-bridge/internal/domain/registry"
	"github.com/alanyang/ipc-bridge/internal/service/host"
	"github.com/alanyang/ipc-bridge/internal/transport"
	mcptransport "github.com/alanyang/ipc-bridge/internal/transport/mcp"
	wshandler "github.com/alanyang/ipc-bridge/internal/transport/ws"
)

// App holds the top-level resources needed to run and gracefully stop the host.
type App struct {
	Host   *host.Service
	Hub    *wshandler.Hub
	Server *http.Server

	// Optional endpoints; nil when not configured.
	MCPServer *mcptransport.Server
	Pool      *pgxpool.Pool
	Relay     *pgeventbus.EventBus
}

// Build is the composition root: the only place concrete types are wired to their
// interface dependencies.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	app := &App{Hub: wshandler.NewHub()}

	// ── Endpoints ────────────────────────────────────────────────────────────
	endpoints := []any{app.Hub}

	if cfg.MCP {
		app.MCPServer = mcptransport.New("ipc-bridge", "1.0.0")
		endpoints = append(endpoints, app.MCPServer)
	}

	if cfg.DatabaseURL != "" {
		pool, err := pgdb.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		app.Pool = pool
		app.Relay = pgeventbus.New(pool)
		endpoints = append(endpoints, app.Relay)
	}

	// ── Services ─────────────────────────────────────────────────────────────
	app.Host = host.NewService(registry.New(), endpoints...)

	// ── Transport ─────────────────────────────────────────────────────────────
	var mcpHandler http.Handler
	if app.MCPServer != nil {
		mcpHandler = app.MCPServer.Handler()
	}
	router := transport.NewRouter(cfg.BasePath, app.Hub, mcpHandler)

	app.Server = &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}

	slog.Info("application wired",
		"addr", cfg.Addr,
		"base_path", cfg.BasePath,
		"mcp", cfg.MCP,
		"pg_relay", app.Relay != nil,
	)
	return app, nil
}

// Close releases resources that outlive the HTTP server.
func (a *App) Close() {
	if a.Relay != nil {
		a.Relay.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
