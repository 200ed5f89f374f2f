package mcp

import (
	"context"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/fieldaudit/internal/domain/draft"
	"github.com/rpggio/fieldaudit/internal/domain/geofence"
	"github.com/rpggio/fieldaudit/internal/domain/session"
	"github.com/rpggio/fieldaudit/internal/transport"
)

// SessionService defines the session operations needed by MCP.
type SessionService interface {
	Open(ctx context.Context, req session.OpenRequest) (*session.Controller, error)
	Get(key string) (*session.Controller, bool)
	Close(ctx context.Context, key string) error
	Drafts(ctx context.Context) ([]draft.Snapshot, error)
}

// Config contains server configuration.
type Config struct {
	Sessions SessionService
	// Locator supplies the device position when a tool call carries none.
	Locator       geofence.Provider
	Resolver      transport.AuditorResolver
	AuthEnabled   bool
	TransportMode string // "stdio" or "http"
	Logger        *slog.Logger
	Version       string
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	version := cfg.Version
	if version == "" {
		version = "0.1.0"
	}

	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "fieldaudit",
		Version: version,
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       cfg.Logger,
	})

	registerDocResources(server)

	// Stdio is a local, single-user transport and never authenticates.
	if cfg.TransportMode != "stdio" && cfg.AuthEnabled {
		server.AddReceivingMiddleware(authMiddleware(cfg.Resolver))
	} else {
		server.AddReceivingMiddleware(noAuthMiddleware(localAuditor))
	}
	server.AddReceivingMiddleware(trafficLoggingMiddleware(cfg.Logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(cfg.Logger, "outbound"))

	registerTools(server, newToolset(cfg.Sessions, cfg.Locator, cfg.Logger))

	return server
}
