// Command auditor runs the field client: it keeps audit sessions and drafts
// on the device, syncs them to the backend and exposes them as MCP tools.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/fieldaudit/internal/apiclient"
	"github.com/rpggio/fieldaudit/internal/config"
	"github.com/rpggio/fieldaudit/internal/domain/draft"
	"github.com/rpggio/fieldaudit/internal/domain/geofence"
	"github.com/rpggio/fieldaudit/internal/domain/session"
	"github.com/rpggio/fieldaudit/internal/domain/syncer"
	"github.com/rpggio/fieldaudit/internal/logging"
	"github.com/rpggio/fieldaudit/internal/mcp"
	"github.com/rpggio/fieldaudit/internal/sqlite"
	"github.com/rpggio/fieldaudit/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// Use stderr for logs in stdio mode to keep stdout clean for JSON-RPC.
	var fallback io.Writer = os.Stdout
	if cfg.Transport.Mode == "stdio" {
		fallback = os.Stderr
	}
	logger, closeLog, err := logging.New(cfg.Log.Level, cfg.Log.Path, fallback)
	if err != nil {
		fmt.Fprintf(os.Stderr, "log file error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(cfg, logger); err != nil {
		logger.Error("auditor failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	if err := ensureDBDir(cfg.DB.Path); err != nil {
		return fmt.Errorf("prepare draft database path: %w", err)
	}
	db, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("open draft database: %w", err)
	}
	defer db.Close()
	if err := db.RunMigrations(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	client := apiclient.New(cfg.API.BaseURL, cfg.API.Timeout,
		apiclient.WithToken(cfg.API.Token),
		apiclient.WithLogger(logger),
	)
	engine := syncer.NewEngine(client, syncer.Policy{
		MaxAttempts: cfg.Sync.MaxAttempts,
		BaseDelay:   cfg.Sync.BaseBackoff,
		MaxDelay:    cfg.Sync.MaxBackoff,
		ItemPacing:  cfg.Sync.ItemPacing,
	}, logger)

	drafts := draft.NewService(sqlite.NewDraftStore(db), logger)
	sessions := session.NewService(engine, drafts, session.Options{
		StartRadius: cfg.Geofence.StartRadius,
		Submit: geofence.Thresholds{
			Entry: cfg.Geofence.SubmitEntryRadius,
			Block: cfg.Geofence.SubmitBlockRadius,
		},
		Writer: draft.WriterOptions{
			Debounce:      cfg.Draft.Debounce,
			FlushInterval: cfg.Draft.FlushInterval,
		},
	}, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mcpServer := mcp.NewServer(mcp.Config{
		Sessions:      sessions,
		Resolver:      transport.NewKeyRing(cfg.Server.APIKeys),
		AuthEnabled:   len(cfg.Server.APIKeys) > 0,
		TransportMode: cfg.Transport.Mode,
		Logger:        logger,
	})

	var runErr error
	if cfg.Transport.Mode == "stdio" {
		runErr = runStdio(ctx, logger, mcpServer)
	} else {
		runErr = runHTTP(ctx, logger, mcpServer, cfg.Server.Host, cfg.Server.Port)
	}

	// Flush drafts of every open session before exiting.
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	sessions.CloseAll(flushCtx)
	return runErr
}

func runStdio(ctx context.Context, logger *slog.Logger, server *sdkmcp.Server) error {
	logger.Info("starting stdio transport", "auth", "disabled")
	// Run blocks until stdin closes or the context is canceled.
	if err := server.Run(ctx, &sdkmcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("stdio server: %w", err)
	}
	return nil
}

func runHTTP(ctx context.Context, logger *slog.Logger, server *sdkmcp.Server, host string, port int) error {
	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(r *http.Request) *sdkmcp.Server { return server },
		&sdkmcp.StreamableHTTPOptions{SessionTimeout: 30 * time.Minute},
	)

	router := http.NewServeMux()
	router.Handle("/mcp", mcpHandler)
	router.Handle("/mcp/", mcpHandler)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	addr := fmt.Sprintf("%s:%d", host, port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func ensureDBDir(path string) error {
	if path == ":memory:" || path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
