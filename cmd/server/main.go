// Command server runs the audit backend: template catalog, audit sessions and
// the activity log over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rpggio/fieldaudit/internal/config"
	"github.com/rpggio/fieldaudit/internal/domain/activity"
	"github.com/rpggio/fieldaudit/internal/domain/audit"
	"github.com/rpggio/fieldaudit/internal/domain/template"
	"github.com/rpggio/fieldaudit/internal/logging"
	"github.com/rpggio/fieldaudit/internal/sqlite"
	"github.com/rpggio/fieldaudit/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger, closeLog, err := logging.New(cfg.Log.Level, cfg.Log.Path, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "log file error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	if err := ensureDBDir(cfg.DB.Path); err != nil {
		return fmt.Errorf("prepare database path: %w", err)
	}

	db, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	templateRepo := sqlite.NewTemplateRepository(db)
	auditRepo := sqlite.NewAuditRepository(db)
	activityRepo := sqlite.NewActivityRepository(db)

	templateSvc := template.NewService(templateRepo, logger)
	activitySvc := activity.NewService(activityRepo, logger)
	auditSvc := audit.NewService(auditRepo, templateSvc, activityRepo, logger)

	if cfg.Templates.Path != "" {
		if err := seedTemplates(context.Background(), templateSvc, cfg.Templates.Path); err != nil {
			return err
		}
	}

	var auth func(http.Handler) http.Handler
	if len(cfg.Server.APIKeys) > 0 {
		auth = transport.AuthMiddleware(transport.NewKeyRing(cfg.Server.APIKeys))
	}

	router := transport.NewServer(transport.Services{
		Templates: templateSvc,
		Audits:    auditSvc,
		Activity:  activitySvc,
	}, logger, auth)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr, "auth", auth != nil)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-stop:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info("shutting down")
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func seedTemplates(ctx context.Context, svc *template.Service, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open template seed: %w", err)
	}
	defer f.Close()

	templates, err := template.DecodeYAML(f)
	if err != nil {
		return err
	}
	if _, err := svc.Seed(ctx, templates); err != nil {
		return err
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
