package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/example/scrap-tracking/internal/config"
	httpapi "github.com/example/scrap-tracking/internal/http"
	"github.com/example/scrap-tracking/internal/logging"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// optional migration: run migrations/001_create_assignments.sql if requested
	if cfg.PGDSN != "" && cfg.RunMigrations {
		if db, err := sql.Open("postgres", cfg.PGDSN); err == nil {
			if b, err := os.ReadFile(filepath.Join("migrations", "001_create_assignments.sql")); err == nil {
				if _, err := db.Exec(string(b)); err != nil {
					logger.Error("migration exec error", "error", err)
				} else {
					logger.Info("migration applied", "file", "001_create_assignments.sql")
				}
			}
			_ = db.Close()
		} else {
			logger.Error("migration db open error", "error", err)
		}
	}

	api := httpapi.NewServer(cfg, logger)
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("scrap-tracking listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	api.Close()
}
