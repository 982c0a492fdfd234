// Command tascade-server is Tascade's thin demo transport: it wires
// internal/config, internal/engine, internal/supervisor, and internal/httpapi
// behind the teacher's system.Manager lifecycle, following the teacher's
// cmd/appserver wiring. Routing and marshalling only; no business logic
// lives here (spec.md section 1, "transport shell ... external").
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tascade-run/tascade/internal/config"
	"github.com/tascade-run/tascade/internal/engine"
	"github.com/tascade-run/tascade/internal/httpapi"
	"github.com/tascade-run/tascade/internal/platform/database"
	"github.com/tascade-run/tascade/internal/platform/migrations"
	"github.com/tascade-run/tascade/internal/store"
	memorystore "github.com/tascade-run/tascade/internal/store/memory"
	postgresstore "github.com/tascade-run/tascade/internal/store/postgres"
	"github.com/tascade-run/tascade/internal/supervisor"
	"github.com/tascade-run/tascade/internal/system"
	"github.com/tascade-run/tascade/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.Logging)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	backingStore, closeStore, err := buildStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("build store: %w", err)
	}
	defer closeStore()

	eng := engine.New(backingStore, log).WithSessionSecret(cfg.Auth.JWTSecret)

	manager := system.NewManager()
	sup := supervisor.New(eng, supervisor.Config{
		CacheMaxAge: cfg.Context.CacheMaxAge,
	}, log)
	if err := manager.Register(sup); err != nil {
		return fmt.Errorf("register supervisor: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpSvc := httpapi.NewService(eng, addr, log, cfg.Auth.Disabled)
	if err := manager.Register(httpSvc); err != nil {
		return fmt.Errorf("register httpapi: %w", err)
	}

	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}
	for _, d := range manager.Descriptors() {
		log.WithField("service", d.Name).WithField("layer", string(d.Layer)).WithField("capabilities", d.Capabilities).
			Info("service registered")
	}
	log.WithField("addr", addr).Info("tascade-server started")

	<-ctx.Done()
	log.Info("tascade-server shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	return manager.Stop(stopCtx)
}

// buildStore selects the memory or postgres backend per internal/config.
// An empty DSN selects the in-memory store, matching the teacher's
// appserver "in-memory storage when empty" behavior.
func buildStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (store.Store, func(), error) {
	if cfg.Database.DSN == "" {
		log.Info("no TASCADE_DATABASE_DSN set, using in-memory store")
		return memorystore.New(), func() {}, nil
	}

	db, err := database.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if cfg.Database.MigrateOnStart {
		if err := migrations.Apply(ctx, db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("apply migrations: %w", err)
		}
	}

	closeFn := func() { _ = closeDB(db) }
	return postgresstore.New(db), closeFn, nil
}

func closeDB(db *sql.DB) error { return db.Close() }
