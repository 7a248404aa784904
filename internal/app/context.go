package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"launchpad/internal/config"
	"launchpad/internal/db"
	"launchpad/internal/engine"
	"launchpad/internal/logging"
	"launchpad/internal/migrate"
	"launchpad/internal/notify"
)

// App is a migrated database plus the engine built on top of it.
type App struct {
	Config *config.Config
	DB     *sql.DB
	Engine engine.Engine
	Log    *zap.Logger

	redis *notify.RedisPublisher
}

// Open builds the application from cfg: logger, database, schema and engine.
// A configured Redis endpoint adds a publishing sink next to the database
// inbox.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	log, err := logging.New(cfg.Log.Environment, cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	conn, err := db.Open(db.Config{
		Driver:    cfg.Database.Driver,
		DSN:       cfg.Database.DSN,
		Workspace: cfg.Database.Workspace,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	driver := cfg.Database.Driver
	if driver == "" {
		driver = db.DriverSQLite
	}
	if err := migrate.Migrate(conn, driver); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	a := &App{Config: cfg, DB: conn, Log: log}
	a.Engine = engine.New(conn, driver, cfg, log)
	if rc := cfg.Notifications.Redis; rc.Addr != "" {
		a.redis = notify.NewRedisPublisher(rc.Addr, rc.Password, rc.DB, rc.Channel)
		if err := a.redis.Ping(ctx); err != nil {
			log.Warn("redis unreachable; notifications are still stored", zap.String("addr", rc.Addr), zap.Error(err))
		}
		a.Engine.Notify.Sink = notify.Fanout{notify.Store{Repo: a.Engine.Repo}, a.redis}
	}
	return a, nil
}

// Close releases the database and Redis connections and flushes the logger.
func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	errs = append(errs, a.DB.Close())
	_ = a.Log.Sync()
	return errors.Join(errs...)
}
