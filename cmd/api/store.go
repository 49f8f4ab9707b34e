package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/bryanwahyu/codesight/internal/config"
	"github.com/bryanwahyu/codesight/internal/domain/auth"
	"github.com/bryanwahyu/codesight/internal/domain/history"
	mysqlp "github.com/bryanwahyu/codesight/internal/infra/db/mysql"
	pgp "github.com/bryanwahyu/codesight/internal/infra/db/postgres"
	sqlitep "github.com/bryanwahyu/codesight/internal/infra/db/sqlite"
	"github.com/bryanwahyu/codesight/internal/infra/realtime"
)

// store is one database backend with its change feed.
type store struct {
	db     *sql.DB
	repo   history.Repository
	auth   auth.Store
	broker *realtime.Broker
	// listener is set for postgres, where the database itself is the feed.
	listener *pgp.Listener
}

func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	switch cfg.Database.Driver {
	case config.DriverMySQL:
		return mysqlp.Connect(ctx, cfg.MySQLDSN())
	case config.DriverPostgres:
		return pgp.Connect(ctx, cfg.PostgresDSN())
	default:
		return sqlitep.Connect(ctx, cfg.Database.Path)
	}
}

func migrate(ctx context.Context, cfg *config.Config, db *sql.DB) error {
	switch cfg.Database.Driver {
	case config.DriverMySQL:
		return mysqlp.Migrate(ctx, db)
	case config.DriverPostgres:
		return pgp.Migrate(ctx, db)
	default:
		return sqlitep.Migrate(ctx, db)
	}
}

// openStore connects, migrates and wires the change feed. On mysql and
// sqlite mutations are published by the repository decorator; on postgres
// the NOTIFY trigger feeds the broker through a Listener.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (*store, error) {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s connect error: %w", cfg.Database.Driver, err)
	}
	if err := migrate(ctx, cfg, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s migrate error: %w", cfg.Database.Driver, err)
	}

	s := &store{db: db, broker: realtime.NewBroker(realtime.DefaultBuffer, log)}
	switch cfg.Database.Driver {
	case config.DriverMySQL:
		s.repo = realtime.NewPublishingRepository(mysqlp.NewHistoryRepository(db), s.broker)
		s.auth = mysqlp.NewAuthStore(db)
	case config.DriverPostgres:
		repo := pgp.NewHistoryRepository(db)
		s.repo = repo
		s.auth = pgp.NewAuthStore(db)
		s.listener = pgp.NewListener(cfg.PostgresDSN(), repo, s.broker, log)
	default:
		s.repo = realtime.NewPublishingRepository(sqlitep.NewHistoryRepository(db), s.broker)
		s.auth = sqlitep.NewAuthStore(db)
	}
	return s, nil
}

func (s *store) Close() {
	s.broker.Close()
	s.db.Close()
}
