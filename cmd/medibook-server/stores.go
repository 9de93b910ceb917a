package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/medibook/medibook/internal/config"
	"github.com/medibook/medibook/internal/domain/appointment"
	"github.com/medibook/medibook/internal/domain/doctor"
	"github.com/medibook/medibook/internal/domain/patient"
	"github.com/medibook/medibook/internal/platform/db"
	"github.com/medibook/medibook/internal/platform/mongodb"
	"github.com/medibook/medibook/migrations"
)

// stores bundles the repositories of the selected STORE_DRIVER.
type stores struct {
	doctors      doctor.Store
	patients     patient.Repository
	appointments appointment.Repository
	tx           db.TxRunner
	checks       []db.Check
	closers      []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores connects the configured backend. migrate applies pending
// PostgreSQL migrations and is ignored by the other drivers.
func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger, migrate bool) (*stores, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		return openPostgres(ctx, cfg, logger, migrate)
	case config.DriverMongo:
		return openMongo(ctx, cfg, logger)
	case config.DriverMemory:
		logger.Warn().Msg("using in-memory store; data is lost on restart")
		return memoryStores(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func memoryStores() *stores {
	return &stores{
		doctors:      doctor.NewMemoryStore(),
		patients:     patient.NewMemoryRepo(),
		appointments: appointment.NewMemoryRepo(),
		tx:           db.NoTx{},
	}
}

func openPostgres(ctx context.Context, cfg *config.Config, logger zerolog.Logger, migrate bool) (*stores, error) {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, err
	}
	logger.Info().Msg("connected to postgres")

	if migrate {
		n, err := db.NewMigrator(pool, migrations.FS).Up(ctx)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		logger.Info().Int("applied", n).Msg("migrations up to date")
	}

	return &stores{
		doctors:      doctor.NewStorePG(pool),
		patients:     patient.NewRepoPG(pool),
		appointments: appointment.NewRepoPG(pool),
		tx:           db.NewTransactor(pool),
		checks:       []db.Check{db.PoolCheck(pool)},
		closers:      []func(){pool.Close},
	}, nil
}

func openMongo(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, error) {
	client, database, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return nil, err
	}
	if err := mongodb.EnsureIndexes(ctx, database); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	logger.Info().Str("database", cfg.MongoDatabase).Msg("connected to mongodb")

	return &stores{
		doctors:      doctor.NewStoreMongo(database),
		patients:     patient.NewRepoMongo(database),
		appointments: appointment.NewRepoMongo(database),
		tx:           db.NoTx{},
		checks:       []db.Check{mongodb.Check(client)},
		closers: []func(){func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Warn().Err(err).Msg("mongodb disconnect")
			}
		}},
	}, nil
}
