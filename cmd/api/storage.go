package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/K-mel/servicemasterfr/internal/config"
	"github.com/K-mel/servicemasterfr/internal/database"
	idemmemory "github.com/K-mel/servicemasterfr/internal/idempotency/memory"
	idempostgres "github.com/K-mel/servicemasterfr/internal/idempotency/postgres"
	"github.com/K-mel/servicemasterfr/internal/orders/adapters"
	httpadapter "github.com/K-mel/servicemasterfr/internal/orders/adapters/http"
	"github.com/K-mel/servicemasterfr/internal/orders/adapters/memory"
	orderspostgres "github.com/K-mel/servicemasterfr/internal/orders/adapters/postgres"
	"github.com/K-mel/servicemasterfr/internal/orders/app"
	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/K-mel/servicemasterfr/internal/orders/ports"
)

type storage struct {
	orders       app.Store
	entitlements ports.EntitlementRepository
	catalog      ports.Catalog
	users        ports.UserDirectory
	transactor   ports.Transactor
	idempotency  ports.IdempotencyStore
	ready        httpadapter.ReadinessCheck
	close        func()
}

func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *database.Metrics) (*storage, error) {
	if cfg.Database.Driver == config.StorageMemory {
		logger.Warn("using in-memory storage, data is lost on restart")
		return &storage{
			orders:       adapters.NewObservableRepository(memory.NewRepository(), metrics),
			entitlements: memory.NewEntitlementRepository(),
			catalog:      memory.NewCatalog(demoCourses()...),
			users:        memory.NewUserDirectory(),
			transactor:   memory.NewTransactor(),
			idempotency:  idemmemory.NewStore(cfg.Workers.IdempotencyTTL),
			close:        func() {},
		}, nil
	}

	dsn := cfg.Database.DSN()
	if cfg.Database.AutoMigrate {
		logger.Info("running database migrations", "path", cfg.Database.MigrationsPath)
		if err := database.RunMigrations(dsn, cfg.Database.MigrationsPath); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	pool, err := database.NewPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	pg := database.New(pool)

	return &storage{
		orders:       adapters.NewObservableRepository(orderspostgres.NewRepository(pg), metrics),
		entitlements: orderspostgres.NewEntitlementRepository(pg),
		catalog:      orderspostgres.NewCatalog(pg),
		users:        orderspostgres.NewUserDirectory(pg),
		transactor:   pg.Transactor,
		idempotency:  idempostgres.NewStore(pg, cfg.Workers.IdempotencyTTL),
		ready: func(ctx context.Context) error {
			return database.CheckHealth(ctx, pool)
		},
		close: pg.Close,
	}, nil
}

// demoCourses seeds the in-memory catalog so checkout works without a database.
func demoCourses() []domain.Course {
	discount := decimal.RequireFromString("29.00")
	return []domain.Course{
		{ID: "course-go-basics", Title: "Go basics", Price: decimal.RequireFromString("49.00"), Published: true},
		{ID: "course-go-services", Title: "Building services in Go", Price: decimal.RequireFromString("79.00"), DiscountPrice: &discount, Published: true},
		{ID: "course-draft", Title: "Unreleased course", Price: decimal.RequireFromString("19.00")},
	}
}
