package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/subscriber-service/internal/config"
	"github.com/magabrotheeeer/subscriber-service/internal/migrations"
	recservice "github.com/magabrotheeeer/subscriber-service/internal/services/reconciler"
	subservice "github.com/magabrotheeeer/subscriber-service/internal/services/subscriber"
	"github.com/magabrotheeeer/subscriber-service/internal/storage/mongo"
	"github.com/magabrotheeeer/subscriber-service/internal/storage/postgresql"
)

// documentStore всё, что процессу нужно от документного хранилища.
type documentStore interface {
	subservice.SubscriberRepository
	subservice.StreamCatalog
	recservice.ReferenceRepository
	recservice.StreamIndex
	Ping(ctx context.Context) error
}

var (
	_ documentStore = (*mongo.Storage)(nil)
	_ documentStore = (*postgresql.Storage)(nil)
)

// openStore подключает хранилище, выбранное в конфиге, и возвращает функцию закрытия.
func openStore(ctx context.Context, cfg config.Storage, logger *slog.Logger) (documentStore, func() error, error) {
	switch cfg.Driver {
	case config.DriverMongo:
		s, err := mongo.New(ctx, cfg.MongoURI, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect mongo: %w", err)
		}
		closeFn := func() error {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return s.Close(closeCtx)
		}
		return s, closeFn, nil

	case config.DriverPostgres:
		s, err := postgresql.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect postgres: %w", err)
		}
		if err := migrations.Run(s.DB, cfg.MigrationsPath); err != nil {
			_ = s.Close()
			return nil, nil, err
		}
		if err := waitForDB(ctx, s); err != nil {
			_ = s.Close()
			return nil, nil, err
		}
		logger.Info("postgres migrations applied", slog.String("path", cfg.MigrationsPath))
		return s, s.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func waitForDB(ctx context.Context, db *postgresql.Storage) error {
	for range 10 {
		err := postgresql.CheckDatabaseReady(ctx, db)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(3 * time.Second):
		}
	}
	return fmt.Errorf("database not ready after retries")
}
