package storage

import (
	"context"
	"fmt"

	"github.com/jhoicas/saas-tenancy-api/internal/domain/repository"
	"github.com/jhoicas/saas-tenancy-api/internal/infrastructure/memory"
	"github.com/jhoicas/saas-tenancy-api/internal/infrastructure/postgres"
	"github.com/jhoicas/saas-tenancy-api/pkg/config"
	"github.com/jhoicas/saas-tenancy-api/pkg/logger"
)

// Open construye el Store del backend configurado. Con PostgreSQL aplica antes las migraciones
// pendientes si migrate es true.
func Open(ctx context.Context, cfg config.DBConfig, migrate bool, log *logger.Logger) (repository.Store, error) {
	if log == nil {
		log = logger.Nop()
	}
	switch cfg.Backend {
	case config.BackendMemory:
		log.Warn().Msg("backend en memoria: los datos se pierden al reiniciar")
		st, err := memory.NewStore()
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.BackendPostgres, "":
		pool, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("conexión a PostgreSQL: %w", err)
		}
		if migrate {
			applied, err := postgres.Migrate(ctx, pool)
			if err != nil {
				pool.Close()
				return nil, fmt.Errorf("migraciones: %w", err)
			}
			for _, name := range applied {
				log.Info().Str("migration", name).Msg("migración aplicada")
			}
		}
		return postgres.NewStore(pool), nil
	}
	return nil, fmt.Errorf("backend desconocido %q", cfg.Backend)
}
