package silver

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"hydropipe/migrations"
	"hydropipe/pkg/apperror"
	"hydropipe/pkg/database"
)

// Bootstrap applies the warehouse schema (stations, parameters,
// measurements, measure_quality, meteo_grid, station_grid_cell and
// their hypertables) idempotently.
func Bootstrap(ctx context.Context, pool *pgxpool.Pool) error {
	migrator := database.NewMigrator(pool, migrations.FS, migrations.Dir)
	if err := migrator.Up(ctx); err != nil {
		return apperror.Wrap(err, apperror.CodeWarehouseWrite, "bootstrapping schema")
	}
	return nil
}
