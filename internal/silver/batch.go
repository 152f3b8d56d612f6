package silver

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"hydropipe/pkg/apperror"
)

const batchSize = 1000

// upsertBatch writes rows (each a positional arg list matching columns,
// in column order) to table in chunks of batchSize, via
// INSERT ... ON CONFLICT (conflictCols) DO UPDATE.
func upsertBatch(ctx context.Context, tx pgx.Tx, table string, columns, conflictCols []string, rows [][]any) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	query := upsertQuery(table, columns, conflictCols)

	total := 0
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		batch := &pgx.Batch{}
		for _, row := range chunk {
			batch.Queue(query, row...)
		}

		results := tx.SendBatch(ctx, batch)
		for range chunk {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return total, apperror.Wrap(err, apperror.CodeWarehouseWrite, fmt.Sprintf("upserting into %s", table))
			}
		}
		if err := results.Close(); err != nil {
			return total, apperror.Wrap(err, apperror.CodeWarehouseWrite, fmt.Sprintf("closing batch for %s", table))
		}
		total += len(chunk)
	}

	return total, nil
}

func upsertQuery(table string, columns, conflictCols []string) string {
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	updates := make([]string, 0, len(columns))
	for _, col := range columns {
		if contains(conflictCols, col) {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(conflictCols, ", "),
		strings.Join(updates, ", "),
	)
}

func contains(list []string, target string) bool {
	for _, item := range list {
		if item == target {
			return true
		}
	}
	return false
}
