// Package runstate persists materialization history keyed by (asset,
// partition_key): status, timing, metrics, and errors. The scheduler
// reads it to decide whether a parent partition already succeeded and
// to evaluate freshness; it writes a row at the start and end of every
// materialization attempt.
package runstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"hydropipe/pkg/apperror"
	"hydropipe/pkg/database"
	"hydropipe/pkg/telemetry"
)

// Status is the lifecycle state of one (asset, partition) materialization.
type Status string

const (
	StatusStarted   Status = "started"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ErrNotFound is returned when no run state exists for an (asset, partition) pair.
var ErrNotFound = errors.New("runstate: no record for asset/partition")

// Record is one persisted (asset, partition_key) run history row.
type Record struct {
	Asset        string
	PartitionKey string
	Status       Status
	StartedAt    time.Time
	EndedAt      *time.Time
	Metrics      map[string]any
	Error        string
	Degraded     bool
	FailedChecks []string
}

// Succeeded reports whether the record represents a completed success;
// a degraded success (failed asset checks) still counts.
func (r *Record) Succeeded() bool {
	return r != nil && r.Status == StatusSuccess
}

// Repository records and retrieves materialization history.
type Repository interface {
	// Start inserts or overwrites a "started" row for (asset, partitionKey),
	// marking the beginning of a materialization attempt.
	Start(ctx context.Context, asset, partitionKey string) error

	// Finish records the terminal status, captured metrics, and error (if any)
	// of a materialization attempt already marked started.
	Finish(ctx context.Context, asset, partitionKey string, status Status, metrics map[string]any, runErr error) error

	// MarkDegraded flags a successful materialization whose asset checks
	// failed, without altering its status or rolling back its write.
	MarkDegraded(ctx context.Context, asset, partitionKey string, failedChecks []string) error

	// Get returns the run state for one (asset, partition) pair.
	Get(ctx context.Context, asset, partitionKey string) (*Record, error)

	// LastSuccess returns the most recent successful run of asset, across
	// all partitions, for freshness-policy evaluation.
	LastSuccess(ctx context.Context, asset string) (*Record, error)
}

// PostgresRepository is the pkg/database-backed Repository implementation.
type PostgresRepository struct {
	db database.DB
}

// New builds a PostgresRepository over db.
func New(db database.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Start(ctx context.Context, asset, partitionKey string) error {
	ctx, span := telemetry.StartSpan(ctx, "runstate.Start")
	defer span.End()

	_, err := r.db.Exec(ctx, `
		INSERT INTO run_state (asset, partition_key, status, started_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (asset, partition_key) DO UPDATE SET
			status = EXCLUDED.status,
			started_at = EXCLUDED.started_at,
			ended_at = NULL,
			metrics = NULL,
			error = NULL,
			degraded = false,
			failed_checks = NULL
	`, asset, partitionKey, StatusStarted)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeWarehouseWrite, fmt.Sprintf("starting run state for %s/%s", asset, partitionKey))
	}
	return nil
}

func (r *PostgresRepository) Finish(ctx context.Context, asset, partitionKey string, status Status, metrics map[string]any, runErr error) error {
	ctx, span := telemetry.StartSpan(ctx, "runstate.Finish")
	defer span.End()

	var metricsJSON []byte
	if metrics != nil {
		encoded, err := json.Marshal(metrics)
		if err != nil {
			return apperror.Wrap(err, apperror.CodeInternal, "encoding run metrics")
		}
		metricsJSON = encoded
	}

	var errMsg string
	if runErr != nil {
		errMsg = runErr.Error()
	}

	_, err := r.db.Exec(ctx, `
		UPDATE run_state SET
			status = $3,
			ended_at = now(),
			metrics = $4,
			error = $5
		WHERE asset = $1 AND partition_key = $2
	`, asset, partitionKey, status, metricsJSON, errMsg)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeWarehouseWrite, fmt.Sprintf("finishing run state for %s/%s", asset, partitionKey))
	}
	return nil
}

func (r *PostgresRepository) MarkDegraded(ctx context.Context, asset, partitionKey string, failedChecks []string) error {
	ctx, span := telemetry.StartSpan(ctx, "runstate.MarkDegraded")
	defer span.End()

	_, err := r.db.Exec(ctx, `
		UPDATE run_state SET degraded = true, failed_checks = $3
		WHERE asset = $1 AND partition_key = $2
	`, asset, partitionKey, failedChecks)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeWarehouseWrite, fmt.Sprintf("marking %s/%s degraded", asset, partitionKey))
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, asset, partitionKey string) (*Record, error) {
	ctx, span := telemetry.StartSpan(ctx, "runstate.Get")
	defer span.End()

	row := r.db.QueryRow(ctx, `
		SELECT asset, partition_key, status, started_at, ended_at, metrics, error, degraded, failed_checks
		FROM run_state
		WHERE asset = $1 AND partition_key = $2
	`, asset, partitionKey)

	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeWarehouseWrite, fmt.Sprintf("loading run state for %s/%s", asset, partitionKey))
	}
	return rec, nil
}

func (r *PostgresRepository) LastSuccess(ctx context.Context, asset string) (*Record, error) {
	ctx, span := telemetry.StartSpan(ctx, "runstate.LastSuccess")
	defer span.End()

	row := r.db.QueryRow(ctx, `
		SELECT asset, partition_key, status, started_at, ended_at, metrics, error, degraded, failed_checks
		FROM run_state
		WHERE asset = $1 AND status = $2
		ORDER BY ended_at DESC
		LIMIT 1
	`, asset, StatusSuccess)

	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeWarehouseWrite, fmt.Sprintf("loading last success for %s", asset))
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	var status string
	var metricsJSON []byte
	var errMsg *string
	var failedChecks []string

	if err := row.Scan(
		&rec.Asset, &rec.PartitionKey, &status, &rec.StartedAt, &rec.EndedAt,
		&metricsJSON, &errMsg, &rec.Degraded, &failedChecks,
	); err != nil {
		return nil, err
	}

	rec.Status = Status(status)
	rec.FailedChecks = failedChecks
	if errMsg != nil {
		rec.Error = *errMsg
	}
	if len(metricsJSON) > 0 {
		if err := json.Unmarshal(metricsJSON, &rec.Metrics); err != nil {
			return nil, fmt.Errorf("decoding run metrics: %w", err)
		}
	}
	return &rec, nil
}
