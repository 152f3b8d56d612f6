package scheduler

import (
	"context"
	"fmt"
	"time"

	"hydropipe/pkg/cache"
)

// RunRequest is emitted by a Sensor to ask the scheduler to materialize
// an asset partition outside its cron schedule.
type RunRequest struct {
	AssetName    string
	PartitionKey string
	Tags         map[string]string
}

// SkipReason explains why a Sensor declined to emit a RunRequest on a
// given tick.
type SkipReason string

// SensorEvalFunc inspects the sensor's persisted cursor and either
// returns a RunRequest or a SkipReason.
type SensorEvalFunc func(ctx context.Context, cursor string) (*RunRequest, SkipReason, error)

// Sensor evaluates Eval on a fixed cadence; the scheduler itself is
// stateless about sensors, but a cursor survives restarts through cache.
type Sensor struct {
	Name    string
	Cadence time.Duration
	Eval    SensorEvalFunc

	cache     cache.Cache
	cursorKey string
}

// NewSensor builds a Sensor persisting its cursor under a cache key
// derived from name.
func NewSensor(name string, cadence time.Duration, eval SensorEvalFunc, c cache.Cache) *Sensor {
	return &Sensor{
		Name:      name,
		Cadence:   cadence,
		Eval:      eval,
		cache:     c,
		cursorKey: fmt.Sprintf("sensor:%s:cursor", name),
	}
}

// Cursor returns the sensor's last persisted cursor, or "" if none exists.
func (s *Sensor) Cursor(ctx context.Context) (string, error) {
	if s.cache == nil {
		return "", nil
	}
	value, err := s.cache.Get(ctx, s.cursorKey)
	if err != nil {
		return "", nil
	}
	return string(value), nil
}

// setCursor persists cursor with no expiry; sensors track absolute
// progress markers (a date, an ID), not ephemeral state.
func (s *Sensor) setCursor(ctx context.Context, cursor string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Set(ctx, s.cursorKey, []byte(cursor), 0)
}

// Tick reads the persisted cursor, runs Eval, and — on a RunRequest —
// advances the cursor to the requested partition key.
func (s *Sensor) Tick(ctx context.Context) (*RunRequest, SkipReason, error) {
	cursor, err := s.Cursor(ctx)
	if err != nil {
		return nil, "", err
	}

	req, skip, err := s.Eval(ctx, cursor)
	if err != nil {
		return nil, "", err
	}
	if req != nil {
		if err := s.setCursor(ctx, req.PartitionKey); err != nil {
			return req, "", err
		}
	}
	return req, skip, nil
}
