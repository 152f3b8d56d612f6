// Package scheduler is the partition/asset control plane: a DAG of named
// data products with time partitions, dependency ordering, freshness and
// asset-health checks, cron schedules, and sensors.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"hydropipe/internal/resources"
	"hydropipe/internal/runstate"
	"hydropipe/pkg/apperror"
	"hydropipe/pkg/audit"
	"hydropipe/pkg/logger"
	"hydropipe/pkg/metrics"
	"hydropipe/pkg/telemetry"
)

// ErrParentNotReady is returned when a child materialization is requested
// before every parent has a successful run for the resolved partition.
var ErrParentNotReady = errors.New("scheduler: parent asset has no successful run for this partition")

// ErrInvalidPartitionKey is returned when a requested key falls outside
// the asset's partition spec.
var ErrInvalidPartitionKey = errors.New("scheduler: partition key is not valid for this asset")

// Scheduler materializes assets against their partition keys, enforcing
// DAG ordering, concurrency limits, and freshness/check bookkeeping.
type Scheduler struct {
	dag             *DAG
	resources       *resources.Resources
	runs            runstate.Repository
	location        *time.Location
	defaultDeadline time.Duration

	globalSem  chan struct{}
	serialMu   sync.Mutex
	serialSems map[string]chan struct{}
}

// New builds a Scheduler over dag, validating it and fail-fasting if any
// asset names a resource the built Resources doesn't provide.
func New(dag *DAG, res *resources.Resources, runs runstate.Repository, maxConcurrent int, defaultDeadline time.Duration, location *time.Location) (*Scheduler, error) {
	if err := dag.Validate(); err != nil {
		return nil, err
	}
	for _, a := range dag.Assets() {
		if err := res.Require(a.Resources); err != nil {
			return nil, fmt.Errorf("scheduler: registering asset %q: %w", a.Name, err)
		}
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if location == nil {
		location = time.UTC
	}

	s := &Scheduler{
		dag:             dag,
		resources:       res,
		runs:            runs,
		location:        location,
		defaultDeadline: defaultDeadline,
		globalSem:       make(chan struct{}, maxConcurrent),
		serialSems:      make(map[string]chan struct{}),
	}
	for _, a := range dag.Assets() {
		if a.Serial {
			s.serialSems[a.Name] = make(chan struct{}, 1)
		}
	}
	return s, nil
}

// Materialize resolves parent partitions, runs the asset's Produce
// function under a soft deadline, and records status, metrics, and
// errors through runstate and audit.
func (s *Scheduler) Materialize(ctx context.Context, assetName, partitionKey string) (*runstate.Record, error) {
	asset, ok := s.dag.Asset(assetName)
	if !ok {
		return nil, apperror.New(apperror.CodeConfigError, fmt.Sprintf("asset %q is not registered", assetName))
	}

	if asset.Partition != nil && !asset.Partition.IsValidKey(partitionKey, time.Now().In(s.location)) {
		return nil, fmt.Errorf("%w: %s/%s", ErrInvalidPartitionKey, assetName, partitionKey)
	}

	if err := s.checkParents(ctx, asset, partitionKey); err != nil {
		return nil, err
	}

	if err := s.acquire(ctx, asset); err != nil {
		return nil, err
	}
	defer s.release(asset)

	return s.run(ctx, asset, partitionKey)
}

// checkParents verifies every dependency has a successful run for the
// partition bucket containing partitionKey (the same bucket when
// cadences match, the containing coarser bucket otherwise).
func (s *Scheduler) checkParents(ctx context.Context, asset *Asset, partitionKey string) error {
	for _, depName := range asset.Deps {
		dep, ok := s.dag.Asset(depName)
		if !ok {
			return apperror.New(apperror.CodeConfigError, fmt.Sprintf("asset %q depends on unregistered asset %q", asset.Name, depName))
		}

		depKey := partitionKey
		if asset.Partition != nil && dep.Partition != nil && asset.Partition.Cadence != dep.Partition.Cadence {
			resolved, err := ParentKey(partitionKey, asset.Partition.Cadence, dep.Partition.Cadence)
			if err != nil {
				return err
			}
			depKey = resolved
		}
		if dep.Partition == nil {
			depKey = partitionKey
		}

		rec, err := s.runs.Get(ctx, depName, depKey)
		if err != nil && !errors.Is(err, runstate.ErrNotFound) {
			return err
		}
		if !rec.Succeeded() {
			return fmt.Errorf("%w: %s needs %s/%s", ErrParentNotReady, asset.Name, depName, depKey)
		}
	}
	return nil
}

func (s *Scheduler) acquire(ctx context.Context, asset *Asset) error {
	select {
	case s.globalSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	if sem, ok := s.serialSems[asset.Name]; ok {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			<-s.globalSem
			return ctx.Err()
		}
	}
	return nil
}

func (s *Scheduler) release(asset *Asset) {
	if sem, ok := s.serialSems[asset.Name]; ok {
		<-sem
	}
	<-s.globalSem
}

func (s *Scheduler) run(ctx context.Context, asset *Asset, partitionKey string) (*runstate.Record, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if s.defaultDeadline > 0 {
		runCtx, cancel = context.WithTimeout(ctx, s.defaultDeadline)
		defer cancel()
	}

	runCtx, span := telemetry.StartSpan(runCtx, "scheduler.Materialize",
		telemetry.WithAttributes(telemetry.AssetAttributes(asset.Name, partitionKey, 0)...))
	defer span.End()

	log := logger.WithRun(asset.Name, partitionKey)

	if err := s.runs.Start(runCtx, asset.Name, partitionKey); err != nil {
		return nil, err
	}

	start := time.Now()
	result, produceErr := asset.Produce(runCtx, s.resources, partitionKey)
	duration := time.Since(start)

	status := statusFor(runCtx, produceErr)

	if finErr := s.runs.Finish(ctx, asset.Name, partitionKey, status, result.Metrics, produceErr); finErr != nil {
		log.Error("failed to record run state", "error", finErr)
	}

	metrics.Get().RecordMaterialization(asset.Name, string(status), duration)
	emitAuditEntry(ctx, asset.Name, partitionKey, status, duration, produceErr)

	if produceErr != nil {
		telemetry.SetError(runCtx, produceErr)
		log.Error("materialization failed", "status", status, "error", produceErr, "duration", duration)
	} else {
		log.Info("materialization complete", "status", status, "duration", duration)
		s.evaluateChecks(ctx, asset, partitionKey, result, log)
	}

	rec, err := s.runs.Get(ctx, asset.Name, partitionKey)
	if err != nil {
		return nil, err
	}
	if produceErr != nil {
		return rec, produceErr
	}
	return rec, nil
}

func statusFor(ctx context.Context, err error) runstate.Status {
	switch {
	case err == nil:
		return runstate.StatusSuccess
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(ctx.Err(), context.Canceled), apperror.Is(err, apperror.CodeCancelled):
		return runstate.StatusCancelled
	default:
		return runstate.StatusFailed
	}
}

func (s *Scheduler) evaluateChecks(ctx context.Context, asset *Asset, partitionKey string, result ProduceResult, log interface {
	Warn(msg string, args ...any)
}) {
	if len(asset.Checks) == 0 {
		return
	}
	var failed []string
	for _, check := range asset.Checks {
		if !check.Eval(result) {
			failed = append(failed, check.Name)
		}
	}
	if len(failed) == 0 {
		return
	}
	if err := s.runs.MarkDegraded(ctx, asset.Name, partitionKey, failed); err != nil {
		log.Warn("failed to mark asset degraded", "error", err)
	}
}

func emitAuditEntry(ctx context.Context, asset, partitionKey string, status runstate.Status, duration time.Duration, runErr error) {
	outcome := audit.OutcomeSuccess
	entryBuilder := audit.NewEntry().
		Service("hydropipe").
		Method("scheduler.Materialize").
		Action(audit.ActionMaterialize).
		Resource("asset", asset).
		Duration(duration).
		Meta("partition_key", partitionKey).
		Meta("status", string(status))

	if runErr != nil {
		outcome = audit.OutcomeFailure
		entryBuilder = entryBuilder.Error(string(apperror.Code(runErr)), runErr.Error())
	}

	if err := audit.Log(ctx, entryBuilder.Outcome(outcome).Build()); err != nil {
		logger.Log.Warn("failed to write audit entry", "error", err)
	}
}
