package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hydropipe/internal/bronze"
	"hydropipe/internal/gold"
	"hydropipe/internal/harvester"
	"hydropipe/internal/registry"
	"hydropipe/internal/resources"
	"hydropipe/internal/runstate"
	"hydropipe/internal/scheduler"
	"hydropipe/internal/silver"
	"hydropipe/pkg/audit"
	"hydropipe/pkg/config"
	"hydropipe/pkg/database"
	"hydropipe/pkg/logger"
	"hydropipe/pkg/metrics"
	"hydropipe/pkg/ratelimit"
	"hydropipe/pkg/telemetry"
)

const (
	sourceHubeau       = "hubeau"
	bronzeDefaultBucket = "hydropipe-bronze"
)

func main() {
	var (
		oneShotAsset     = flag.String("asset", "", "materialize a single asset and exit, instead of running the daemon")
		oneShotPartition = flag.String("partition", "", "partition key for -asset (required when -asset is set)")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.InitWithConfig(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		tp, err := telemetry.Init(ctx, telemetry.Config{
			Enabled:     cfg.Tracing.Enabled,
			Endpoint:    cfg.Tracing.Endpoint,
			ServiceName: cfg.App.Name,
			Version:     cfg.App.Version,
			Environment: cfg.App.Environment,
			SampleRate:  cfg.Tracing.SampleRate,
		})
		if err != nil {
			logger.Log.Warn("failed to init telemetry", "error", err)
		} else {
			defer func() {
				if err := tp.Shutdown(context.Background()); err != nil {
					logger.Log.Warn("failed to shutdown telemetry", "error", err)
				}
			}()
		}
	}

	metrics.InitMetrics(cfg.Metrics.Namespace, cfg.App.Name)
	metrics.Get().SetServiceInfo(cfg.App.Version, cfg.App.Environment)
	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.StartMetricsServer(cfg.Metrics.Port); err != nil {
				logger.Log.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	auditLogger, err := audit.New(&audit.Config{
		Enabled:     cfg.Audit.Enabled,
		Backend:     cfg.Audit.Backend,
		FilePath:    cfg.Audit.FilePath,
		BufferSize:  cfg.Audit.BufferSize,
		FlushPeriod: cfg.Audit.FlushPeriod,
	})
	if err != nil {
		logger.Log.Warn("failed to init audit logger, falling back to noop", "error", err)
	} else {
		audit.SetGlobal(auditLogger)
	}

	res, closeResources, err := resources.Build(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to build resources", "error", err)
	}
	defer closeResources()

	postgresWarehouse, ok := res.Warehouse.(*database.PostgresDB)
	if !ok {
		logger.Fatal("warehouse resource is not a *database.PostgresDB", "type", fmt.Sprintf("%T", res.Warehouse))
	}
	if err := silver.Bootstrap(ctx, postgresWarehouse.Pool()); err != nil {
		logger.Fatal("failed to bootstrap warehouse schema", "error", err)
	}

	limiter, err := ratelimit.New(&ratelimit.Config{
		Requests:        cfg.RateLimit.Requests,
		Window:          cfg.RateLimit.Window,
		Strategy:        cfg.RateLimit.Strategy,
		Backend:         cfg.RateLimit.Backend,
		BurstSize:       cfg.RateLimit.BurstSize,
		CleanupInterval: cfg.RateLimit.CleanupInterval,
	})
	if err != nil {
		logger.Fatal("failed to build rate limiter", "error", err)
	}

	location, err := time.LoadLocation(cfg.App.Timezone)
	if err != nil {
		logger.Fatal("invalid app.timezone", "error", err)
	}

	harvest := harvester.New(res.HTTP, limiter,
		harvester.WithMaxPages(cfg.Harvester.MaxPages),
		harvester.WithConcurrency(cfg.Harvester.EndpointConcurrency),
	)
	bucket := bronzeBucket(cfg)

	dag := scheduler.NewDAG()
	hubeauSilverAssets := registerHubeauAssets(dag, harvest, bucket)
	sandreAsset := registerSandreAsset(dag, harvest, bucket)
	meteoAsset := registerMeteoAsset(dag, harvest, bucket)

	allSilverAssets := append(append([]string{}, hubeauSilverAssets...), sandreAsset, meteoAsset)
	registerGoldAsset(dag, allSilverAssets)

	runs := runstate.New(res.Warehouse)

	sched, err := scheduler.New(dag, res, runs, cfg.Scheduler.MaxConcurrent, cfg.Scheduler.DefaultDeadline, location)
	if err != nil {
		logger.Fatal("failed to build scheduler", "error", err)
	}

	if *oneShotAsset != "" {
		if *oneShotPartition == "" {
			fmt.Fprintln(os.Stderr, "-partition is required with -asset")
			os.Exit(1)
		}
		rec, err := sched.Materialize(ctx, *oneShotAsset, *oneShotPartition)
		if err != nil {
			logger.Log.Error("materialization failed", "asset", *oneShotAsset, "partition", *oneShotPartition, "error", err)
			os.Exit(1)
		}
		logger.Log.Info("materialization complete", "asset", *oneShotAsset, "partition", *oneShotPartition, "status", rec.Status)
		return
	}

	schedules := buildSchedules(hubeauSilverAssets, location)
	runDaemon(ctx, sched, dag, schedules)
}

func bronzeBucket(cfg *config.Config) string {
	if len(cfg.ObjectStore.Buckets) > 0 {
		return cfg.ObjectStore.Buckets[0]
	}
	return bronzeDefaultBucket
}

// hubeauTheme describes one hub'eau API's referential-station and
// time-series shapes, enough to drive a generic bronze/silver asset pair.
type hubeauTheme struct {
	api             string
	stationEndpoint string
	stationType     string
	measureEndpoint string
	// measureTheme selects silver.Loader.LoadMeasurements(measureTheme, ...);
	// left empty for the water-quality shape, which uses LoadMeasureQuality.
	measureTheme string
}

var hubeauThemes = []hubeauTheme{
	{api: "piezo", stationEndpoint: "stations", stationType: "piezo", measureEndpoint: "chroniques", measureTheme: "piezo"},
	{api: "hydro", stationEndpoint: "stations", stationType: "hydro", measureEndpoint: "observations", measureTheme: "hydro"},
	{api: "quality_groundwater", measureEndpoint: "analyses"},
	{api: "quality_surface", stationEndpoint: "station_pc", stationType: "quality_surface", measureEndpoint: "analyse_pc"},
	{api: "temperature", stationEndpoint: "station", stationType: "temperature", measureEndpoint: "chronique", measureTheme: "temperature"},
}

// registerHubeauAssets registers one bronze and one silver asset per
// hub'eau theme, and returns the silver asset names for gold/schedule wiring.
func registerHubeauAssets(dag *scheduler.DAG, harvest *harvester.Harvester, bucket string) []string {
	descriptors := registry.Hubeau()
	var silverNames []string

	for _, theme := range hubeauThemes {
		theme := theme
		descriptor := descriptors[theme.api]
		endpoints := theme.endpoints()

		bronzeName := theme.api + "_bronze"
		silverName := theme.api + "_silver"

		spec := scheduler.PartitionSpec{Start: time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC), Cadence: scheduler.CadenceDaily}

		_ = dag.Register(&scheduler.Asset{
			Name:      bronzeName,
			Partition: &spec,
			Resources: []string{resources.NameHTTP, resources.NameObjectStore},
			Produce: func(ctx context.Context, res *resources.Resources, partitionKey string) (scheduler.ProduceResult, error) {
				writer := bronze.New(res.Objects, bucket)
				pages, err := harvest.FetchEndpoints(ctx, theme.api, descriptor, endpoints, partitionKey)
				if err != nil {
					return scheduler.ProduceResult{}, err
				}
				total := 0
				for _, page := range pages {
					if _, err := writer.WritePage(ctx, page); err != nil {
						return scheduler.ProduceResult{}, err
					}
					total += len(page.Records)
					metrics.Get().RecordBronzeWrite(page.Endpoint, bucket, len(page.Raw))
				}
				return scheduler.ProduceResult{Metrics: map[string]any{"pages": len(pages), "records": total}}, nil
			},
			Checks: []scheduler.AssetCheck{
				{Name: "non_empty", Eval: func(r scheduler.ProduceResult) bool {
					n, _ := r.Metrics["records"].(int)
					return n > 0
				}},
			},
		})

		_ = dag.Register(&scheduler.Asset{
			Name:      silverName,
			Partition: &spec,
			Deps:      []string{bronzeName},
			Resources: []string{resources.NameObjectStore, resources.NameWarehouse},
			Produce: func(ctx context.Context, res *resources.Resources, partitionKey string) (scheduler.ProduceResult, error) {
				writer := bronze.New(res.Objects, bucket)
				loader := silver.New(res.Warehouse)

				total := 0
				if theme.stationEndpoint != "" {
					records, err := readBronzeRecords(ctx, writer, theme.api, partitionKey, theme.stationEndpointPath(descriptor))
					if err != nil {
						return scheduler.ProduceResult{}, err
					}
					n, err := loader.LoadStations(ctx, theme.stationType, records)
					if err != nil {
						return scheduler.ProduceResult{}, err
					}
					total += n
				}

				records, err := readBronzeRecords(ctx, writer, theme.api, partitionKey, theme.measureEndpointPath(descriptor))
				if err != nil {
					return scheduler.ProduceResult{}, err
				}

				var n int
				if theme.measureTheme != "" {
					n, err = loader.LoadMeasurements(ctx, theme.measureTheme, sourceHubeau, partitionKey, records)
				} else {
					n, err = loader.LoadMeasureQuality(ctx, sourceHubeau, partitionKey, records)
				}
				if err != nil {
					return scheduler.ProduceResult{}, err
				}
				total += n

				metrics.Get().RecordSilverLoad(theme.api, total, 0)
				return scheduler.ProduceResult{Metrics: map[string]any{"rows": total}}, nil
			},
		})

		silverNames = append(silverNames, silverName)
	}

	return silverNames
}

func (t hubeauTheme) endpoints() []string {
	if t.stationEndpoint == "" {
		return []string{t.measureEndpoint}
	}
	return []string{t.stationEndpoint, t.measureEndpoint}
}

func (t hubeauTheme) stationEndpointPath(descriptor *registry.EndpointDescriptor) string {
	spec, _ := descriptor.Lookup(t.stationEndpoint)
	return spec.Path
}

func (t hubeauTheme) measureEndpointPath(descriptor *registry.EndpointDescriptor) string {
	spec, _ := descriptor.Lookup(t.measureEndpoint)
	return spec.Path
}

func readBronzeRecords(ctx context.Context, writer *bronze.Writer, api, partitionKey, endpointPath string) ([]map[string]any, error) {
	key := bronze.Key(api, partitionKey, endpointPath, false)
	body, err := writer.ReadPage(ctx, key)
	if err != nil {
		return nil, err
	}
	var records []map[string]any
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("decoding bronze page %s: %w", key, err)
	}
	return records, nil
}

// registerSandreAsset registers the monthly SANDRE parameter référentiel
// asset: harvest, bronze, and silver load in one Produce, since the
// descriptor has a single endpoint and no station shape to separate out.
func registerSandreAsset(dag *scheduler.DAG, harvest *harvester.Harvester, bucket string) string {
	descriptors := registry.Sandre()
	descriptor := descriptors["sandre"]
	name := "sandre_parameters"
	spec := scheduler.PartitionSpec{Start: time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC), Cadence: scheduler.CadenceMonthly}

	_ = dag.Register(&scheduler.Asset{
		Name:      name,
		Partition: &spec,
		Resources: []string{resources.NameHTTP, resources.NameObjectStore, resources.NameWarehouse},
		Produce: func(ctx context.Context, res *resources.Resources, partitionKey string) (scheduler.ProduceResult, error) {
			writer := bronze.New(res.Objects, bucket)
			loader := silver.New(res.Warehouse)

			page, err := harvest.Fetch(ctx, "sandre", descriptor, "parametres", partitionKey)
			if err != nil {
				return scheduler.ProduceResult{}, err
			}
			if _, err := writer.WritePage(ctx, page); err != nil {
				return scheduler.ProduceResult{}, err
			}

			n, err := loader.LoadParameters(ctx, page.Records)
			if err != nil {
				return scheduler.ProduceResult{}, err
			}
			metrics.Get().RecordSilverLoad("sandre", n, 0)
			return scheduler.ProduceResult{Metrics: map[string]any{"rows": n}}, nil
		},
	})

	return name
}

// registerMeteoAsset registers the monthly météo grid asset: a single
// WFS/GML fetch, stored raw in Bronze, parsed into grid cells and
// upserted along with each station's recomputed nearest cell.
func registerMeteoAsset(dag *scheduler.DAG, harvest *harvester.Harvester, bucket string) string {
	descriptors := registry.Meteo()
	descriptor := descriptors["meteo"]
	name := "meteo_grid"
	spec := scheduler.PartitionSpec{Start: time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC), Cadence: scheduler.CadenceMonthly}

	_ = dag.Register(&scheduler.Asset{
		Name:      name,
		Partition: &spec,
		Resources: []string{resources.NameHTTP, resources.NameObjectStore, resources.NameWarehouse},
		Serial:    true,
		Produce: func(ctx context.Context, res *resources.Resources, partitionKey string) (scheduler.ProduceResult, error) {
			writer := bronze.New(res.Objects, bucket)
			loader := silver.New(res.Warehouse)

			page, err := harvest.Fetch(ctx, "meteo", descriptor, "grid", partitionKey)
			if err != nil {
				return scheduler.ProduceResult{}, err
			}
			if _, err := writer.WritePage(ctx, page); err != nil {
				return scheduler.ProduceResult{}, err
			}

			cells, err := harvester.ParseMeteoGrid(page.Raw)
			if err != nil {
				return scheduler.ProduceResult{}, err
			}
			n, err := loader.LoadMeteoGrid(ctx, cells)
			if err != nil {
				return scheduler.ProduceResult{}, err
			}
			return scheduler.ProduceResult{Metrics: map[string]any{"cells": n}}, nil
		},
	})

	return name
}

// registerGoldAsset registers the daily graph synchronization asset,
// depending on every silver asset so it only runs once the day's
// warehouse state is fully projected.
func registerGoldAsset(dag *scheduler.DAG, silverAssetNames []string) {
	spec := scheduler.PartitionSpec{Start: time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC), Cadence: scheduler.CadenceDaily}

	_ = dag.Register(&scheduler.Asset{
		Name:      "gold_sync",
		Partition: &spec,
		Deps:      silverAssetNames,
		Resources: []string{resources.NameWarehouse, resources.NameGraph},
		Serial:    true,
		Produce: func(ctx context.Context, res *resources.Resources, partitionKey string) (scheduler.ProduceResult, error) {
			synchronizer := gold.New(res.Warehouse, res.Graph)
			result, err := synchronizer.Sync(ctx)
			if err != nil {
				return scheduler.ProduceResult{}, err
			}
			metrics.Get().RecordGoldSync(map[string]int{
				"Station":   result.StationNodes,
				"Commune":   result.CommuneNodes,
				"MasseEau":  result.MasseEauNodes,
				"Parametre": result.ParametreNodes,
			}, map[string]int{
				"LOCATED_IN":      result.LocatedInRelations,
				"IN_MASSE":        result.InMasseRelations,
				"HAS_PARAM":       result.HasParamRelations,
				"NEAR":            result.NearRelations,
				"CORRELATED":      result.CorrelatedRelations,
				"CORRELATED_WITH": result.CorrelatedWithRelations,
			}, 0)
			return scheduler.ProduceResult{Metrics: map[string]any{"station_nodes": result.StationNodes}}, nil
		},
	})
}

// buildSchedules mirrors the source pipeline's real cron cadence: hub'eau
// assets fire daily at 06:00 Europe/Paris, the gold sync follows at
// 10:00, and the monthly référentiel assets fire on the first of the
// month.
func buildSchedules(hubeauSilverAssets []string, location *time.Location) []*scheduler.Schedule {
	tz := location.String()

	daily, err := scheduler.NewSchedule("hubeau_daily", "0 6 * * *", tz, hubeauSilverAssets)
	if err != nil {
		logger.Fatal("failed to build daily schedule", "error", err)
	}
	analytics, err := scheduler.NewSchedule("gold_analytics", "0 10 * * *", tz, []string{"gold_sync"})
	if err != nil {
		logger.Fatal("failed to build analytics schedule", "error", err)
	}
	bdlisaMonthly, err := scheduler.NewSchedule("bdlisa_monthly", "0 8 1 * *", tz, []string{"meteo_grid"})
	if err != nil {
		logger.Fatal("failed to build monthly grid schedule", "error", err)
	}
	sandreMonthly, err := scheduler.NewSchedule("sandre_monthly", "0 9 1 * *", tz, []string{"sandre_parameters"})
	if err != nil {
		logger.Fatal("failed to build monthly sandre schedule", "error", err)
	}

	return []*scheduler.Schedule{daily, analytics, bdlisaMonthly, sandreMonthly}
}

// runDaemon polls every schedule once a minute, materializing its assets
// whenever the clock has passed its next fire time. The target partition
// key is derived per asset from its own cadence, since a schedule's
// Assets may span daily and monthly partitioned assets (the gold sync and
// référentiel schedules do not).
func runDaemon(ctx context.Context, sched *scheduler.Scheduler, dag *scheduler.DAG, schedules []*scheduler.Schedule) {
	next := make(map[string]time.Time, len(schedules))
	now := time.Now()
	for _, s := range schedules {
		next[s.Name] = s.Next(now)
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	logger.Log.Info("hydropipe daemon started")

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("hydropipe daemon stopping")
			return
		case tick := <-ticker.C:
			for _, s := range schedules {
				if tick.Before(next[s.Name]) {
					continue
				}
				for _, assetName := range s.Assets {
					partitionKey := assetPartitionKey(dag, assetName, tick)
					if _, err := sched.Materialize(ctx, assetName, partitionKey); err != nil {
						logger.Log.Error("scheduled materialization failed",
							"schedule", s.Name, "asset", assetName, "partition", partitionKey, "error", err)
					}
				}
				next[s.Name] = s.Next(tick)
			}
		}
	}
}

// assetPartitionKey derives the most recently fully-elapsed partition key
// for asset as of fireTime, in its own cadence's format. Unpartitioned
// assets (none in this wiring) get an empty key.
func assetPartitionKey(dag *scheduler.DAG, assetName string, fireTime time.Time) string {
	asset, ok := dag.Asset(assetName)
	if !ok || asset.Partition == nil {
		return ""
	}
	switch asset.Partition.Cadence {
	case scheduler.CadenceMonthly:
		return scheduler.FormatPartitionKey(fireTime.AddDate(0, -1, 0), scheduler.CadenceMonthly)
	case scheduler.CadenceWeekly:
		return scheduler.FormatPartitionKey(fireTime.AddDate(0, 0, -7), scheduler.CadenceWeekly)
	default:
		return fireTime.AddDate(0, 0, -1).Format("2006-01-02")
	}
}
