// Package resources builds the typed handles every asset Produce function
// runs against: the HTTP harvester client, the Bronze object store, the
// Silver warehouse pool, the Gold graph driver, and the sensor/nearest-cell
// cache. Everything is constructed once in cmd/hydropipe/main.go from
// environment-backed configuration and injected by reference — there are
// no package-level singletons.
package resources

import (
	"context"
	"fmt"

	"hydropipe/pkg/apperror"
	"hydropipe/pkg/cache"
	"hydropipe/pkg/config"
	"hydropipe/pkg/database"
	"hydropipe/pkg/graphstore"
	"hydropipe/pkg/httpclient"
	"hydropipe/pkg/logger"
	"hydropipe/pkg/objectstore"
)

// Recognized resource names, as declared on Asset.Resources.
const (
	NameHTTP        = "http"
	NameObjectStore = "object_store"
	NameWarehouse   = "warehouse"
	NameGraph       = "graph"
	NameCache       = "cache"
)

// Resources holds the process-wide handles producers are injected with.
type Resources struct {
	HTTP      *httpclient.Client
	Objects   *objectstore.Client
	Warehouse database.DB
	Graph     *graphstore.Client
	Cache     cache.Cache
}

// Build constructs every resource named in cfg. It fails fast with
// apperror.CodeConfigError on the first resource that cannot be reached,
// rather than leaving the process partially wired. The returned closer
// releases every handle it managed to acquire, in reverse build order.
func Build(ctx context.Context, cfg *config.Config) (*Resources, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	r := &Resources{}

	r.HTTP = httpclient.New(httpclient.Config{
		Timeout:             cfg.Harvester.DefaultTimeout,
		MaxRetries:          cfg.Harvester.DefaultRetryBudget,
		InitialBackoff:      cfg.Retry.InitialBackoff,
		MaxBackoff:          cfg.Retry.MaxBackoff,
		BackoffMultiplier:   cfg.Retry.BackoffMultiplier,
		RateLimitMultiplier: cfg.Retry.RateLimitBackoff,
	}, "harvester")

	objects, err := objectstore.New(ctx, objectstore.Config{
		Endpoint:     cfg.ObjectStore.Endpoint,
		AccessKey:    cfg.ObjectStore.AccessKey,
		SecretKey:    cfg.ObjectStore.SecretKey,
		Region:       cfg.ObjectStore.Region,
		UsePathStyle: cfg.ObjectStore.UsePathStyle,
	})
	if err != nil {
		closeAll()
		return nil, nil, apperror.Wrap(err, apperror.CodeConfigError, "building object store resource")
	}
	r.Objects = objects

	warehouse, err := database.NewPostgresDB(ctx, &cfg.Warehouse)
	if err != nil {
		closeAll()
		return nil, nil, apperror.Wrap(err, apperror.CodeConfigError, "building warehouse resource")
	}
	r.Warehouse = warehouse
	closers = append(closers, warehouse.Close)

	graph, err := graphstore.New(ctx, cfg.Graph.URI, cfg.Graph.User, cfg.Graph.Password)
	if err != nil {
		closeAll()
		return nil, nil, apperror.Wrap(err, apperror.CodeConfigError, "building graph resource")
	}
	r.Graph = graph
	closers = append(closers, func() {
		if cerr := graph.Close(context.Background()); cerr != nil {
			logger.Log.Warn("failed to close graph driver", "error", cerr)
		}
	})

	if cfg.Cache.Enabled {
		c, err := cache.New(cache.FromConfig(&cfg.Cache))
		if err != nil {
			closeAll()
			return nil, nil, apperror.Wrap(err, apperror.CodeConfigError, "building cache resource")
		}
		r.Cache = c
		closers = append(closers, func() {
			if cerr := c.Close(); cerr != nil {
				logger.Log.Warn("failed to close cache", "error", cerr)
			}
		})
	}

	return r, closeAll, nil
}

// Require fails fast, with apperror.CodeConfigError, if any name in names
// is unrecognized or was not configured for this process. Asset
// registration calls this with the asset's declared Resources so a
// producer that reaches for an unconfigured dependency never gets as far
// as a materialization attempt.
func (r *Resources) Require(names []string) error {
	for _, name := range names {
		var configured bool
		switch name {
		case NameHTTP:
			configured = r.HTTP != nil
		case NameObjectStore:
			configured = r.Objects != nil
		case NameWarehouse:
			configured = r.Warehouse != nil
		case NameGraph:
			configured = r.Graph != nil
		case NameCache:
			configured = r.Cache != nil
		default:
			return apperror.New(apperror.CodeConfigError, fmt.Sprintf("unrecognized resource %q", name))
		}
		if !configured {
			return apperror.New(apperror.CodeConfigError, fmt.Sprintf("resource %q is not configured", name))
		}
	}
	return nil
}
