package scheduler

import (
	"context"
	"fmt"
	"time"

	"hydropipe/internal/resources"
)

// ProduceResult is what a producer hands back from one materialization:
// the metrics the run emits into run state and audit log, surfaced to
// AssetChecks for post-hoc evaluation.
type ProduceResult struct {
	Metrics map[string]any
}

// ProduceFunc materializes one asset partition.
type ProduceFunc func(ctx context.Context, res *resources.Resources, partitionKey string) (ProduceResult, error)

// FreshnessPolicy declares the maximum allowed lag between now and an
// asset's last successful materialization.
type FreshnessPolicy struct {
	MaximumLag time.Duration
}

// AssetCheck is a named boolean predicate over a completed materialization's
// result. A failing check marks the asset degraded without rolling back
// its write.
type AssetCheck struct {
	Name string
	Eval func(result ProduceResult) bool
}

// Asset is a named, addressable data product materialized by Produce
// against an optional partition key.
type Asset struct {
	Name      string
	Partition *PartitionSpec
	Deps      []string
	Produce   ProduceFunc
	Resources []string
	Freshness *FreshnessPolicy
	Checks    []AssetCheck
	// Serial forces strict per-partition-sequential materialization for
	// this asset (the "max-concurrency-of-one" tag).
	Serial bool
}

// DAG is a registry of assets validated acyclic before any materialization
// runs against it.
type DAG struct {
	assets map[string]*Asset
	order  []string
}

// NewDAG returns an empty DAG.
func NewDAG() *DAG {
	return &DAG{assets: make(map[string]*Asset)}
}

// Register adds an asset to the DAG. It does not validate dependencies or
// acyclicity — call Validate once every asset has been registered.
func (d *DAG) Register(a *Asset) error {
	if a.Name == "" {
		return fmt.Errorf("scheduler: asset name must not be empty")
	}
	if _, exists := d.assets[a.Name]; exists {
		return fmt.Errorf("scheduler: asset %q already registered", a.Name)
	}
	d.assets[a.Name] = a
	d.order = append(d.order, a.Name)
	return nil
}

// Asset returns the registered asset by name, if any.
func (d *DAG) Asset(name string) (*Asset, bool) {
	a, ok := d.assets[name]
	return a, ok
}

// Assets returns every registered asset in registration order.
func (d *DAG) Assets() []*Asset {
	out := make([]*Asset, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.assets[name])
	}
	return out
}

// Children returns the names of assets that declare name as a dependency.
func (d *DAG) Children(name string) []string {
	var children []string
	for _, childName := range d.order {
		for _, dep := range d.assets[childName].Deps {
			if dep == name {
				children = append(children, childName)
				break
			}
		}
	}
	return children
}

// Validate checks that every declared dependency exists and that the
// dependency graph is acyclic.
func (d *DAG) Validate() error {
	for _, name := range d.order {
		for _, dep := range d.assets[name].Deps {
			if _, ok := d.assets[dep]; !ok {
				return fmt.Errorf("scheduler: asset %q depends on unregistered asset %q", name, dep)
			}
		}
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(d.assets))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("scheduler: cycle detected in asset DAG: %v", append(path, name))
		}
		state[name] = visiting
		for _, dep := range d.assets[name].Deps {
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}

	for _, name := range d.order {
		if err := visit(name, nil); err != nil {
			return err
		}
	}
	return nil
}
