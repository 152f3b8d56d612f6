// Package graphstore wraps the Neo4j driver into the narrow surface the
// Gold layer needs: idempotent node and relationship merges driven by
// parameterized Cypher, with managed sessions per call.
package graphstore

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"hydropipe/pkg/apperror"
)

// Node describes one label-keyed node to merge: Label identifies the node
// type, Key/KeyValue form the merge predicate, and Props holds everything
// else to set on match-or-create.
type Node struct {
	Label    string
	Key      string
	KeyValue any
	Props    map[string]any
}

// Relation describes one relationship to merge between two already-merged
// nodes, identified by their own label/key/value pairs.
type Relation struct {
	Type       string
	FromLabel  string
	FromKey    string
	FromValue  any
	ToLabel    string
	ToKey      string
	ToValue    any
	Props      map[string]any
}

// Client manages a Neo4j driver and exposes MERGE-based writes.
type Client struct {
	driver neo4j.DriverWithContext
}

// New connects to uri with basic auth and verifies connectivity.
func New(ctx context.Context, uri, user, password string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeConfigError, "creating graph driver")
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeGraphWrite, "connecting to graph store")
	}
	return &Client{driver: driver}, nil
}

// Close shuts down the underlying driver.
func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// mergeNodeQuery builds the parameterized MERGE statement for n.
func mergeNodeQuery(n Node) string {
	return fmt.Sprintf("MERGE (n:%s {%s: $keyValue}) SET n += $props", n.Label, n.Key)
}

// MergeNode idempotently creates or updates one node by its key property.
func (c *Client) MergeNode(ctx context.Context, n Node) error {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := mergeNodeQuery(n)
	params := map[string]any{
		"keyValue": n.KeyValue,
		"props":    n.Props,
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, query, params)
	})
	if err != nil {
		return apperror.Wrap(err, apperror.CodeGraphWrite, fmt.Sprintf("merging node %s", n.Label))
	}
	return nil
}

// mergeRelationQuery builds the parameterized MERGE statement for r.
func mergeRelationQuery(r Relation) string {
	return fmt.Sprintf(`
		MATCH (a:%s {%s: $fromValue})
		MATCH (b:%s {%s: $toValue})
		MERGE (a)-[r:%s]->(b)
		SET r += $props
	`, r.FromLabel, r.FromKey, r.ToLabel, r.ToKey, r.Type)
}

// MergeRelation idempotently creates or updates one directed relationship
// between two nodes that must already exist (Gold merges nodes before
// relations); if either endpoint node is missing, the MATCH finds no row and
// no relationship is written.
func (c *Client) MergeRelation(ctx context.Context, r Relation) error {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := mergeRelationQuery(r)

	props := r.Props
	if props == nil {
		props = map[string]any{}
	}
	params := map[string]any{
		"fromValue": r.FromValue,
		"toValue":   r.ToValue,
		"props":     props,
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, query, params)
	})
	if err != nil {
		return apperror.Wrap(err, apperror.CodeGraphWrite, fmt.Sprintf("merging relation %s", r.Type))
	}
	return nil
}

// Run executes an arbitrary read-only Cypher query and collects records
// via the given scan function, for queries that don't fit the
// Node/Relation merge shape.
func (c *Client) Run(ctx context.Context, query string, params map[string]any, scan func(*neo4j.Record) error) error {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	_, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		for result.Next(ctx) {
			if err := scan(result.Record()); err != nil {
				return nil, err
			}
		}
		return nil, result.Err()
	})
	if err != nil {
		return apperror.Wrap(err, apperror.CodeGraphWrite, "running graph query")
	}
	return nil
}
