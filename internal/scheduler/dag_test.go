package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydropipe/internal/resources"
)

func noopProduce(_ context.Context, _ *resources.Resources, _ string) (ProduceResult, error) {
	return ProduceResult{}, nil
}

func TestDAG_Validate_DetectsCycle(t *testing.T) {
	dag := NewDAG()
	require.NoError(t, dag.Register(&Asset{Name: "a", Deps: []string{"b"}, Produce: noopProduce}))
	require.NoError(t, dag.Register(&Asset{Name: "b", Deps: []string{"a"}, Produce: noopProduce}))

	err := dag.Validate()

	assert.Error(t, err)
}

func TestDAG_Validate_RejectsUnknownDependency(t *testing.T) {
	dag := NewDAG()
	require.NoError(t, dag.Register(&Asset{Name: "a", Deps: []string{"missing"}, Produce: noopProduce}))

	err := dag.Validate()

	assert.Error(t, err)
}

func TestDAG_Validate_AcceptsDiamond(t *testing.T) {
	dag := NewDAG()
	require.NoError(t, dag.Register(&Asset{Name: "bronze", Produce: noopProduce}))
	require.NoError(t, dag.Register(&Asset{Name: "silver_a", Deps: []string{"bronze"}, Produce: noopProduce}))
	require.NoError(t, dag.Register(&Asset{Name: "silver_b", Deps: []string{"bronze"}, Produce: noopProduce}))
	require.NoError(t, dag.Register(&Asset{Name: "gold", Deps: []string{"silver_a", "silver_b"}, Produce: noopProduce}))

	assert.NoError(t, dag.Validate())
}

func TestDAG_Register_RejectsDuplicateName(t *testing.T) {
	dag := NewDAG()
	require.NoError(t, dag.Register(&Asset{Name: "a", Produce: noopProduce}))

	err := dag.Register(&Asset{Name: "a", Produce: noopProduce})

	assert.Error(t, err)
}

func TestDAG_Children_ReturnsDependents(t *testing.T) {
	dag := NewDAG()
	require.NoError(t, dag.Register(&Asset{Name: "bronze", Produce: noopProduce}))
	require.NoError(t, dag.Register(&Asset{Name: "silver", Deps: []string{"bronze"}, Produce: noopProduce}))

	assert.Equal(t, []string{"silver"}, dag.Children("bronze"))
}
