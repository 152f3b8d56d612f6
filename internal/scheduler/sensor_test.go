package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydropipe/pkg/cache"
)

func TestSensor_Tick_PersistsCursorAcrossTicks(t *testing.T) {
	mem := cache.NewMemoryCache(cache.DefaultOptions())
	defer mem.Close()

	var seenCursors []string
	eval := func(_ context.Context, cursor string) (*RunRequest, SkipReason, error) {
		seenCursors = append(seenCursors, cursor)
		next := "2026-01-01"
		if cursor != "" {
			next = "2026-01-02"
		}
		return &RunRequest{AssetName: "hubeau_piezo_bronze", PartitionKey: next}, "", nil
	}

	sensor := NewSensor("hubeau_freshness_sensor", time.Minute, eval, mem)

	req1, _, err := sensor.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01", req1.PartitionKey)

	req2, _, err := sensor.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2026-01-02", req2.PartitionKey)

	assert.Equal(t, []string{"", "2026-01-01"}, seenCursors)
}

func TestSensor_Tick_SkipReturnsNoRequest(t *testing.T) {
	mem := cache.NewMemoryCache(cache.DefaultOptions())
	defer mem.Close()

	eval := func(_ context.Context, _ string) (*RunRequest, SkipReason, error) {
		return nil, SkipReason("no new data"), nil
	}

	sensor := NewSensor("idle_sensor", time.Minute, eval, mem)

	req, skip, err := sensor.Tick(context.Background())
	require.NoError(t, err)
	assert.Nil(t, req)
	assert.Equal(t, SkipReason("no new data"), skip)
}
