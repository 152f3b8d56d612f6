package gold

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlignByTimestamp_KeepsOnlySharedTimestamps(t *testing.T) {
	xs := map[int64]float64{1: 1.0, 2: 2.0, 3: 3.0}
	ys := map[int64]float64{2: 20.0, 3: 30.0, 4: 40.0}

	alignedX, alignedY := alignByTimestamp(xs, ys)

	assert.Equal(t, []float64{2.0, 3.0}, alignedX)
	assert.Equal(t, []float64{20.0, 30.0}, alignedY)
}

func TestAlignByTimestamp_NoOverlap(t *testing.T) {
	xs := map[int64]float64{1: 1.0}
	ys := map[int64]float64{2: 2.0}

	alignedX, alignedY := alignByTimestamp(xs, ys)

	assert.Empty(t, alignedX)
	assert.Empty(t, alignedY)
}
