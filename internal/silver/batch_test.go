package silver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpsertQuery_ExcludesConflictColumnsFromUpdate(t *testing.T) {
	query := upsertQuery("measurements",
		[]string{"station_code", "theme", "ts", "value", "quality", "source"},
		[]string{"station_code", "theme", "ts"},
	)

	assert.Contains(t, query, "INSERT INTO measurements (station_code, theme, ts, value, quality, source)")
	assert.Contains(t, query, "ON CONFLICT (station_code, theme, ts)")
	assert.Contains(t, query, "value = EXCLUDED.value")
	assert.Contains(t, query, "quality = EXCLUDED.quality")
	assert.Contains(t, query, "source = EXCLUDED.source")
	assert.NotContains(t, query, "station_code = EXCLUDED.station_code")
}

func TestContains(t *testing.T) {
	assert.True(t, contains([]string{"a", "b"}, "a"))
	assert.False(t, contains([]string{"a", "b"}, "c"))
}
