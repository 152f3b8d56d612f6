package runstate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRow implements the single-method pgx.Row interface so scanRecord can
// be exercised without a real database connection.
type fakeRow struct {
	values []any
	err    error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		assignInto(d, r.values[i])
	}
	return nil
}

func assignInto(dest, value any) {
	switch d := dest.(type) {
	case *string:
		*d = value.(string)
	case *time.Time:
		*d = value.(time.Time)
	case **time.Time:
		*d, _ = value.(*time.Time)
	case *[]byte:
		*d, _ = value.([]byte)
	case **string:
		*d, _ = value.(*string)
	case *bool:
		*d = value.(bool)
	case *[]string:
		*d, _ = value.([]string)
	default:
		panic("assignInto: unsupported destination type")
	}
}

func TestScanRecord_DecodesMetricsAndNullableFields(t *testing.T) {
	started := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	ended := started.Add(time.Minute)
	errMsg := "boom"

	row := &fakeRow{values: []any{
		"hubeau_piezo", "2026-01-02", "failed", started, &ended,
		[]byte(`{"records":42}`), &errMsg, true, []string{"records_count"},
	}}

	rec, err := scanRecord(row)
	require.NoError(t, err)

	assert.Equal(t, "hubeau_piezo", rec.Asset)
	assert.Equal(t, "2026-01-02", rec.PartitionKey)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, started, rec.StartedAt)
	assert.Equal(t, &ended, rec.EndedAt)
	assert.Equal(t, float64(42), rec.Metrics["records"])
	assert.Equal(t, "boom", rec.Error)
	assert.True(t, rec.Degraded)
	assert.Equal(t, []string{"records_count"}, rec.FailedChecks)
}

func TestScanRecord_NilMetricsAndError(t *testing.T) {
	started := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	row := &fakeRow{values: []any{
		"hubeau_piezo", "2026-01-02", "success", started, (*time.Time)(nil),
		[]byte(nil), (*string)(nil), false, []string(nil),
	}}

	rec, err := scanRecord(row)
	require.NoError(t, err)

	assert.Nil(t, rec.Metrics)
	assert.Empty(t, rec.Error)
	assert.False(t, rec.Degraded)
}

func TestRecord_Succeeded(t *testing.T) {
	assert.True(t, (&Record{Status: StatusSuccess}).Succeeded())
	assert.False(t, (&Record{Status: StatusFailed}).Succeeded())
	assert.False(t, (*Record)(nil).Succeeded())
}
