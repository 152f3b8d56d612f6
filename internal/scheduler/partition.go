package scheduler

import (
	"fmt"
	"time"
)

// Cadence is the bucket size a PartitionSpec enumerates keys at.
type Cadence int

const (
	CadenceDaily Cadence = iota
	CadenceWeekly
	CadenceMonthly
)

// String returns the cadence's lowercase name.
func (c Cadence) String() string {
	switch c {
	case CadenceDaily:
		return "daily"
	case CadenceWeekly:
		return "weekly"
	case CadenceMonthly:
		return "monthly"
	default:
		return "unknown"
	}
}

// PartitionSpec declares an asset's time partitioning: a start date and a
// cadence. The set of valid partition keys is {start, start+cadence, …,
// the last bucket fully elapsed before "now"}.
type PartitionSpec struct {
	Start   time.Time
	Cadence Cadence
}

// Keys enumerates every valid partition key as of asOf, i.e. every bucket
// whose end has already passed.
func (p PartitionSpec) Keys(asOf time.Time) []string {
	asOf = truncateToDay(asOf)
	var keys []string
	for t := truncateToDay(p.Start); !next(t, p.Cadence).After(asOf); t = next(t, p.Cadence) {
		keys = append(keys, formatKey(t, p.Cadence))
	}
	return keys
}

// IsValidKey reports whether key names a bucket within [Start, asOf) that
// has already fully elapsed.
func (p PartitionSpec) IsValidKey(key string, asOf time.Time) bool {
	t, err := parseKey(key, p.Cadence)
	if err != nil {
		return false
	}
	start := truncateToDay(p.Start)
	asOf = truncateToDay(asOf)
	return !t.Before(start) && !next(t, p.Cadence).After(asOf)
}

// FormatPartitionKey renders the bucket under cadence that contains t, in
// that cadence's key format.
func FormatPartitionKey(t time.Time, cadence Cadence) string {
	return formatKey(bucketStart(t, cadence), cadence)
}

// ParentKey returns the partition key of the bucket under parentCadence
// that contains childKey's bucket — e.g. the containing ISO week for a
// daily child of a weekly parent.
func ParentKey(childKey string, childCadence, parentCadence Cadence) (string, error) {
	t, err := parseKey(childKey, childCadence)
	if err != nil {
		return "", fmt.Errorf("parsing child partition key %q: %w", childKey, err)
	}
	return formatKey(bucketStart(t, parentCadence), parentCadence), nil
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func next(t time.Time, cadence Cadence) time.Time {
	switch cadence {
	case CadenceWeekly:
		return t.AddDate(0, 0, 7)
	case CadenceMonthly:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

func bucketStart(t time.Time, cadence Cadence) time.Time {
	t = truncateToDay(t)
	switch cadence {
	case CadenceWeekly:
		weekday := int(t.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		return t.AddDate(0, 0, -(weekday - 1))
	case CadenceMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	default:
		return t
	}
}

func formatKey(t time.Time, cadence Cadence) string {
	switch cadence {
	case CadenceWeekly:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case CadenceMonthly:
		return t.Format("2006-01")
	default:
		return t.Format("2006-01-02")
	}
}

func parseKey(key string, cadence Cadence) (time.Time, error) {
	switch cadence {
	case CadenceWeekly:
		return parseISOWeek(key)
	case CadenceMonthly:
		return time.Parse("2006-01", key)
	default:
		return time.Parse("2006-01-02", key)
	}
}

// parseISOWeek parses a "YYYY-Www" key into the Monday starting that week.
func parseISOWeek(key string) (time.Time, error) {
	var year, week int
	if _, err := fmt.Sscanf(key, "%04d-W%02d", &year, &week); err != nil {
		return time.Time{}, fmt.Errorf("parsing ISO week key %q: %w", key, err)
	}
	// Jan 4th is always in week 1 of its year (ISO 8601).
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	jan4Weekday := int(jan4.Weekday())
	if jan4Weekday == 0 {
		jan4Weekday = 7
	}
	week1Monday := jan4.AddDate(0, 0, -(jan4Weekday - 1))
	return week1Monday.AddDate(0, 0, (week-1)*7), nil
}
