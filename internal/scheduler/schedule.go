package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule fires a named subset of assets at a cron-derived time in a
// named zone, targeting the partition key that cadence implies — for a
// daily asset that is typically "yesterday".
type Schedule struct {
	Name        string
	Cron        string
	TZ          string
	Assets      []string
	Description string

	parsed   cron.Schedule
	location *time.Location
}

// NewSchedule parses cronExpr (standard 5-field cron) and tz, failing
// fast on either.
func NewSchedule(name, cronExpr, tz string, assets []string) (*Schedule, error) {
	parsed, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("scheduler: parsing cron expression %q for schedule %q: %w", cronExpr, name, err)
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("scheduler: loading timezone %q for schedule %q: %w", tz, name, err)
	}
	return &Schedule{
		Name:     name,
		Cron:     cronExpr,
		TZ:       tz,
		Assets:   assets,
		parsed:   parsed,
		location: loc,
	}, nil
}

// Next returns the next fire time strictly after 'after', in the
// schedule's timezone.
func (s *Schedule) Next(after time.Time) time.Time {
	return s.parsed.Next(after.In(s.location))
}

// TargetPartitionKey derives the daily partition key a fire at fireTime
// should materialize — the day before the fire, in the schedule's zone.
func (s *Schedule) TargetPartitionKey(fireTime time.Time) string {
	return fireTime.In(s.location).AddDate(0, 0, -1).Format("2006-01-02")
}
