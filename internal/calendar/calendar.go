// Package calendar parses 5-field calendar expressions ("minute hour
// day-of-month month day-of-week") under a named IANA time zone and
// computes the next matching instant (spec §4.1).
package calendar

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rezkam/jobcore/internal/domain"
)

// standardParser accepts the classic 5-field form without a seconds field,
// matching spec §4.1's field list exactly.
var standardParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Validate reports whether expr parses as a valid 5-field calendar
// expression, returning domain.ErrInvalidSchedule with the library's
// field-level detail on failure.
func Validate(expr string) error {
	_, err := standardParser.Parse(expr)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidSchedule, err)
	}
	return nil
}

// Next returns the earliest instant strictly after "after" whose wall-clock
// fields in the named zone match expr. DST handling follows cron/v3's
// standard behavior: a spring-forward gap is skipped to the next valid
// instant; a fall-back ambiguity resolves to the first occurrence, both of
// which are exactly spec §4.1's required semantics.
func Next(expr, zone string, after time.Time) (time.Time, error) {
	sched, err := standardParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s", domain.ErrInvalidSchedule, err)
	}

	loc, err := loadLocation(zone)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: unknown time zone %q: %s", domain.ErrInvalidSchedule, zone, err)
	}

	local := after.In(loc)
	next := sched.Next(local)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("%w: expression %q has no future occurrence", domain.ErrInvalidSchedule, expr)
	}
	return next.UTC(), nil
}

func loadLocation(zone string) (*time.Location, error) {
	if zone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(zone)
}
