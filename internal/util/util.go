package util

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewReportID returns a time-sortable id for a cached debt report.
func NewReportID(t time.Time) string {
	// ULID is sortable (nice for DB indexes and dashboards)
	return "rpt_" + ulid.MustNew(ulid.Timestamp(t.UTC()), rand.Reader).String()
}

func NewJobID() string {
	return "job_" + ulid.MustNew(ulid.Timestamp(time.Now().UTC()), rand.Reader).String()
}

func NowUTC() time.Time {
	return time.Now().UTC()
}

// DayKeyFunc returns a function mapping an instant to the calendar date
// (YYYY-MM-DD) in a fixed UTC offset. The offset is applied before the date
// portion is taken, so the local wall clock of the host never matters.
func DayKeyFunc(offset time.Duration) func(time.Time) string {
	return func(t time.Time) string {
		return t.UTC().Add(offset).Format(time.DateOnly)
	}
}
