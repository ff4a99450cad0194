package models

import (
	"errors"
	"regexp"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleKind discriminates the two accepted schedule forms.
type ScheduleKind string

const (
	ScheduleKindInterval ScheduleKind = "interval" // "30s", "5m", "1h"
	ScheduleKindCron     ScheduleKind = "cron"     // 5-field, minute granularity
)

var (
	// ErrInvalidSchedule is returned when a schedule expression parses
	// as neither an interval nor a 5-field cron expression.
	ErrInvalidSchedule = errors.New("invalid schedule expression")

	intervalPattern = regexp.MustCompile(`^(\d+)([smh])$`)
)

// ScheduleSpec is a parsed schedule expression.
type ScheduleSpec struct {
	Raw      string
	Kind     ScheduleKind
	Interval time.Duration
	cron     cron.Schedule
}

// ParseSchedule parses an interval form ("5m") or a 5-field cron
// expression ("*/15 * * * *").
func ParseSchedule(raw string) (*ScheduleSpec, error) {
	if raw == "" {
		return nil, ErrInvalidSchedule
	}

	if m := intervalPattern.FindStringSubmatch(raw); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return nil, ErrInvalidSchedule
		}

		var unit time.Duration

		switch m[2] {
		case "s":
			unit = time.Second
		case "m":
			unit = time.Minute
		case "h":
			unit = time.Hour
		}

		return &ScheduleSpec{Raw: raw, Kind: ScheduleKindInterval, Interval: time.Duration(n) * unit}, nil
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	sched, err := parser.Parse(raw)
	if err != nil {
		return nil, ErrInvalidSchedule
	}

	return &ScheduleSpec{Raw: raw, Kind: ScheduleKindCron, cron: sched}, nil
}

// Due reports whether the flow should fire now, given when it last ran.
//
// Interval form: true when lastRun is nil or at least Interval old.
// Cron form: true when the expression matches the current minute and
// the flow has not already fired within that minute.
func (s *ScheduleSpec) Due(lastRun *time.Time, now time.Time) bool {
	switch s.Kind {
	case ScheduleKindInterval:
		if lastRun == nil {
			return true
		}

		return now.Sub(*lastRun) >= s.Interval
	case ScheduleKindCron:
		minute := now.Truncate(time.Minute)
		if !s.cron.Next(minute.Add(-time.Second)).Equal(minute) {
			return false
		}

		// A second evaluation inside the same minute must not re-fire.
		return lastRun == nil || lastRun.Before(minute)
	}

	return false
}

// NextAfter returns the next fire time for interval schedules. Cron
// schedules return nil: the poller re-evaluates them every minute and
// the flow's next_run_at stays unset.
func (s *ScheduleSpec) NextAfter(now time.Time) *time.Time {
	if s.Kind != ScheduleKindInterval {
		return nil
	}

	next := now.Add(s.Interval)

	return &next
}
