// Package trigger implements the Trigger Evaluator: given a schedule
// specification and a reference instant, compute the next firing instant, or
// validate a specification.
package trigger

import (
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/robfig/cron/v3"

	"github.com/nextlevelbuilder/jobrunner/internal/jobstore"
)

// cronParser enforces the six-field second/minute/hour/day/month/dow order
// and rejects five-field input.
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextFireTime computes the next firing instant strictly after now, or
// returns ok=false if the schedule is exhausted.
func NextFireTime(s *jobstore.Schedule, now time.Time) (time.Time, bool, error) {
	if s == nil {
		return time.Time{}, false, nil
	}
	switch s.Type {
	case "cron":
		return nextCronFire(s.Cron, now)
	case "interval":
		return nextIntervalFire(s.Interval, now)
	case "date":
		return nextDateFire(s.Date, now)
	default:
		return time.Time{}, false, fmt.Errorf("unknown schedule type %q", s.Type)
	}
}

func nextCronFire(c *jobstore.CronSchedule, now time.Time) (time.Time, bool, error) {
	if c == nil {
		return time.Time{}, false, fmt.Errorf("cron schedule missing")
	}
	loc, err := time.LoadLocation(orDefault(c.Timezone, "UTC"))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("unknown time zone %q: %w", c.Timezone, err)
	}
	sched, err := cronParser.Parse(c.Expression)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse cron expression: %w", err)
	}
	nowInLoc := now.In(loc)
	next := sched.Next(nowInLoc)
	if next.IsZero() {
		return time.Time{}, false, nil
	}
	return next, true, nil
}

func nextIntervalFire(iv *jobstore.IntervalSchedule, now time.Time) (time.Time, bool, error) {
	if iv == nil {
		return time.Time{}, false, fmt.Errorf("interval schedule missing")
	}
	d := intervalDuration(iv)
	if d <= 0 {
		return time.Time{}, false, fmt.Errorf("interval must be positive")
	}
	return now.Add(d), true, nil
}

func intervalDuration(iv *jobstore.IntervalSchedule) time.Duration {
	return time.Duration(iv.Days)*24*time.Hour +
		time.Duration(iv.Hours)*time.Hour +
		time.Duration(iv.Minutes)*time.Minute +
		time.Duration(iv.Seconds)*time.Second
}

func nextDateFire(d *jobstore.DateSchedule, now time.Time) (time.Time, bool, error) {
	if d == nil {
		return time.Time{}, false, fmt.Errorf("date schedule missing")
	}
	if d.RunDate.After(now) {
		return d.RunDate, true, nil
	}
	return time.Time{}, false, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// ValidationStatus is the outcome of validating a schedule specification.
type ValidationStatus string

const (
	Passed  ValidationStatus = "PASSED"
	Warning ValidationStatus = "WARNING"
	Failed  ValidationStatus = "FAILED"
)

// ValidationResult is the return shape of Validate.
type ValidationResult struct {
	Status   ValidationStatus
	Messages []string
}

// gronxCheck is a secondary fast validity pre-check, distinct from the
// six-field parser used for Next() computation above.
var gronxCheck = gronx.New()

// Validate checks a schedule specification for structural and range errors.
func Validate(s *jobstore.Schedule, now time.Time) ValidationResult {
	if s == nil {
		return ValidationResult{Status: Passed}
	}
	switch s.Type {
	case "cron":
		return validateCron(s.Cron)
	case "interval":
		return validateInterval(s.Interval)
	case "date":
		return validateDate(s.Date, now)
	default:
		return ValidationResult{Status: Failed, Messages: []string{fmt.Sprintf("unknown schedule type %q", s.Type)}}
	}
}

func validateCron(c *jobstore.CronSchedule) ValidationResult {
	if c == nil {
		return ValidationResult{Status: Failed, Messages: []string{"cron schedule missing"}}
	}
	if !gronxCheck.IsValid(c.Expression) {
		return ValidationResult{Status: Failed, Messages: []string{"cron expression failed fast validity check"}}
	}
	if _, err := cronParser.Parse(c.Expression); err != nil {
		return ValidationResult{Status: Failed, Messages: []string{err.Error()}}
	}
	loc, err := time.LoadLocation(orDefault(c.Timezone, "UTC"))
	if err != nil {
		return ValidationResult{Status: Failed, Messages: []string{fmt.Sprintf("unknown time zone %q", c.Timezone)}}
	}
	_, dstOffsetA := time.Date(2024, 1, 1, 0, 0, 0, 0, loc).Zone()
	_, dstOffsetB := time.Date(2024, 7, 1, 0, 0, 0, 0, loc).Zone()
	if dstOffsetA != dstOffsetB {
		return ValidationResult{Status: Warning, Messages: []string{"time zone observes DST transitions; fire ambiguity possible"}}
	}
	return ValidationResult{Status: Passed}
}

func validateInterval(iv *jobstore.IntervalSchedule) ValidationResult {
	if iv == nil {
		return ValidationResult{Status: Failed, Messages: []string{"interval schedule missing"}}
	}
	d := intervalDuration(iv)
	if d <= 0 {
		return ValidationResult{Status: Failed, Messages: []string{"interval must be positive (all-zero interval is invalid)"}}
	}
	if d < 60*time.Second {
		return ValidationResult{Status: Warning, Messages: []string{"interval under 60s may cause excessive system load"}}
	}
	return ValidationResult{Status: Passed}
}

const pastDueGrace = 5 * time.Minute

func validateDate(d *jobstore.DateSchedule, now time.Time) ValidationResult {
	if d == nil {
		return ValidationResult{Status: Failed, Messages: []string{"date schedule missing"}}
	}
	if _, err := time.LoadLocation(orDefault(d.Timezone, "UTC")); err != nil {
		return ValidationResult{Status: Failed, Messages: []string{fmt.Sprintf("unknown time zone %q", d.Timezone)}}
	}
	if d.RunDate.After(now) {
		return ValidationResult{Status: Passed}
	}
	if now.Sub(d.RunDate) <= pastDueGrace {
		return ValidationResult{Status: Warning, Messages: []string{"one-time schedule is in the near past"}}
	}
	return ValidationResult{Status: Failed, Messages: []string{"one-time schedule is past-due and will never fire"}}
}
