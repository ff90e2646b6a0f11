package trigger

import (
	"testing"
	"time"

	"github.com/nextlevelbuilder/jobrunner/internal/jobstore"
)

func TestNextFireTime_Cron(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	s := &jobstore.Schedule{Type: "cron", Cron: &jobstore.CronSchedule{Expression: "0 0 12 * * *", Timezone: "UTC"}}

	next, ok, err := NextFireTime(s, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
	want := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestNextFireTime_CronRejectsFiveField(t *testing.T) {
	s := &jobstore.Schedule{Type: "cron", Cron: &jobstore.CronSchedule{Expression: "0 12 * * *", Timezone: "UTC"}}
	if _, _, err := NextFireTime(s, time.Now()); err == nil {
		t.Fatal("expected five-field expression to be rejected by the six-field parser")
	}
}

func TestNextFireTime_Interval(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	s := &jobstore.Schedule{Type: "interval", Interval: &jobstore.IntervalSchedule{Minutes: 5}}

	next, ok, err := NextFireTime(s, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
	if !next.Equal(now.Add(5 * time.Minute)) {
		t.Errorf("expected %v, got %v", now.Add(5*time.Minute), next)
	}
}

func TestNextFireTime_IntervalZeroIsInvalid(t *testing.T) {
	s := &jobstore.Schedule{Type: "interval", Interval: &jobstore.IntervalSchedule{}}
	if _, _, err := NextFireTime(s, time.Now()); err == nil {
		t.Fatal("expected all-zero interval to be rejected")
	}
}

func TestNextFireTime_DateFuture(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	runDate := now.Add(time.Hour)
	s := &jobstore.Schedule{Type: "date", Date: &jobstore.DateSchedule{RunDate: runDate, Timezone: "UTC"}}

	next, ok, err := NextFireTime(s, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || !next.Equal(runDate) {
		t.Errorf("expected %v, got %v (ok=%v)", runDate, next, ok)
	}
}

func TestNextFireTime_DatePastIsExhausted(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	s := &jobstore.Schedule{Type: "date", Date: &jobstore.DateSchedule{RunDate: now.Add(-time.Hour), Timezone: "UTC"}}

	_, ok, err := NextFireTime(s, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected a past run_date to report ok=false")
	}
}

func TestValidate_CronPassed(t *testing.T) {
	s := &jobstore.Schedule{Type: "cron", Cron: &jobstore.CronSchedule{Expression: "0 */5 * * * *", Timezone: "UTC"}}
	got := Validate(s, time.Now())
	if got.Status != Passed {
		t.Errorf("expected PASSED, got %s: %v", got.Status, got.Messages)
	}
}

func TestValidate_CronFailedBadExpression(t *testing.T) {
	s := &jobstore.Schedule{Type: "cron", Cron: &jobstore.CronSchedule{Expression: "not a cron expression", Timezone: "UTC"}}
	got := Validate(s, time.Now())
	if got.Status != Failed {
		t.Errorf("expected FAILED, got %s", got.Status)
	}
}

func TestValidate_CronWarnsOnDSTZone(t *testing.T) {
	s := &jobstore.Schedule{Type: "cron", Cron: &jobstore.CronSchedule{Expression: "0 0 3 * * *", Timezone: "America/New_York"}}
	got := Validate(s, time.Now())
	if got.Status != Warning {
		t.Errorf("expected WARNING for a DST-observing zone, got %s", got.Status)
	}
}

func TestValidate_IntervalWarnsUnderOneMinute(t *testing.T) {
	s := &jobstore.Schedule{Type: "interval", Interval: &jobstore.IntervalSchedule{Seconds: 10}}
	got := Validate(s, time.Now())
	if got.Status != Warning {
		t.Errorf("expected WARNING for sub-minute interval, got %s", got.Status)
	}
}

func TestValidate_IntervalZeroFails(t *testing.T) {
	s := &jobstore.Schedule{Type: "interval", Interval: &jobstore.IntervalSchedule{}}
	got := Validate(s, time.Now())
	if got.Status != Failed {
		t.Errorf("expected FAILED, got %s", got.Status)
	}
}

func TestValidate_DatePastDueGraceIsWarning(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	s := &jobstore.Schedule{Type: "date", Date: &jobstore.DateSchedule{RunDate: now.Add(-time.Minute), Timezone: "UTC"}}
	got := Validate(s, now)
	if got.Status != Warning {
		t.Errorf("expected WARNING just past due, got %s", got.Status)
	}
}

func TestValidate_DateFarPastIsFailed(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	s := &jobstore.Schedule{Type: "date", Date: &jobstore.DateSchedule{RunDate: now.Add(-time.Hour), Timezone: "UTC"}}
	got := Validate(s, now)
	if got.Status != Failed {
		t.Errorf("expected FAILED long past due, got %s", got.Status)
	}
}

func TestValidate_UnknownScheduleTypeFails(t *testing.T) {
	s := &jobstore.Schedule{Type: "weekly"}
	got := Validate(s, time.Now())
	if got.Status != Failed {
		t.Errorf("expected FAILED for unknown type, got %s", got.Status)
	}
}
