package scheduler

import (
	"context"
	"testing"
	"time"
)

func TestNextRunUsesTimezone(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+2", 2*60*60)
	s := NewCronScheduler("0 6 * * *", loc, nil)

	from := time.Date(2025, time.March, 10, 3, 0, 0, 0, time.UTC) // 05:00 local
	next, err := s.NextRun(from)
	if err != nil {
		t.Fatalf("next run: %v", err)
	}

	want := time.Date(2025, time.March, 10, 4, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %s, got %s", want, next)
	}
}

func TestStartRejectsInvalidSpec(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler("not a cron", nil, nil)
	if err := s.Start(context.Background(), func(time.Time) {}); err == nil {
		t.Fatalf("expected error for invalid spec")
	}
	if _, err := s.NextRun(time.Now()); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestStartFiresJobAndStops(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler("@every 1s", time.UTC, nil)
	fired := make(chan time.Time, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx, func(at time.Time) { fired <- at }); err != nil {
		t.Fatalf("start: %v", err)
	}
	// A second Start is a no-op.
	if err := s.Start(ctx, func(time.Time) { t.Error("second job must not run") }); err != nil {
		t.Fatalf("second start: %v", err)
	}

	select {
	case at := <-fired:
		if at.Location() != time.UTC {
			t.Fatalf("trigger time not in scheduler timezone: %v", at.Location())
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("job did not fire")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestStartWithNilJobIsNoop(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler("0 6 * * *", nil, nil)
	if err := s.Start(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
