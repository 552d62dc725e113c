package scheduler

import (
	"context"
	"testing"
	"time"
)

func TestNextRun(t *testing.T) {
	t.Parallel()

	s := NewWeeklyScheduler(time.Monday, 6, time.UTC)
	cases := []struct {
		name string
		at   time.Time
		want time.Time
	}{
		// 2025-11-05 is a Wednesday.
		{"midweek", time.Date(2025, 11, 5, 12, 0, 0, 0, time.UTC), time.Date(2025, 11, 10, 6, 0, 0, 0, time.UTC)},
		{"monday before slot", time.Date(2025, 11, 10, 5, 59, 0, 0, time.UTC), time.Date(2025, 11, 10, 6, 0, 0, 0, time.UTC)},
		{"exactly at slot", time.Date(2025, 11, 10, 6, 0, 0, 0, time.UTC), time.Date(2025, 11, 17, 6, 0, 0, 0, time.UTC)},
		{"monday after slot", time.Date(2025, 11, 10, 7, 0, 0, 0, time.UTC), time.Date(2025, 11, 17, 6, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := s.NextRun(tc.at); !got.Equal(tc.want) {
				t.Fatalf("NextRun(%s) = %s, want %s", tc.at, got, tc.want)
			}
		})
	}
}

func TestNextRunUsesLocation(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+2", 2*60*60)
	s := NewWeeklyScheduler(time.Monday, 1, loc)
	// Sunday 23:30 UTC is Monday 01:30 local, past the slot.
	got := s.NextRun(time.Date(2025, 11, 9, 23, 30, 0, 0, time.UTC))
	want := time.Date(2025, 11, 17, 1, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("NextRun = %s, want %s", got, want)
	}
}

func TestStartFiresAndStops(t *testing.T) {
	t.Parallel()

	s := NewWeeklyScheduler(time.Monday, 6, time.UTC)
	// Pin the clock just before the slot so the first wait is tiny.
	slot := time.Date(2025, 11, 10, 6, 0, 0, 0, time.UTC)
	start := time.Now()
	s.now = func() time.Time { return slot.Add(-10*time.Millisecond + time.Since(start)) }

	fired := make(chan time.Time, 1)
	if err := s.Start(context.Background(), func(t time.Time) {
		select {
		case fired <- t:
		default:
		}
	}); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not fire")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("second Stop returned error: %v", err)
	}
}
