package scheduler

import (
	"context"
	"sync"
	"time"

	"FRBScanner/internal/ports"
)

// WeeklyScheduler fires a job once a week at a fixed weekday and hour.
type WeeklyScheduler struct {
	weekday time.Weekday
	hour    int
	loc     *time.Location
	now     func() time.Time

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

var _ ports.Scheduler = (*WeeklyScheduler)(nil)

// NewWeeklyScheduler builds a scheduler for the given slot. A nil location means UTC.
func NewWeeklyScheduler(weekday time.Weekday, hour int, loc *time.Location) *WeeklyScheduler {
	if loc == nil {
		loc = time.UTC
	}
	if hour < 0 || hour > 23 {
		hour = 0
	}
	return &WeeklyScheduler{weekday: weekday, hour: hour, loc: loc, now: time.Now}
}

// NextRun returns the first slot strictly after t.
func (w *WeeklyScheduler) NextRun(t time.Time) time.Time {
	local := t.In(w.loc)
	days := (int(w.weekday) - int(local.Weekday()) + 7) % 7
	next := time.Date(local.Year(), local.Month(), local.Day()+days, w.hour, 0, 0, 0, w.loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+days+7, w.hour, 0, 0, 0, w.loc)
	}
	return next
}

// Start waits for each slot and invokes job. Calling Start twice is a no-op.
func (w *WeeklyScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stop != nil {
		return nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	w.stop, w.done = stop, done

	go func() {
		defer close(done)
		for {
			wait := w.NextRun(w.now()).Sub(w.now())
			timer := time.NewTimer(wait)
			select {
			case t := <-timer.C:
				job(t)
			case <-ctx.Done():
				timer.Stop()
				return
			case <-stop:
				timer.Stop()
				return
			}
		}
	}()

	return nil
}

// Stop halts the timer goroutine and waits for an in-flight job to return.
func (w *WeeklyScheduler) Stop(ctx context.Context) error {
	w.mu.Lock()
	stop, done := w.stop, w.done
	w.stop, w.done = nil, nil
	w.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
