package engine

import (
	"sync"
	"testing"
	"time"
)

type fireRecorder struct {
	mu    sync.Mutex
	fired []string
}

func (f *fireRecorder) fire(taskID string) {
	f.mu.Lock()
	f.fired = append(f.fired, taskID)
	f.mu.Unlock()
}

func (f *fireRecorder) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fired...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestSchedulerFiresDueEntriesInDeadlineOrder(t *testing.T) {
	recorder := &fireRecorder{}
	sched := NewScheduler(time.Now, recorder.fire)
	sched.Start()
	t.Cleanup(sched.Stop)

	now := time.Now()
	sched.Schedule("late", now.Add(60*time.Millisecond))
	sched.Schedule("early", now.Add(20*time.Millisecond))

	waitFor(t, 2*time.Second, func() bool { return len(recorder.snapshot()) == 2 })
	fired := recorder.snapshot()
	if fired[0] != "early" || fired[1] != "late" {
		t.Fatalf("expected deadline order, got %v", fired)
	}
}

func TestSchedulerCancelPreventsFire(t *testing.T) {
	recorder := &fireRecorder{}
	sched := NewScheduler(time.Now, recorder.fire)
	sched.Start()
	t.Cleanup(sched.Stop)

	sched.Schedule("doomed", time.Now().Add(40*time.Millisecond))
	sched.Cancel("doomed")

	time.Sleep(120 * time.Millisecond)
	if fired := recorder.snapshot(); len(fired) != 0 {
		t.Fatalf("expected no fires after cancel, got %v", fired)
	}
}

func TestSchedulerCancelAfterFireIsNoop(t *testing.T) {
	recorder := &fireRecorder{}
	sched := NewScheduler(time.Now, recorder.fire)
	sched.Start()
	t.Cleanup(sched.Stop)

	sched.Schedule("quick", time.Now().Add(10*time.Millisecond))
	waitFor(t, 2*time.Second, func() bool { return len(recorder.snapshot()) == 1 })

	sched.Cancel("quick")
	if fired := recorder.snapshot(); len(fired) != 1 {
		t.Fatalf("expected single fire, got %v", fired)
	}
}

func TestSchedulerRescheduleReplacesDeadline(t *testing.T) {
	recorder := &fireRecorder{}
	sched := NewScheduler(time.Now, recorder.fire)
	sched.Start()
	t.Cleanup(sched.Stop)

	sched.Schedule("moved", time.Now().Add(150*time.Millisecond))
	sched.Schedule("moved", time.Now().Add(20*time.Millisecond))

	waitFor(t, 2*time.Second, func() bool { return len(recorder.snapshot()) == 1 })

	// Past the original deadline; the superseded entry must not fire again.
	time.Sleep(200 * time.Millisecond)
	if fired := recorder.snapshot(); len(fired) != 1 {
		t.Fatalf("expected the replaced entry to fire once, got %v", fired)
	}
}
