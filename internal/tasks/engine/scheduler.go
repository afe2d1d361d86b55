package engine

import (
	"container/heap"
	"sync"
	"time"
)

// Scheduler owns the deferred-completion timers as an explicit priority
// queue keyed by task id, so restart recovery and cancellation are plain
// operations on the queue rather than on runtime timer handles.
type Scheduler struct {
	mu      sync.Mutex
	queue   deadlineHeap
	pending map[string]*deadlineEntry
	clock   func() time.Time
	fire    func(taskID string)

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

type deadlineEntry struct {
	taskID    string
	at        time.Time
	index     int
	cancelled bool
}

// NewScheduler creates a scheduler that invokes fire for each due task id.
// Fire runs on the scheduler goroutine; the callback is responsible for its
// own locking.
func NewScheduler(clock func() time.Time, fire func(taskID string)) *Scheduler {
	if clock == nil {
		clock = time.Now
	}
	return &Scheduler{
		pending: make(map[string]*deadlineEntry),
		clock:   clock,
		fire:    fire,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Start launches the scheduler loop.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop terminates the scheduler loop. Pending entries are discarded.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.done) })
}

// Schedule queues a deferred fire for the task at the given time. Scheduling
// an already-queued task replaces its deadline.
func (s *Scheduler) Schedule(taskID string, at time.Time) {
	s.mu.Lock()
	if existing, ok := s.pending[taskID]; ok {
		existing.cancelled = true
		delete(s.pending, taskID)
	}
	entry := &deadlineEntry{taskID: taskID, at: at}
	heap.Push(&s.queue, entry)
	s.pending[taskID] = entry
	s.mu.Unlock()
	s.poke()
}

// Cancel clears a pending fire for the task. Cancelling a task whose timer
// already fired, or was never scheduled, is a no-op.
func (s *Scheduler) Cancel(taskID string) {
	s.mu.Lock()
	if entry, ok := s.pending[taskID]; ok {
		entry.cancelled = true
		delete(s.pending, taskID)
	}
	s.mu.Unlock()
	s.poke()
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run() {
	for {
		now := s.clock()
		due, next := s.collectDue(now)
		for _, taskID := range due {
			s.fire(taskID)
		}

		var timer <-chan time.Time
		if !next.IsZero() {
			wait := next.Sub(s.clock())
			if wait < 0 {
				wait = 0
			}
			t := time.NewTimer(wait)
			timer = t.C
			select {
			case <-s.done:
				t.Stop()
				return
			case <-s.wake:
				t.Stop()
			case <-timer:
			}
			continue
		}

		select {
		case <-s.done:
			return
		case <-s.wake:
		}
	}
}

// collectDue pops every entry due at or before now, skipping cancelled ones,
// and reports the next pending deadline (zero when the queue is empty).
func (s *Scheduler) collectDue(now time.Time) (due []string, next time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.queue.Len() > 0 {
		entry := s.queue[0]
		if entry.cancelled {
			heap.Pop(&s.queue)
			continue
		}
		if entry.at.After(now) {
			next = entry.at
			break
		}
		heap.Pop(&s.queue)
		delete(s.pending, entry.taskID)
		due = append(due, entry.taskID)
	}
	return due, next
}

type deadlineHeap []*deadlineEntry

func (h deadlineHeap) Len() int            { return len(h) }
func (h deadlineHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h deadlineHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *deadlineHeap) Push(x any)         { entry := x.(*deadlineEntry); entry.index = len(*h); *h = append(*h, entry) }
func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return entry
}
