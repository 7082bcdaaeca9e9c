// Package schedule provides the cross-instance refresh scheduler: a
// process-wide batching queue that coalesces refresh requests occurring
// within one scheduling window into a single flush.
//
// The window restarts on every new request, so the scheduler is a
// trailing-edge debounce across all live instances at once, not a
// per-instance timer.
package schedule

import (
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// DefaultDelay is the scheduling window for coalescing refresh requests.
const DefaultDelay = 10 * time.Millisecond

type entry struct {
	id uint64
	fn func()
}

// Scheduler batches refresh requests by instance id.
type Scheduler struct {
	clock clockz.Clock
	delay time.Duration

	mu      sync.Mutex
	queue   []entry
	stopped bool

	stopc    chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets a custom clock. Use clockz.NewFakeClock for deterministic
// window testing.
func WithClock(clock clockz.Clock) Option {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithDelay sets the scheduling window.
func WithDelay(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.delay = d
		}
	}
}

// New creates a running scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock: clockz.RealClock,
		delay: DefaultDelay,
		stopc: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue requests a refresh for the given instance id. Re-requesting a
// refresh for an instance already queued has no additional effect. The
// queued functions run after the scheduling window elapses with no newer
// request; the flush invokes them exactly once each, in reverse insertion
// order.
func (s *Scheduler) Enqueue(id uint64, fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	for _, e := range s.queue {
		if e.id == id {
			s.mu.Unlock()
			return
		}
	}
	s.queue = append(s.queue, entry{id: id, fn: fn})
	mark := len(s.queue)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		timer := s.clock.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-timer.C():
			s.flush(mark)
		case <-s.stopc:
		}
	}()
}

// flush runs the queued refreshes if the queue length is unchanged since
// the request that scheduled this check. A changed length means a newer
// request arrived; its own check will perform the flush.
func (s *Scheduler) flush(mark int) {
	s.mu.Lock()
	if s.stopped || len(s.queue) != mark {
		s.mu.Unlock()
		return
	}
	batch := s.queue
	s.queue = nil
	s.mu.Unlock()

	for i := len(batch) - 1; i >= 0; i-- {
		batch[i].fn()
	}
}

// Pending returns the number of queued refresh requests.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Stop discards the queue and prevents further flushes. Pending window
// checks are released; Stop blocks until they exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.queue = nil
	s.mu.Unlock()
	s.stopOnce.Do(func() { close(s.stopc) })
	s.wg.Wait()
}

var (
	defaultScheduler *Scheduler
	defaultOnce      sync.Once
)

// Default returns the process-wide scheduler shared by components that are
// not handed an explicit one.
func Default() *Scheduler {
	defaultOnce.Do(func() {
		defaultScheduler = New()
	})
	return defaultScheduler
}
