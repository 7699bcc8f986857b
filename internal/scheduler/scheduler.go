package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chipmonitor/ingest/internal/log"
)

// Scheduler runs submitted tasks on a fixed pool of workers, highest
// priority first. Submission never blocks and results are delivered
// asynchronously to registered observers.
type Scheduler struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  taskHeap
	active map[string]*task // queued and running tasks
	seq    uint64
	closed bool

	obsMu       sync.RWMutex
	onCompleted []Observer
	onFailed    []Observer

	metrics *metrics
	recent  *recentRing
	workers int
	wg      sync.WaitGroup
	log     *log.Logger
}

// New creates a scheduler and starts its workers. workers <= 0 selects
// min(32, NumCPU+4).
func New(workers int, recentHistory int, logger *log.Logger) *Scheduler {
	if workers <= 0 {
		workers = runtime.NumCPU() + 4
		if workers > 32 {
			workers = 32
		}
	}
	if recentHistory <= 0 {
		recentHistory = 1000
	}

	s := &Scheduler{
		active:  make(map[string]*task),
		metrics: newMetrics(workers),
		recent:  newRecentRing(recentHistory),
		workers: workers,
		log:     logger,
	}
	s.cond = sync.NewCond(&s.mu)

	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	logger.Info("Scheduler started with %d workers", workers)
	return s
}

// OnCompleted registers an observer for successful results.
func (s *Scheduler) OnCompleted(fn Observer) {
	s.obsMu.Lock()
	s.onCompleted = append(s.onCompleted, fn)
	s.obsMu.Unlock()
}

// OnFailed registers an observer for failure results.
func (s *Scheduler) OnFailed(fn Observer) {
	s.obsMu.Lock()
	s.onFailed = append(s.onFailed, fn)
	s.obsMu.Unlock()
}

// Submit enqueues a unit of work and returns its task id immediately. An
// empty id means the scheduler is shut down and the task was not accepted.
func (s *Scheduler) Submit(category Category, priority Priority, fn Func, opts ...Option) string {
	t := &task{
		category:  category,
		priority:  priority,
		fn:        fn,
		createdAt: time.Now(),
		state:     stateQueued,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.id == "" {
		t.id = fmt.Sprintf("%s_%s", category, uuid.NewString())
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.log.Warn("Task %s rejected: scheduler is shut down", t.id)
		return ""
	}
	s.seq++
	t.seq = s.seq
	s.active[t.id] = t
	heap.Push(&s.queue, t)
	s.mu.Unlock()

	s.metrics.recordSubmitted(t.category, t.priority)
	s.cond.Signal()

	s.log.Debug("Task submitted: %s (%s, priority %s)", t.id, t.category, t.priority)
	return t.id
}

// Cancel removes a task that has not started running. It returns false for
// running, finished or unknown tasks; there is no preemption.
func (s *Scheduler) Cancel(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.active[taskID]
	if !ok || t.state != stateQueued {
		return false
	}
	t.state = stateCancelled
	delete(s.active, taskID)
	s.metrics.recordCancelled(t.category, t.priority)
	s.log.Debug("Task cancelled: %s", taskID)
	return true
}

// QueueSize returns the number of tasks waiting or running.
func (s *Scheduler) QueueSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Metrics returns a snapshot of the pool counters.
func (s *Scheduler) Metrics() Metrics {
	m := s.metrics.snapshot()
	m.QueueSize = s.QueueSize()
	return m
}

// RecentTaskIDs returns the ids of recently finished tasks, newest last.
func (s *Scheduler) RecentTaskIDs() []string {
	return s.recent.snapshot()
}

// Shutdown stops intake and waits for in-flight and queued work to drain,
// or for ctx to expire.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("Scheduler shut down")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler shutdown: %w", ctx.Err())
	}
}

// worker pops the highest-priority task and runs it. Queued work is drained
// even after shutdown begins.
func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 && s.closed {
			s.mu.Unlock()
			return
		}
		t := heap.Pop(&s.queue).(*task)
		if t.state != stateQueued {
			// cancelled while queued
			s.mu.Unlock()
			continue
		}
		t.state = stateRunning
		s.mu.Unlock()

		s.execute(t)
	}
}

// execute runs one task attempt, converting panics into failure results and
// observing (never enforcing) the soft deadline.
func (s *Scheduler) execute(t *task) {
	s.metrics.workerStarted()
	start := time.Now()

	value, err := s.runGuarded(t)
	elapsed := time.Since(start)
	timedOut := t.timeout > 0 && elapsed > t.timeout
	t.attempts++

	s.metrics.workerStopped()

	if timedOut {
		s.log.Warn("Task %s exceeded soft deadline: ran %s, limit %s", t.id, elapsed, t.timeout)
	}

	if err != nil && t.attempts <= t.maxRetries {
		s.requeue(t)
		s.log.Debug("Task %s failed, retry %d/%d: %v", t.id, t.attempts, t.maxRetries, err)
		return
	}

	s.mu.Lock()
	delete(s.active, t.id)
	s.mu.Unlock()
	s.recent.add(t.id)

	result := Result{
		TaskID:   t.id,
		Category: t.category,
		Priority: t.priority,
		Success:  err == nil,
		Value:    value,
		Err:      err,
		Elapsed:  elapsed,
		TimedOut: timedOut,
		Attempts: t.attempts,
	}

	if err == nil {
		s.metrics.recordCompleted(t.category, t.priority, elapsed)
		s.notify(s.snapshotObservers(&s.onCompleted), result)
	} else {
		s.metrics.recordFailed(t.category, t.priority)
		s.log.Error("Task %s failed after %d attempt(s): %v", t.id, t.attempts, err)
		s.notify(s.snapshotObservers(&s.onFailed), result)
	}
}

// runGuarded invokes the unit of work and keeps panics from crossing the
// worker boundary.
func (s *Scheduler) runGuarded(t *task) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", t.id, r)
		}
	}()
	return t.fn()
}

func (s *Scheduler) requeue(t *task) {
	s.mu.Lock()
	if s.closed {
		// drop the retry, deliver the failure on the final attempt instead
		t.maxRetries = 0
		s.mu.Unlock()
		s.execute(t)
		return
	}
	t.state = stateQueued
	heap.Push(&s.queue, t)
	s.mu.Unlock()
	s.cond.Signal()
}

func (s *Scheduler) snapshotObservers(list *[]Observer) []Observer {
	s.obsMu.RLock()
	defer s.obsMu.RUnlock()
	out := make([]Observer, len(*list))
	copy(out, *list)
	return out
}

// notify delivers a result to each observer, isolating observer panics from
// the worker.
func (s *Scheduler) notify(observers []Observer, result Result) {
	for _, fn := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("Result observer panicked for task %s: %v", result.TaskID, r)
				}
			}()
			fn(result)
		}()
	}
}
