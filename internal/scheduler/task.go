// Package scheduler provides a bounded priority worker pool with soft
// timeouts, bounded retry, pre-start cancellation and snapshot metrics.
package scheduler

import (
	"time"
)

// Priority orders tasks within the shared queue. Higher runs first.
type Priority int

// Priority bands, lowest to highest. Realtime is reserved for protocol
// ingestion so a slow decode cannot stall receipt of the next wire message.
const (
	PriorityLow Priority = iota + 1
	PriorityNormal
	PriorityHigh
	PriorityCritical
	PriorityRealtime
)

// String implements fmt.Stringer.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	case PriorityRealtime:
		return "realtime"
	}
	return "unknown"
}

// Priorities lists every band in ascending order.
func Priorities() []Priority {
	return []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical, PriorityRealtime}
}

// Category labels a task for metrics breakdowns. The set is closed.
type Category string

// Task categories.
const (
	CategoryData      Category = "data"
	CategoryEvent     Category = "event"
	CategoryMQTT      Category = "mqtt"
	CategoryBatch     Category = "batch"
	CategoryHistory   Category = "history_data"
	CategoryAnalytics Category = "analytics"
)

// Categories lists every category in a stable order.
func Categories() []Category {
	return []Category{CategoryData, CategoryEvent, CategoryMQTT, CategoryBatch, CategoryHistory, CategoryAnalytics}
}

// Func is a unit of work. The returned value is handed to completion
// observers; an error (or panic, recovered at the worker boundary) produces
// a failure result instead.
type Func func() (any, error)

// Result is the terminal outcome of one task, delivered at most once.
type Result struct {
	TaskID   string
	Category Category
	Priority Priority
	Success  bool
	Value    any
	Err      error
	Elapsed  time.Duration
	TimedOut bool // soft deadline breach; the work still ran to completion
	Attempts int
}

// Observer receives task results. Observers run on worker goroutines and
// must not block the pool.
type Observer func(Result)

type taskState int

const (
	stateQueued taskState = iota
	stateRunning
	stateCancelled
)

type task struct {
	id         string
	category   Category
	priority   Priority
	fn         Func
	timeout    time.Duration // 0 means no soft deadline
	maxRetries int
	attempts   int
	createdAt  time.Time
	seq        uint64 // submission order, breaks creation-time ties
	state      taskState
	index      int // heap bookkeeping
}

// Option customizes a submitted task.
type Option func(*task)

// WithTaskID overrides the generated task id.
func WithTaskID(id string) Option {
	return func(t *task) { t.id = id }
}

// WithTimeout sets a soft deadline. A breach is observed and reported, never
// enforced by termination.
func WithTimeout(d time.Duration) Option {
	return func(t *task) { t.timeout = d }
}

// WithMaxRetries allows a failing task to be re-queued up to n times before
// the failure result is delivered.
func WithMaxRetries(n int) Option {
	return func(t *task) {
		if n > 0 {
			t.maxRetries = n
		}
	}
}

// taskHeap orders tasks by priority descending, then submission order
// ascending (FIFO within a priority band).
type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	if !h[i].createdAt.Equal(h[j].createdAt) {
		return h[i].createdAt.Before(h[j].createdAt)
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
