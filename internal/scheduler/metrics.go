package scheduler

import (
	"sync"
	"time"
)

// CategoryMetrics breaks pool counters down by task category.
type CategoryMetrics struct {
	Submitted uint64
	Completed uint64
	Failed    uint64
	TotalTime time.Duration
	AvgTime   time.Duration
}

// PriorityMetrics breaks pool counters down by priority band.
type PriorityMetrics struct {
	Submitted uint64
	Completed uint64
	Failed    uint64
}

// Metrics is a point-in-time snapshot of the pool.
type Metrics struct {
	TotalSubmitted uint64
	TotalCompleted uint64
	TotalFailed    uint64
	TotalCancelled uint64
	QueueSize      int
	ActiveWorkers  int
	MaxWorkers     int
	MinLatency     time.Duration
	MaxLatency     time.Duration
	AvgLatency     time.Duration
	TotalLatency   time.Duration
	ByCategory     map[Category]CategoryMetrics
	ByPriority     map[Priority]PriorityMetrics
}

// metrics holds live counters behind a dedicated mutex, separate from the
// queue lock so bookkeeping never contends with dispatch.
type metrics struct {
	mu            sync.Mutex
	submitted     uint64
	completed     uint64
	failed        uint64
	cancelled     uint64
	activeWorkers int
	maxWorkers    int
	minLatency    time.Duration
	maxLatency    time.Duration
	totalLatency  time.Duration
	byCategory    map[Category]CategoryMetrics
	byPriority    map[Priority]PriorityMetrics
}

func newMetrics(maxWorkers int) *metrics {
	m := &metrics{
		maxWorkers: maxWorkers,
		byCategory: make(map[Category]CategoryMetrics, len(Categories())),
		byPriority: make(map[Priority]PriorityMetrics, len(Priorities())),
	}
	for _, c := range Categories() {
		m.byCategory[c] = CategoryMetrics{}
	}
	for _, p := range Priorities() {
		m.byPriority[p] = PriorityMetrics{}
	}
	return m
}

func (m *metrics) recordSubmitted(c Category, p Priority) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted++
	cm := m.byCategory[c]
	cm.Submitted++
	m.byCategory[c] = cm
	pm := m.byPriority[p]
	pm.Submitted++
	m.byPriority[p] = pm
}

func (m *metrics) recordCompleted(c Category, p Priority, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed++
	m.totalLatency += elapsed
	if m.minLatency == 0 || elapsed < m.minLatency {
		m.minLatency = elapsed
	}
	if elapsed > m.maxLatency {
		m.maxLatency = elapsed
	}

	cm := m.byCategory[c]
	cm.Completed++
	cm.TotalTime += elapsed
	cm.AvgTime = cm.TotalTime / time.Duration(cm.Completed)
	m.byCategory[c] = cm

	pm := m.byPriority[p]
	pm.Completed++
	m.byPriority[p] = pm
}

func (m *metrics) recordFailed(c Category, p Priority) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed++
	cm := m.byCategory[c]
	cm.Failed++
	m.byCategory[c] = cm
	pm := m.byPriority[p]
	pm.Failed++
	m.byPriority[p] = pm
}

func (m *metrics) recordCancelled(Category, Priority) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled++
}

func (m *metrics) workerStarted() {
	m.mu.Lock()
	m.activeWorkers++
	m.mu.Unlock()
}

func (m *metrics) workerStopped() {
	m.mu.Lock()
	m.activeWorkers--
	m.mu.Unlock()
}

func (m *metrics) snapshot() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Metrics{
		TotalSubmitted: m.submitted,
		TotalCompleted: m.completed,
		TotalFailed:    m.failed,
		TotalCancelled: m.cancelled,
		ActiveWorkers:  m.activeWorkers,
		MaxWorkers:     m.maxWorkers,
		MinLatency:     m.minLatency,
		MaxLatency:     m.maxLatency,
		TotalLatency:   m.totalLatency,
		ByCategory:     make(map[Category]CategoryMetrics, len(m.byCategory)),
		ByPriority:     make(map[Priority]PriorityMetrics, len(m.byPriority)),
	}
	if m.completed > 0 {
		snap.AvgLatency = m.totalLatency / time.Duration(m.completed)
	}
	for c, cm := range m.byCategory {
		snap.ByCategory[c] = cm
	}
	for p, pm := range m.byPriority {
		snap.ByPriority[p] = pm
	}
	return snap
}

// recentRing retains the ids of the last N finished tasks for diagnostics.
type recentRing struct {
	mu   sync.Mutex
	ids  []string
	next int
	full bool
}

func newRecentRing(size int) *recentRing {
	return &recentRing{ids: make([]string, size)}
}

func (r *recentRing) add(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids[r.next] = id
	r.next = (r.next + 1) % len(r.ids)
	if r.next == 0 {
		r.full = true
	}
}

func (r *recentRing) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]string, r.next)
		copy(out, r.ids[:r.next])
		return out
	}
	out := make([]string, 0, len(r.ids))
	out = append(out, r.ids[r.next:]...)
	out = append(out, r.ids[:r.next]...)
	return out
}
