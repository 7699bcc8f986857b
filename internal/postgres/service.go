package postgres

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chipmonitor/ingest/internal/bus"
	"github.com/chipmonitor/ingest/internal/event"
	"github.com/chipmonitor/ingest/internal/log"
	"github.com/chipmonitor/ingest/internal/scheduler"
)

// Service states.
const (
	stateStopped int32 = iota
	stateRunning
)

const subscriberName = "database_persistence"

// inserter is the subset of Store the service needs. Narrow so tests can
// observe flushed batches without a live database.
type inserter interface {
	InsertBatch(ctx context.Context, channel event.Channel, msgs []event.Message) error
}

// persistStrategy holds the per-channel thresholds. Failures and alerts are
// small and urgent, telemetry arrives in bulk.
type persistStrategy struct {
	threshold     int
	flushInterval time.Duration
}

var persistStrategies = map[event.Channel]persistStrategy{
	event.ChannelTelemetry:    {threshold: 50, flushInterval: 10 * time.Second},
	event.ChannelAlerts:       {threshold: 20, flushInterval: 5 * time.Second},
	event.ChannelDeviceEvents: {threshold: 30, flushInterval: 8 * time.Second},
	event.ChannelErrors:       {threshold: 10, flushInterval: 3 * time.Second},
}

type persistQueue struct {
	strategy persistStrategy

	mu        sync.Mutex
	msgs      []event.Message
	lastFlush time.Time
}

// ServiceStats is a point-in-time snapshot of persistence counters.
type ServiceStats struct {
	Running    bool
	Received   uint64
	Persisted  uint64
	Flushes    uint64
	Errors     uint64
	QueueSizes map[event.Channel]int
	Timestamp  time.Time
}

// Service drains the bus channels into the store. Bus delivery only
// enqueues; breaching a channel threshold submits a flush task to the
// scheduler, and a ticker forces a flush on quiet channels so nothing sits
// in memory longer than the interval.
type Service struct {
	store inserter
	bus   *bus.Bus
	sched *scheduler.Scheduler
	log   *log.Logger

	state  atomic.Int32
	queues map[event.Channel]*persistQueue
	subs   []*bus.Subscription

	statsMu   sync.Mutex
	received  uint64
	persisted uint64
	flushes   uint64
	errCount  uint64

	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewService wires the service; Start begins consuming.
func NewService(store inserter, b *bus.Bus, sched *scheduler.Scheduler, logger *log.Logger) *Service {
	queues := make(map[event.Channel]*persistQueue, len(persistStrategies))
	now := time.Now()
	for ch, strat := range persistStrategies {
		queues[ch] = &persistQueue{strategy: strat, lastFlush: now}
	}
	return &Service{
		store:  store,
		bus:    b,
		sched:  sched,
		log:    logger,
		queues: queues,
	}
}

// Start subscribes to every channel and arms the force-flush ticker.
// Starting a running service is a no-op error.
func (s *Service) Start(forceFlushInterval time.Duration) bool {
	if !s.state.CompareAndSwap(stateStopped, stateRunning) {
		s.log.Warn("Persistence service already running")
		return false
	}

	s.closeCh = make(chan struct{})
	s.subs = s.subs[:0]
	for _, ch := range event.Channels() {
		channel := ch
		sub, ok := s.bus.Subscribe(channel, subscriberName, func(msg event.Message) {
			s.enqueue(channel, msg)
		})
		if !ok {
			s.log.Error("Persistence subscription failed on %s", channel)
			continue
		}
		s.subs = append(s.subs, sub)
	}

	s.wg.Add(1)
	go s.forceFlushLoop(forceFlushInterval)

	s.log.Info("Persistence service started")
	return true
}

// enqueue appends under the channel lock and submits a flush task when the
// threshold or interval is breached. Bus delivery never touches the
// database. The state check happens under the queue lock: Stop's final drain
// holds the same lock, so nothing can slip in behind it and strand.
func (s *Service) enqueue(channel event.Channel, msg event.Message) {
	q := s.queues[channel]

	q.mu.Lock()
	if s.state.Load() != stateRunning {
		q.mu.Unlock()
		return
	}
	q.msgs = append(q.msgs, msg)
	breach := len(q.msgs) >= q.strategy.threshold ||
		time.Since(q.lastFlush) >= q.strategy.flushInterval
	q.mu.Unlock()

	s.statsMu.Lock()
	s.received++
	s.statsMu.Unlock()

	if breach {
		s.submitFlush(channel)
	}
}

func (s *Service) submitFlush(channel event.Channel) {
	s.sched.Submit(scheduler.CategoryBatch, scheduler.PriorityHigh, func() (any, error) {
		s.flush(channel)
		return nil, nil
	})
}

// flush drains the channel queue and writes one batch. A failed write drops
// the batch and counts an error.
func (s *Service) flush(channel event.Channel) {
	q := s.queues[channel]

	q.mu.Lock()
	batch := q.msgs
	q.msgs = nil
	q.lastFlush = time.Now()
	q.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.store.InsertBatch(ctx, channel, batch); err != nil {
		s.statsMu.Lock()
		s.errCount++
		s.statsMu.Unlock()
		s.log.Error("Persist failed on %s, dropping %d message(s): %v", channel, len(batch), err)
		return
	}

	s.statsMu.Lock()
	s.persisted += uint64(len(batch))
	s.flushes++
	s.statsMu.Unlock()
	s.log.Debug("Persisted %d message(s) from %s", len(batch), channel)
}

func (s *Service) forceFlushLoop(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.closeCh:
			return
		case <-ticker.C:
			for channel, q := range s.queues {
				q.mu.Lock()
				pending := len(q.msgs)
				q.mu.Unlock()
				if pending > 0 {
					s.submitFlush(channel)
				}
			}
		}
	}
}

// Stop disarms the ticker, drains every queue synchronously and
// unsubscribes. Stopping twice is a no-op.
func (s *Service) Stop() bool {
	if !s.state.CompareAndSwap(stateRunning, stateStopped) {
		return false
	}

	close(s.closeCh)
	s.wg.Wait()

	// final drain on the calling goroutine, enqueue is already disabled
	for _, ch := range event.Channels() {
		s.flush(ch)
	}

	for _, sub := range s.subs {
		sub.Cancel()
	}
	s.subs = nil

	s.log.Info("Persistence service stopped")
	return true
}

// Running reports the service state.
func (s *Service) Running() bool {
	return s.state.Load() == stateRunning
}

// GetStats snapshots the counters and pending queue sizes.
func (s *Service) GetStats() ServiceStats {
	sizes := make(map[event.Channel]int, len(s.queues))
	for ch, q := range s.queues {
		q.mu.Lock()
		sizes[ch] = len(q.msgs)
		q.mu.Unlock()
	}

	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return ServiceStats{
		Running:    s.Running(),
		Received:   s.received,
		Persisted:  s.persisted,
		Flushes:    s.flushes,
		Errors:     s.errCount,
		QueueSizes: sizes,
		Timestamp:  time.Now(),
	}
}
