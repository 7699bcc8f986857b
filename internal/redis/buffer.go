package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chipmonitor/ingest/internal/event"
	"github.com/chipmonitor/ingest/internal/log"
	"github.com/chipmonitor/ingest/pkg/jsonfast"
)

// BufferStats is a point-in-time snapshot of buffer counters.
type BufferStats struct {
	Connected  bool
	Buffered   uint64
	Flushes    uint64
	Dropped    uint64
	Skipped    uint64
	QueueSizes map[event.Channel]int
	Timestamp  time.Time
}

type channelBuffer struct {
	strategy strategy

	mu        sync.Mutex
	queue     []event.Message
	lastFlush time.Time
}

// Buffer accumulates messages per channel and writes them to Redis in
// pipelined batches. A flush happens inline, under the channel lock, when
// the queue reaches the strategy batch size or the flush interval has
// elapsed; a background ticker bounds staleness on quiet channels. A failed
// flush drops the batch: the buffer tier is a window, not a ledger.
type Buffer struct {
	client *Client
	log    *log.Logger

	channels map[event.Channel]*channelBuffer

	statsMu  sync.Mutex
	buffered uint64
	flushes  uint64
	dropped  uint64
	skipped  uint64

	closeCh chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// NewBuffer creates the per-channel queues from the static strategy table.
func NewBuffer(client *Client, logger *log.Logger) *Buffer {
	channels := make(map[event.Channel]*channelBuffer, len(bufferStrategies))
	now := time.Now()
	for ch, strat := range bufferStrategies {
		channels[ch] = &channelBuffer{strategy: strat, lastFlush: now}
	}
	return &Buffer{
		client:   client,
		log:      logger,
		channels: channels,
		closeCh:  make(chan struct{}),
	}
}

// Start launches the background force-flush ticker.
func (b *Buffer) Start(interval time.Duration) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-b.closeCh:
				return
			case <-ticker.C:
				b.ForceFlushAll()
			}
		}
	}()
}

// Buffer queues one message. It returns false when the message could not be
// accepted or an inline flush failed.
func (b *Buffer) Buffer(msg event.Message) bool {
	cb, ok := b.channels[msg.Channel]
	if !ok {
		b.log.Debug("No buffer strategy for channel %q", msg.Channel)
		return true
	}
	if !b.client.Connected() {
		b.statsMu.Lock()
		b.skipped++
		b.statsMu.Unlock()
		b.log.Debug("Redis disconnected, skipping buffer for %s", msg.Channel)
		return false
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.queue = append(cb.queue, msg)
	b.statsMu.Lock()
	b.buffered++
	b.statsMu.Unlock()

	shouldFlush := len(cb.queue) >= cb.strategy.batchSize ||
		time.Since(cb.lastFlush) >= cb.strategy.flushInterval
	if shouldFlush {
		return b.flushLocked(cb) == nil
	}
	return true
}

// ForceFlushAll drains every channel regardless of thresholds and returns
// the number of messages flushed per channel.
func (b *Buffer) ForceFlushAll() map[event.Channel]int {
	results := make(map[event.Channel]int, len(b.channels))
	for ch, cb := range b.channels {
		cb.mu.Lock()
		n := len(cb.queue)
		var err error
		if n > 0 {
			err = b.flushLocked(cb)
		}
		cb.mu.Unlock()
		if err == nil {
			results[ch] = n
		}
	}
	return results
}

// flushLocked drains the whole queue and writes it in one pipeline. The
// caller holds the channel lock. On error the batch is gone; the connection
// manager is told so the reconnect loop can start.
func (b *Buffer) flushLocked(cb *channelBuffer) error {
	batch := cb.queue
	cb.queue = nil
	cb.lastFlush = time.Now()

	if len(batch) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.client.cfg.WriteTimeout)
	defer cancel()

	pipe := b.client.rdb.Pipeline()
	for i := range batch {
		body, err := serializeEnvelope(&batch[i])
		if err != nil {
			b.log.Warn("Envelope serialization failed on %s: %v", batch[i].Channel, err)
			continue
		}
		switch cb.strategy.structure {
		case structureStream:
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: cb.strategy.key,
				MaxLen: cb.strategy.maxLength,
				Approx: true,
				Values: map[string]any{"data": body},
			})
		case structureList:
			pipe.LPush(ctx, cb.strategy.key, body)
		}
	}

	if cb.strategy.structure == structureList {
		pipe.LTrim(ctx, cb.strategy.key, 0, cb.strategy.maxLength-1)
		pipe.Expire(ctx, cb.strategy.key, cb.strategy.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		b.statsMu.Lock()
		b.dropped += uint64(len(batch))
		b.statsMu.Unlock()
		b.log.Error("Flush failed on %s, dropping %d message(s): %v", cb.strategy.key, len(batch), err)
		b.client.noteFailure(err)
		return fmt.Errorf("flush %s: %w", cb.strategy.key, err)
	}

	b.statsMu.Lock()
	b.flushes++
	b.statsMu.Unlock()
	b.log.Debug("Flushed %d message(s) to %s", len(batch), cb.strategy.key)
	return nil
}

// BufferedCount returns the number of entries currently held in Redis for a
// channel.
func (b *Buffer) BufferedCount(ctx context.Context, channel event.Channel) (int64, error) {
	cb, ok := b.channels[channel]
	if !ok {
		return 0, fmt.Errorf("%w: unknown channel %q", event.ErrRouting, channel)
	}
	if cb.strategy.structure == structureStream {
		return b.client.rdb.XLen(ctx, cb.strategy.key).Result()
	}
	return b.client.rdb.LLen(ctx, cb.strategy.key).Result()
}

// ClearChannel drops both the pending queue and the Redis key for a channel.
func (b *Buffer) ClearChannel(ctx context.Context, channel event.Channel) error {
	cb, ok := b.channels[channel]
	if !ok {
		return fmt.Errorf("%w: unknown channel %q", event.ErrRouting, channel)
	}

	cb.mu.Lock()
	cb.queue = nil
	cb.mu.Unlock()

	if err := b.client.rdb.Del(ctx, cb.strategy.key).Err(); err != nil {
		return fmt.Errorf("clear %s: %w", cb.strategy.key, err)
	}
	b.log.Info("Cleared buffer channel %s", channel)
	return nil
}

// GetStats snapshots the counters and pending queue sizes.
func (b *Buffer) GetStats() BufferStats {
	sizes := make(map[event.Channel]int, len(b.channels))
	for ch, cb := range b.channels {
		cb.mu.Lock()
		sizes[ch] = len(cb.queue)
		cb.mu.Unlock()
	}

	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	return BufferStats{
		Connected:  b.client.Connected(),
		Buffered:   b.buffered,
		Flushes:    b.flushes,
		Dropped:    b.dropped,
		Skipped:    b.skipped,
		QueueSizes: sizes,
		Timestamp:  time.Now(),
	}
}

// Close stops the ticker and performs a final drain.
func (b *Buffer) Close() {
	b.once.Do(func() {
		close(b.closeCh)
	})
	b.wg.Wait()
	b.ForceFlushAll()
}

// serializeEnvelope renders the buffer envelope: routing metadata plus the
// payload as nested raw JSON.
func serializeEnvelope(msg *event.Message) ([]byte, error) {
	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return nil, err
	}

	builder := jsonfast.New(len(data) + 160)
	builder.BeginObject()
	builder.AddStringField("channel", string(msg.Channel))
	builder.AddStringField("source", msg.Source)
	builder.AddStringField("device_id", msg.DeviceID)
	builder.AddTimeRFC3339Field("timestamp", msg.Timestamp)

	// top-level scan fields so stream consumers can filter telemetry
	// without unpacking the nested payload
	if te, ok := msg.Payload.(event.TelemetryEvent); ok {
		builder.AddIntField("batch_size", te.BatchSize)
		if te.Sample.DeviceTimestamp != 0 {
			builder.AddInt64Field("device_timestamp", te.Sample.DeviceTimestamp)
		}
		if te.Span != nil {
			builder.AddFloatField("batch_time_span", te.Span.Span)
		}
		builder.AddFloatMapField("gas", te.Sample.Gas)
	}

	builder.AddRawJSONField("data", data)
	builder.EndObject()

	out := make([]byte, len(builder.Bytes()))
	copy(out, builder.Bytes())
	return out, nil
}
