// Package bus provides the in-process publish/subscribe fan-out between the
// decoder, the buffering layers and external consumers such as the UI.
//
// Subscriptions are explicit handles with a liveness flag: cancelling a
// handle marks it dead, and the registry purges dead handles lazily on the
// next publish or stats pass for that channel rather than eagerly.
package bus

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chipmonitor/ingest/internal/event"
	"github.com/chipmonitor/ingest/internal/log"
)

var errSubscriberPanic = errors.New("subscriber panicked")

// Handler receives published messages. Handlers on the hot path run on the
// publishing goroutine and must be fast or offload to the scheduler.
type Handler func(event.Message)

// Subscription is the handle returned by Subscribe. The owner calls Cancel
// on teardown; until the registry notices, the handle merely stops being
// considered live.
type Subscription struct {
	channel event.Channel
	name    string
	fn      Handler
	dead    atomic.Bool
}

// Cancel marks the subscription dead. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.dead.Store(true)
}

// Name returns the registration name of the subscription.
func (s *Subscription) Name() string { return s.name }

// Stats is a point-in-time snapshot of bus counters.
type Stats struct {
	Published       uint64
	Delivered       uint64
	Errors          uint64
	Purged          uint64
	LiveSubscribers map[event.Channel]int
	Timestamp       time.Time
}

type channelState struct {
	mu   sync.Mutex
	subs []*Subscription
}

// Bus fans messages out to channel subscribers synchronously, in
// registration order. Each channel has its own lock so publishing on one
// channel never blocks another.
type Bus struct {
	channels map[event.Channel]*channelState

	statsMu   sync.Mutex
	published uint64
	delivered uint64
	errors    uint64
	purged    uint64

	log *log.Logger
}

// New creates a bus with one registry per channel.
func New(logger *log.Logger) *Bus {
	channels := make(map[event.Channel]*channelState, len(event.Channels()))
	for _, ch := range event.Channels() {
		channels[ch] = &channelState{}
	}
	return &Bus{
		channels: channels,
		log:      logger,
	}
}

// Subscribe registers a named handler on a channel. It returns false and a
// nil handle when a live subscription with the same name already exists on
// that channel, or when the channel is unknown.
func (b *Bus) Subscribe(channel event.Channel, name string, fn Handler) (*Subscription, bool) {
	state, ok := b.channels[channel]
	if !ok {
		b.log.Error("Subscribe rejected: unknown channel %q", channel)
		return nil, false
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	for _, sub := range state.subs {
		if !sub.dead.Load() && sub.name == name {
			b.log.Warn("Duplicate subscription: %s -> %s", name, channel)
			return nil, false
		}
	}

	sub := &Subscription{channel: channel, name: name, fn: fn}
	state.subs = append(state.subs, sub)
	b.log.Info("Subscribed: %s -> %s", name, channel)
	return sub, true
}

// Unsubscribe cancels the live subscription with the given name on a
// channel. It returns false when no such subscription exists.
func (b *Bus) Unsubscribe(channel event.Channel, name string) bool {
	state, ok := b.channels[channel]
	if !ok {
		return false
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	for _, sub := range state.subs {
		if !sub.dead.Load() && sub.name == name {
			sub.dead.Store(true)
			b.log.Info("Unsubscribed: %s -> %s", name, channel)
			return true
		}
	}
	return false
}

// Publish delivers a payload to every live subscriber of the channel, in
// registration order, on the calling goroutine. Dead handles found during
// compaction are removed permanently. Publishing to a channel with zero
// live subscribers succeeds and the message is dropped.
func (b *Bus) Publish(channel event.Channel, source string, payload event.Payload, deviceID string) bool {
	state, ok := b.channels[channel]
	if !ok {
		b.log.Error("Publish rejected: unknown channel %q", channel)
		return false
	}

	msg := event.NewMessage(channel, source, payload, deviceID)

	state.mu.Lock()
	live := b.compactLocked(state)
	state.mu.Unlock()

	var delivered, errs uint64
	for _, sub := range live {
		if sub.dead.Load() {
			continue
		}
		if err := b.invoke(sub, msg); err != nil {
			errs++
			continue
		}
		delivered++
	}

	b.statsMu.Lock()
	b.published++
	b.delivered += delivered
	b.errors += errs
	b.statsMu.Unlock()

	return true
}

// invoke isolates a single subscriber failure so delivery continues to the
// remaining subscribers.
func (b *Bus) invoke(sub *Subscription, msg event.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("Subscriber %s panicked on %s: %v", sub.name, msg.Channel, r)
			err = errSubscriberPanic
		}
	}()
	sub.fn(msg)
	return nil
}

// compactLocked drops dead handles from the registry and returns the live
// list in registration order. Callers hold the channel lock.
func (b *Bus) compactLocked(state *channelState) []*Subscription {
	live := state.subs[:0]
	removed := 0
	for _, sub := range state.subs {
		if sub.dead.Load() {
			removed++
			continue
		}
		live = append(live, sub)
	}
	// release trailing references so cancelled handlers can be collected
	for i := len(live); i < len(state.subs); i++ {
		state.subs[i] = nil
	}
	state.subs = live

	if removed > 0 {
		b.statsMu.Lock()
		b.purged += uint64(removed)
		b.statsMu.Unlock()
		b.log.Debug("Purged %d dead subscription(s)", removed)
	}

	out := make([]*Subscription, len(live))
	copy(out, live)
	return out
}

// LiveSubscribers compacts the channel and returns its live subscriber
// count.
func (b *Bus) LiveSubscribers(channel event.Channel) int {
	state, ok := b.channels[channel]
	if !ok {
		return 0
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return len(b.compactLocked(state))
}

// GetStats compacts every channel and snapshots the counters.
func (b *Bus) GetStats() Stats {
	liveCounts := make(map[event.Channel]int, len(b.channels))
	for _, ch := range event.Channels() {
		liveCounts[ch] = b.LiveSubscribers(ch)
	}

	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	return Stats{
		Published:       b.published,
		Delivered:       b.delivered,
		Errors:          b.errors,
		Purged:          b.purged,
		LiveSubscribers: liveCounts,
		Timestamp:       time.Now(),
	}
}
