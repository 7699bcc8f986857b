package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chipmonitor/ingest/internal/event"
	"github.com/chipmonitor/ingest/internal/log"
)

func newBus() *Bus {
	return New(log.New())
}

func alert(msg string) event.Alert {
	return event.Alert{DeviceID: "TOOL_1", AlertType: "test", Severity: "info", Message: msg}
}

func TestSubscribeRejectsDuplicateName(t *testing.T) {
	b := newBus()

	_, ok := b.Subscribe(event.ChannelAlerts, "consumer", func(event.Message) {})
	require.True(t, ok)

	dup, ok := b.Subscribe(event.ChannelAlerts, "consumer", func(event.Message) {})
	assert.False(t, ok)
	assert.Nil(t, dup)

	// same name on another channel is fine
	_, ok = b.Subscribe(event.ChannelErrors, "consumer", func(event.Message) {})
	assert.True(t, ok)
}

func TestSubscribeUnknownChannel(t *testing.T) {
	b := newBus()
	_, ok := b.Subscribe(event.Channel("bogus"), "consumer", func(event.Message) {})
	assert.False(t, ok)
}

func TestPublishDeliversInRegistrationOrder(t *testing.T) {
	b := newBus()

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		n := name
		_, ok := b.Subscribe(event.ChannelAlerts, n, func(event.Message) {
			order = append(order, n)
		})
		require.True(t, ok)
	}

	require.True(t, b.Publish(event.ChannelAlerts, "test", alert("hello"), "TOOL_1"))
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestPublishWithoutSubscribersSucceeds(t *testing.T) {
	b := newBus()
	assert.True(t, b.Publish(event.ChannelTelemetry, "test", event.TelemetryEvent{DeviceID: "TOOL_1"}, "TOOL_1"))
}

func TestPublishUnknownChannelFails(t *testing.T) {
	b := newBus()
	assert.False(t, b.Publish(event.Channel("bogus"), "test", alert("x"), ""))
}

func TestCancelledSubscriberSkippedAndPurged(t *testing.T) {
	b := newBus()

	var got int
	sub, ok := b.Subscribe(event.ChannelAlerts, "consumer", func(event.Message) { got++ })
	require.True(t, ok)

	b.Publish(event.ChannelAlerts, "test", alert("one"), "")
	assert.Equal(t, 1, got)

	sub.Cancel()
	b.Publish(event.ChannelAlerts, "test", alert("two"), "")
	assert.Equal(t, 1, got)

	// the dead handle is gone from the registry after the publish
	assert.Equal(t, 0, b.LiveSubscribers(event.ChannelAlerts))

	// the name is free again
	_, ok = b.Subscribe(event.ChannelAlerts, "consumer", func(event.Message) {})
	assert.True(t, ok)
}

func TestUnsubscribeByName(t *testing.T) {
	b := newBus()

	_, ok := b.Subscribe(event.ChannelErrors, "consumer", func(event.Message) {})
	require.True(t, ok)

	assert.True(t, b.Unsubscribe(event.ChannelErrors, "consumer"))
	assert.False(t, b.Unsubscribe(event.ChannelErrors, "consumer"))
	assert.Equal(t, 0, b.LiveSubscribers(event.ChannelErrors))
}

func TestPanickingSubscriberDoesNotStopDelivery(t *testing.T) {
	b := newBus()

	_, ok := b.Subscribe(event.ChannelAlerts, "bad", func(event.Message) { panic("boom") })
	require.True(t, ok)

	var delivered bool
	_, ok = b.Subscribe(event.ChannelAlerts, "good", func(event.Message) { delivered = true })
	require.True(t, ok)

	require.True(t, b.Publish(event.ChannelAlerts, "test", alert("x"), ""))
	assert.True(t, delivered)

	stats := b.GetStats()
	assert.Equal(t, uint64(1), stats.Errors)
	assert.Equal(t, uint64(1), stats.Delivered, "panicked subscriber must not count as delivered")
}

func TestDeliveredCountsSuccessfulHandlersOnly(t *testing.T) {
	b := newBus()

	sub, _ := b.Subscribe(event.ChannelAlerts, "cancelled", func(event.Message) {})
	b.Subscribe(event.ChannelAlerts, "panics", func(event.Message) { panic("boom") })
	b.Subscribe(event.ChannelAlerts, "ok", func(event.Message) {})
	sub.Cancel()

	require.True(t, b.Publish(event.ChannelAlerts, "test", alert("x"), ""))

	stats := b.GetStats()
	assert.Equal(t, uint64(1), stats.Delivered)
	assert.Equal(t, uint64(1), stats.Errors)
}

func TestGetStats(t *testing.T) {
	b := newBus()

	sub, _ := b.Subscribe(event.ChannelAlerts, "a", func(event.Message) {})
	b.Subscribe(event.ChannelAlerts, "b", func(event.Message) {})
	b.Subscribe(event.ChannelTelemetry, "c", func(event.Message) {})

	b.Publish(event.ChannelAlerts, "test", alert("x"), "")
	sub.Cancel()

	stats := b.GetStats()
	assert.Equal(t, uint64(1), stats.Published)
	assert.Equal(t, uint64(2), stats.Delivered)
	assert.Equal(t, uint64(1), stats.Purged)
	assert.Equal(t, 1, stats.LiveSubscribers[event.ChannelAlerts])
	assert.Equal(t, 1, stats.LiveSubscribers[event.ChannelTelemetry])
	assert.Equal(t, 0, stats.LiveSubscribers[event.ChannelErrors])
}
