package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchTopic(t *testing.T) {
	tests := []struct {
		pattern string
		topic   string
		want    bool
	}{
		{"oee/status", "oee/status", true},
		{"oee/*", "oee/status", true},
		{"oee/*", "oee/alarm", true},
		{"oee/*", "oee/LINE-01/status", false},
		{"oee/*/status", "oee/LINE-01/status", true},
		{"oee/*/status", "oee/LINE-01/alarm", false},
		{"oee/>", "oee/LINE-01/status", true},
		{"oee/>", "oee/status", true},
		{"oee/>", "oee", false},
		{">", "system/heartbeat", true},
		{">", "oee", true},
		{"system/heartbeat", "system/heartbeats", false},
		{"*", "oee", true},
		{"*", "oee/status", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+" vs "+tt.topic, func(t *testing.T) {
			assert.Equal(t, tt.want, matchTopic(tt.pattern, tt.topic))
		})
	}
}

func TestPublishReachesMatchingSubscribers(t *testing.T) {
	h := New(0, nil)

	var oee, all []string
	h.Subscribe("oee/*", func(e Event) { oee = append(oee, e.Topic) })
	h.Subscribe(">", func(e Event) { all = append(all, e.Topic) })

	h.Publish("oee/status", map[string]any{"oee": 45.0})
	h.Publish("system/heartbeat", nil)

	assert.Equal(t, []string{"oee/status"}, oee)
	assert.Equal(t, []string{"oee/status", "system/heartbeat"}, all)
}

func TestPublishDeliversInRegistrationOrder(t *testing.T) {
	h := New(0, nil)

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		h.Subscribe("topic", func(Event) { order = append(order, i) })
	}

	h.Publish("topic", nil)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestPanickingSubscriberIsIsolated(t *testing.T) {
	h := New(0, nil)

	var delivered bool
	h.Subscribe("topic", func(Event) { panic("boom") })
	h.Subscribe("topic", func(Event) { delivered = true })

	assert.NotPanics(t, func() { h.Publish("topic", nil) })
	assert.True(t, delivered, "fan-out continues past a panicking listener")
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	h := New(0, nil)

	var count int
	handle := h.Subscribe("topic", func(Event) { count++ })
	require.Equal(t, 1, h.SubscriberCount())

	h.Unsubscribe(handle)
	h.Unsubscribe(handle)
	h.Unsubscribe(Handle("never-existed"))

	h.Publish("topic", nil)
	assert.Zero(t, count)
	assert.Zero(t, h.SubscriberCount())
}

func TestHandlesAreUnique(t *testing.T) {
	h := New(0, nil)

	seen := map[Handle]bool{}
	for i := 0; i < 100; i++ {
		handle := h.Subscribe("topic", func(Event) {})
		assert.False(t, seen[handle])
		seen[handle] = true
	}
}

func TestHeartbeat(t *testing.T) {
	h := New(20*time.Millisecond, nil)

	beats := make(chan Event, 16)
	h.Subscribe(TopicHeartbeat, func(e Event) { beats <- e })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx)
	defer h.Stop()

	select {
	case e := <-beats:
		assert.Equal(t, TopicHeartbeat, e.Topic)
	case <-time.After(2 * time.Second):
		t.Fatal("no heartbeat received")
	}
}

func TestHeartbeatDisabled(t *testing.T) {
	h := New(0, nil)

	h.Start(context.Background())
	h.Stop() // must not block when heartbeats are disabled
}

func TestStopWithoutStartReturns(t *testing.T) {
	h := New(time.Second, nil)

	done := make(chan struct{})
	go func() {
		h.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked without a prior Start")
	}

	// Start after Stop must not resurrect the heartbeat loop either.
	h.Start(context.Background())
	h.Stop()
}

func TestEventCarriesTimestamp(t *testing.T) {
	h := New(0, nil)

	var got Event
	h.Subscribe("topic", func(e Event) { got = e })

	before := time.Now().UTC()
	h.Publish("topic", "payload")

	assert.Equal(t, "payload", got.Data)
	assert.False(t, got.Timestamp.Before(before.Add(-time.Second)))
}
