package hub

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// TopicHeartbeat is published at the configured interval while the hub
// is running.
const TopicHeartbeat = "system/heartbeat"

// Event is one notification fanned out to subscribers.
type Event struct {
	Topic     string    `json:"topic"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Listener receives events matching a subscription pattern. Listeners
// run synchronously on the publisher's goroutine; slow listeners slow
// the publisher.
type Listener func(Event)

// Handle identifies a subscription for later removal.
type Handle string

type subscription struct {
	handle   Handle
	pattern  string
	listener Listener
	seq      uint64
}

// Hub fans events out to pattern subscribers in registration order.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	subs    map[Handle]*subscription
	nextSeq uint64

	heartbeat time.Duration
	started   atomic.Bool
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// New creates a hub. heartbeatInterval <= 0 disables heartbeats.
func New(heartbeatInterval time.Duration, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:    logger.With("component", "hub"),
		subs:      make(map[Handle]*subscription),
		heartbeat: heartbeatInterval,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Subscribe registers a listener for topics matching pattern and
// returns the handle to unsubscribe with. Patterns are /-separated;
// "*" matches exactly one segment and a trailing ">" matches the rest,
// so "oee/*" matches "oee/status" but not "oee/LINE-01/status".
func (h *Hub) Subscribe(pattern string, listener Listener) Handle {
	handle := Handle(uuid.New().String())

	h.mu.Lock()
	h.nextSeq++
	h.subs[handle] = &subscription{
		handle:   handle,
		pattern:  pattern,
		listener: listener,
		seq:      h.nextSeq,
	}
	h.mu.Unlock()

	h.logger.Debug("subscriber registered", "pattern", pattern, "handle", string(handle))
	return handle
}

// Unsubscribe removes a subscription. Unknown or already-removed
// handles are a no-op.
func (h *Hub) Unsubscribe(handle Handle) {
	h.mu.Lock()
	_, existed := h.subs[handle]
	delete(h.subs, handle)
	h.mu.Unlock()

	if existed {
		h.logger.Debug("subscriber removed", "handle", string(handle))
	}
}

// SubscriberCount returns the number of active subscriptions
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish delivers the event synchronously to every matching listener
// in registration order. A panicking listener is isolated and logged;
// the remaining listeners still run.
func (h *Hub) Publish(topic string, data any) {
	event := Event{Topic: topic, Data: data, Timestamp: time.Now().UTC()}

	h.mu.RLock()
	matched := make([]*subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		if matchTopic(sub.pattern, topic) {
			matched = append(matched, sub)
		}
	}
	h.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })

	for _, sub := range matched {
		h.deliver(sub, event)
	}
}

func (h *Hub) deliver(sub *subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("subscriber panicked, continuing fan-out",
				"pattern", sub.pattern,
				"topic", event.Topic,
				"panic", r)
		}
	}()
	sub.listener(event)
}

// Start begins the heartbeat loop. Returns immediately when heartbeats
// are disabled. Calling Start more than once is a no-op.
func (h *Hub) Start(ctx context.Context) {
	if !h.started.CompareAndSwap(false, true) {
		return
	}
	if h.heartbeat <= 0 {
		close(h.done)
		return
	}

	go func() {
		defer close(h.done)
		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-h.stop:
				return
			case now := <-ticker.C:
				h.Publish(TopicHeartbeat, map[string]any{"uptime": now.UTC().Format(time.RFC3339)})
			}
		}
	}()
}

// Stop halts the heartbeat loop. Subscriptions stay registered. Safe to
// call at any time, including before Start.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
	if !h.started.Load() {
		return
	}
	<-h.done
}

// matchTopic reports whether a /-separated pattern matches a topic.
// "*" matches exactly one segment; a trailing ">" matches one or more
// remaining segments.
func matchTopic(pattern, topic string) bool {
	if pattern == topic {
		return true
	}

	pparts := strings.Split(pattern, "/")
	tparts := strings.Split(topic, "/")

	for i, p := range pparts {
		if p == ">" && i == len(pparts)-1 {
			return len(tparts) > i
		}
		if i >= len(tparts) {
			return false
		}
		if p != "*" && p != tparts[i] {
			return false
		}
	}
	return len(pparts) == len(tparts)
}
