package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/errors"
	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/metric"
	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/pkg/retry"
)

// ConnectionState represents the state of the broker connection
type ConnectionState int32

// Possible connection states. Failed is terminal: the client has used up
// its reconnection budget and requires an external restart.
const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

// String returns the string representation of ConnectionState
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status holds runtime status information surfaced to query consumers.
// A Failed state means "no live data available" - callers must not retry
// the connection themselves.
type Status struct {
	State             ConnectionState `json:"-"`
	StateName         string          `json:"state"`
	Connected         bool            `json:"connected"`
	ReconnectAttempts int             `json:"reconnectAttempts"`
	SampleCount       int             `json:"sampleCount"`
	Endpoint          string          `json:"endpoint"`
	LastError         string          `json:"lastError,omitempty"`
}

// Config holds broker connection and ingestion settings
type Config struct {
	URL                string
	Username           string
	Password           string
	Namespace          string // subscribes to <namespace>.*.status
	StalenessThreshold time.Duration
	Reconnect          retry.Config
}

// DefaultConfig returns ingestion defaults: 5 minute staleness window and
// the standard reconnection backoff curve.
func DefaultConfig() Config {
	return Config{
		URL:                nats.DefaultURL,
		Namespace:          "plc.oee",
		StalenessThreshold: 5 * time.Minute,
		Reconnect:          retry.Reconnect(),
	}
}

// Deps holds runtime dependencies for the telemetry client
type Deps struct {
	Config          Config
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
	OnSample        func(Sample) // invoked after each accepted sample; receives a copy
}

// Client ingests live equipment-effectiveness telemetry from the broker.
// It tracks the latest sample per entity (last-write-wins), filters stale
// and malformed payloads, and owns the reconnection state machine.
type Client struct {
	cfg      Config
	logger   *slog.Logger
	metrics  *Metrics
	onSample func(Sample)

	mu             sync.RWMutex // guards conn, sub, samples, reconnectTimer, lastErr
	conn           *nats.Conn
	sub            *nats.Subscription
	samples        map[string]Sample
	reconnectTimer *time.Timer
	lastErr        error

	state      atomic.Int32
	attempts   atomic.Int32
	connecting atomic.Bool // one reconnection attempt in flight at a time
	closed     atomic.Bool

	dial func() (*nats.Conn, error)
	now  func() time.Time
}

// NewClient creates a telemetry client. Connect must be called before any
// live data arrives; FetchLatest and ConnectionStatus are safe at any time.
func NewClient(deps Deps) *Client {
	cfg := deps.Config
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.StalenessThreshold == 0 {
		cfg.StalenessThreshold = 5 * time.Minute
	}
	if cfg.Reconnect.MaxAttempts == 0 {
		cfg.Reconnect = retry.Reconnect()
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "telemetry-client")
	}

	c := &Client{
		cfg:      cfg,
		logger:   logger,
		metrics:  newMetrics(deps.MetricsRegistry),
		onSample: deps.OnSample,
		samples:  make(map[string]Sample),
		now:      time.Now,
	}
	c.dial = c.dialBroker
	c.state.Store(int32(StateDisconnected))
	return c
}

// subject returns the wildcard subscription subject covering all entities
// under the configured namespace.
func (c *Client) subject() string {
	return c.cfg.Namespace + ".*.status"
}

// State returns the current connection state
func (c *Client) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

func (c *Client) setState(state ConnectionState) {
	c.state.Store(int32(state))
	if c.metrics != nil {
		c.metrics.connectionState.Set(float64(state))
	}
}

func (c *Client) setLastError(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

// LastError returns the most recent connection-level failure, or nil while
// the feed is healthy. In the terminal Failed state it carries
// ErrReconnectExhausted.
func (c *Client) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Connect establishes the broker connection and subscribes to the entity
// status subjects. A failed initial dial does not return an error: the
// reconnection state machine takes over and progress is observable via
// ConnectionStatus, matching the policy that connectivity problems
// propagate as state rather than errors.
func (c *Client) Connect(_ context.Context) error {
	if c.closed.Load() {
		return errors.WrapInvalid(errors.ErrNotStarted, "telemetry", "Connect", "client already cleaned up")
	}
	if !c.connecting.CompareAndSwap(false, true) {
		return nil // attempt already in flight
	}

	c.setState(StateConnecting)
	c.logger.Info("connecting to broker", "url", c.cfg.URL, "subject", c.subject())

	conn, err := c.dial()
	if err != nil {
		c.logger.Warn("initial broker connect failed, entering reconnection", "error", err)
		c.connecting.Store(false)
		c.scheduleReconnect()
		return nil
	}

	if err := c.install(conn); err != nil {
		conn.Close()
		c.connecting.Store(false)
		c.scheduleReconnect()
		return nil
	}

	c.attempts.Store(0)
	c.setLastError(nil)
	c.setState(StateConnected)
	c.connecting.Store(false)
	c.logger.Info("broker connected", "url", c.cfg.URL)
	return nil
}

// dialBroker establishes the underlying NATS connection. Library-level
// auto-reconnect is disabled: the client owns the backoff policy.
func (c *Client) dialBroker() (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("pharma-telemetry"),
		nats.NoReconnect(),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ClosedHandler(c.handleClosed),
	}
	if c.cfg.Username != "" && c.cfg.Password != "" {
		opts = append(opts, nats.UserInfo(c.cfg.Username, c.cfg.Password))
	}
	return nats.Connect(c.cfg.URL, opts...)
}

// install stores the connection and subscribes to the wildcard subject
func (c *Client) install(conn *nats.Conn) error {
	sub, err := conn.Subscribe(c.subject(), func(msg *nats.Msg) {
		c.ingest(msg.Data)
	})
	if err != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrSubscriptionFailed, err),
			"telemetry", "install", "subscribe to status subjects")
	}

	c.mu.Lock()
	c.conn = conn
	c.sub = sub
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.brokerConnected.Set(1)
	}
	return nil
}

// handleDisconnect fires when the broker connection drops unexpectedly
func (c *Client) handleDisconnect(_ *nats.Conn, err error) {
	if c.closed.Load() {
		return
	}
	cause := errors.ErrConnectionLost
	if err != nil {
		cause = fmt.Errorf("%w: %v", errors.ErrConnectionLost, err)
	}
	c.setLastError(errors.WrapTransient(cause, "telemetry", "handleDisconnect", "broker connection"))
	c.logger.Warn("broker connection lost", "error", err)
	c.setState(StateReconnecting)
	if c.metrics != nil {
		c.metrics.brokerConnected.Set(0)
	}
}

// handleClosed fires once the connection is fully closed; it drives the
// reconnection machine unless the client itself initiated the close.
func (c *Client) handleClosed(_ *nats.Conn) {
	if c.closed.Load() {
		return
	}
	c.scheduleReconnect()
}

// scheduleReconnect schedules exactly one retry using exponential backoff:
// delay(n) = min(base × 2^(n−1), max). Exhausting the attempt budget
// transitions to the terminal Failed state. The connecting guard flag
// ensures only one attempt is ever in flight.
func (c *Client) scheduleReconnect() {
	if c.closed.Load() || c.State() == StateFailed {
		return
	}
	if !c.connecting.CompareAndSwap(false, true) {
		return
	}

	attempt := int(c.attempts.Add(1))
	if c.cfg.Reconnect.Exhausted(attempt) {
		c.setLastError(errors.WrapFatal(errors.ErrReconnectExhausted, "telemetry", "scheduleReconnect",
			fmt.Sprintf("gave up after %d attempts", attempt-1)))
		c.setState(StateFailed)
		c.connecting.Store(false)
		c.logger.Error("reconnection attempts exhausted, live feed requires restart",
			"attempts", attempt-1)
		if c.metrics != nil {
			c.metrics.brokerConnected.Set(0)
		}
		return
	}

	delay := c.cfg.Reconnect.Delay(attempt)
	c.setState(StateReconnecting)
	c.logger.Warn("scheduling broker reconnect", "attempt", attempt, "delay", delay)
	if c.metrics != nil {
		c.metrics.reconnectAttempts.Inc()
	}

	c.mu.Lock()
	c.reconnectTimer = time.AfterFunc(delay, c.attemptReconnect)
	c.mu.Unlock()
}

// attemptReconnect performs the scheduled reconnection attempt
func (c *Client) attemptReconnect() {
	if c.closed.Load() {
		c.connecting.Store(false)
		return
	}

	conn, err := c.dial()
	if err == nil {
		if installErr := c.install(conn); installErr != nil {
			conn.Close()
			err = installErr
		}
	}

	if err != nil {
		c.logger.Warn("reconnect attempt failed", "attempt", c.attempts.Load(), "error", err)
		c.connecting.Store(false)
		c.scheduleReconnect()
		return
	}

	c.attempts.Store(0)
	c.setLastError(nil)
	c.setState(StateConnected)
	c.connecting.Store(false)
	c.logger.Info("broker reconnected", "url", c.cfg.URL)
}

// ingest validates one inbound message and stores it as the latest sample
// for its entity. Malformed and stale payloads are dropped locally and
// never propagate.
func (c *Client) ingest(data []byte) {
	now := c.now()

	sample, err := parseSample(data, now)
	if err != nil {
		c.logger.Warn("dropping malformed telemetry payload", "error", err, "bytes", len(data))
		if c.metrics != nil {
			c.metrics.samplesMalformed.Inc()
		}
		return
	}

	if err := c.checkFresh(sample); err != nil {
		c.logger.Warn("dropping stale telemetry sample",
			"entity", sample.EntityID,
			"age", sample.Age,
			"error", err)
		if c.metrics != nil {
			c.metrics.samplesStale.Inc()
		}
		return
	}

	c.mu.Lock()
	c.samples[sample.EntityID] = sample
	count := len(c.samples)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.samplesReceived.Inc()
		c.metrics.entitiesTracked.Set(float64(count))
		c.metrics.lastSampleTime.Set(float64(sample.ReceivedAt.Unix()))
	}

	if c.onSample != nil {
		c.onSample(sample.clone())
	}
}

// checkFresh rejects samples older than the configured staleness
// threshold. A zero threshold disables the check.
func (c *Client) checkFresh(sample Sample) error {
	if c.cfg.StalenessThreshold > 0 && sample.Age > c.cfg.StalenessThreshold {
		return errors.WrapInvalid(errors.ErrStaleSample, "telemetry", "ingest",
			fmt.Sprintf("sample for %s is %v old, threshold %v",
				sample.EntityID, sample.Age, c.cfg.StalenessThreshold))
	}
	return nil
}

// FetchLatest returns the current in-memory snapshot, one sample per
// entity, sorted by entity ID. It never blocks on the network and never
// errors: a dead connection simply yields whatever was last received.
func (c *Client) FetchLatest() []Sample {
	c.mu.RLock()
	out := make([]Sample, 0, len(c.samples))
	for _, sample := range c.samples {
		out = append(out, sample.clone())
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// ConnectionStatus returns the current connection status snapshot
func (c *Client) ConnectionStatus() Status {
	state := c.State()

	c.mu.RLock()
	count := len(c.samples)
	lastErr := c.lastErr
	c.mu.RUnlock()

	status := Status{
		State:             state,
		StateName:         state.String(),
		Connected:         state == StateConnected,
		ReconnectAttempts: int(c.attempts.Load()),
		SampleCount:       count,
		Endpoint:          c.cfg.URL,
	}
	if lastErr != nil {
		status.LastError = lastErr.Error()
	}
	return status
}

// Update always fails: telemetry is a read-only source.
func (c *Client) Update(_ context.Context, id string, _ map[string]any) (map[string]any, error) {
	return nil, errors.WrapInvalid(errors.ErrReadOnlySource, "telemetry", "Update",
		fmt.Sprintf("update entity %q on read-only telemetry source", id))
}

// Cleanup stops the reconnection machine and closes the broker connection,
// draining in-flight messages up to the given timeout.
func (c *Client) Cleanup(timeout time.Duration) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil // already cleaned up
	}

	c.mu.Lock()
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	sub := c.sub
	c.conn = nil
	c.sub = nil
	c.mu.Unlock()

	var errs []error
	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, errors.Wrap(err, "telemetry", "Cleanup", "unsubscribe"))
		}
	}

	if conn != nil {
		drainDone := make(chan error, 1)
		go func() { drainDone <- conn.Drain() }()

		select {
		case err := <-drainDone:
			if err != nil {
				errs = append(errs, errors.Wrap(err, "telemetry", "Cleanup", "drain connection"))
			}
		case <-time.After(timeout):
			errs = append(errs, errors.WrapTransient(
				fmt.Errorf("%w: drain exceeded %v", errors.ErrConnectionTimeout, timeout),
				"telemetry", "Cleanup", "drain connection"))
		}
		conn.Close()
	}

	c.setState(StateDisconnected)
	if c.metrics != nil {
		c.metrics.brokerConnected.Set(0)
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
