package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/config"
	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/correlate"
	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/datasource"
	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/errors"
	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/history"
	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/hub"
	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/metric"
	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/pkg/cache"
	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/pkg/retry"
	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/telemetry"
)

// Status represents the agent lifecycle state
type Status int

// Possible agent statuses
const (
	StatusStopped Status = iota
	StatusStarting
	StatusRunning
	StatusStopping
)

// String returns the string representation of Status
func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// TelemetryClient is the slice of the telemetry client the agent uses.
type TelemetryClient interface {
	Connect(ctx context.Context) error
	FetchLatest() []telemetry.Sample
	ConnectionStatus() telemetry.Status
	Cleanup(timeout time.Duration) error
}

// Option configures the agent at construction time
type Option func(*Agent)

// WithLogger sets the agent's logger
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) { a.logger = logger }
}

// WithMetricsRegistry enables Prometheus metrics
func WithMetricsRegistry(registry *metric.MetricsRegistry) Option {
	return func(a *Agent) { a.registry = registry }
}

// WithTelemetryClient replaces the broker-backed telemetry client
func WithTelemetryClient(client TelemetryClient) Option {
	return func(a *Agent) { a.telemetry = client }
}

// Agent wires the telemetry client, data sources, cache, history log,
// correlation engine and subscriber hub into one queryable production
// monitor.
type Agent struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *metric.MetricsRegistry

	telemetry TelemetryClient
	sources   *datasource.Registry
	store     *cache.Store
	archive   *history.Log
	engine    *correlate.Engine
	hub       *hub.Hub
	bridge    *hub.Bridge
	metricsrv *metric.Server

	status    atomic.Int32
	startTime atomic.Value // time.Time

	cancel context.CancelFunc
}

// NewAgent builds the full component graph from configuration
func NewAgent(cfg *config.Config, opts ...Option) (*Agent, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Agent{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "agent")

	if a.telemetry == nil {
		a.telemetry = telemetry.NewClient(telemetry.Deps{
			Config: telemetry.Config{
				URL:                cfg.Broker.URL,
				Username:           cfg.Broker.Username,
				Password:           cfg.Broker.Password,
				Namespace:          cfg.Broker.Namespace,
				StalenessThreshold: cfg.Telemetry.StalenessThreshold,
				Reconnect: retry.Config{
					MaxAttempts:  cfg.Telemetry.MaxReconnects,
					InitialDelay: cfg.Telemetry.ReconnectBase,
					MaxDelay:     cfg.Telemetry.ReconnectMax,
				},
			},
			MetricsRegistry: a.registry,
			Logger:          a.logger.With("component", "telemetry-client"),
			OnSample:        a.handleSample,
		})
	}

	archive, err := history.NewLog(cfg.History.FilePath, cfg.History.DefaultLimit,
		a.logger.With("component", "history"))
	if err != nil {
		return nil, err
	}
	a.archive = archive

	snapshotter, ok := a.telemetry.(datasource.Snapshotter)
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Agent", "NewAgent",
			"telemetry client does not expose snapshots")
	}

	sourceConfigs := cfg.Clone().Sources
	if sourceConfigs == nil {
		sourceConfigs = map[string]config.SourceConfig{}
	}
	if _, ok := sourceConfigs[correlate.DatasetTelemetry]; !ok {
		sourceConfigs[correlate.DatasetTelemetry] = config.SourceConfig{Type: config.SourceTypeTelemetry}
	}

	a.sources, err = datasource.NewRegistry(sourceConfigs, datasource.Deps{
		Logger:    a.logger,
		Telemetry: snapshotter,
	})
	if err != nil {
		return nil, err
	}

	a.store = cache.NewStore(a.logger.With("component", "cache-store"))
	for _, key := range a.sources.Keys() {
		src, err := a.sources.Get(key)
		if err != nil {
			return nil, err
		}
		if err := a.store.Register(key, src); err != nil {
			return nil, err
		}
	}

	a.engine = correlate.NewEngine(correlate.Deps{
		Store:   a.store,
		Archive: a.archive,
		Logger:  a.logger,
	})

	a.hub = hub.New(cfg.Hub.HeartbeatInterval, a.logger)
	if cfg.Hub.WebSocketPort > 0 {
		a.bridge = hub.NewBridge(a.hub, a.logger)
	}
	if cfg.Metrics.Enabled && a.registry != nil {
		a.metricsrv = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, a.registry)
	}

	a.status.Store(int32(StatusStopped))
	a.startTime.Store(time.Time{})
	return a, nil
}

// Status returns the agent lifecycle state
func (a *Agent) Status() Status {
	return Status(a.status.Load())
}

// Hub exposes the event hub for additional subscribers
func (a *Agent) Hub() *hub.Hub {
	return a.hub
}

// Start connects the telemetry feed and starts the hub, bridge and
// metrics endpoint.
func (a *Agent) Start(ctx context.Context) error {
	if !a.status.CompareAndSwap(int32(StatusStopped), int32(StatusStarting)) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Agent", "Start",
			fmt.Sprintf("agent is %s", a.Status()))
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.hub.Start(runCtx)

	if a.bridge != nil {
		if err := a.bridge.Start(a.cfg.Hub.WebSocketPort, a.cfg.Hub.WebSocketPath); err != nil {
			cancel()
			a.status.Store(int32(StatusStopped))
			return err
		}
	}

	if a.metricsrv != nil {
		go func() {
			if err := a.metricsrv.Start(); err != nil {
				a.logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	if err := a.telemetry.Connect(runCtx); err != nil {
		a.logger.Error("telemetry connect refused", "error", err)
	}

	a.startTime.Store(time.Now())
	a.status.Store(int32(StatusRunning))
	a.logger.Info("agent started",
		"broker", a.cfg.Broker.URL,
		"datasets", a.sources.Keys(),
		"history", a.cfg.History.FilePath)
	return nil
}

// Stop shuts components down in reverse start order
func (a *Agent) Stop(timeout time.Duration) error {
	if !a.status.CompareAndSwap(int32(StatusRunning), int32(StatusStopping)) {
		return nil
	}
	defer a.status.Store(int32(StatusStopped))

	var errs []error

	if err := a.telemetry.Cleanup(timeout); err != nil {
		errs = append(errs, err)
	}
	if a.metricsrv != nil {
		if err := a.metricsrv.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.bridge != nil {
		if err := a.bridge.Stop(timeout); err != nil {
			errs = append(errs, err)
		}
	}
	a.hub.Stop()
	if a.cancel != nil {
		a.cancel()
	}
	if err := a.sources.Cleanup(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("agent stopped", "errors", len(errs))
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// handleSample archives each accepted sample and republishes it to hub
// subscribers on oee/<entity>/status.
func (a *Agent) handleSample(sample telemetry.Sample) {
	if err := a.archive.Append(history.FromSample(sample)); err != nil {
		a.logger.Warn("history append failed", "entity", sample.EntityID, "error", err)
	}
	a.hub.Publish("oee/"+sample.EntityID+"/status", sample)
}

// GetRealtimeSnapshot returns the latest sample per line
func (a *Agent) GetRealtimeSnapshot() []telemetry.Sample {
	return a.telemetry.FetchLatest()
}

// GetHistoricalSnapshot queries the archive newest-first
func (a *Agent) GetHistoricalSnapshot(q history.Query) ([]history.Record, error) {
	return a.archive.Select(q)
}

// GetCorrelatedSnapshot builds the joined production view. The history
// query bounds the archived series included in the snapshot.
func (a *Agent) GetCorrelatedSnapshot(ctx context.Context, filters map[string]string, hq history.Query) (*correlate.Snapshot, error) {
	return a.engine.Correlate(ctx, filters, hq)
}

// GetConnectionStatus reports the broker connection state
func (a *Agent) GetConnectionStatus() telemetry.Status {
	return a.telemetry.ConnectionStatus()
}

// UpdateRecord patches a record in a business dataset and refreshes the
// cached copy so subsequent reads see the change.
func (a *Agent) UpdateRecord(ctx context.Context, dataset, id string, patch map[string]any) (map[string]any, error) {
	src, err := a.sources.Get(dataset)
	if err != nil {
		return nil, err
	}

	updated, err := src.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	if _, err := a.store.GetCached(ctx, dataset, true); err != nil {
		a.logger.Warn("cache refresh after update failed", "dataset", dataset, "error", err)
	}

	a.hub.Publish("data/"+dataset+"/updated", updated)
	return updated, nil
}

// ForceReload drops every cached dataset so the next read refetches
func (a *Agent) ForceReload() {
	a.store.InvalidateAll()
	a.hub.Publish("system/reload", nil)
	a.logger.Info("caches invalidated on request")
}
