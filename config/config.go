package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/errors"
)

// Source type constants for SourceConfig.Type
const (
	SourceTypeFile      = "file"      // local JSON file store
	SourceTypeAPI       = "api"       // authenticated remote API
	SourceTypeREST      = "rest"      // generic REST endpoint
	SourceTypeTelemetry = "telemetry" // live telemetry snapshot
)

// Config represents the complete application configuration
type Config struct {
	Version   string                  `json:"version"`
	Broker    BrokerConfig            `json:"broker"`
	Telemetry TelemetryConfig         `json:"telemetry"`
	History   HistoryConfig           `json:"history"`
	Hub       HubConfig               `json:"hub"`
	Metrics   MetricsConfig           `json:"metrics"`
	Sources   map[string]SourceConfig `json:"sources"`
}

// BrokerConfig defines the pub/sub broker connection settings
type BrokerConfig struct {
	URL       string `json:"url"`
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"`
	Namespace string `json:"namespace"` // subject namespace, subscribes to <namespace>.*.status
}

// TelemetryConfig defines ingestion behavior
type TelemetryConfig struct {
	StalenessThreshold time.Duration `json:"staleness_threshold,omitempty"` // default 5m
	ReconnectBase      time.Duration `json:"reconnect_base,omitempty"`      // default 5s
	ReconnectMax       time.Duration `json:"reconnect_max,omitempty"`       // default 60s
	MaxReconnects      int           `json:"max_reconnects,omitempty"`      // default 10
}

// HistoryConfig defines the persistence log location and query defaults
type HistoryConfig struct {
	FilePath     string `json:"file_path"`
	DefaultLimit int    `json:"default_limit,omitempty"` // default 50
}

// HubConfig defines fan-out behavior
type HubConfig struct {
	HeartbeatInterval time.Duration `json:"heartbeat_interval,omitempty"` // default 30s
	WebSocketPort     int           `json:"websocket_port,omitempty"`     // 0 disables the bridge
	WebSocketPath     string        `json:"websocket_path,omitempty"`     // default /events
}

// MetricsConfig defines the Prometheus exposition endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port,omitempty"` // default 9090
	Path    string `json:"path,omitempty"` // default /metrics
}

// SourceConfig is the declarative description of one logical dataset.
// Immutable after load; keyed by logical dataset name (e.g. "orders").
type SourceConfig struct {
	Type      string            `json:"type"`
	Name      string            `json:"name,omitempty"`
	Location  string            `json:"location,omitempty"` // file path for file sources
	Endpoint  string            `json:"endpoint,omitempty"` // URL for api/rest sources
	Username  string            `json:"username,omitempty"`
	Password  string            `json:"password,omitempty"`
	Filters   map[string]string `json:"filters,omitempty"`
	PageSize  int               `json:"page_size,omitempty"`
	Transform string            `json:"transform,omitempty"` // named response transform
	Timeout   time.Duration     `json:"timeout,omitempty"`   // fetch timeout, default 10s
}

// DefaultConfig returns a configuration with sensible defaults applied
func DefaultConfig() *Config {
	return &Config{
		Version: "1.0.0",
		Broker: BrokerConfig{
			URL:       "nats://localhost:4222",
			Namespace: "plc.oee",
		},
		Telemetry: TelemetryConfig{
			StalenessThreshold: 5 * time.Minute,
			ReconnectBase:      5 * time.Second,
			ReconnectMax:       60 * time.Second,
			MaxReconnects:      10,
		},
		History: HistoryConfig{
			FilePath:     "data/oee-history.json",
			DefaultLimit: 50,
		},
		Hub: HubConfig{
			HeartbeatInterval: 30 * time.Second,
			WebSocketPath:     "/events",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Sources: map[string]SourceConfig{},
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Broker.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "broker.url is required")
	}
	if c.Broker.Namespace == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "broker.namespace is required")
	}
	if c.History.FilePath == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "history.file_path is required")
	}
	if c.Telemetry.StalenessThreshold < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"telemetry.staleness_threshold cannot be negative")
	}
	if c.Telemetry.ReconnectBase > 0 && c.Telemetry.ReconnectMax > 0 &&
		c.Telemetry.ReconnectMax < c.Telemetry.ReconnectBase {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"telemetry.reconnect_max must be >= telemetry.reconnect_base")
	}

	for name, src := range c.Sources {
		if err := src.Validate(); err != nil {
			return errors.Wrap(err, "Config", "Validate", fmt.Sprintf("source %q", name))
		}
	}

	return nil
}

// Validate checks a single source configuration
func (sc *SourceConfig) Validate() error {
	switch sc.Type {
	case SourceTypeFile:
		if sc.Location == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "SourceConfig", "Validate",
				"file source requires a location")
		}
	case SourceTypeAPI, SourceTypeREST:
		if sc.Endpoint == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "SourceConfig", "Validate",
				"remote source requires an endpoint")
		}
	case SourceTypeTelemetry:
		// No additional fields required; the wrapper reads live state.
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "SourceConfig", "Validate",
			fmt.Sprintf("unknown source type %q", sc.Type))
	}
	return nil
}

// applyDefaults fills zero-valued fields from DefaultConfig
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Telemetry.StalenessThreshold == 0 {
		c.Telemetry.StalenessThreshold = defaults.Telemetry.StalenessThreshold
	}
	if c.Telemetry.ReconnectBase == 0 {
		c.Telemetry.ReconnectBase = defaults.Telemetry.ReconnectBase
	}
	if c.Telemetry.ReconnectMax == 0 {
		c.Telemetry.ReconnectMax = defaults.Telemetry.ReconnectMax
	}
	if c.Telemetry.MaxReconnects == 0 {
		c.Telemetry.MaxReconnects = defaults.Telemetry.MaxReconnects
	}
	if c.History.DefaultLimit == 0 {
		c.History.DefaultLimit = defaults.History.DefaultLimit
	}
	if c.Hub.HeartbeatInterval == 0 {
		c.Hub.HeartbeatInterval = defaults.Hub.HeartbeatInterval
	}
	if c.Hub.WebSocketPath == "" {
		c.Hub.WebSocketPath = defaults.Hub.WebSocketPath
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = defaults.Metrics.Port
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = defaults.Metrics.Path
	}
	if c.Sources == nil {
		c.Sources = map[string]SourceConfig{}
	}
}

// applyEnvOverrides lets deployment environments override connection settings
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("PHARMA_BROKER_URL"); url != "" {
		c.Broker.URL = url
	}
	if user := os.Getenv("PHARMA_BROKER_USERNAME"); user != "" {
		c.Broker.Username = user
	}
	if pass := os.Getenv("PHARMA_BROKER_PASSWORD"); pass != "" {
		c.Broker.Password = pass
	}
	if ns := os.Getenv("PHARMA_BROKER_NAMESPACE"); ns != "" {
		c.Broker.Namespace = ns
	}
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}

	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}

	return &clone
}

// Load reads, defaults, and overrides configuration from a JSON file.
// A missing file yields the default configuration rather than an error
// so a bare deployment starts with live telemetry only.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				cfg.applyEnvOverrides()
				return cfg, nil
			}
			return nil, errors.WrapFatal(err, "config", "Load", "read config file")
		}

		cfg = &Config{}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "parse config file")
		}
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	return cfg, nil
}
