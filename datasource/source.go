package datasource

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/config"
	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/errors"
	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/telemetry"
)

// Record is one row of a dataset, schema-free by design: sources carry
// whatever fields the backing system provides.
type Record = map[string]any

// DataSource is the uniform contract every dataset variant satisfies.
// Read-only variants return errors.ErrReadOnlySource from Update.
type DataSource interface {
	// Fetch returns the full dataset.
	Fetch(ctx context.Context) ([]Record, error)

	// Update applies a partial patch to the record identified by id and
	// returns the updated record.
	Update(ctx context.Context, id string, patch Record) (Record, error)

	// Name returns the human-readable source name for logs and errors.
	Name() string

	// Cleanup releases any resources held by the source.
	Cleanup() error
}

// Snapshotter is the slice of the telemetry client the telemetry-backed
// source needs.
type Snapshotter interface {
	FetchLatest() []telemetry.Sample
	ConnectionStatus() telemetry.Status
}

// Deps holds shared dependencies handed to every source
type Deps struct {
	Logger    *slog.Logger
	Telemetry Snapshotter // required only for telemetry sources
}

// defaultTimeout bounds remote fetches when the source config does not
// set one.
const defaultTimeout = 10 * time.Second

// New builds a data source from its declarative configuration. The
// logical name (the config map key) becomes the source name unless the
// config overrides it.
func New(name string, cfg config.SourceConfig, deps Deps) (DataSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "datasource", "New", fmt.Sprintf("source %q", name))
	}
	if cfg.Name != "" {
		name = cfg.Name
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "datasource", "source", name)

	switch cfg.Type {
	case config.SourceTypeFile:
		return newFileSource(name, cfg, logger), nil
	case config.SourceTypeAPI:
		return newAPISource(name, cfg, logger)
	case config.SourceTypeREST:
		return newRESTSource(name, cfg, logger), nil
	case config.SourceTypeTelemetry:
		if deps.Telemetry == nil {
			return nil, errors.WrapInvalid(errors.ErrMissingConfig, "datasource", "New",
				fmt.Sprintf("telemetry source %q requires a telemetry client", name))
		}
		return newTelemetrySource(name, deps.Telemetry, logger), nil
	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "datasource", "New",
			fmt.Sprintf("unknown source type %q", cfg.Type))
	}
}

// Registry holds the configured sources keyed by logical dataset name.
type Registry struct {
	sources map[string]DataSource
	logger  *slog.Logger
}

// NewRegistry builds every source declared in the configuration map
func NewRegistry(configs map[string]config.SourceConfig, deps Deps) (*Registry, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sources := make(map[string]DataSource, len(configs))
	for key, cfg := range configs {
		src, err := New(key, cfg, deps)
		if err != nil {
			return nil, err
		}
		sources[key] = src
	}

	return &Registry{sources: sources, logger: logger.With("component", "datasource-registry")}, nil
}

// Get returns the source for a dataset key
func (r *Registry) Get(key string) (DataSource, error) {
	src, ok := r.sources[key]
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrEntryNotFound, "Registry", "Get",
			fmt.Sprintf("no source configured for %q", key))
	}
	return src, nil
}

// Keys returns all configured dataset keys
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.sources))
	for key := range r.sources {
		keys = append(keys, key)
	}
	return keys
}

// Cleanup releases every source, reporting the first failure
func (r *Registry) Cleanup() error {
	var first error
	for key, src := range r.sources {
		if err := src.Cleanup(); err != nil {
			r.logger.Warn("source cleanup failed", "source", key, "error", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// recordID extracts the identifier from a record, trying the well-known
// ID fields in order.
func recordID(record Record) (string, bool) {
	for _, field := range []string{"orderNumber", "id", "orderId"} {
		if v, ok := record[field]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}
