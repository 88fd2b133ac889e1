package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/config"
	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/errors"
	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/pkg/retry"
)

// restSource is the minimal remote variant: an unauthenticated GET of a
// JSON array from a fixed endpoint. Read-only.
type restSource struct {
	name   string
	cfg    config.SourceConfig
	client *http.Client
	retry  retry.Config
	logger *slog.Logger
}

func newRESTSource(name string, cfg config.SourceConfig, logger *slog.Logger) *restSource {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &restSource{
		name:   name,
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		retry:  retry.DefaultConfig(),
		logger: logger,
	}
}

func (s *restSource) Name() string { return s.name }

func (s *restSource) Fetch(ctx context.Context) ([]Record, error) {
	return retry.DoWithResult(ctx, s.retry, func() ([]Record, error) {
		return s.fetch(ctx)
	})
}

func (s *restSource) fetch(ctx context.Context) ([]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.Endpoint, nil)
	if err != nil {
		return nil, retry.NonRetryable(errors.Wrap(err, s.name, "Fetch", "build request"))
	}
	if s.cfg.Username != "" {
		req.SetBasicAuth(s.cfg.Username, s.cfg.Password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if isTimeoutErr(err) {
			return nil, errors.WrapTransient(errors.ErrFetchTimeout, s.name, "Fetch", "request timed out")
		}
		return nil, errors.WrapTransient(errors.ErrFetchFailed, s.name, "Fetch",
			fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.WrapTransient(errors.ErrFetchFailed, s.name, "Fetch",
			fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.WrapTransient(err, s.name, "Fetch", "read response")
	}

	var records []Record
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, retry.NonRetryable(errors.WrapInvalid(errors.ErrFetchFailed, s.name, "Fetch",
			fmt.Sprintf("decode response: %v", err)))
	}
	return records, nil
}

func (s *restSource) Update(_ context.Context, id string, _ Record) (Record, error) {
	return nil, errors.WrapInvalid(errors.ErrReadOnlySource, s.name, "Update",
		fmt.Sprintf("update record %q on read-only rest source", id))
}

func (s *restSource) Cleanup() error {
	s.client.CloseIdleConnections()
	return nil
}
