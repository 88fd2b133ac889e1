package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/config"
	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/errors"
	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/pkg/retry"
)

// Transform decodes a raw response body into records. Named transforms
// let one source type talk to APIs with different envelope shapes.
type Transform func(body []byte) ([]Record, error)

// transforms maps config names to decoders. "array" expects a bare JSON
// array; the rest unwrap a single-key envelope.
var transforms = map[string]Transform{
	"array":   decodeArray,
	"data":    envelopeTransform("data"),
	"items":   envelopeTransform("items"),
	"results": envelopeTransform("results"),
}

// RegisterTransform adds a named response transform. Existing names are
// overwritten.
func RegisterTransform(name string, t Transform) {
	transforms[name] = t
}

func decodeArray(body []byte) ([]Record, error) {
	var records []Record
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func envelopeTransform(key string) Transform {
	return func(body []byte) ([]Record, error) {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, err
		}
		raw, ok := envelope[key]
		if !ok {
			return nil, fmt.Errorf("response has no %q field", key)
		}
		return decodeArray(raw)
	}
}

// isTimeoutErr reports whether a transport error is a deadline overrun,
// whichever bound fired: the caller's context or the client's own
// per-request timeout.
func isTimeoutErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// apiSource fetches a dataset from an authenticated remote API with
// filter and pagination support. Read-heavy: updates are unsupported.
type apiSource struct {
	name      string
	cfg       config.SourceConfig
	transform Transform
	client    *http.Client
	retry     retry.Config
	logger    *slog.Logger
}

func newAPISource(name string, cfg config.SourceConfig, logger *slog.Logger) (*apiSource, error) {
	transformName := cfg.Transform
	if transformName == "" {
		transformName = "array"
	}
	transform, ok := transforms[transformName]
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "datasource", "newAPISource",
			fmt.Sprintf("unknown transform %q for source %q", transformName, name))
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &apiSource{
		name:      name,
		cfg:       cfg,
		transform: transform,
		client:    &http.Client{Timeout: timeout},
		retry:     retry.DefaultConfig(),
		logger:    logger,
	}, nil
}

func (s *apiSource) Name() string { return s.name }

// Fetch retrieves the dataset, following pagination when a page size is
// configured. Transient transport failures are retried with backoff;
// decode failures are not, since the payload will not improve on retry.
func (s *apiSource) Fetch(ctx context.Context) ([]Record, error) {
	return retry.DoWithResult(ctx, s.retry, func() ([]Record, error) {
		return s.fetchAll(ctx)
	})
}

func (s *apiSource) fetchAll(ctx context.Context) ([]Record, error) {
	if s.cfg.PageSize <= 0 {
		return s.fetchPage(ctx, 0)
	}

	var all []Record
	for page := 1; ; page++ {
		records, err := s.fetchPage(ctx, page)
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
		if len(records) < s.cfg.PageSize {
			return all, nil
		}
	}
}

func (s *apiSource) fetchPage(ctx context.Context, page int) ([]Record, error) {
	endpoint, err := url.Parse(s.cfg.Endpoint)
	if err != nil {
		return nil, retry.NonRetryable(errors.WrapInvalid(err, s.name, "Fetch", "parse endpoint"))
	}

	query := endpoint.Query()
	for k, v := range s.cfg.Filters {
		query.Set(k, v)
	}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
		query.Set("pageSize", strconv.Itoa(s.cfg.PageSize))
	}
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, retry.NonRetryable(errors.Wrap(err, s.name, "Fetch", "build request"))
	}
	s.authenticate(req)

	body, err := s.do(req)
	if err != nil {
		return nil, err
	}

	records, err := s.transform(body)
	if err != nil {
		return nil, retry.NonRetryable(errors.WrapInvalid(errors.ErrFetchFailed, s.name, "Fetch",
			fmt.Sprintf("decode response: %v", err)))
	}
	return records, nil
}

// Update always fails: the remote API dataset is read-heavy and updates
// go through the system of record, not this source.
func (s *apiSource) Update(_ context.Context, id string, _ Record) (Record, error) {
	return nil, errors.WrapInvalid(errors.ErrReadOnlySource, s.name, "Update",
		fmt.Sprintf("update record %q on read-only api source", id))
}

func (s *apiSource) authenticate(req *http.Request) {
	if s.cfg.Username != "" {
		req.SetBasicAuth(s.cfg.Username, s.cfg.Password)
	}
}

// do executes the request and classifies failures: deadline overruns map
// to ErrFetchTimeout (distinguishable from generic failures), everything
// else to a transient fetch failure.
func (s *apiSource) do(req *http.Request) ([]byte, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		if isTimeoutErr(err) {
			return nil, errors.WrapTransient(errors.ErrFetchTimeout, s.name, "Fetch", "request timed out")
		}
		return nil, errors.WrapTransient(errors.ErrFetchFailed, s.name, "Fetch",
			fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.WrapTransient(err, s.name, "Fetch", "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.WrapTransient(errors.ErrFetchFailed, s.name, "Fetch",
			fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}
	return body, nil
}

func (s *apiSource) Cleanup() error {
	s.client.CloseIdleConnections()
	return nil
}
