package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassString(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(99), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.class.String())
	}
}

func TestWrapFormatsContext(t *testing.T) {
	base := stderrors.New("boom")
	err := Wrap(base, "Client", "Connect", "establish connection")
	require.Error(t, err)
	assert.Equal(t, "Client.Connect: establish connection failed: boom", err.Error())
	assert.True(t, stderrors.Is(err, base))
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "c", "m", "a"))
	assert.NoError(t, WrapTransient(nil, "c", "m", "a"))
	assert.NoError(t, WrapInvalid(nil, "c", "m", "a"))
	assert.NoError(t, WrapFatal(nil, "c", "m", "a"))
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"connection lost is transient", ErrConnectionLost, ErrorTransient},
		{"fetch timeout is transient", ErrFetchTimeout, ErrorTransient},
		{"deadline exceeded is transient", context.DeadlineExceeded, ErrorTransient},
		{"stale sample is invalid", ErrStaleSample, ErrorInvalid},
		{"malformed payload is invalid", ErrMalformedPayload, ErrorInvalid},
		{"read-only source is invalid", ErrReadOnlySource, ErrorInvalid},
		{"invalid config is fatal", ErrInvalidConfig, ErrorFatal},
		{"reconnect exhausted is fatal", ErrReconnectExhausted, ErrorFatal},
		{"unknown defaults to transient", stderrors.New("mystery"), ErrorTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.err))
		})
	}
}

func TestClassificationSurvivesWrapping(t *testing.T) {
	err := WrapInvalid(ErrMalformedPayload, "telemetry", "handleMessage", "parse payload")

	assert.True(t, IsInvalid(err))
	assert.False(t, IsTransient(err))
	assert.True(t, stderrors.Is(err, ErrMalformedPayload))

	var ce *ClassifiedError
	require.True(t, stderrors.As(err, &ce))
	assert.Equal(t, "telemetry", ce.Component)
	assert.Equal(t, "handleMessage", ce.Operation)
}

func TestIsTimeoutDistinguishesFetchFailures(t *testing.T) {
	timeout := WrapTransient(ErrFetchTimeout, "api-source", "Fetch", "remote query")
	generic := WrapTransient(ErrFetchFailed, "api-source", "Fetch", "remote query")

	assert.True(t, IsTimeout(timeout))
	assert.False(t, IsTimeout(generic))
	assert.True(t, IsTimeout(fmt.Errorf("outer: %w", context.DeadlineExceeded)))
}

func TestIsTransientPatternMatching(t *testing.T) {
	assert.True(t, IsTransient(stderrors.New("dial tcp: connection refused")))
	assert.True(t, IsTransient(stderrors.New("i/o timeout")))
	assert.False(t, IsTransient(nil))
}
