package cache

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/errors"
)

// stubLoader counts fetches and returns a fixed dataset or error.
type stubLoader struct {
	name    string
	records []Record
	err     error
	fetches int
}

func (l *stubLoader) Fetch(_ context.Context) ([]Record, error) {
	l.fetches++
	if l.err != nil {
		return nil, l.err
	}
	return l.records, nil
}

func (l *stubLoader) Name() string { return l.name }

func TestGetCachedFetchesOnMiss(t *testing.T) {
	store := NewStore(nil)
	loader := &stubLoader{name: "orders", records: []Record{{"orderNumber": "ORD-1"}}}
	require.NoError(t, store.Register("orders", loader))

	records, err := store.GetCached(context.Background(), "orders", false)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, loader.fetches)
}

func TestGetCachedHitDoesNotFetch(t *testing.T) {
	store := NewStore(nil)
	loader := &stubLoader{name: "orders", records: []Record{{"orderNumber": "ORD-1"}}}
	require.NoError(t, store.Register("orders", loader))

	_, err := store.GetCached(context.Background(), "orders", false)
	require.NoError(t, err)
	_, err = store.GetCached(context.Background(), "orders", false)
	require.NoError(t, err)

	assert.Equal(t, 1, loader.fetches, "cached entry must be served without a fetch")
}

func TestForceRefreshAlwaysFetches(t *testing.T) {
	store := NewStore(nil)
	loader := &stubLoader{name: "orders", records: []Record{{"orderNumber": "ORD-1"}}}
	require.NoError(t, store.Register("orders", loader))

	for i := 0; i < 3; i++ {
		_, err := store.GetCached(context.Background(), "orders", true)
		require.NoError(t, err)
	}

	assert.Equal(t, 3, loader.fetches)
	assert.Equal(t, int64(3), store.Stats().Refreshes())
}

func TestFetchFailureKeepsPreviousEntry(t *testing.T) {
	store := NewStore(nil)
	loader := &stubLoader{name: "orders", records: []Record{{"orderNumber": "ORD-1"}}}
	require.NoError(t, store.Register("orders", loader))

	_, err := store.GetCached(context.Background(), "orders", false)
	require.NoError(t, err)

	loader.err = fmt.Errorf("backend down")
	_, err = store.GetCached(context.Background(), "orders", true)
	assert.Error(t, err)

	// The stale-but-valid entry is still served on a plain read.
	loader.err = nil
	records, err := store.GetCached(context.Background(), "orders", false)
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", records[0]["orderNumber"])
	assert.Equal(t, 2, loader.fetches)
}

func TestGetCachedUnknownKey(t *testing.T) {
	store := NewStore(nil)

	_, err := store.GetCached(context.Background(), "nope", false)
	assert.ErrorIs(t, err, errors.ErrEntryNotFound)
}

func TestCallersGetIsolatedCopies(t *testing.T) {
	store := NewStore(nil)
	loader := &stubLoader{name: "orders", records: []Record{{"status": "planned"}}}
	require.NoError(t, store.Register("orders", loader))

	first, err := store.GetCached(context.Background(), "orders", false)
	require.NoError(t, err)
	first[0]["status"] = "mutated"

	second, err := store.GetCached(context.Background(), "orders", false)
	require.NoError(t, err)
	assert.Equal(t, "planned", second[0]["status"])
}

func TestSetBypassesLoader(t *testing.T) {
	store := NewStore(nil)
	loader := &stubLoader{name: "orders"}
	require.NoError(t, store.Register("orders", loader))

	require.NoError(t, store.Set("orders", []Record{{"orderNumber": "ORD-9"}}))

	records, err := store.GetCached(context.Background(), "orders", false)
	require.NoError(t, err)
	assert.Equal(t, "ORD-9", records[0]["orderNumber"])
	assert.Equal(t, 0, loader.fetches)
}

func TestInvalidateAllForcesRefetch(t *testing.T) {
	store := NewStore(nil)
	loader := &stubLoader{name: "orders", records: []Record{{"orderNumber": "ORD-1"}}}
	require.NoError(t, store.Register("orders", loader))

	_, err := store.GetCached(context.Background(), "orders", false)
	require.NoError(t, err)

	store.InvalidateAll()

	_, err = store.GetCached(context.Background(), "orders", false)
	require.NoError(t, err)
	assert.Equal(t, 2, loader.fetches)
}

func TestRegisterValidation(t *testing.T) {
	store := NewStore(nil)

	assert.Error(t, store.Register("", &stubLoader{}))
	assert.Error(t, store.Register("orders", nil))
}

func TestSimpleCacheBasics(t *testing.T) {
	c := NewSimple[int]()

	created, err := c.Set("a", 1)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = c.Set("a", 2)
	require.NoError(t, err)
	assert.False(t, created)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, int64(1), c.Stats().Hits())
	assert.Equal(t, int64(1), c.Stats().Misses())
	assert.InDelta(t, 0.5, c.Stats().HitRatio(), 0.0001)

	existed, err := c.Delete("a")
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, 0, c.Size())
}
