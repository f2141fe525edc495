package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryExpiredEntriesAreAbsent(t *testing.T) {
	m := NewMemory()
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	current := base
	m.now = func() time.Time { return current }

	require.NoError(t, m.Set("search-progress:alice", []byte(`{"state":"searching"}`), time.Hour))

	_, ok, err := m.Get("search-progress:alice")
	require.NoError(t, err)
	assert.True(t, ok)

	current = base.Add(time.Hour + time.Second)
	_, ok, err = m.Get("search-progress:alice")
	require.NoError(t, err)
	assert.False(t, ok, "expired entry must behave as if never written")
}

func TestMemoryZeroTTLNeverExpires(t *testing.T) {
	m := NewMemory()
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	current := base
	m.now = func() time.Time { return current }

	require.NoError(t, m.Set("k", []byte("v"), 0))
	current = base.Add(1000 * time.Hour)

	payload, ok, err := m.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), payload)
}

func TestMemoryDelete(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Set("k", []byte("v"), time.Hour))
	require.NoError(t, m.Delete("k"))
	_, ok, err := m.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting an absent key is fine.
	require.NoError(t, m.Delete("missing"))
}

func TestJSONRoundTrip(t *testing.T) {
	type record struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	m := NewMemory()
	require.NoError(t, SetJSON(m, Key(KeyParams, "alice"), record{Name: "acme", Count: 3}, time.Hour))

	var got record
	ok, err := GetJSON(m, "search-params:alice", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, record{Name: "acme", Count: 3}, got)

	ok, err = GetJSON(m, "search-params:bob", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteRoundTripAndExpiry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := NewSQLite(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	current := base
	s.now = func() time.Time { return current }

	require.NoError(t, s.Set("search-results:alice", []byte(`{"items":[]}`), time.Minute))

	payload, ok, err := s.Get("search-results:alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`{"items":[]}`), payload)

	// Overwrite extends the entry.
	require.NoError(t, s.Set("search-results:alice", []byte(`{"items":[1]}`), time.Minute))
	payload, ok, err = s.Get("search-results:alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`{"items":[1]}`), payload)

	current = base.Add(2 * time.Minute)
	_, ok, err = s.Get("search-results:alice")
	require.NoError(t, err)
	assert.False(t, ok)

	// The expired row was pruned, so a purge has nothing left to do.
	require.NoError(t, s.Purge())
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	s, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Set("search-progress:alice", []byte(`{"state":"searching"}`), time.Hour))
	require.NoError(t, s.Close())

	reopened, err := NewSQLite(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	payload, ok, err := reopened.Get("search-progress:alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`{"state":"searching"}`), payload)
}
