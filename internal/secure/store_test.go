package secure

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileStore(t *testing.T) *Store {
	t.Helper()
	t.Setenv("STAGEPASS_NO_KEYRING", "1")
	s := NewStore(t.TempDir())
	require.Equal(t, "encrypted-file", s.Backend())
	return s
}

func TestFileBackendRoundTrip(t *testing.T) {
	s := newFileStore(t)

	require.NoError(t, s.Set("theme", "dark"))
	v, ok, err := s.Get("theme")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "dark", v)

	require.NoError(t, s.Remove("theme"))
	_, ok, err = s.Get("theme")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileBackendSurvivesReopen(t *testing.T) {
	t.Setenv("STAGEPASS_NO_KEYRING", "1")
	dir := t.TempDir()

	first := NewStore(dir)
	require.NoError(t, first.SetAccessToken("tok-123"))

	second := NewStore(dir)
	tok, err := second.AccessToken()
	require.NoError(t, err)
	assert.Equal(t, "tok-123", tok)
}

func TestTTLExpiryPurgesRecord(t *testing.T) {
	s := newFileStore(t)

	require.NoError(t, s.SetWithTTL("session.hint", "abc", 20*time.Millisecond))

	v, ok, err := s.Get("session.hint")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc", v)

	time.Sleep(40 * time.Millisecond)

	_, ok, err = s.Get("session.hint")
	require.NoError(t, err)
	assert.False(t, ok, "expired record should read as absent")

	// The expired read must also delete the backing record.
	keys, err := s.Keys()
	require.NoError(t, err)
	assert.NotContains(t, keys, "session.hint")
}

func TestTamperedFileReadsAsEmpty(t *testing.T) {
	t.Setenv("STAGEPASS_NO_KEYRING", "1")
	dir := t.TempDir()

	s := NewStore(dir)
	require.NoError(t, s.Set("theme", "dark"))

	data, err := os.ReadFile(s.storePath())
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(s.storePath(), data, 0600))

	reopened := NewStore(dir)
	_, ok, err := reopened.Get("theme")
	require.NoError(t, err)
	assert.False(t, ok, "tampered store must not yield values")
}

func TestClearAuthRemovesAllCredentials(t *testing.T) {
	s := newFileStore(t)

	require.NoError(t, s.SetTokens("access", "refresh"))
	require.NoError(t, s.SetProfile(`{"email":"fan@example.com"}`))

	require.NoError(t, s.ClearAuth())

	access, err := s.AccessToken()
	require.NoError(t, err)
	assert.Empty(t, access)

	refresh, err := s.RefreshToken()
	require.NoError(t, err)
	assert.Empty(t, refresh)

	profile, err := s.Profile()
	require.NoError(t, err)
	assert.Empty(t, profile)
}

func TestSetTokensKeepsRefreshWhenRotationOmitted(t *testing.T) {
	s := newFileStore(t)

	require.NoError(t, s.SetTokens("a1", "r1"))
	require.NoError(t, s.SetTokens("a2", ""))

	access, err := s.AccessToken()
	require.NoError(t, err)
	assert.Equal(t, "a2", access)

	refresh, err := s.RefreshToken()
	require.NoError(t, err)
	assert.Equal(t, "r1", refresh)
}

func TestLegacyBareKeyMigratesOnRead(t *testing.T) {
	s := newFileStore(t)

	// Pre-namespace installs wrote bare keys.
	s.mu.Lock()
	require.NoError(t, s.put("theme", newRecord("solar", true, 0)))
	s.mu.Unlock()

	v, ok, err := s.Get("theme")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "solar", v)

	// The bare key is gone and the namespaced one answers reads.
	s.mu.Lock()
	_, stillThere, err := s.fetch("theme")
	s.mu.Unlock()
	require.NoError(t, err)
	assert.False(t, stillThere)

	v, ok, err = s.Get("theme")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "solar", v)
}

func TestCredentialKeysNeverUseLegacyLookup(t *testing.T) {
	s := newFileStore(t)

	s.mu.Lock()
	require.NoError(t, s.put(KeyAccessToken, newRecord("planted", true, 0)))
	s.mu.Unlock()

	tok, err := s.AccessToken()
	require.NoError(t, err)
	assert.Empty(t, tok, "bare credential keys must be ignored")
}

func TestWatchSignalsSiblingWrite(t *testing.T) {
	t.Setenv("STAGEPASS_NO_KEYRING", "1")
	dir := t.TempDir()

	watcherStore := NewStore(dir)
	writerStore := NewStore(dir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := watcherStore.Watch(ctx)
	require.NoError(t, err)
	require.NotNil(t, changes)

	require.NoError(t, writerStore.SetAccessToken("rotated"))

	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification for sibling write")
	}
}

func TestWatchDisabledOffFileBackend(t *testing.T) {
	s := &Store{backend: backendMemory, mem: map[string]Record{}}
	changes, err := s.Watch(context.Background())
	require.NoError(t, err)
	assert.Nil(t, changes)
}
