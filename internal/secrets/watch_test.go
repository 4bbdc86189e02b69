package secrets

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchAllowlist_Reloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allowlist.toml")
	require.NoError(t, os.WriteFile(path, []byte("[allowlist]\nregexes = []\n"), 0o600))

	s, err := New(Config{Enabled: true, AllowlistFile: path, Redaction: "***"}, nil)
	require.NoError(t, err)
	require.Equal(t, "password is ***", s.Scrub("password is demo1234"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.WatchAllowlist(ctx) }()

	// The watcher may not be registered yet, so keep rewriting until the
	// reload is observed.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("[allowlist]\nregexes = [\"^demo\"]\n"), 0o600)
		return s.Scrub("password is demo1234") == "password is demo1234"
	}, 5*time.Second, 50*time.Millisecond)

	// A broken file keeps the previous allowlist.
	require.NoError(t, os.WriteFile(path, []byte("[allowlist\n"), 0o600))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, "password is demo1234", s.Scrub("password is demo1234"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatchAllowlist_NoFile(t *testing.T) {
	s := &Scrubber{enabled: true}
	assert.NoError(t, s.WatchAllowlist(context.Background()))
}
