package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MatthiasKunnen/applock/pkg/applock"
	"github.com/MatthiasKunnen/applock/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFormats(t *testing.T) {
	tests := map[string]string{
		"applock.toml": `
[lock]
screen_lock = true
background_timeout = 2.5

[session]
id = "c2"
sleep = false

[secrets]
collections = ["collection/login"]

[logging]
level = "debug"
format = "json"
`,
		"applock.yaml": `
lock:
  screen_lock: true
  background_timeout: 2.5
session:
  id: c2
  sleep: false
secrets:
  collections: [collection/login]
logging:
  level: debug
  format: json
`,
		"applock.json": `{
  "lock": {"screen_lock": true, "background_timeout": 2.5},
  "session": {"id": "c2", "sleep": false},
  "secrets": {"collections": ["collection/login"]},
  "logging": {"level": "debug", "format": "json"}
}`,
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			f, err := config.Load(writeFile(t, name, content))
			require.NoError(t, err)

			assert.Equal(t, "c2", f.Session.ID)
			assert.True(t, f.Session.LockSignals, "absent keys keep their default")
			assert.False(t, f.Session.Sleep)
			assert.Equal(t, []string{"collection/login"}, f.Secrets.Collections)
			assert.Equal(t, "json", f.Logging.Format)

			level, err := f.SlogLevel()
			require.NoError(t, err)
			assert.Equal(t, slog.LevelDebug, level)

			assert.Equal(t, applock.Options{
				ScreenLockEnabled: applock.Bool(true),
				BackgroundTimeout: applock.Duration(2500 * time.Millisecond),
			}, f.Options())
		})
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	f, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultFile(), f)
	assert.Equal(t, applock.Options{}, f.Options())
	assert.Equal(t, time.Second, f.IdleThreshold())
}

func TestLoadRejectsInvalidFiles(t *testing.T) {
	tests := map[string]string{
		"zero timeout":   "[lock]\ntouch_idle_timeout = 0\n",
		"bad threshold":  "[idle]\nthreshold = -1\n",
		"bad level":      "[logging]\nlevel = \"loud\"\n",
		"bad format":     "[logging]\nformat = \"xml\"\n",
		"bad collection": "[secrets]\ncollections = [\" \"]\n",
		"bad syntax":     "[lock\n",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := config.Load(writeFile(t, "applock.toml", content))
			assert.Error(t, err)
		})
	}

	_, err := config.Load(writeFile(t, "applock.ini", "x=1"))
	assert.Error(t, err)
}

func TestThresholdMustBeBelowTouchTimeout(t *testing.T) {
	for _, content := range []string{
		"[lock]\ntouch_idle_timeout = 5\n[idle]\nthreshold = 10\n",
		"[lock]\ntouch_idle_timeout = 5\n[idle]\nthreshold = 5\n",
		"[idle]\nthreshold = 30\n",
	} {
		_, err := config.Load(writeFile(t, "applock.toml", content))
		assert.ErrorContains(t, err, "idle.threshold", content)
	}
}

func TestThresholdOnlyBoundWithWayland(t *testing.T) {
	f, err := config.Load(writeFile(t, "applock.toml",
		"[lock]\ntouch_idle_timeout = 5\n[idle]\nwayland = false\nthreshold = 10\n"))
	require.NoError(t, err)
	assert.Equal(t, 10.0, f.Idle.Threshold)

	_, err = config.Load(writeFile(t, "applock.toml",
		"[lock]\ntouch_idle_timeout = 5\n[idle]\nthreshold = 4.5\n"))
	assert.NoError(t, err)
}

func TestLoaderWatchReloads(t *testing.T) {
	path := writeFile(t, "applock.toml", "[lock]\ntouch_idle = false\n")

	l := config.NewLoader(path)
	defer l.Close()

	f, err := l.Load()
	require.NoError(t, err)
	require.NotNil(t, f.Lock.TouchIdle)
	assert.False(t, *f.Lock.TouchIdle)

	var reloaded atomic.Pointer[config.File]
	l.OnChange(func(f *config.File) {
		reloaded.Store(f)
	})
	require.NoError(t, l.Watch())

	require.NoError(t, os.WriteFile(path, []byte("[lock]\ntouch_idle = true\n"), 0o600))

	assert.Eventually(t, func() bool {
		f := reloaded.Load()
		return f != nil && f.Lock.TouchIdle != nil && *f.Lock.TouchIdle
	}, 5*time.Second, 20*time.Millisecond)
	assert.Same(t, reloaded.Load(), l.File())
}

func TestLoaderWatchReportsInvalidReload(t *testing.T) {
	path := writeFile(t, "applock.toml", "")

	l := config.NewLoader(path)
	defer l.Close()

	_, err := l.Load()
	require.NoError(t, err)
	require.NoError(t, l.Watch())

	require.NoError(t, os.WriteFile(path, []byte("[lock]\nbackground_timeout = -5\n"), 0o600))

	select {
	case err := <-l.Errors():
		assert.ErrorIs(t, err, applock.ErrInvalidTimeout)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload error reported")
	}
}
