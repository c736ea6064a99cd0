package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/internal/config"
	"github.com/strata-db/strata/internal/daemon"
	"github.com/strata-db/strata/internal/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	rulesPath := filepath.Join(dir, "rules.yml")
	require.NoError(t, os.WriteFile(rulesPath, []byte(`
_default:
  db_fragmentation: "70%"
`), 0o644))

	return &config.Config{
		Storage: config.StorageConfig{DataDir: filepath.Join(dir, "data")},
		Daemon: config.DaemonConfig{
			Enabled:              true,
			CheckIntervalSeconds: 1,
			MinFileSizeBytes:     1024,
			MaxParallel:          2,
		},
		Rules: config.RulesConfig{
			Path:                rulesPath,
			PollIntervalSeconds: 1,
		},
		Logging: config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"},
	}
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := testConfig(t)
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	require.NoError(t, err)
	return New(cfg, log)
}

func TestAppInitializeAndShutdown(t *testing.T) {
	a := newTestApp(t)

	require.NoError(t, a.Initialize(context.Background()))
	require.NotNil(t, a.Engine())
	require.NotNil(t, a.Daemon())
	require.NotNil(t, a.Rules())

	// The watcher's first poll publishes the rules file before long.
	require.Eventually(t, func() bool {
		return a.Rules().Current().Len() == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, a.Shutdown())

	// Shutdown is idempotent.
	require.NoError(t, a.Shutdown())
}

func TestAppDaemonDisabled(t *testing.T) {
	a := newTestApp(t)
	a.config.Daemon.Enabled = false

	require.NoError(t, a.Initialize(context.Background()))
	assert.Nil(t, a.Daemon())
	require.NoError(t, a.Shutdown())
}

func TestAppCompactsThroughFullStack(t *testing.T) {
	a := newTestApp(t)

	require.NoError(t, a.Initialize(context.Background()))
	defer func() { require.NoError(t, a.Shutdown()) }()

	db, err := a.Engine().Create("orders")
	require.NoError(t, err)
	defer a.Engine().Release(db)

	// Overwrite the same documents until the file is mostly garbage.
	body := bytes.Repeat([]byte("x"), 512)
	for round := 0; round < 200; round++ {
		for i := 0; i < 20; i++ {
			_, err := db.Put(string(rune('a'+i)), body)
			require.NoError(t, err)
		}
		info := db.Info()
		if daemon.FragmentationPct(info.FileSize, info.DataSize) >= 75 {
			break
		}
	}
	before := db.Info()
	require.GreaterOrEqual(t, daemon.FragmentationPct(before.FileSize, before.DataSize), 70)

	events, cancelSub := a.Daemon().Supervisor().Subscribe()
	defer cancelSub()

	require.Eventually(t, func() bool {
		return a.Rules().Current().Len() == 1
	}, 5*time.Second, 10*time.Millisecond)
	a.Daemon().Trigger()

	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Phase == daemon.PhaseFinished {
				after := db.Info()
				assert.Less(t, after.FileSize, before.FileSize)
				return
			}
			require.NotEqual(t, daemon.PhaseFailed, ev.Phase)
		case <-deadline:
			t.Fatal("timed out waiting for compaction")
		}
	}
}
