package confstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/internal/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "text", Output: "stderr"})
	require.NoError(t, err)
	return log
}

func TestStore_SetGet(t *testing.T) {
	s := New(testLogger(t))

	_, ok := s.Get("compactions/rules")
	assert.False(t, ok)

	require.NoError(t, s.Set("compactions/rules", "a: 1"))
	v, ok := s.Get("compactions/rules")
	assert.True(t, ok)
	assert.Equal(t, "a: 1", v)
}

func TestStore_SubscribeNamespace(t *testing.T) {
	s := New(testLogger(t))

	ch, cancel := s.Subscribe("compactions/")
	defer cancel()

	require.NoError(t, s.Set("other/key", "x"))
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event for foreign namespace: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, s.Set("compactions/rules", "y"))
	select {
	case ev := <-ch:
		assert.Equal(t, "compactions/rules", ev.Key)
		assert.Equal(t, s.Generation(), ev.Generation)
	case <-time.After(time.Second):
		t.Fatal("expected a change event")
	}
}

func TestStore_UnchangedValueNoEvent(t *testing.T) {
	s := New(testLogger(t))
	require.NoError(t, s.Set("compactions/rules", "same"))

	ch, cancel := s.Subscribe("compactions/")
	defer cancel()

	gen := s.Generation()
	require.NoError(t, s.Set("compactions/rules", "same"))
	assert.Equal(t, gen, s.Generation())

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event for unchanged value: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStore_NotificationsCoalesce(t *testing.T) {
	s := New(testLogger(t))
	ch, cancel := s.Subscribe("")
	defer cancel()

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Set("k", string(rune('a'+i))))
	}

	// At least one pending event, and the store holds the latest value.
	<-ch
	v, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, "j", v)
}

func TestStore_Delete(t *testing.T) {
	s := New(testLogger(t))
	require.NoError(t, s.Set("k", "v"))

	ch, cancel := s.Subscribe("")
	defer cancel()

	require.NoError(t, s.Delete("k"))
	select {
	case ev := <-ch:
		assert.Equal(t, "k", ev.Key)
	case <-time.After(time.Second):
		t.Fatal("expected a delete event")
	}

	_, ok := s.Get("k")
	assert.False(t, ok)
}

func TestStore_Close(t *testing.T) {
	s := New(testLogger(t))
	ch, _ := s.Subscribe("")

	s.Close()

	_, open := <-ch
	assert.False(t, open)
	assert.ErrorIs(t, s.Set("k", "v"), ErrStoreClosed)
}

func TestFileWatcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yml")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0644))

	s := New(testLogger(t))
	w := NewFileWatcher(s, "compactions/rules", path, 10*time.Millisecond, testLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.Start(ctx)
	defer w.Stop()

	// Initial poll runs synchronously in Start.
	v, ok := s.Get("compactions/rules")
	require.True(t, ok)
	assert.Equal(t, "v1", v)

	gen := s.Generation()
	require.NoError(t, os.WriteFile(path, []byte("v2 with different size"), 0644))

	require.Eventually(t, func() bool {
		return s.Generation() > gen
	}, 2*time.Second, 10*time.Millisecond)

	v, _ = s.Get("compactions/rules")
	assert.Equal(t, "v2 with different size", v)
}

func TestFileWatcher_MissingFileKeepsLastValue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yml")
	require.NoError(t, os.WriteFile(path, []byte("keep"), 0644))

	s := New(testLogger(t))
	w := NewFileWatcher(s, "compactions/rules", path, 10*time.Millisecond, testLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	require.NoError(t, os.Remove(path))
	time.Sleep(50 * time.Millisecond)

	v, ok := s.Get("compactions/rules")
	require.True(t, ok)
	assert.Equal(t, "keep", v)
}
