package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fragmentDatabase(t *testing.T, db *Database, docs, rewrites int) {
	t.Helper()
	for i := 0; i < docs; i++ {
		for r := 0; r < rewrites; r++ {
			_, err := db.Put(fmt.Sprintf("doc-%03d", i), []byte(fmt.Sprintf(`{"doc":%d,"rev":%d}`, i, r)))
			require.NoError(t, err)
		}
	}
}

func TestCompact_ShrinksFile(t *testing.T) {
	e := testEngine(t)
	db, err := e.Create("shrink")
	require.NoError(t, err)

	fragmentDatabase(t, db, 20, 10)
	before := db.Info()
	require.Greater(t, fragmentationPct(before), 70.0)

	require.NoError(t, db.Compact(context.Background()))

	after := db.Info()
	assert.Less(t, after.FileSize, before.FileSize)
	assert.Equal(t, after.FileSize, after.DataSize, "compacted file has no garbage")
	assert.Less(t, fragmentationPct(after), 70.0)
}

func TestCompact_PreservesDocuments(t *testing.T) {
	e := testEngine(t)
	db, err := e.Create("preserve")
	require.NoError(t, err)

	fragmentDatabase(t, db, 10, 5)
	require.NoError(t, db.Delete("doc-003"))

	require.NoError(t, db.Compact(context.Background()))

	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("doc-%03d", i)
		doc, err := db.Get(id)
		if i == 3 {
			assert.ErrorIs(t, err, ErrDocumentNotFound)
			continue
		}
		require.NoError(t, err, id)
		assert.Equal(t, uint32(5), doc.Rev, "revision numbers survive compaction")
		assert.JSONEq(t, fmt.Sprintf(`{"doc":%d,"rev":4}`, i), string(doc.Body))
	}
}

func TestCompact_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	log := testLogger(t)

	e, err := New(dir, log)
	require.NoError(t, err)
	db, err := e.Create("durable")
	require.NoError(t, err)
	fragmentDatabase(t, db, 5, 4)
	require.NoError(t, db.Compact(context.Background()))
	want := db.Info()
	require.NoError(t, e.Shutdown())

	e2, err := New(dir, log)
	require.NoError(t, err)
	defer e2.Shutdown()

	db2, err := e2.Open("durable")
	require.NoError(t, err)
	assert.Equal(t, want, db2.Info())
	assert.Equal(t, 5, db2.DocCount())
}

func TestCompact_MergesConcurrentWrites(t *testing.T) {
	e := testEngine(t)
	db, err := e.Create("busy")
	require.NoError(t, err)

	fragmentDatabase(t, db, 50, 8)

	// Writers keep updating while the compaction runs; nothing may be lost.
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; ; i++ {
				select {
				case <-stop:
					return
				default:
				}
				id := fmt.Sprintf("live-%d-%d", w, i%5)
				_, err := db.Put(id, []byte(fmt.Sprintf(`{"w":%d,"i":%d}`, w, i)))
				assert.NoError(t, err)
			}
		}(w)
	}

	require.NoError(t, db.Compact(context.Background()))
	close(stop)
	wg.Wait()

	// Every writer's last value for each id must be readable.
	for w := 0; w < 4; w++ {
		for s := 0; s < 5; s++ {
			id := fmt.Sprintf("live-%d-%d", w, s)
			if _, err := db.Get(id); err != nil {
				// A slot the writer never reached is the only acceptable miss.
				assert.ErrorIs(t, err, ErrDocumentNotFound)
			}
		}
	}
	for i := 0; i < 50; i++ {
		_, err := db.Get(fmt.Sprintf("doc-%03d", i))
		assert.NoError(t, err)
	}
}

func TestCompact_DeleteDuringCompactionStaysDeleted(t *testing.T) {
	dir := t.TempDir()
	e, err := New(dir, testLogger(t))
	require.NoError(t, err)
	db, err := e.Create("tombs")
	require.NoError(t, err)

	fragmentDatabase(t, db, 30, 6)

	done := make(chan error, 1)
	go func() { done <- db.Compact(context.Background()) }()
	require.NoError(t, db.Delete("doc-000"))
	require.NoError(t, <-done)

	_, err = db.Get("doc-000")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	// The deletion must also survive a recovery scan of the compacted file.
	require.NoError(t, e.Shutdown())
	e2, err := New(dir, testLogger(t))
	require.NoError(t, err)
	defer e2.Shutdown()
	db2, err := e2.Open("tombs")
	require.NoError(t, err)
	_, err = db2.Get("doc-000")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestCompact_CancelledLeavesOriginalIntact(t *testing.T) {
	e := testEngine(t)
	db, err := e.Create("cancel")
	require.NoError(t, err)

	fragmentDatabase(t, db, 20, 10)
	before := db.Info()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, db.Compact(ctx), context.Canceled)

	assert.Equal(t, before, db.Info(), "failed compaction must not touch the original")
	for i := 0; i < 20; i++ {
		_, err := db.Get(fmt.Sprintf("doc-%03d", i))
		assert.NoError(t, err)
	}
}

func TestCompact_ReadersNeverSeeClosedFile(t *testing.T) {
	e := testEngine(t)
	db, err := e.Create("readers")
	require.NoError(t, err)

	fragmentDatabase(t, db, 10, 3)

	// Readers hammer Get across repeated rewrite+compact cycles. A read must
	// never land on the retired handle of a swapped-out file.
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; ; i++ {
				select {
				case <-stop:
					return
				default:
				}
				_, err := db.Get(fmt.Sprintf("doc-%03d", i%10))
				assert.NoError(t, err)
			}
		}()
	}

	for cycle := 0; cycle < 50; cycle++ {
		for i := 0; i < 10; i++ {
			_, err := db.Put(fmt.Sprintf("doc-%03d", i), []byte(fmt.Sprintf(`{"cycle":%d}`, cycle)))
			require.NoError(t, err)
		}
		require.NoError(t, db.Compact(context.Background()))
	}

	close(stop)
	wg.Wait()
}
