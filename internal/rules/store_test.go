package rules

import (
	"sync"
	"testing"

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

func TestStore_StartsEmpty(t *testing.T) {
	s := NewStore(testLogger(t))

	rs := s.Current()
	require.NotNil(t, rs)
	assert.Equal(t, 0, rs.Len())
	_, ok := rs.For("anything")
	assert.False(t, ok)
}

func TestStore_LoadSwapsWholesale(t *testing.T) {
	s := NewStore(testLogger(t))

	require.NoError(t, s.Load([]byte(`
_default:
  db_fragmentation: "70%"
old_db:
  db_fragmentation: "50%"
`)))
	require.Equal(t, 2, s.Current().Len())

	require.NoError(t, s.Load([]byte(`
new_db:
  db_fragmentation: "60%"
`)))

	rs := s.Current()
	assert.Equal(t, 1, rs.Len())
	_, ok := rs.Scope("old_db")
	assert.False(t, ok, "old rules must not survive a reload")
	_, ok = rs.Scope(DefaultScope)
	assert.False(t, ok)
}

func TestStore_BadDocumentKeepsPreviousSet(t *testing.T) {
	s := NewStore(testLogger(t))
	require.NoError(t, s.Load([]byte(`
_default:
  db_fragmentation: "70%"
`)))
	before := s.Current()

	err := s.Load([]byte("{broken: ["))
	assert.Error(t, err)
	assert.Same(t, before, s.Current())
}

func TestStore_MalformedRuleDoesNotBlockLoad(t *testing.T) {
	s := NewStore(testLogger(t))
	require.NoError(t, s.Load([]byte(`
good:
  db_fragmentation: "70%"
bad:
  db_fragmentation: "200%"
`)))

	rs := s.Current()
	assert.Equal(t, 1, rs.Len())
	_, ok := rs.Scope("good")
	assert.True(t, ok)
}

func TestStore_IdempotentReload(t *testing.T) {
	doc := []byte(`
_default:
  db_fragmentation: "70%"
  view_fragmentation: "70%"
`)
	s := NewStore(testLogger(t))
	require.NoError(t, s.Load(doc))
	first := s.Current()

	require.NoError(t, s.Load(doc))
	second := s.Current()

	assert.True(t, first.Equal(second))
}

func TestStore_ConcurrentReadersSeeCompleteSets(t *testing.T) {
	s := NewStore(testLogger(t))

	docA := []byte("_default:\n  db_fragmentation: \"70%\"\na:\n  db_fragmentation: \"10%\"\n")
	docB := []byte("_default:\n  db_fragmentation: \"80%\"\nb:\n  db_fragmentation: \"20%\"\n")
	require.NoError(t, s.Load(docA))

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if i%2 == 0 {
				_ = s.Load(docB)
			} else {
				_ = s.Load(docA)
			}
		}
	}()

	for i := 0; i < 1000; i++ {
		rs := s.Current()
		// Each snapshot is one complete document, never a merge of both.
		_, hasA := rs.Scope("a")
		_, hasB := rs.Scope("b")
		assert.False(t, hasA && hasB, "torn rule set observed")
		require.Equal(t, 2, rs.Len())
	}

	close(stop)
	wg.Wait()
}
