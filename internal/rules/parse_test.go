package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	rs, errs := Parse([]byte(`
_default:
  db_fragmentation: "70%"
  view_fragmentation: "60%"
  min_file_size: 131072
orders:
  db_fragmentation: "85%"
  window: "23:00-04:00"
  strict_window: true
`))
	require.NotNil(t, rs)
	assert.Empty(t, errs)
	assert.Equal(t, 2, rs.Len())

	def, ok := rs.Scope(DefaultScope)
	require.True(t, ok)
	require.NotNil(t, def.DBFragmentation)
	assert.Equal(t, 70, *def.DBFragmentation)
	require.NotNil(t, def.ViewFragmentation)
	assert.Equal(t, 60, *def.ViewFragmentation)
	require.NotNil(t, def.MinFileSize)
	assert.Equal(t, int64(131072), *def.MinFileSize)
	assert.Nil(t, def.Window)

	orders, ok := rs.Scope("orders")
	require.True(t, ok)
	assert.Nil(t, orders.ViewFragmentation)
	require.NotNil(t, orders.Window)
	assert.Equal(t, Window{From: 23 * 60, To: 4 * 60}, *orders.Window)
	assert.True(t, orders.StrictWindow)
}

func TestParse_MalformedRuleDropped(t *testing.T) {
	// One bad rule must not disable the others.
	rs, errs := Parse([]byte(`
_default:
  db_fragmentation: "70%"
bad_pct:
  db_fragmentation: "70.5%"
over:
  db_fragmentation: "150%"
negative:
  db_fragmentation: "-3%"
no_suffix:
  db_fragmentation: "70"
bad_size:
  db_fragmentation: "50%"
  min_file_size: -1
empty_rule:
  strict_window: false
strict_without_window:
  db_fragmentation: "50%"
  strict_window: true
good:
  view_fragmentation: "0%"
`))
	require.NotNil(t, rs)
	assert.Len(t, errs, 7)
	assert.Equal(t, 2, rs.Len())

	_, ok := rs.Scope(DefaultScope)
	assert.True(t, ok)
	_, ok = rs.Scope("good")
	assert.True(t, ok)
	_, ok = rs.Scope("bad_pct")
	assert.False(t, ok)
}

func TestParse_InvalidDocument(t *testing.T) {
	rs, errs := Parse([]byte("{not yaml: ["))
	assert.Nil(t, rs)
	require.Len(t, errs, 1)
}

func TestParse_EmptyDocument(t *testing.T) {
	rs, errs := Parse(nil)
	require.NotNil(t, rs)
	assert.Empty(t, errs)
	assert.Equal(t, 0, rs.Len())
}

func TestParsePercent_Boundaries(t *testing.T) {
	for input, want := range map[string]int{"0%": 0, "100%": 100, "70%": 70} {
		got, err := parsePercent(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got)
	}
	for _, input := range []string{"101%", "-1%", "70", "seventy%", "7.5%", "%"} {
		_, err := parsePercent(input)
		assert.Error(t, err, input)
	}
}

func TestParseWindow(t *testing.T) {
	w, err := ParseWindow("01:30-13:45")
	require.NoError(t, err)
	assert.Equal(t, Window{From: 90, To: 825}, w)

	for _, input := range []string{"25:00-01:00", "01:00", "01:00-01:60", "01:00-01:00", "nope"} {
		_, err := ParseWindow(input)
		assert.Error(t, err, input)
	}
}

func TestWindow_Contains(t *testing.T) {
	at := func(h, m int) time.Time {
		return time.Date(2026, 3, 14, h, m, 0, 0, time.UTC)
	}

	day := Window{From: 9 * 60, To: 17 * 60}
	assert.True(t, day.Contains(at(9, 0)))
	assert.True(t, day.Contains(at(16, 59)))
	assert.False(t, day.Contains(at(17, 0)))
	assert.False(t, day.Contains(at(8, 59)))

	night := Window{From: 23 * 60, To: 4 * 60}
	assert.True(t, night.Contains(at(23, 30)))
	assert.True(t, night.Contains(at(2, 0)))
	assert.False(t, night.Contains(at(4, 0)))
	assert.False(t, night.Contains(at(12, 0)))
}

func TestWindow_NextEnd(t *testing.T) {
	w := Window{From: 23 * 60, To: 4 * 60}

	before := time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 15, 4, 0, 0, 0, time.UTC), w.NextEnd(before))

	after := time.Date(2026, 3, 15, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 15, 4, 0, 0, 0, time.UTC), w.NextEnd(after))
}
