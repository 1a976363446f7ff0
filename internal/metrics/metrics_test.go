package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.Commit()
		m.Refresh()
		m.Rebuild(time.Second, nil)
		m.Search("legacy", time.Millisecond, "")
		m.GenerationWait(false)
		m.WriterEntered()
		m.WriterExited()
	})
}

func TestMetrics_Counters(t *testing.T) {
	// Given: unregistered metrics
	m := New(nil)

	// When: recording events
	m.Commit()
	m.Commit()
	m.Refresh()
	m.Rebuild(time.Millisecond, nil)
	m.Rebuild(time.Millisecond, errors.New("boom"))
	m.Search("tracked", time.Millisecond, "")
	m.Search("tracked", time.Millisecond, "ERR_401_QUERY_SYNTAX")
	m.GenerationWait(true)
	m.GenerationWait(false)
	m.WriterEntered()
	m.WriterEntered()
	m.WriterExited()

	// Then: the collectors reflect them
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Commits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Refreshes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rebuilds))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RebuildFailures))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Searches.WithLabelValues("tracked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchErrors.WithLabelValues("ERR_401_QUERY_SYNTAX")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.GenerationWaits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GenerationTimeouts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveWriters))
}

func TestMetrics_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Commit()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "nrtindex_writer_commits_total")
	assert.Contains(t, names, "nrtindex_writer_active_writers")

	// A second set on the same registry collides.
	assert.Panics(t, func() { New(reg) })
}
