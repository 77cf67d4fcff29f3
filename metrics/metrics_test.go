package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("qexec", reg)
	m.SortRuns.Add(3)
	m.BlocksWritten.WithLabelValues("spill").Inc()
	m.RowsEmitted.Observe(10)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.SortRuns))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BlocksWritten.WithLabelValues("spill")))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	assert.True(t, names["qexec_sort_runs_total"])
	assert.True(t, names["qexec_blocks_written_total"])
	assert.True(t, names["qexec_query_rows_emitted"])

	// a second set on the same registry collides
	assert.Panics(t, func() { New("qexec", reg) })
}

func TestNewNop(t *testing.T) {
	a, b := NewNop(), NewNop()
	a.TempTables.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.TempTables))
	assert.Zero(t, testutil.ToFloat64(b.TempTables))
}
