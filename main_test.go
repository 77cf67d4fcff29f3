package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"qexec-go/config"
	"qexec-go/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	students := writeFile(t, dir, "student.csv", "sid,sname,majorid\n1,joe,10\n2,amy,20\n3,max,10\n4,sue,20\n")
	depts := writeFile(t, dir, "dept.csv", "did,dname\n10,compsci\n20,math\n")
	query := writeFile(t, dir, "query.yaml", `
tables:
  - name: student
    path: `+students+`
  - name: dept
    path: `+depts+`
query:
  fields: [dname, countofsid]
  tables: [student, dept]
  where:
    - {left: majorid, op: "=", right: did}
    - {left: sname, op: "!=", value: max}
  group_by: [dname]
  aggregates:
    - {fn: count, field: sid}
  order_by:
    - {field: dname, dir: desc}
`)

	for _, alg := range []string{"nestedloop", "blocknested", "hash", "merge"} {
		t.Run(alg, func(t *testing.T) {
			cfg := *config.GetConfig()
			cfg.Planner.JoinAlgorithm = alg
			cfg.Planner.Explain = true
			var out bytes.Buffer
			err := run(context.Background(), &cfg, metrics.NewNop(), query, &out)
			require.NoError(t, err)

			lines := strings.Split(strings.TrimSpace(out.String()), "\n")
			require.Len(t, lines, 4)
			assert.True(t, strings.HasPrefix(lines[0], "plan: Sort[dname desc]"), lines[0])
			assert.Equal(t, "dname\tcountofsid", lines[1])
			assert.Equal(t, "math\t2", lines[2])
			assert.Equal(t, "compsci\t1", lines[3])
		})
	}
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	data := writeFile(t, dir, "t.csv", "a\n1\n")
	tests := map[string]string{
		"unknown key":      "tables: []\nquery: {tables: [t], wat: 1}\n",
		"path and key":     "tables: [{name: t, path: " + data + ", key: t.csv}]\nquery: {tables: [t]}\n",
		"unknown table":    "tables: [{name: t, path: " + data + "}]\nquery: {tables: [u]}\n",
		"bad operator":     "tables: [{name: t, path: " + data + "}]\nquery: {tables: [t], where: [{left: a, op: '=~', value: 1}]}\n",
		"term needs value": "tables: [{name: t, path: " + data + "}]\nquery: {tables: [t], where: [{left: a, op: '='}]}\n",
		"bad direction":    "tables: [{name: t, path: " + data + "}]\nquery: {tables: [t], order_by: [{field: a, dir: up}]}\n",
		"bad aggregate":    "tables: [{name: t, path: " + data + "}]\nquery: {tables: [t], aggregates: [{fn: median, field: a}]}\n",
		"reserved name":    "tables: [{name: temp1, path: " + data + "}]\nquery: {tables: [temp1]}\n",
		"not a data file":  "tables: [{name: t, path: " + filepath.Join(dir, "t.txt") + "}]\nquery: {tables: [t]}\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			q := writeFile(t, t.TempDir(), "q.yaml", content)
			var out bytes.Buffer
			assert.Error(t, run(context.Background(), config.GetConfig(), metrics.NewNop(), q, &out))
		})
	}
}

func TestWriteMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New("qexec", reg)
	m.TempTables.Inc()
	m.BlocksRead.WithLabelValues("memory").Add(3)

	var out bytes.Buffer
	require.NoError(t, writeMetrics(reg, &out))
	assert.Contains(t, out.String(), "qexec_temp_tables_created_total 1")
	assert.Contains(t, out.String(), `qexec_blocks_read_total{device="memory"} 3`)
}
