package instrument

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubConn struct {
	err  error
	rows []map[string]any
}

func (s stubConn) Execute(context.Context, string) error { return s.err }

func (s stubConn) Query(context.Context, string, ...any) ([]map[string]any, error) {
	return s.rows, s.err
}

func (s stubConn) Run(context.Context, string, ...any) (int64, error) { return 2, s.err }

func TestStatementKind(t *testing.T) {
	tests := map[string]string{
		"SELECT data FROM entry":          "select",
		"  insert into entry VALUES (?1)": "insert",
		"BEGIN TRANSACTION":               "begin",
		"ROLLBACK":                        "rollback",
		"WITH x AS (SELECT 1) SELECT *":   "other",
		"":                                "other",
	}
	for in, want := range tests {
		assert.Equal(t, want, StatementKind(in), in)
	}
}

func TestConn_RecordsMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	ok := Wrap(stubConn{rows: []map[string]any{{"a": 1}}}, m, nil)
	_, err := ok.Query(ctx, "SELECT data FROM entry")
	require.NoError(t, err)
	_, err = ok.Query(ctx, "SELECT data FROM entry")
	require.NoError(t, err)

	failing := Wrap(stubConn{err: errors.New("disk full")}, m, nil)
	_, err = failing.Run(ctx, "INSERT INTO entry (_id, data) VALUES (?1, ?2)", "a", "{}")
	require.Error(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.statements.WithLabelValues("select", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.statements.WithLabelValues("insert", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.duration))
}

func TestConn_LogsSlowStatements(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	c := Wrap(stubConn{}, nil, zap.New(core))
	c.SlowThreshold = time.Nanosecond

	require.NoError(t, c.Execute(context.Background(), "CREATE TABLE t (_id TEXT)"))
	// Some platforms have coarse clocks; the call may finish within the threshold.
	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Contains(t, []string{"slow statement", "statement"}, entries[0].Message)
	assert.Equal(t, "create", entries[0].ContextMap()["statement"])
}

func TestConn_PassesResultsThrough(t *testing.T) {
	c := Wrap(stubConn{}, NoopRecorder{}, nil)
	n, err := c.Run(context.Background(), "DELETE FROM entry")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
