// Package instrument wraps the store connection with statement logging and
// metrics.
package instrument

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"nosqlite/internal/store"
)

// Conn is a store.Conn that times every statement, logs it at debug level
// (warn when slower than SlowThreshold) and reports it to a Recorder.
type Conn struct {
	next          store.Conn
	rec           Recorder
	log           *zap.Logger
	SlowThreshold time.Duration
}

var _ store.Conn = (*Conn)(nil)

// Wrap instruments next. rec and log may be nil.
func Wrap(next store.Conn, rec Recorder, log *zap.Logger) *Conn {
	if rec == nil {
		rec = NoopRecorder{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Conn{next: next, rec: rec, log: log, SlowThreshold: 200 * time.Millisecond}
}

func (c *Conn) Execute(ctx context.Context, sqlStr string) error {
	start := time.Now()
	err := c.next.Execute(ctx, sqlStr)
	c.observe(sqlStr, start, err, -1)
	return err
}

func (c *Conn) Query(ctx context.Context, sqlStr string, args ...any) ([]map[string]any, error) {
	start := time.Now()
	rows, err := c.next.Query(ctx, sqlStr, args...)
	c.observe(sqlStr, start, err, int64(len(rows)))
	return rows, err
}

func (c *Conn) Run(ctx context.Context, sqlStr string, args ...any) (int64, error) {
	start := time.Now()
	n, err := c.next.Run(ctx, sqlStr, args...)
	c.observe(sqlStr, start, err, n)
	return n, err
}

func (c *Conn) observe(sqlStr string, start time.Time, err error, rows int64) {
	elapsed := time.Since(start)
	kind := StatementKind(sqlStr)
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.rec.Observe(kind, status, elapsed)

	fields := []zap.Field{
		zap.String("statement", kind),
		zap.Duration("elapsed", elapsed),
		zap.String("sql", truncate(sqlStr, 500)),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows", rows))
	}
	switch {
	case err != nil:
		c.log.Debug("statement failed", append(fields, zap.Error(err))...)
	case c.SlowThreshold > 0 && elapsed > c.SlowThreshold:
		c.log.Warn("slow statement", fields...)
	default:
		c.log.Debug("statement", fields...)
	}
}

// StatementKind returns the lower-cased leading keyword of sqlStr, which
// keeps metric label cardinality bounded.
func StatementKind(sqlStr string) string {
	word, _, _ := strings.Cut(strings.TrimSpace(sqlStr), " ")
	switch kind := strings.ToLower(word); kind {
	case "select", "insert", "update", "delete", "begin", "commit", "rollback", "create", "alter", "pragma":
		return kind
	default:
		return "other"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
