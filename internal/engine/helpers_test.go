package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"nosqlite/internal/config"
	"nosqlite/internal/metadata"
	"nosqlite/internal/store"
)

func ledgerModels() (*metadata.Registry, *metadata.Model, *metadata.Model) {
	reg := metadata.NewRegistry()
	location := reg.Define("Location", nil, metadata.String("city"), metadata.String("country"))
	category := reg.Define("CategoryModel", nil,
		metadata.String("name", metadata.Indexed()),
		metadata.String("kind"),
	)
	entry := reg.Define("EntryModel", nil,
		metadata.Number("amount", metadata.Indexed()),
		metadata.String("category", metadata.Indexed()),
		metadata.Date("date", metadata.Indexed()),
		metadata.String("note"),
		metadata.Embed("location", location),
	)
	return reg, category, entry
}

// recordingConn records every statement and fails Run for statements
// containing failOn.
type recordingConn struct {
	mu     sync.Mutex
	stmts  []string
	args   [][]any
	failOn string
	rows   []map[string]any
}

func (r *recordingConn) record(sqlStr string, args []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stmts = append(r.stmts, sqlStr)
	r.args = append(r.args, args)
}

func (r *recordingConn) Execute(_ context.Context, sqlStr string) error {
	r.record(sqlStr, nil)
	return nil
}

func (r *recordingConn) Query(_ context.Context, sqlStr string, args ...any) ([]map[string]any, error) {
	r.record(sqlStr, args)
	return r.rows, nil
}

func (r *recordingConn) Run(_ context.Context, sqlStr string, args ...any) (int64, error) {
	r.record(sqlStr, args)
	if r.failOn != "" && strings.Contains(sqlStr, r.failOn) {
		return 0, fmt.Errorf("boom on %s", r.failOn)
	}
	return 1, nil
}

func (r *recordingConn) statements() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.stmts...)
}

// sqliteClient opens an in-memory database and migrates category and entry.
func sqliteClient(t *testing.T) (*Client, *Collection, *Collection) {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Name: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	reg, category, entry := ledgerModels()
	c, err := Init(ctx, s, s.Dialect, reg, Options{}, category, entry)
	require.NoError(t, err)
	return c, c.Collection(category), c.Collection(entry)
}
