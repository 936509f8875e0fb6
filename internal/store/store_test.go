package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nosqlite/internal/config"
	"nosqlite/internal/metadata"
)

func memoryStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), config.DatabaseConfig{Driver: "sqlite", Name: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func walletModel(reg *metadata.Registry) *metadata.Model {
	currency := reg.Define("Currency", nil, metadata.String("code", metadata.Indexed()), metadata.Number("rate"))
	return reg.Define("WalletModel", nil,
		metadata.String("name", metadata.Indexed()),
		metadata.Number("balance"),
		metadata.Bool("archived"),
		metadata.Embed("currency", currency),
	)
}

func TestMigrator_CreatesTableWithGeneratedColumns(t *testing.T) {
	ctx := context.Background()
	s := memoryStore(t)
	model := walletModel(metadata.NewRegistry())

	require.NoError(t, NewMigrator(s, s.Dialect, nil).Migrate(ctx, model))

	_, err := s.Run(ctx, "INSERT INTO wallet (_id, data) VALUES (?1, ?2)",
		"w1", `{"_id":"w1","name":"Cash","balance":12.5,"archived":true,"currency":{"code":"VND","rate":1}}`)
	require.NoError(t, err)

	rows, err := s.Query(ctx, "SELECT name, balance, archived, currency_code FROM wallet WHERE currency_code = 'VND'")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Cash", rows[0]["name"])
	assert.Equal(t, 12.5, rows[0]["balance"])
	assert.Equal(t, int64(1), rows[0]["archived"])

	idx, err := s.Query(ctx, "SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = 'wallet' ORDER BY name")
	require.NoError(t, err)
	var names []string
	for _, r := range idx {
		names = append(names, r["name"].(string))
	}
	assert.Contains(t, names, "idx_wallet_name")
	assert.Contains(t, names, "idx_wallet_currency_code")
}

func TestMigrator_AddsMissingColumnsAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := memoryStore(t)
	reg := metadata.NewRegistry()
	model := walletModel(reg)
	m := NewMigrator(s, s.Dialect, nil)

	require.NoError(t, m.Migrate(ctx, model))
	_, err := s.Run(ctx, "INSERT INTO wallet (_id, data) VALUES (?1, ?2)", "w1", `{"_id":"w1","name":"Bank","note":"salary"}`)
	require.NoError(t, err)

	reg.DeclareField("WalletModel", metadata.String("note", metadata.Indexed()))
	require.NoError(t, m.Migrate(ctx, model))
	require.NoError(t, m.Migrate(ctx, model))

	rows, err := s.Query(ctx, "SELECT note FROM wallet WHERE _id = ?1", "w1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "salary", rows[0]["note"])
}

type scriptedConn struct {
	Conn
	statements []string
	failOn     string
	failErr    error
}

func (c *scriptedConn) Execute(ctx context.Context, sqlStr string) error {
	c.statements = append(c.statements, sqlStr)
	if c.failOn != "" && strings.Contains(sqlStr, c.failOn) {
		return c.failErr
	}
	return nil
}

func (c *scriptedConn) Query(ctx context.Context, sqlStr string, args ...any) ([]map[string]any, error) {
	return []map[string]any{{"name": "_id"}, {"name": "data"}}, nil
}

func TestMigrator_ColumnFailuresDoNotAbort(t *testing.T) {
	reg := metadata.NewRegistry()
	model := reg.Define("Category", nil,
		metadata.String("name", metadata.Indexed()),
		metadata.String("icon"),
		metadata.String("color"),
	)

	for _, failErr := range []error{errors.New("duplicate column name: icon"), errors.New("disk I/O error")} {
		conn := &scriptedConn{failOn: "ADD COLUMN icon", failErr: failErr}
		err := NewMigrator(conn, &SQLiteDialect{}, nil).Migrate(context.Background(), model)
		require.NoError(t, err)

		require.Len(t, conn.statements, 4)
		assert.Contains(t, conn.statements[2], "ADD COLUMN color TEXT GENERATED ALWAYS AS (json_extract(data, '$.color')) VIRTUAL")
		assert.Equal(t, "CREATE INDEX IF NOT EXISTS idx_category_name ON category (name)", conn.statements[3])
	}
}

func TestCreateTableSQL(t *testing.T) {
	model := walletModel(metadata.NewRegistry())
	sql := NewMigrator(nil, &SQLiteDialect{}, nil).CreateTableSQL(model)

	assert.True(t, strings.HasPrefix(sql, "CREATE TABLE IF NOT EXISTS wallet (\n  _id TEXT PRIMARY KEY,\n  data TEXT,"))
	assert.Contains(t, sql, "balance REAL GENERATED ALWAYS AS (json_extract(data, '$.balance')) STORED")
	assert.Contains(t, sql, "archived INTEGER GENERATED ALWAYS AS (json_extract(data, '$.archived')) STORED")
	assert.Contains(t, sql, "currency_code TEXT GENERATED ALWAYS AS (json_extract(data, '$.currency.code')) STORED")
}

func TestPostgresDialect(t *testing.T) {
	d := &PostgresDialect{}
	assert.Equal(t, "((data)::jsonb #>> '{currency,rate}')::double precision", d.JSONExtract("data", "$.currency.rate", "number"))
	assert.Equal(t, "(CASE ((data)::jsonb #>> '{archived}') WHEN 'true' THEN 1 WHEN 'false' THEN 0 END)", d.JSONExtract("data", "$.archived", "boolean"))
	assert.Equal(t, "COALESCE(json_agg(json_build_object('a', t.a)), '[]'::json)", d.JSONArrayOfObjects([]string{"'a'", "t.a"}))

	pb := d.NewParamBuilder()
	assert.Equal(t, "_id IN ($1, $2)", InExpr("_id", pb, []any{"a", "b"}))
	assert.Equal(t, 2, pb.Count())
}

func TestSQLiteDialect_MapError(t *testing.T) {
	d := &SQLiteDialect{}
	err := d.MapError(errors.New("constraint failed: UNIQUE constraint failed: wallet._id"))
	assert.ErrorIs(t, err, ErrUniqueViolation)
	assert.Nil(t, d.MapError(nil))
	assert.True(t, d.IsDuplicateColumn(errors.New("SQL logic error: duplicate column name: note (1)")))
}

func TestStore_UniqueViolation(t *testing.T) {
	ctx := context.Background()
	s := memoryStore(t)
	require.NoError(t, s.Execute(ctx, "CREATE TABLE t (_id TEXT PRIMARY KEY, data TEXT)"))
	_, err := s.Run(ctx, "INSERT INTO t (_id, data) VALUES (?1, ?2)", "a", "{}")
	require.NoError(t, err)
	_, err = s.Run(ctx, "INSERT INTO t (_id, data) VALUES (?1, ?2)", "a", "{}")
	assert.ErrorIs(t, err, ErrUniqueViolation)
}
