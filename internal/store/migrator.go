package store

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"nosqlite/internal/metadata"
)

// Conn is the database collaborator the document store runs on: DDL through
// Execute, reads through Query, writes (and BEGIN/COMMIT/ROLLBACK) through Run.
// *Store implements it.
type Conn interface {
	Execute(ctx context.Context, sqlStr string) error
	Query(ctx context.Context, sqlStr string, args ...any) ([]map[string]any, error)
	Run(ctx context.Context, sqlStr string, args ...any) (int64, error)
}

var _ Conn = (*Store)(nil)

// Migrator reconciles a model's table with its declared fields. It only ever
// adds: tables, generated columns and indexes.
type Migrator struct {
	conn    Conn
	dialect Dialect
	log     *zap.Logger
}

func NewMigrator(conn Conn, dialect Dialect, log *zap.Logger) *Migrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Migrator{conn: conn, dialect: dialect, log: log}
}

// Migrate creates the model's table with every generated column if it does
// not exist, otherwise adds the missing columns. Column and index failures
// are logged and skipped so one bad field cannot block the others.
func (m *Migrator) Migrate(ctx context.Context, model *metadata.Model) error {
	existing, err := m.getColumns(ctx, model.Table)
	if err != nil {
		return fmt.Errorf("get columns for %s: %w", model.Table, err)
	}

	if len(existing) == 0 {
		if err := m.createTable(ctx, model); err != nil {
			return err
		}
	} else {
		m.alterTable(ctx, model, existing)
	}

	m.createIndexes(ctx, model)
	return nil
}

// CreateTableSQL returns the DDL for a fresh table of model.
func (m *Migrator) CreateTableSQL(model *metadata.Model) string {
	cols := []string{"_id TEXT PRIMARY KEY", "data TEXT"}
	for _, c := range model.Columns() {
		cols = append(cols, m.generatedColumnDef(c, "STORED"))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", model.Table, strings.Join(cols, ",\n  "))
}

// AddColumnSQL returns the ALTER statement adding one generated column.
func (m *Migrator) AddColumnSQL(model *metadata.Model, c metadata.Column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", model.Table, m.generatedColumnDef(c, m.dialect.AddedColumnStorage()))
}

func (m *Migrator) generatedColumnDef(c metadata.Column, storage string) string {
	kind := string(c.Kind)
	return fmt.Sprintf("%s %s GENERATED ALWAYS AS (%s) %s",
		c.Name, m.dialect.ColumnType(kind), m.dialect.JSONExtract("data", c.Path, kind), storage)
}

func (m *Migrator) createTable(ctx context.Context, model *metadata.Model) error {
	if err := m.conn.Execute(ctx, m.CreateTableSQL(model)); err != nil {
		return fmt.Errorf("create table %s: %w", model.Table, err)
	}
	m.log.Info("created table", zap.String("table", model.Table), zap.Int("columns", len(model.Columns())))
	return nil
}

func (m *Migrator) alterTable(ctx context.Context, model *metadata.Model, existing map[string]bool) {
	for _, c := range model.Columns() {
		if existing[c.Name] {
			continue
		}
		err := m.conn.Execute(ctx, m.AddColumnSQL(model, c))
		switch {
		case err == nil:
			m.log.Info("added column", zap.String("table", model.Table), zap.String("column", c.Name))
		case m.dialect.IsDuplicateColumn(err):
			// already there, e.g. a concurrent init
		default:
			m.log.Warn("add column failed", zap.String("table", model.Table), zap.String("column", c.Name), zap.Error(err))
		}
	}
}

func (m *Migrator) createIndexes(ctx context.Context, model *metadata.Model) {
	for _, c := range model.Columns() {
		if !c.Index {
			continue
		}
		sql := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)", model.Table, c.Name, model.Table, c.Name)
		if err := m.conn.Execute(ctx, sql); err != nil {
			m.log.Warn("create index failed", zap.String("table", model.Table), zap.String("column", c.Name), zap.Error(err))
		}
	}
}

func (m *Migrator) getColumns(ctx context.Context, table string) (map[string]bool, error) {
	sqlStr, args := m.dialect.ListColumnsSQL(table)
	rows, err := m.conn.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	cols := make(map[string]bool, len(rows))
	for _, row := range rows {
		if name, ok := row["name"].(string); ok {
			cols[name] = true
		}
	}
	return cols, nil
}
