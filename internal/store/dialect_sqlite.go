package store

import (
	"fmt"
	"strings"
)

// SQLiteDialect implements Dialect for SQLite via modernc.org/sqlite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) NewParamBuilder() ParamBuilder {
	return &paramBuilder{format: "?%d"}
}

func (d *SQLiteDialect) ColumnType(kind string) string {
	switch kind {
	case "number":
		return "REAL"
	case "string", "date":
		return "TEXT"
	case "boolean":
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func (d *SQLiteDialect) JSONExtract(column, path, _ string) string {
	return fmt.Sprintf("json_extract(%s, '%s')", column, path)
}

// SQLite refuses ALTER TABLE ADD COLUMN for STORED generated columns.
func (d *SQLiteDialect) AddedColumnStorage() string { return "VIRTUAL" }

func (d *SQLiteDialect) JSONArrayOfObjects(pairs []string) string {
	return fmt.Sprintf("json_group_array(json_object(%s))", strings.Join(pairs, ", "))
}

func (d *SQLiteDialect) ListColumnsSQL(table string) (string, []any) {
	// table_xinfo, unlike table_info, includes generated columns
	return "SELECT name FROM pragma_table_xinfo(?1)", []any{table}
}

func (d *SQLiteDialect) IsDuplicateColumn(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate column")
}

func (d *SQLiteDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	errStr := err.Error()
	if strings.Contains(errStr, "UNIQUE constraint failed") || strings.Contains(errStr, "constraint failed: UNIQUE") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

// Compile-time check
var _ Dialect = (*SQLiteDialect)(nil)
