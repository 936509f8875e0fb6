package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresDialect implements Dialect for PostgreSQL via pgx/stdlib. The data
// column stays TEXT and is cast to jsonb inside generated expressions.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string       { return "postgres" }
func (d *PostgresDialect) DriverName() string { return "pgx" }

func (d *PostgresDialect) NewParamBuilder() ParamBuilder {
	return &paramBuilder{format: "$%d"}
}

func (d *PostgresDialect) ColumnType(kind string) string {
	switch kind {
	case "number":
		return "DOUBLE PRECISION"
	case "boolean":
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func (d *PostgresDialect) JSONExtract(column, path, kind string) string {
	keys := strings.Split(strings.TrimPrefix(path, "$."), ".")
	expr := fmt.Sprintf("((%s)::jsonb #>> '{%s}')", column, strings.Join(keys, ","))
	switch kind {
	case "number":
		return expr + "::double precision"
	case "boolean":
		return fmt.Sprintf("(CASE %s WHEN 'true' THEN 1 WHEN 'false' THEN 0 END)", expr)
	default:
		return expr
	}
}

func (d *PostgresDialect) AddedColumnStorage() string { return "STORED" }

func (d *PostgresDialect) JSONArrayOfObjects(pairs []string) string {
	return fmt.Sprintf("COALESCE(json_agg(json_build_object(%s)), '[]'::json)", strings.Join(pairs, ", "))
}

func (d *PostgresDialect) ListColumnsSQL(table string) (string, []any) {
	return "SELECT column_name AS name FROM information_schema.columns WHERE table_name = $1 AND table_schema = current_schema()", []any{table}
}

func (d *PostgresDialect) IsDuplicateColumn(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42701"
	}
	return err != nil && strings.Contains(err.Error(), "already exists")
}

func (d *PostgresDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	if strings.Contains(err.Error(), "duplicate key") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

var _ Dialect = (*PostgresDialect)(nil)
