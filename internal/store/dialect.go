package store

import (
	"fmt"
	"strings"
)

// Dialect abstracts the database-specific SQL the document store emits.
type Dialect interface {
	// Name returns "sqlite" or "postgres".
	Name() string

	// DriverName returns the database/sql driver name ("sqlite" or "pgx").
	DriverName() string

	// NewParamBuilder creates a dialect-aware parameter builder.
	NewParamBuilder() ParamBuilder

	// ColumnType maps a field kind to the DDL type of its generated column.
	ColumnType(kind string) string

	// JSONExtract returns an expression reading the JSON path ("$.a.b")
	// out of the text column, typed for kind.
	JSONExtract(column, path, kind string) string

	// AddedColumnStorage is the storage keyword for generated columns added
	// to an existing table ("STORED" or "VIRTUAL").
	AddedColumnStorage() string

	// JSONArrayOfObjects aggregates one JSON object per row built from
	// alternating key/value expressions; zero rows yield an empty array.
	JSONArrayOfObjects(pairs []string) string

	// ListColumnsSQL returns a query yielding one row per column of table,
	// with the column name under "name". No rows means no table.
	ListColumnsSQL(table string) (string, []any)

	// IsDuplicateColumn reports whether err is an ADD COLUMN conflict.
	IsDuplicateColumn(err error) bool

	// MapError inspects a driver error and returns a well-known sentinel error if applicable.
	MapError(err error) error
}

// ParamBuilder accumulates query parameters and generates dialect-specific placeholders.
type ParamBuilder interface {
	// Add appends a value and returns the placeholder string.
	Add(v any) string

	// Params returns all accumulated parameter values.
	Params() []any

	// Count returns the number of parameters added so far.
	Count() int
}

// NewDialect creates a Dialect for the given driver name ("sqlite" or "postgres").
func NewDialect(driver string) Dialect {
	switch driver {
	case "postgres":
		return &PostgresDialect{}
	default:
		return &SQLiteDialect{}
	}
}

// InExpr expands values into "field IN (p1, p2, ...)" using pb.
func InExpr(field string, pb ParamBuilder, values []any) string {
	if len(values) == 0 {
		return "1=0"
	}
	phs := make([]string, len(values))
	for i, v := range values {
		phs[i] = pb.Add(v)
	}
	return fmt.Sprintf("%s IN (%s)", field, strings.Join(phs, ", "))
}

type paramBuilder struct {
	format string
	params []any
	n      int
}

func (p *paramBuilder) Add(v any) string {
	p.n++
	p.params = append(p.params, v)
	return fmt.Sprintf(p.format, p.n)
}

func (p *paramBuilder) Params() []any { return p.params }
func (p *paramBuilder) Count() int    { return p.n }
