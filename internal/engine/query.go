package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/sync/errgroup"

	"nosqlite/internal/metadata"
)

// Asc and Desc build sort keys for Query.Sort.
func Asc(field string) bson.E  { return bson.E{Key: field, Value: 1} }
func Desc(field string) bson.E { return bson.E{Key: field, Value: -1} }

// PageOptions selects one page of a paginated read. Page is 1-based.
type PageOptions struct {
	Page  int
	Limit int
	Sort  bson.D
}

// Page is one page of documents plus the totals for the whole filter.
type Page struct {
	Docs      []Document `json:"docs"`
	TotalDocs int64      `json:"totalDocs"`
	Page      int        `json:"page"`
	Limit     int        `json:"limit"`
	TotalPage int64      `json:"totalPage"`
}

// Query is a lazily compiled read against one table. Builder methods mutate
// and return the same Query; nothing touches the database until a terminal
// method (Exec, Count, Exists, First, Paginate) runs.
type Query struct {
	client  *Client
	model   *metadata.Model
	filter  Filter
	fields  []string
	sort    bson.D
	limit   int
	skip    int
	lookups []Lookup
}

func newQuery(c *Client, model *metadata.Model) *Query {
	return &Query{client: c, model: model, filter: Filter{}}
}

// Where merges f into the current filter. Keys already present are replaced.
func (q *Query) Where(f Filter) *Query {
	for k, v := range f {
		q.filter[k] = v
	}
	return q
}

// Select replaces the projection. Without it, the whole stored document is
// returned.
func (q *Query) Select(fields ...string) *Query {
	q.fields = fields
	return q
}

// Sort sets the ORDER BY list. Values are 1 (ascending) or -1 (descending).
func (q *Query) Sort(order bson.D) *Query {
	q.sort = order
	return q
}

// Limit caps the number of rows; 0 means no limit.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

func (q *Query) Skip(n int) *Query {
	q.skip = n
	return q
}

func (q *Query) Lookup(lk Lookup) *Query {
	q.lookups = append(q.lookups, lk)
	return q
}

// SQL compiles the SELECT statement Exec would run.
func (q *Query) SQL() (string, error) {
	cols, err := q.selectList()
	if err != nil {
		return "", err
	}
	where, err := q.whereSQL()
	if err != nil {
		return "", err
	}
	orderBy, err := q.orderBySQL()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(cols, ", "), q.model.Table)
	b.WriteString(where)
	b.WriteString(orderBy)
	b.WriteString(q.limitSQL())
	return b.String(), nil
}

// CountSQL compiles the COUNT statement for the current filter.
func (q *Query) CountSQL() (string, error) {
	where, err := q.whereSQL()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT COUNT(*) AS total FROM %s%s", q.model.Table, where), nil
}

// Exec runs the query and decodes every row.
func (q *Query) Exec(ctx context.Context) ([]Document, error) {
	sqlStr, err := q.SQL()
	if err != nil {
		return nil, err
	}
	rows, err := q.client.conn.Query(ctx, sqlStr)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", q.model.Table, err)
	}

	docs := make([]Document, 0, len(rows))
	for _, row := range rows {
		doc, err := DecodeRow(q.model, q.lookups, row)
		if err != nil {
			return nil, fmt.Errorf("find %s: %w", q.model.Table, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Count returns the number of documents matching the filter, ignoring
// projection, sort, limit and skip.
func (q *Query) Count(ctx context.Context) (int64, error) {
	sqlStr, err := q.CountSQL()
	if err != nil {
		return 0, err
	}
	rows, err := q.client.conn.Query(ctx, sqlStr)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", q.model.Table, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return toInt64(rows[0]["total"])
}

// Exists reports whether at least one document matches the filter.
func (q *Query) Exists(ctx context.Context) (bool, error) {
	where, err := q.whereSQL()
	if err != nil {
		return false, err
	}
	rows, err := q.client.conn.Query(ctx, fmt.Sprintf("SELECT 1 AS found FROM %s%s LIMIT 1", q.model.Table, where))
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", q.model.Table, err)
	}
	return len(rows) > 0, nil
}

// First sets the limit to 1 and returns the first document, or nil.
func (q *Query) First(ctx context.Context) (Document, error) {
	docs, err := q.Limit(1).Exec(ctx)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

// Paginate runs the count and the page read concurrently.
func (q *Query) Paginate(ctx context.Context, opts PageOptions) (*Page, error) {
	if opts.Limit <= 0 {
		return nil, invalidArgument("paginate requires a positive limit, got %d", opts.Limit)
	}
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Sort != nil {
		q.sort = opts.Sort
	}
	q.limit = opts.Limit
	q.skip = (opts.Page - 1) * opts.Limit

	var (
		total int64
		docs  []Document
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, err = q.Count(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		docs, err = q.Exec(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Page{
		Docs:      docs,
		TotalDocs: total,
		Page:      opts.Page,
		Limit:     opts.Limit,
		TotalPage: (total + int64(opts.Limit) - 1) / int64(opts.Limit),
	}, nil
}

func (q *Query) selectList() ([]string, error) {
	var cols []string
	if len(q.fields) == 0 {
		cols = []string{"data"}
	} else {
		for _, col := range ExpandSelect(q.model, q.fields...) {
			if !identPattern.MatchString(col) {
				return nil, invalidQuery("invalid select field: %q", col)
			}
			cols = append(cols, col)
		}
	}

	for _, lk := range q.lookups {
		expr, err := lookupColumn(q.client.registry, q.client.dialect, q.model.Table, lk)
		if err != nil {
			return nil, err
		}
		cols = append(cols, expr)
	}
	return cols, nil
}

func (q *Query) whereSQL() (string, error) {
	clauses, err := CompileFilter(q.filter)
	if err != nil {
		return "", err
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), nil
}

func (q *Query) orderBySQL() (string, error) {
	if len(q.sort) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(q.sort))
	for _, e := range q.sort {
		col, err := column(e.Key)
		if err != nil {
			return "", err
		}
		dir, err := direction(e.Value)
		if err != nil {
			return "", err
		}
		parts = append(parts, col+" "+dir)
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

func (q *Query) limitSQL() string {
	var s string
	switch {
	case q.limit > 0:
		s = " LIMIT " + strconv.Itoa(q.limit)
	case q.skip > 0 && q.client.dialect.Name() == "sqlite":
		// sqlite only accepts OFFSET after a LIMIT
		s = " LIMIT -1"
	}
	if q.skip > 0 {
		s += " OFFSET " + strconv.Itoa(q.skip)
	}
	return s
}

func direction(v any) (string, error) {
	switch val := v.(type) {
	case int:
		return signDirection(int64(val))
	case int32:
		return signDirection(int64(val))
	case int64:
		return signDirection(val)
	case float64:
		return signDirection(int64(val))
	case string:
		switch strings.ToLower(val) {
		case "asc", "1":
			return "ASC", nil
		case "desc", "-1":
			return "DESC", nil
		}
	}
	return "", invalidQuery("invalid sort direction: %v", v)
}

func signDirection(n int64) (string, error) {
	switch n {
	case 1:
		return "ASC", nil
	case -1:
		return "DESC", nil
	default:
		return "", invalidQuery("invalid sort direction: %d", n)
	}
}

func toInt64(v any) (int64, error) {
	switch val := v.(type) {
	case int64:
		return val, nil
	case int:
		return int64(val), nil
	case float64:
		return int64(val), nil
	case string:
		return strconv.ParseInt(val, 10, 64)
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("unexpected count type %T", v)
	}
}
