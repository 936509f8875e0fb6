package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"nosqlite/internal/metadata"
	"nosqlite/internal/objectid"
	"nosqlite/internal/store"
)

// Collection is the CRUD facade of one model. Every write serialises the
// whole document into the data column; generated columns follow from it.
type Collection struct {
	client *Client
	model  *metadata.Model
}

func (col *Collection) Model() *metadata.Model { return col.model }

// Find starts a query. f may be nil.
func (col *Collection) Find(f Filter) *Query {
	return newQuery(col.client, col.model).Where(f)
}

// FindOne returns the first match, or nil.
func (col *Collection) FindOne(ctx context.Context, f Filter) (Document, error) {
	return col.Find(f).First(ctx)
}

func (col *Collection) FindByID(ctx context.Context, id string) (Document, error) {
	return col.FindOne(ctx, Filter{"_id": id})
}

func (col *Collection) Count(ctx context.Context, f Filter) (int64, error) {
	return col.Find(f).Count(ctx)
}

func (col *Collection) Exists(ctx context.Context, f Filter) (bool, error) {
	return col.Find(f).Exists(ctx)
}

func (col *Collection) Paginate(ctx context.Context, f Filter, opts PageOptions) (*Page, error) {
	return col.Find(f).Paginate(ctx, opts)
}

// InsertOne stores doc, assigning an _id if it has none, and returns the
// stored copy. doc itself is not modified.
func (col *Collection) InsertOne(ctx context.Context, doc Document) (Document, error) {
	stored, err := prepareInsert(doc)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}

	pb := col.client.dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("INSERT INTO %s (_id, data) VALUES (%s, %s)",
		col.model.Table, pb.Add(stored.ID()), pb.Add(string(data)))
	if _, err := col.client.conn.Run(ctx, sqlStr, pb.Params()...); err != nil {
		return nil, fmt.Errorf("insert into %s: %w", col.model.Table, err)
	}
	return stored, nil
}

// InsertMany stores docs with one multi-row INSERT per batch. Batches run in
// order; a failure leaves the earlier batches applied.
func (col *Collection) InsertMany(ctx context.Context, docs []Document) ([]Document, error) {
	if docs == nil {
		return nil, invalidArgument("insertMany requires a list of documents")
	}

	stored := make([]Document, len(docs))
	for i, doc := range docs {
		s, err := prepareInsert(doc)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		stored[i] = s
	}

	for n, batch := range col.chunks(stored) {
		pb := col.client.dialect.NewParamBuilder()
		values := make([]string, len(batch))
		for i, doc := range batch {
			data, err := json.Marshal(doc)
			if err != nil {
				return nil, fmt.Errorf("encode document: %w", err)
			}
			values[i] = fmt.Sprintf("(%s, %s)", pb.Add(doc.ID()), pb.Add(string(data)))
		}
		sqlStr := fmt.Sprintf("INSERT INTO %s (_id, data) VALUES %s", col.model.Table, strings.Join(values, ", "))
		if _, err := col.client.conn.Run(ctx, sqlStr, pb.Params()...); err != nil {
			return nil, fmt.Errorf("insert batch %d into %s: %w", n, col.model.Table, err)
		}
	}
	col.client.log.Debug("inserted documents", zap.String("table", col.model.Table), zap.Int("count", len(stored)))
	return stored, nil
}

// UpdateOne shallow-merges patch into the first match and rewrites it. It
// returns the merged document, or nil if nothing matched.
func (col *Collection) UpdateOne(ctx context.Context, f Filter, patch Document) (Document, error) {
	cur, err := col.FindOne(ctx, f)
	if err != nil || cur == nil {
		return nil, err
	}
	merged := merge(cur, patch)
	data, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}

	pb := col.client.dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("UPDATE %s SET data = %s WHERE _id = %s", col.model.Table, pb.Add(string(data)), pb.Add(merged.ID()))
	if _, err := col.client.conn.Run(ctx, sqlStr, pb.Params()...); err != nil {
		return nil, fmt.Errorf("update %s: %w", col.model.Table, err)
	}
	return merged, nil
}

// UpdateMany shallow-merges patch into every match, rewriting each batch
// with a single CASE statement, and returns the merged documents.
func (col *Collection) UpdateMany(ctx context.Context, f Filter, patch Document) ([]Document, error) {
	matches, err := col.Find(f).Exec(ctx)
	if err != nil {
		return nil, err
	}

	merged := make([]Document, len(matches))
	for i, doc := range matches {
		merged[i] = merge(doc, patch)
	}

	for n, batch := range col.chunks(merged) {
		pb := col.client.dialect.NewParamBuilder()
		cases := make([]string, len(batch))
		ids := make([]any, len(batch))
		for i, doc := range batch {
			data, err := json.Marshal(doc)
			if err != nil {
				return nil, fmt.Errorf("encode document: %w", err)
			}
			cases[i] = fmt.Sprintf("WHEN _id = %s THEN %s", pb.Add(doc.ID()), pb.Add(string(data)))
			ids[i] = doc.ID()
		}
		sqlStr := fmt.Sprintf("UPDATE %s SET data = CASE %s END WHERE %s",
			col.model.Table, strings.Join(cases, " "), store.InExpr("_id", pb, ids))
		if _, err := col.client.conn.Run(ctx, sqlStr, pb.Params()...); err != nil {
			return nil, fmt.Errorf("update batch %d of %s: %w", n, col.model.Table, err)
		}
	}
	return merged, nil
}

// DeleteOne removes the first match and returns it, or nil.
func (col *Collection) DeleteOne(ctx context.Context, f Filter) (Document, error) {
	cur, err := col.FindOne(ctx, f)
	if err != nil || cur == nil {
		return nil, err
	}
	pb := col.client.dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("DELETE FROM %s WHERE _id = %s", col.model.Table, pb.Add(cur.ID()))
	if _, err := col.client.conn.Run(ctx, sqlStr, pb.Params()...); err != nil {
		return nil, fmt.Errorf("delete from %s: %w", col.model.Table, err)
	}
	return cur, nil
}

// DeleteMany removes every match in batches and returns the removed documents.
func (col *Collection) DeleteMany(ctx context.Context, f Filter) ([]Document, error) {
	matches, err := col.Find(f).Exec(ctx)
	if err != nil {
		return nil, err
	}
	for n, batch := range col.chunks(matches) {
		pb := col.client.dialect.NewParamBuilder()
		ids := make([]any, len(batch))
		for i, doc := range batch {
			ids[i] = doc.ID()
		}
		sqlStr := fmt.Sprintf("DELETE FROM %s WHERE %s", col.model.Table, store.InExpr("_id", pb, ids))
		if _, err := col.client.conn.Run(ctx, sqlStr, pb.Params()...); err != nil {
			return nil, fmt.Errorf("delete batch %d of %s: %w", n, col.model.Table, err)
		}
	}
	return matches, nil
}

// Transaction runs fn inside a transaction on the client's connection.
func (col *Collection) Transaction(ctx context.Context, fn func(ctx context.Context, col *Collection) error) error {
	return col.client.Transaction(ctx, func(ctx context.Context) error {
		return fn(ctx, col)
	})
}

func (col *Collection) chunks(docs []Document) [][]Document {
	size := col.client.batchSize
	var out [][]Document
	for start := 0; start < len(docs); start += size {
		end := min(start+size, len(docs))
		out = append(out, docs[start:end])
	}
	return out
}

func prepareInsert(doc Document) (Document, error) {
	stored := make(Document, len(doc)+1)
	for k, v := range doc {
		stored[k] = v
	}
	switch id := stored["_id"].(type) {
	case nil:
		stored["_id"] = objectid.New()
	case string:
		if id == "" {
			stored["_id"] = objectid.New()
		}
	default:
		return nil, invalidArgument("_id must be a string, got %T", id)
	}
	return stored, nil
}

// merge applies patch over cur one key deep. _id is never changed.
func merge(cur, patch Document) Document {
	out := make(Document, len(cur)+len(patch))
	for k, v := range cur {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	out["_id"] = cur["_id"]
	return out
}
