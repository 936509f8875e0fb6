package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestCompileFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"empty", Filter{}, nil},
		{"number equality", Filter{"amount": 10}, []string{"amount = 10"}},
		{"float", Filter{"amount": 20.5}, []string{"amount = 20.5"}},
		{"quoted string", Filter{"note": "O'Brien"}, []string{"note = 'O''Brien'"}},
		{"boolean", Filter{"archived": true}, []string{"archived = 1"}},
		{"null", Filter{"note": nil}, []string{"note IS NULL"}},
		{"eq null", Filter{"note": Filter{"$eq": nil}}, []string{"note IS NULL"}},
		{"ne null", Filter{"note": Filter{"$ne": nil}}, []string{"note IS NOT NULL"}},
		{"ne value", Filter{"kind": Filter{"$ne": "income"}}, []string{"kind != 'income'"}},
		{"range", Filter{"amount": Filter{"$gte": 10, "$lt": 20.5}}, []string{"amount >= 10", "amount < 20.5"}},
		{"dotted path", Filter{"location.city": "Hanoi"}, []string{"location_city = 'Hanoi'"}},
		{"in", Filter{"kind": Filter{"$in": []string{"a", "b"}}}, []string{"kind IN ('a', 'b')"}},
		{"nin", Filter{"amount": Filter{"$nin": bson.A{1, 2}}}, []string{"amount NOT IN (1, 2)"}},
		{"regex", Filter{"note": Filter{"$regex": "%coffee%"}}, []string{"note LIKE '%coffee%'"}},
		{"regex quote", Filter{"note": Filter{"$regex": "%it's%"}}, []string{"note LIKE '%it''s%'"}},
		{
			"or",
			Filter{"$or": []Filter{{"a": 1}, {"b": 2}}},
			[]string{"((a = 1) OR (b = 2))"},
		},
		{
			"and with compound operand",
			Filter{"$and": bson.A{Filter{"a": 1, "b": 2}, map[string]any{"c": 3}}},
			[]string{"((a = 1 AND b = 2) AND (c = 3))"},
		},
		{
			"nested or inside and",
			Filter{"$and": bson.A{Filter{"$or": bson.A{Filter{"a": 1}, Filter{"a": 2}}}, Filter{"b": "x"}}},
			[]string{"((((a = 1) OR (a = 2))) AND (b = 'x'))"},
		},
		{
			"keys compile in sorted order",
			Filter{"note": "x", "amount": Filter{"$gt": 5}, "$or": bson.A{Filter{"a": 1}, Filter{"b": 2}}},
			[]string{"((a = 1) OR (b = 2))", "amount > 5", "note = 'x'"},
		},
		{"bson.D operand", Filter{"amount": bson.D{{Key: "$lte", Value: 3}}}, []string{"amount <= 3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CompileFilter(tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompileFilter_Errors(t *testing.T) {
	tests := []struct {
		name    string
		filter  Filter
		mention string
	}{
		{"empty in", Filter{"kind": Filter{"$in": []any{}}}, "$in"},
		{"empty nin", Filter{"kind": Filter{"$nin": bson.A{}}}, "$nin"},
		{"empty or", Filter{"$or": bson.A{}}, "$or"},
		{"empty and", Filter{"$and": []Filter{}}, "$and"},
		{"in without array", Filter{"kind": Filter{"$in": "a"}}, "$in"},
		{"unknown field operator", Filter{"amount": Filter{"$between": 1}}, "$between"},
		{"unknown top-level operator", Filter{"$nor": bson.A{Filter{"a": 1}}}, "$nor"},
		{"or operand not an object", Filter{"$or": bson.A{1}}, "$or"},
		{"bad field name", Filter{"amount; DROP TABLE entry": 1}, "invalid field name"},
		{"empty operator object", Filter{"amount": Filter{}}, "amount"},
		{"bare array value", Filter{"note": []any{"_id] OR 1=1 OR [_id"}}, "scalar"},
		{"bare typed slice", Filter{"note": []string{"a"}}, "scalar"},
		{"eq with array", Filter{"note": Filter{"$eq": bson.A{"x"}}}, "$eq"},
		{"ne with map", Filter{"note": Filter{"$ne": map[string]any{"x": 1}}}, "$ne"},
		{"gt with array", Filter{"amount": Filter{"$gt": []int{1}}}, "$gt"},
		{"in with nested array", Filter{"kind": Filter{"$in": bson.A{"a", bson.A{"b"}}}}, "$in"},
		{"nin with object element", Filter{"kind": Filter{"$nin": bson.A{Filter{"$gt": 1}}}}, "$nin"},
		{"struct value", Filter{"note": struct{ A string }{"x"}}, "scalar"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileFilter(tt.filter)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidQuery), "want ErrInvalidQuery, got %v", err)
			assert.Contains(t, err.Error(), tt.mention)
		})
	}
}

func TestLiteral(t *testing.T) {
	assert.Equal(t, "NULL", Literal(nil))
	assert.Equal(t, "0", Literal(false))
	assert.Equal(t, "0.1", Literal(0.1))
	assert.Equal(t, "1000000", Literal(1e6))
	assert.Equal(t, "'a''b'", Literal("a'b"))
	assert.Equal(t, "7", Literal(uint8(7)))
	assert.Equal(t, "-3", Literal(int32(-3)))
	assert.Equal(t, "'[_id] OR 1=1'", Literal([]string{"_id] OR 1=1"}))
	assert.Equal(t, "'map[a:1]'", Literal(map[string]int{"a": 1}))
}

func TestFind_ArrayValueDoesNotWidenMatch(t *testing.T) {
	_, _, entries := sqliteClient(t)
	_, err := entries.InsertMany(context.Background(), []Document{
		{"amount": 1.0, "note": "a"},
		{"amount": 2.0, "note": "b"},
	})
	require.NoError(t, err)

	_, err = entries.Find(Filter{"note": []any{"_id] OR 1=1 OR [_id"}}).Exec(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidQuery))

	n, err := entries.Find(Filter{"note": Filter{"$in": bson.A{"_id] OR 1=1 OR [_id"}}}).Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExpandSelect(t *testing.T) {
	_, _, entry := ledgerModels()

	assert.Equal(t, []string{"amount", "location_city", "location_country"}, ExpandSelect(entry, "amount", "location"))
	assert.Equal(t, []string{"location_city"}, ExpandSelect(entry, "location.city"))
	assert.Equal(t, []string{"unknown"}, ExpandSelect(entry, "unknown"))
	assert.Equal(t, []string{"a_b"}, ExpandSelect(nil, "a.b"))
}
