package engine

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Filter is a MongoDB-style predicate: {field: value}, {field: {"$op": value}},
// or {"$or"/"$and": [Filter, ...]}. Nested operands may be Filter, bson.M,
// map[string]any or bson.D.
//
// Values are rendered as escaped SQL literals. Field names are emitted as
// identifiers and must come from code, never from user input; anything that
// is not a plain (optionally dotted) identifier is rejected.
type Filter = bson.M

// DateLayout is the text form of date fields (UTC, millisecond precision).
const DateLayout = "2006-01-02T15:04:05.000Z07:00"

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

var comparisonOps = map[string]string{
	"$eq":  "=",
	"$ne":  "!=",
	"$gt":  ">",
	"$gte": ">=",
	"$lt":  "<",
	"$lte": "<=",
}

// CompileFilter translates f into SQL boolean clauses to be joined with AND.
// A top-level $or/$and yields a single parenthesised clause. Keys are
// compiled in sorted order.
func CompileFilter(f map[string]any) ([]string, error) {
	var clauses []string
	for _, key := range sortedKeys(f) {
		val := f[key]

		if key == "$or" || key == "$and" {
			clause, err := compileLogical(key, val)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, clause)
			continue
		}
		if strings.HasPrefix(key, "$") {
			return nil, invalidQuery("unsupported operator: %s", key)
		}

		col, err := column(key)
		if err != nil {
			return nil, err
		}

		ops, isOps := asMap(val)
		if !isOps {
			if err := checkScalar(key, val); err != nil {
				return nil, err
			}
			clauses = append(clauses, equality(col, val, false))
			continue
		}
		if len(ops) == 0 {
			return nil, invalidQuery("empty operator object for field %s", key)
		}
		for _, op := range sortedKeys(ops) {
			clause, err := compileOperator(col, op, ops[op])
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, clause)
		}
	}
	return clauses, nil
}

func compileLogical(key string, val any) (string, error) {
	operands, ok := asSlice(val)
	if !ok {
		return "", invalidQuery("%s requires an array of filters", key)
	}
	if len(operands) == 0 {
		return "", invalidQuery("%s requires a non-empty array", key)
	}

	parts := make([]string, 0, len(operands))
	for i, operand := range operands {
		sub, ok := asMap(operand)
		if !ok {
			return "", invalidQuery("%s operand %d is not a filter object", key, i)
		}
		clauses, err := CompileFilter(sub)
		if err != nil {
			return "", err
		}
		if len(clauses) == 0 {
			parts = append(parts, "(1=1)")
			continue
		}
		parts = append(parts, "("+strings.Join(clauses, " AND ")+")")
	}

	joiner := " OR "
	if key == "$and" {
		joiner = " AND "
	}
	return "(" + strings.Join(parts, joiner) + ")", nil
}

func compileOperator(col, op string, val any) (string, error) {
	switch op {
	case "$eq", "$ne", "$gt", "$gte", "$lt", "$lte":
		if err := checkScalar(op, val); err != nil {
			return "", err
		}
	}

	switch op {
	case "$eq":
		return equality(col, val, false), nil
	case "$ne":
		return equality(col, val, true), nil
	case "$gt", "$gte", "$lt", "$lte":
		return fmt.Sprintf("%s %s %s", col, comparisonOps[op], Literal(val)), nil
	case "$in", "$nin":
		items, ok := asSlice(val)
		if !ok {
			return "", invalidQuery("%s requires an array", op)
		}
		if len(items) == 0 {
			return "", invalidQuery("%s requires a non-empty array", op)
		}
		lits := make([]string, len(items))
		for i, item := range items {
			if err := checkScalar(op, item); err != nil {
				return "", err
			}
			lits[i] = Literal(item)
		}
		sqlOp := "IN"
		if op == "$nin" {
			sqlOp = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", col, sqlOp, strings.Join(lits, ", ")), nil
	case "$regex":
		// LIKE, not a regex engine: callers supply % and _ wildcards
		pattern, ok := val.(string)
		if !ok {
			pattern = fmt.Sprint(val)
		}
		return fmt.Sprintf("%s LIKE %s", col, quote(pattern)), nil
	default:
		return "", invalidQuery("unsupported operator: %s", op)
	}
}

func equality(col string, val any, negate bool) string {
	if val == nil {
		if negate {
			return col + " IS NOT NULL"
		}
		return col + " IS NULL"
	}
	if negate {
		return fmt.Sprintf("%s != %s", col, Literal(val))
	}
	return fmt.Sprintf("%s = %s", col, Literal(val))
}

// Literal renders v as an SQL literal: quoted strings with ' doubled,
// booleans as 1/0, nil as NULL, numbers verbatim.
func Literal(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return quote(val)
	case bool:
		if val {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.Number:
		return val.String()
	case time.Time:
		return quote(val.UTC().Format(DateLayout))
	case primitive.ObjectID:
		return quote(val.Hex())
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64)
	case reflect.Bool:
		if rv.Bool() {
			return "1"
		}
		return "0"
	case reflect.String:
		return quote(rv.String())
	default:
		return quote(fmt.Sprint(v))
	}
}

// checkScalar rejects arrays, objects and other composite operands where a
// single comparable value is expected.
func checkScalar(where string, v any) error {
	switch v.(type) {
	case nil, string, bool, json.Number, time.Time, primitive.ObjectID:
		return nil
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Bool, reflect.String:
		return nil
	}
	return invalidQuery("%s expects a scalar value, got %T", where, v)
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// column validates a field path and returns its physical column name.
func column(field string) (string, error) {
	if !identPattern.MatchString(field) {
		return "", invalidQuery("invalid field name: %q", field)
	}
	return strings.ReplaceAll(field, ".", "_"), nil
}

func asMap(v any) (map[string]any, bool) {
	switch val := v.(type) {
	case bson.M:
		return val, true
	case map[string]any:
		return val, true
	case bson.D:
		return val.Map(), true
	default:
		return nil, false
	}
}

func asSlice(v any) ([]any, bool) {
	switch val := v.(type) {
	case []any:
		return val, true
	case bson.A:
		return val, true
	case nil, string, []byte, primitive.ObjectID:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
