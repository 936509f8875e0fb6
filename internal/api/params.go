package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson"

	"nosqlite/internal/engine"
	"nosqlite/internal/metadata"
)

const (
	defaultPerPage = 25
	maxPerPage     = 100
)

var filterOps = map[string]string{
	"eq":   "$eq",
	"ne":   "$ne",
	"gt":   "$gt",
	"gte":  "$gte",
	"lt":   "$lt",
	"lte":  "$lte",
	"in":   "$in",
	"nin":  "$nin",
	"like": "$regex",
}

type listParams struct {
	Filter   engine.Filter
	Sort     bson.D
	Page     int
	PerPage  int
	Includes []engine.Lookup
}

// parseListParams reads filter={json}, filter[field.op]=value, sort=-date,amount,
// page, per_page and include=a,b. Every field must be declared on the model.
func parseListParams(c *fiber.Ctx, model *metadata.Model, includes map[string]engine.Lookup) (*listParams, error) {
	p := &listParams{Filter: engine.Filter{}, Page: 1, PerPage: defaultPerPage}

	if raw := c.Query("filter"); raw != "" {
		var f map[string]any
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			return nil, NewAppError("INVALID_PAYLOAD", fiber.StatusBadRequest, "filter must be a JSON object")
		}
		if err := checkFilterFields(model, f); err != nil {
			return nil, err
		}
		for k, v := range f {
			p.Filter[k] = v
		}
	}

	for key, val := range c.Queries() {
		if !strings.HasPrefix(key, "filter[") || !strings.HasSuffix(key, "]") {
			continue
		}
		field, op := parseFilterKey(key[len("filter[") : len(key)-1])
		kind, ok := fieldKind(model, field)
		if !ok {
			return nil, UnknownFieldError(field)
		}
		coerced, err := coerceValue(kind, val, op)
		if err != nil {
			return nil, NewAppError("INVALID_PAYLOAD", fiber.StatusBadRequest,
				fmt.Sprintf("Invalid filter value for %s: %v", field, err))
		}
		ops, _ := p.Filter[field].(engine.Filter)
		if ops == nil {
			ops = engine.Filter{}
			p.Filter[field] = ops
		}
		ops[filterOps[op]] = coerced
	}

	if raw := c.Query("sort"); raw != "" {
		for _, part := range splitAndTrim(raw) {
			dir := 1
			field := part
			if strings.HasPrefix(part, "-") {
				dir = -1
				field = part[1:]
			}
			if _, ok := fieldKind(model, field); !ok {
				return nil, UnknownFieldError(field)
			}
			p.Sort = append(p.Sort, bson.E{Key: field, Value: dir})
		}
	}

	if v, err := strconv.Atoi(c.Query("page")); err == nil && v > 0 {
		p.Page = v
	}
	if v, err := strconv.Atoi(c.Query("per_page")); err == nil && v > 0 {
		p.PerPage = min(v, maxPerPage)
	}

	for _, name := range splitAndTrim(c.Query("include")) {
		lk, ok := includes[name]
		if !ok {
			return nil, NewAppError("UNKNOWN_FIELD", fiber.StatusBadRequest, fmt.Sprintf("Unknown include: %s", name))
		}
		p.Includes = append(p.Includes, lk)
	}
	return p, nil
}

// parseFilterKey splits "amount.gte" into ("amount", "gte"). A suffix that is
// not an operator belongs to the path: "location.city" is ("location.city", "eq").
func parseFilterKey(key string) (string, string) {
	if i := strings.LastIndex(key, "."); i >= 0 {
		if _, ok := filterOps[key[i+1:]]; ok {
			return key[:i], key[i+1:]
		}
	}
	return key, "eq"
}

// fieldKind resolves a dotted path to the kind of its leaf field. Paths
// ending on an embedded model are not filterable.
func fieldKind(model *metadata.Model, path string) (metadata.Kind, bool) {
	if path == "_id" {
		return metadata.KindString, true
	}
	segments := strings.Split(path, ".")
	m := model
	for i, seg := range segments {
		f, ok := m.Field(seg)
		if !ok {
			return "", false
		}
		if i == len(segments)-1 {
			return f.Kind, !f.IsNested()
		}
		if !f.IsNested() {
			return "", false
		}
		m = f.Ref
	}
	return "", false
}

func checkFilterFields(model *metadata.Model, f map[string]any) error {
	for key, val := range f {
		if key == "$and" || key == "$or" {
			operands, _ := val.([]any)
			for _, operand := range operands {
				if sub, ok := operand.(map[string]any); ok {
					if err := checkFilterFields(model, sub); err != nil {
						return err
					}
				}
			}
			continue
		}
		if strings.HasPrefix(key, "$") {
			continue // rejected by the compiler
		}
		if _, ok := fieldKind(model, key); !ok {
			return UnknownFieldError(key)
		}
	}
	return nil
}

func coerceValue(kind metadata.Kind, val, op string) (any, error) {
	if op == "in" || op == "nin" {
		parts := splitAndTrim(val)
		coerced := make([]any, len(parts))
		for i, p := range parts {
			v, err := coerceSingleValue(kind, p)
			if err != nil {
				return nil, err
			}
			coerced[i] = v
		}
		return coerced, nil
	}
	return coerceSingleValue(kind, val)
}

func coerceSingleValue(kind metadata.Kind, val string) (any, error) {
	switch kind {
	case metadata.KindNumber:
		return strconv.ParseFloat(val, 64)
	case metadata.KindBoolean:
		return strconv.ParseBool(val)
	default:
		return val, nil
	}
}

func splitAndTrim(s string) []string {
	var parts []string
	for _, p := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
