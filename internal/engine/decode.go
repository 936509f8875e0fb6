package engine

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"nosqlite/internal/metadata"
)

// Document is one stored record. Numbers decode as float64.
type Document map[string]any

// ID returns the document's _id, or "" if it has none.
func (d Document) ID() string {
	id, _ := d["_id"].(string)
	return id
}

// DecodeRow turns a result row into a document. The data column, when
// present, is the base. Text values that look like JSON arrays or objects are
// parsed. Lookup columns are re-nested (or unwound to their first element),
// and columns of an embedded field, e.g. location_city, are placed at their
// nested path.
func DecodeRow(model *metadata.Model, lookups []Lookup, row map[string]any) (Document, error) {
	doc := Document{}
	if raw, ok := row["data"]; ok && raw != nil {
		text, ok := asText(raw)
		if !ok {
			return nil, fmt.Errorf("decode data column: unexpected %T", raw)
		}
		if err := json.Unmarshal([]byte(text), &doc); err != nil {
			return nil, fmt.Errorf("decode data column: %w", err)
		}
	}

	for key, val := range row {
		if key == "data" {
			continue
		}
		val = parseJSONText(val)

		if lk, ok := findLookup(lookups, key); ok {
			doc[key] = decodeLookup(lk, val)
			continue
		}
		if model != nil && placeNested(doc, model, key, val) {
			continue
		}
		doc[key] = val
	}
	return doc, nil
}

func decodeLookup(lk Lookup, val any) any {
	items, _ := val.([]any)
	for i, item := range items {
		if m, ok := item.(map[string]any); ok {
			items[i] = renest(m)
		}
	}
	if lk.Unwind {
		if len(items) == 0 {
			return nil
		}
		return items[0]
	}
	if items == nil {
		items = []any{}
	}
	return items
}

// placeNested stores val under the nested path of an embedded-model column.
// It reports false if key does not start with an embedded field name.
func placeNested(dst map[string]any, model *metadata.Model, key string, val any) bool {
	head, rest, ok := strings.Cut(key, "_")
	if !ok || head == "" || rest == "" {
		return false
	}
	f, ok := model.Field(head)
	if !ok || !f.IsNested() {
		return false
	}
	sub, ok := dst[head].(map[string]any)
	if !ok {
		sub = map[string]any{}
		dst[head] = sub
	}
	if !placeNested(sub, f.Ref, rest, val) {
		sub[rest] = val
	}
	return true
}

// renest rebuilds nested objects from the flat keys of a lookup row by
// splitting each key at its first underscore. Keys with a leading underscore
// (_id) stay whole. A branch is split again only while one of its string
// values contains an underscore, so a field name containing "_" can be split
// wrongly; lookups on such models should list Fields explicitly.
func renest(m map[string]any) map[string]any {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(m))
	branches := map[string]bool{}
	for _, k := range keys {
		head, rest, ok := strings.Cut(k, "_")
		if !ok || head == "" || rest == "" {
			out[k] = m[k]
			continue
		}
		branch, isBranch := out[head].(map[string]any)
		if !isBranch || !branches[head] {
			if _, taken := out[head]; taken {
				out[k] = m[k]
				continue
			}
			branch = map[string]any{}
			out[head] = branch
			branches[head] = true
		}
		branch[rest] = m[k]
	}

	for head := range branches {
		branch := out[head].(map[string]any)
		if hasUnderscoreValue(branch) {
			out[head] = renest(branch)
		}
	}
	return out
}

func hasUnderscoreValue(m map[string]any) bool {
	for _, v := range m {
		if s, ok := v.(string); ok && strings.Contains(s, "_") {
			return true
		}
	}
	return false
}

func parseJSONText(v any) any {
	text, ok := asText(v)
	if !ok {
		return v
	}
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "[") && !strings.HasPrefix(trimmed, "{") {
		return text
	}
	var parsed any
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return text
	}
	return parsed
}

func asText(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case []byte:
		return string(val), true
	default:
		return "", false
	}
}

func findLookup(lookups []Lookup, as string) (Lookup, bool) {
	for _, lk := range lookups {
		if lk.As == as {
			return lk, true
		}
	}
	return Lookup{}, false
}
