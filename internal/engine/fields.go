package engine

import (
	"strings"

	"nosqlite/internal/metadata"
)

// ExpandSelect maps requested field names to physical column names. Dotted
// paths become underscore-joined columns; a field that embeds another model
// expands to all of its leaf columns. model may be nil.
func ExpandSelect(model *metadata.Model, fields ...string) []string {
	var cols []string
	for _, f := range fields {
		if strings.Contains(f, ".") {
			cols = append(cols, strings.ReplaceAll(f, ".", "_"))
			continue
		}
		if model == nil {
			cols = append(cols, f)
			continue
		}
		cols = append(cols, model.LeafNames(f)...)
	}
	return cols
}
