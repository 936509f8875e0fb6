package engine

import (
	"fmt"
	"strings"

	"nosqlite/internal/metadata"
	"nosqlite/internal/store"
)

// Lookup embeds rows of another table whose ForeignField equals the
// document's LocalField. The joined rows arrive under As as an array, or as
// the first row (nil when none) if Unwind is set.
type Lookup struct {
	From         string   `json:"from"`
	LocalField   string   `json:"localField"`
	ForeignField string   `json:"foreignField"`
	As           string   `json:"as"`
	Fields       []string `json:"fields,omitempty"` // defaults to _id plus every declared field
	Unwind       bool     `json:"unwind,omitempty"`
}

// lookupColumn compiles lk to a correlated subquery aggregating the joined
// rows into a JSON array. The foreign key column is left out of each row.
func lookupColumn(reg *metadata.Registry, dialect store.Dialect, table string, lk Lookup) (string, error) {
	if reg == nil {
		return "", unknownModel(lk.From)
	}
	foreign, ok := reg.LookupByTable(lk.From)
	if !ok {
		return "", unknownModel(lk.From)
	}
	if !identPattern.MatchString(lk.As) || strings.Contains(lk.As, ".") {
		return "", invalidQuery("invalid lookup alias: %q", lk.As)
	}
	local, err := column(lk.LocalField)
	if err != nil {
		return "", err
	}
	foreignCol, err := column(lk.ForeignField)
	if err != nil {
		return "", err
	}

	fields := lk.Fields
	if len(fields) == 0 {
		fields = append([]string{"_id"}, foreign.FieldNames()...)
	}

	alias := "lk_" + lk.As
	var pairs []string
	for _, col := range ExpandSelect(foreign, fields...) {
		if col == foreignCol {
			continue
		}
		if !identPattern.MatchString(col) {
			return "", invalidQuery("invalid lookup field: %q", col)
		}
		pairs = append(pairs, quote(col), alias+"."+col)
	}

	return fmt.Sprintf("(SELECT %s FROM %s AS %s WHERE %s.%s = %s.%s) AS %s",
		dialect.JSONArrayOfObjects(pairs), lk.From, alias, alias, foreignCol, table, local, lk.As), nil
}
