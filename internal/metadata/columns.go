package metadata

import "strings"

// Column is a generated column materialised from one leaf field of the JSON blob.
type Column struct {
	Name  string `json:"name"` // underscore-joined path, e.g. location_city
	Path  string `json:"path"` // JSON path, e.g. $.location.city
	Kind  Kind   `json:"kind"`
	Index bool   `json:"index,omitempty"`
}

// Columns resolves every leaf field of the model, descending into embedded models.
func (m *Model) Columns() []Column {
	var cols []Column
	for _, f := range m.Fields() {
		if !f.IsNested() {
			cols = append(cols, Column{Name: f.Name, Path: "$." + f.Name, Kind: f.Kind, Index: f.Index})
			continue
		}
		for _, sub := range f.Ref.Columns() {
			cols = append(cols, Column{
				Name:  f.Name + "_" + sub.Name,
				Path:  "$." + f.Name + "." + strings.TrimPrefix(sub.Path, "$."),
				Kind:  sub.Kind,
				Index: f.Index || sub.Index,
			})
		}
	}
	return cols
}

// LeafNames returns the column names backing a field: the field itself for
// scalars, or every prefixed leaf of an embedded model.
func (m *Model) LeafNames(field string) []string {
	f, ok := m.Field(field)
	if !ok || !f.IsNested() {
		return []string{field}
	}
	var names []string
	for _, sub := range f.Ref.Columns() {
		names = append(names, field+"_"+sub.Name)
	}
	return names
}
