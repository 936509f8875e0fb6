package metadata

import (
	"strings"
	"sync"
)

// Model is the registered field schema of one document type.
type Model struct {
	Name   string
	Table  string
	Parent *Model

	mu     sync.RWMutex
	fields []Field
}

// TableName derives the physical table name from a model type name:
// a trailing "Model" suffix is dropped and the rest lower-cased.
func TableName(typeName string) string {
	name := typeName
	if len(name) > len("model") && strings.EqualFold(name[len(name)-len("model"):], "model") {
		name = name[:len(name)-len("model")]
	}
	return strings.ToLower(name)
}

// Fields returns the parent chain's fields followed by the model's own.
// A field redeclared on a descendant replaces the inherited one in place.
func (m *Model) Fields() []Field {
	var fields []Field
	if m.Parent != nil {
		fields = m.Parent.Fields()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, f := range m.fields {
		replaced := false
		for i := range fields {
			if fields[i].Name == f.Name {
				fields[i] = f
				replaced = true
				break
			}
		}
		if !replaced {
			fields = append(fields, f)
		}
	}
	return fields
}

// Field returns the field with the given name, searching the parent chain.
func (m *Model) Field(name string) (Field, bool) {
	m.mu.RLock()
	for _, f := range m.fields {
		if f.Name == name {
			m.mu.RUnlock()
			return f, true
		}
	}
	m.mu.RUnlock()
	if m.Parent != nil {
		return m.Parent.Field(name)
	}
	return Field{}, false
}

// HasField returns true if the model or one of its ancestors declares name.
func (m *Model) HasField(name string) bool {
	_, ok := m.Field(name)
	return ok
}

// FieldNames returns all field names in declaration order.
func (m *Model) FieldNames() []string {
	fields := m.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

func (m *Model) setField(f Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.fields {
		if m.fields[i].Name == f.Name {
			m.fields[i] = f
			return
		}
	}
	m.fields = append(m.fields, f)
}
