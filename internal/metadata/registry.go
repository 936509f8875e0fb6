package metadata

import "sync"

// Registry records the declared models of a process and indexes them by
// type name and by physical table name.
type Registry struct {
	mu      sync.RWMutex
	models  map[string]*Model // keyed by type name
	byTable map[string]*Model
}

func NewRegistry() *Registry {
	return &Registry{
		models:  make(map[string]*Model),
		byTable: make(map[string]*Model),
	}
}

// ModelOption configures a model the first time it is created.
type ModelOption func(*Model)

// Extends makes every field of parent visible on the model.
func Extends(parent *Model) ModelOption {
	return func(m *Model) { m.Parent = parent }
}

// Define creates (or returns) the named model and declares the given fields on
// it. parent may be nil.
func (r *Registry) Define(name string, parent *Model, fields ...Field) *Model {
	var opts []ModelOption
	if parent != nil {
		opts = append(opts, Extends(parent))
	}
	m := r.model(name, opts)
	for _, f := range fields {
		m.setField(f)
	}
	return m
}

// DeclareField registers f on the named model, creating the model on first use.
// Declaring the same field name twice keeps the last declaration.
func (r *Registry) DeclareField(name string, f Field, opts ...ModelOption) *Model {
	m := r.model(name, opts)
	m.setField(f)
	return m
}

func (r *Registry) model(name string, opts []ModelOption) *Model {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.models[name]; ok {
		return m
	}
	m := &Model{Name: name, Table: TableName(name)}
	for _, opt := range opts {
		opt(m)
	}
	r.models[name] = m
	r.byTable[m.Table] = m
	return m
}

// LookupByTable resolves a physical table name to its model.
func (r *Registry) LookupByTable(table string) (*Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byTable[table]
	return m, ok
}

// AllModels returns all registered models.
func (r *Registry) AllModels() []*Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	models := make([]*Model, 0, len(r.models))
	for _, m := range r.models {
		models = append(models, m)
	}
	return models
}
