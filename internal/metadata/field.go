package metadata

// Kind is the scalar kind of a declared field.
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindDate    Kind = "date" // ISO-8601 text
	KindModel   Kind = "model"
)

// Field is the declaration of one document field. Default, Enum and Required
// are carried for callers; the store does not enforce them.
type Field struct {
	Name     string   `json:"name"`
	Kind     Kind     `json:"kind"`
	Optional bool     `json:"optional,omitempty"`
	Index    bool     `json:"index,omitempty"`
	Required bool     `json:"required,omitempty"`
	Default  any      `json:"default,omitempty"`
	Enum     []string `json:"enum,omitempty"`
	Ref      *Model   `json:"-"` // embedded sub-model, Kind == KindModel
}

// IsNested reports whether the field embeds another model.
func (f Field) IsNested() bool {
	return f.Ref != nil
}

// FieldOption tweaks a field declaration.
type FieldOption func(*Field)

func Indexed() FieldOption  { return func(f *Field) { f.Index = true } }
func Required() FieldOption { return func(f *Field) { f.Required = true } }
func Optional() FieldOption { return func(f *Field) { f.Optional = true } }

func Default(v any) FieldOption {
	return func(f *Field) { f.Default = v }
}

func Enum(values ...string) FieldOption {
	return func(f *Field) { f.Enum = values }
}

func newField(name string, kind Kind, opts []FieldOption) Field {
	f := Field{Name: name, Kind: kind}
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

func String(name string, opts ...FieldOption) Field { return newField(name, KindString, opts) }
func Number(name string, opts ...FieldOption) Field { return newField(name, KindNumber, opts) }
func Bool(name string, opts ...FieldOption) Field   { return newField(name, KindBoolean, opts) }
func Date(name string, opts ...FieldOption) Field   { return newField(name, KindDate, opts) }

// Embed declares a sub-document whose leaf fields get their own generated columns.
func Embed(name string, ref *Model, opts ...FieldOption) Field {
	f := newField(name, KindModel, opts)
	f.Ref = ref
	return f
}
