package api

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"nosqlite/internal/metadata"
	"nosqlite/internal/models"
)

// Rule is an expr-lang expression that flags a violation when it evaluates
// to true. The environment holds record (the document after the write), old
// (the stored document, nil on create) and action ("create" or "update").
type Rule struct {
	Field      string
	Expression string
	Message    string
	// OnlyOn limits the rule to one action; empty means both.
	OnlyOn string

	program *vm.Program
}

// Rules holds the write rules of each table.
type Rules struct {
	byTable map[string][]*Rule
}

func NewRules() *Rules {
	return &Rules{byTable: map[string][]*Rule{}}
}

// Add compiles rule and attaches it to table.
func (r *Rules) Add(table string, rule Rule) error {
	prog, err := expr.Compile(rule.Expression, expr.AsBool())
	if err != nil {
		return fmt.Errorf("compile rule %q: %w", rule.Expression, err)
	}
	rule.program = prog
	r.byTable[table] = append(r.byTable[table], &rule)
	return nil
}

// DefaultRules returns the bookkeeping rules of the expense-book models.
func DefaultRules(set *models.Set) (*Rules, error) {
	r := NewRules()
	defs := []struct {
		table string
		rule  Rule
	}{
		{set.Entry.Table, Rule{Field: "amount", Expression: `"amount" in record && record.amount <= 0`, Message: "amount must be positive"}},
		{set.Entry.Table, Rule{Field: "toWallet", Expression: `record.kind == "transfer" && (record.toWallet ?? "") == ""`, Message: "transfer entries need a destination wallet"}},
		{set.Entry.Table, Rule{Field: "toWallet", Expression: `record.kind == "transfer" && record.toWallet == record.wallet`, Message: "cannot transfer to the same wallet"}},
		{set.Budget.Table, Rule{Field: "amount", Expression: `"amount" in record && record.amount < 0`, Message: "budget amount cannot be negative"}},
		{set.Budget.Table, Rule{Field: "month", Expression: `"month" in record && !(record.month matches "^[0-9]{4}-(0[1-9]|1[0-2])$")`, Message: "month must be YYYY-MM"}},
		{set.Wallet.Table, Rule{Field: "currency", Expression: `old != nil && "currency" in old && old.currency != record.currency`, Message: "wallet currency cannot change", OnlyOn: "update"}},
	}
	for _, d := range defs {
		if err := r.Add(d.table, d.rule); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Validate checks record against the model's declared fields (required on
// create, kinds and enums) and then the table's expression rules.
func (r *Rules) Validate(model *metadata.Model, action string, record, old map[string]any) []ErrorDetail {
	if errs := validateFields(model, "", record, action == "create"); len(errs) > 0 {
		return errs
	}

	env := map[string]any{"record": record, "old": old, "action": action}
	var errs []ErrorDetail
	for _, rule := range r.byTable[model.Table] {
		if rule.OnlyOn != "" && rule.OnlyOn != action {
			continue
		}
		if detail := evaluate(rule, env); detail != nil {
			errs = append(errs, *detail)
		}
	}
	return errs
}

func evaluate(rule *Rule, env map[string]any) *ErrorDetail {
	result, err := expr.Run(rule.program, env)
	if err != nil {
		return &ErrorDetail{Field: rule.Field, Rule: "expression", Message: fmt.Sprintf("rule evaluation error: %v", err)}
	}
	if violated, _ := result.(bool); violated {
		return &ErrorDetail{Field: rule.Field, Rule: "expression", Message: rule.Message}
	}
	return nil
}

func validateFields(model *metadata.Model, prefix string, record map[string]any, isCreate bool) []ErrorDetail {
	var errs []ErrorDetail
	for _, f := range model.Fields() {
		name := prefix + f.Name
		val, present := record[f.Name]
		if !present || val == nil {
			if isCreate && f.Required {
				errs = append(errs, ErrorDetail{Field: name, Rule: "required", Message: fmt.Sprintf("%s is required", name)})
			}
			continue
		}

		if f.IsNested() {
			sub, ok := val.(map[string]any)
			if !ok {
				errs = append(errs, kindError(name, "an object"))
				continue
			}
			errs = append(errs, validateFields(f.Ref, name+".", sub, isCreate)...)
			continue
		}

		switch f.Kind {
		case metadata.KindNumber:
			if _, ok := val.(float64); !ok {
				errs = append(errs, kindError(name, "a number"))
			}
		case metadata.KindBoolean:
			if _, ok := val.(bool); !ok {
				errs = append(errs, kindError(name, "a boolean"))
			}
		case metadata.KindString, metadata.KindDate:
			s, ok := val.(string)
			if !ok {
				errs = append(errs, kindError(name, "a string"))
				continue
			}
			if len(f.Enum) > 0 && !contains(f.Enum, s) {
				errs = append(errs, ErrorDetail{Field: name, Rule: "enum", Message: fmt.Sprintf("%s must be one of %v", name, f.Enum)})
			}
		}
	}
	return errs
}

func kindError(field, want string) ErrorDetail {
	return ErrorDetail{Field: field, Rule: "kind", Message: fmt.Sprintf("%s must be %s", field, want)}
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}
