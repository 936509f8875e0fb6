// Package models declares the expense-book document types.
package models

import "nosqlite/internal/metadata"

// Set holds the declared models of one registry.
type Set struct {
	Base     *metadata.Model
	Location *metadata.Model
	Wallet   *metadata.Model
	Category *metadata.Model
	Entry    *metadata.Model
	Budget   *metadata.Model
}

// Register declares every model on reg. Calling it twice on the same
// registry returns the same models.
func Register(reg *metadata.Registry) *Set {
	base := reg.Define("BaseModel", nil,
		metadata.Date("createdAt", metadata.Indexed()),
		metadata.Date("updatedAt"),
	)
	location := reg.Define("Location", nil,
		metadata.String("city"),
		metadata.String("country"),
		metadata.Number("lat", metadata.Optional()),
		metadata.Number("lng", metadata.Optional()),
	)

	return &Set{
		Base:     base,
		Location: location,
		Wallet: reg.Define("WalletModel", base,
			metadata.String("name", metadata.Indexed(), metadata.Required()),
			metadata.Number("balance", metadata.Default(0.0)),
			metadata.String("currency", metadata.Default("USD")),
			metadata.Bool("archived", metadata.Default(false)),
		),
		Category: reg.Define("CategoryModel", base,
			metadata.String("name", metadata.Indexed(), metadata.Required()),
			metadata.String("kind", metadata.Indexed(), metadata.Enum(KindExpense, KindIncome)),
			metadata.String("icon", metadata.Optional()),
		),
		Entry: reg.Define("EntryModel", base,
			metadata.Number("amount", metadata.Indexed(), metadata.Required()),
			metadata.String("kind", metadata.Indexed(), metadata.Enum(KindExpense, KindIncome, KindTransfer)),
			metadata.Date("date", metadata.Indexed(), metadata.Required()),
			metadata.String("note", metadata.Optional()),
			metadata.String("category", metadata.Indexed(), metadata.Optional()),
			metadata.String("wallet", metadata.Indexed(), metadata.Required()),
			metadata.String("toWallet", metadata.Optional()),
			metadata.Embed("location", location, metadata.Optional()),
		),
		Budget: reg.Define("BudgetModel", base,
			metadata.String("category", metadata.Indexed(), metadata.Required()),
			metadata.String("month", metadata.Indexed(), metadata.Required()), // YYYY-MM
			metadata.Number("amount", metadata.Required()),
		),
	}
}

// Stored returns the models that own a table, in migration order.
func (s *Set) Stored() []*metadata.Model {
	return []*metadata.Model{s.Wallet, s.Category, s.Entry, s.Budget}
}
