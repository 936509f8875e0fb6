package ledger

import (
	"context"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"nosqlite/internal/engine"
	"nosqlite/internal/models"
)

type CategoryTotal struct {
	Category string  `json:"category"`
	Name     string  `json:"name"`
	Kind     string  `json:"kind"`
	Total    float64 `json:"total"`
	Count    int     `json:"count"`
}

// Summary totals income and expense entries dated in [From, To).
type Summary struct {
	From       time.Time       `json:"from"`
	To         time.Time       `json:"to"`
	Income     float64         `json:"income"`
	Expense    float64         `json:"expense"`
	Net        float64         `json:"net"`
	ByCategory []CategoryTotal `json:"byCategory"`
}

// Summary aggregates the period's income and expense entries, optionally
// restricted to one wallet. Category names come from a lookup; entries
// without a category are grouped under "".
func (s *Service) Summary(ctx context.Context, from, to time.Time, wallet string) (*Summary, error) {
	filter := engine.Filter{
		"date": engine.Filter{"$gte": from, "$lt": to},
		"kind": engine.Filter{"$in": []string{models.KindIncome, models.KindExpense}},
	}
	if wallet != "" {
		filter["wallet"] = wallet
	}

	docs, err := s.entries.Find(filter).
		Select("amount", "kind", "category").
		Lookup(engine.Lookup{
			From:         s.categories.Model().Table,
			LocalField:   "category",
			ForeignField: "_id",
			As:           "categoryDoc",
			Fields:       []string{"name"},
			Unwind:       true,
		}).
		Sort(bson.D{engine.Asc("date")}).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	sum := &Summary{From: from, To: to, ByCategory: []CategoryTotal{}}
	groups := map[string]*CategoryTotal{}
	for _, doc := range docs {
		amount, _ := doc["amount"].(float64)
		kind, _ := doc["kind"].(string)
		category, _ := doc["category"].(string)

		if kind == models.KindIncome {
			sum.Income += amount
		} else {
			sum.Expense += amount
		}

		key := kind + "/" + category
		g, ok := groups[key]
		if !ok {
			g = &CategoryTotal{Category: category, Kind: kind}
			if cat, ok := doc["categoryDoc"].(map[string]any); ok {
				g.Name, _ = cat["name"].(string)
			}
			groups[key] = g
		}
		g.Total += amount
		g.Count++
	}
	sum.Net = sum.Income - sum.Expense

	for _, g := range groups {
		sum.ByCategory = append(sum.ByCategory, *g)
	}
	sort.Slice(sum.ByCategory, func(i, j int) bool {
		a, b := sum.ByCategory[i], sum.ByCategory[j]
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		return a.Kind+a.Category < b.Kind+b.Category
	})
	return sum, nil
}
