package models

const (
	KindExpense  = "expense"
	KindIncome   = "income"
	KindTransfer = "transfer"
)

type Base struct {
	ID        string `json:"_id,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

type Location struct {
	City    string   `json:"city,omitempty"`
	Country string   `json:"country,omitempty"`
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
}

type Wallet struct {
	Base
	Name     string  `json:"name"`
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency,omitempty"`
	Archived bool    `json:"archived"`
}

type Category struct {
	Base
	Name string `json:"name"`
	Kind string `json:"kind"`
	Icon string `json:"icon,omitempty"`
}

type Entry struct {
	Base
	Amount   float64   `json:"amount"`
	Kind     string    `json:"kind"`
	Date     string    `json:"date"`
	Note     string    `json:"note,omitempty"`
	Category string    `json:"category,omitempty"`
	Wallet   string    `json:"wallet"`
	ToWallet string    `json:"toWallet,omitempty"`
	Location *Location `json:"location,omitempty"`
}

type Budget struct {
	Base
	Category string  `json:"category"`
	Month    string  `json:"month"`
	Amount   float64 `json:"amount"`
}
