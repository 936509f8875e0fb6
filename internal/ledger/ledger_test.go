package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nosqlite/internal/config"
	"nosqlite/internal/engine"
	"nosqlite/internal/metadata"
	"nosqlite/internal/models"
	"nosqlite/internal/store"
)

func newService(t *testing.T) (*Service, *engine.Client) {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Name: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	reg := metadata.NewRegistry()
	set := models.Register(reg)
	client, err := engine.Init(ctx, s, s.Dialect, reg, engine.Options{}, set.Stored()...)
	require.NoError(t, err)

	svc := New(client, set, nil)
	svc.now = func() time.Time { return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC) }
	return svc, client
}

func seedWallet(t *testing.T, svc *Service, id string, balance float64) {
	t.Helper()
	_, err := svc.wallets.InsertOne(context.Background(), engine.Document{"_id": id, "name": id, "balance": balance})
	require.NoError(t, err)
}

func balance(t *testing.T, svc *Service, id string) float64 {
	t.Helper()
	doc, err := svc.wallets.FindByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, doc)
	return doc["balance"].(float64)
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	seedWallet(t, svc, "cash", 100)
	seedWallet(t, svc, "bank", 10)

	entry, err := svc.Transfer(ctx, TransferRequest{From: "cash", To: "bank", Amount: 40, Note: "deposit"})
	require.NoError(t, err)
	assert.Equal(t, models.KindTransfer, entry.Kind)
	assert.Equal(t, "bank", entry.ToWallet)
	assert.Equal(t, "2024-03-15T12:00:00.000Z", entry.Date)
	assert.NotEmpty(t, entry.ID)

	assert.Equal(t, 60.0, balance(t, svc, "cash"))
	assert.Equal(t, 50.0, balance(t, svc, "bank"))
}

func TestTransfer_FailureRollsBack(t *testing.T) {
	ctx := context.Background()
	svc, client := newService(t)
	seedWallet(t, svc, "cash", 100)

	_, err := svc.Transfer(ctx, TransferRequest{From: "cash", To: "missing", Amount: 40})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 100.0, balance(t, svc, "cash"), "debit was rolled back")
	assert.False(t, client.InTransaction())

	n, err := svc.entries.Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = svc.Transfer(ctx, TransferRequest{From: "cash", To: "missing", Amount: 400})
	assert.True(t, errors.Is(err, ErrInsufficientFunds))
}

func TestTransfer_Validation(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Transfer(context.Background(), TransferRequest{From: "a", To: "b", Amount: 0})
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = svc.Transfer(context.Background(), TransferRequest{From: "a", To: "a", Amount: 1})
	assert.ErrorIs(t, err, ErrSameWallet)
}

func TestRecordAndSummary(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	seedWallet(t, svc, "cash", 0)

	for _, c := range []engine.Document{
		{"_id": "food", "name": "Food", "kind": models.KindExpense},
		{"_id": "salary", "name": "Salary", "kind": models.KindIncome},
	} {
		_, err := svc.categories.InsertOne(ctx, c)
		require.NoError(t, err)
	}

	record := func(kind, category, date string, amount float64) {
		t.Helper()
		_, err := svc.Record(ctx, models.Entry{Kind: kind, Category: category, Date: date, Amount: amount, Wallet: "cash"})
		require.NoError(t, err)
	}
	record(models.KindIncome, "salary", "2024-03-01T09:00:00.000Z", 1000)
	record(models.KindExpense, "food", "2024-03-02T12:00:00.000Z", 12.5)
	record(models.KindExpense, "food", "2024-03-20T12:00:00.000Z", 7.5)
	record(models.KindExpense, "", "2024-03-21T12:00:00.000Z", 30)
	record(models.KindExpense, "food", "2024-04-01T00:00:00.000Z", 99) // next month

	_, err := svc.Record(ctx, models.Entry{Kind: "gift", Amount: 1, Wallet: "cash"})
	assert.ErrorIs(t, err, ErrUnknownKind)

	assert.Equal(t, 1000-12.5-7.5-30-99, balance(t, svc, "cash"))

	march := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	sum, err := svc.Summary(ctx, march, march.AddDate(0, 1, 0), "")
	require.NoError(t, err)

	assert.Equal(t, 1000.0, sum.Income)
	assert.Equal(t, 50.0, sum.Expense)
	assert.Equal(t, 950.0, sum.Net)
	assert.Equal(t, []CategoryTotal{
		{Category: "salary", Name: "Salary", Kind: models.KindIncome, Total: 1000, Count: 1},
		{Category: "", Name: "", Kind: models.KindExpense, Total: 30, Count: 1},
		{Category: "food", Name: "Food", Kind: models.KindExpense, Total: 20, Count: 2},
	}, sum.ByCategory)

	other, err := svc.Summary(ctx, march, march.AddDate(0, 1, 0), "bank")
	require.NoError(t, err)
	assert.Zero(t, other.Income)
	assert.Empty(t, other.ByCategory)
}
