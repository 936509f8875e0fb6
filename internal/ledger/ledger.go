// Package ledger implements the wallet bookkeeping built on the document
// store: recording entries, transfers and period summaries.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"nosqlite/internal/engine"
	"nosqlite/internal/models"
	"nosqlite/internal/store"
)

var (
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrSameWallet        = errors.New("source and destination wallet are the same")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnknownKind       = errors.New("entry kind must be income or expense")
)

type Service struct {
	client     *engine.Client
	wallets    *engine.Collection
	categories *engine.Collection
	entries    *engine.Collection
	log        *zap.Logger
	now        func() time.Time
}

func New(client *engine.Client, set *models.Set, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		client:     client,
		wallets:    client.Collection(set.Wallet),
		categories: client.Collection(set.Category),
		entries:    client.Collection(set.Entry),
		log:        log,
		now:        time.Now,
	}
}

func (s *Service) timestamp() string {
	return s.now().UTC().Format(engine.DateLayout)
}

// Record stores an income or expense entry and applies it to the wallet
// balance in one transaction.
func (s *Service) Record(ctx context.Context, e models.Entry) (*models.Entry, error) {
	if e.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	sign := 1.0
	switch e.Kind {
	case models.KindIncome:
	case models.KindExpense:
		sign = -1
	default:
		return nil, ErrUnknownKind
	}
	if e.Date == "" {
		e.Date = s.timestamp()
	}
	e.CreatedAt = s.timestamp()

	var stored engine.Document
	err := s.client.Transaction(ctx, func(ctx context.Context) error {
		if _, err := s.adjust(ctx, e.Wallet, sign*e.Amount, false); err != nil {
			return err
		}
		doc, err := engine.ToDocument(e)
		if err != nil {
			return err
		}
		stored, err = s.entries.InsertOne(ctx, doc)
		return err
	})
	if err != nil {
		return nil, err
	}
	return decodeOne[models.Entry](stored)
}

// TransferRequest moves Amount from one wallet to another.
type TransferRequest struct {
	From   string
	To     string
	Amount float64
	Note   string
	Date   time.Time
}

// Transfer debits From, credits To and records a transfer entry, all inside
// one transaction. The source wallet may not go negative.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (*models.Entry, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.From == req.To {
		return nil, ErrSameWallet
	}
	date := req.Date
	if date.IsZero() {
		date = s.now()
	}

	var stored engine.Document
	err := s.client.Transaction(ctx, func(ctx context.Context) error {
		if _, err := s.adjust(ctx, req.From, -req.Amount, true); err != nil {
			return err
		}
		if _, err := s.adjust(ctx, req.To, req.Amount, false); err != nil {
			return err
		}
		var err error
		stored, err = s.entries.InsertOne(ctx, engine.Document{
			"amount":    req.Amount,
			"kind":      models.KindTransfer,
			"date":      date.UTC().Format(engine.DateLayout),
			"note":      req.Note,
			"wallet":    req.From,
			"toWallet":  req.To,
			"createdAt": s.timestamp(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("transfer recorded",
		zap.String("from", req.From), zap.String("to", req.To), zap.Float64("amount", req.Amount))
	return decodeOne[models.Entry](stored)
}

func (s *Service) adjust(ctx context.Context, walletID string, delta float64, mustCover bool) (engine.Document, error) {
	doc, err := s.wallets.FindByID(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("wallet %s: %w", walletID, store.ErrNotFound)
	}
	wallets, err := engine.DecodeAs[models.Wallet](doc)
	if err != nil {
		return nil, err
	}
	balance := wallets[0].Balance + delta
	if mustCover && balance < 0 {
		return nil, fmt.Errorf("wallet %s: %w", walletID, ErrInsufficientFunds)
	}
	return s.wallets.UpdateOne(ctx, engine.Filter{"_id": walletID}, engine.Document{
		"balance":   balance,
		"updatedAt": s.timestamp(),
	})
}

func decodeOne[T any](doc engine.Document) (*T, error) {
	out, err := engine.DecodeAs[T](doc)
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}
