package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nosqlite/internal/metadata"
	"nosqlite/internal/store"
)

// DefaultBatchSize is the number of documents written per statement by the
// batch operations.
const DefaultBatchSize = 500

// Options tunes a Client. Zero values select the defaults.
type Options struct {
	Logger    *zap.Logger
	BatchSize int
}

// Client is the document store bound to one connection. Collections created
// from it share the connection and its single transaction slot.
//
// While a transaction is open, statements issued with the transaction's
// context run inside it; every other caller waits until it ends.
type Client struct {
	conn      store.Conn
	raw       store.Conn
	sem       chan struct{}
	dialect   store.Dialect
	registry  *metadata.Registry
	log       *zap.Logger
	batchSize int

	inTx atomic.Bool

	mu       sync.RWMutex
	migrated map[string]bool
}

// Init migrates the tables of models (creating them, or adding generated
// columns for newly declared fields) and returns a client over conn.
func Init(ctx context.Context, conn store.Conn, dialect store.Dialect, reg *metadata.Registry, opts Options, models ...*metadata.Model) (*Client, error) {
	c := New(conn, dialect, reg, opts)
	if err := c.Migrate(ctx, models...); err != nil {
		return nil, err
	}
	c.log.Info("document store ready", zap.String("dialect", dialect.Name()), zap.Int("models", len(models)))
	return c, nil
}

// Migrate reconciles the tables of models with their declared fields. It
// only adds tables, columns and indexes, so it is safe to call repeatedly.
func (c *Client) Migrate(ctx context.Context, models ...*metadata.Model) error {
	migrator := store.NewMigrator(c.conn, c.dialect, c.log)
	for _, m := range models {
		if err := migrator.Migrate(ctx, m); err != nil {
			return fmt.Errorf("init %s: %w", m.Name, err)
		}
		c.mu.Lock()
		c.migrated[m.Table] = true
		c.mu.Unlock()
	}
	return nil
}

// New returns a client without touching the schema.
func New(conn store.Conn, dialect store.Dialect, reg *metadata.Registry, opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	c := &Client{raw: conn, sem: make(chan struct{}, 1), migrated: map[string]bool{}, dialect: dialect, registry: reg, log: log, batchSize: batch}
	c.conn = gatedConn{client: c}
	return c
}

func (c *Client) Registry() *metadata.Registry { return c.registry }
func (c *Client) Dialect() store.Dialect       { return c.dialect }

// Collection returns the facade for model.
func (c *Client) Collection(model *metadata.Model) *Collection {
	return &Collection{client: c, model: model}
}

// CollectionFor resolves a table name through the registry. Only tables this
// client has migrated resolve; embedded and base models have no table.
func (c *Client) CollectionFor(table string) (*Collection, error) {
	m, ok := c.registry.LookupByTable(table)
	c.mu.RLock()
	migrated := c.migrated[table]
	c.mu.RUnlock()
	if !ok || !migrated {
		return nil, unknownModel(table)
	}
	return c.Collection(m), nil
}

type txKey struct{}

// owns reports whether ctx belongs to the transaction currently open on c.
func (c *Client) owns(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Client)
	return owner == c
}

// acquire takes the connection for one statement or one transaction.
// Statements inside the open transaction pass straight through.
func (c *Client) acquire(ctx context.Context) (func(), error) {
	if c.owns(ctx) {
		return func() {}, nil
	}
	select {
	case c.sem <- struct{}{}:
		return func() { <-c.sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// gatedConn serialises access to the client's connection.
type gatedConn struct {
	client *Client
}

func (g gatedConn) Execute(ctx context.Context, sqlStr string) error {
	release, err := g.client.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return g.client.raw.Execute(ctx, sqlStr)
}

func (g gatedConn) Query(ctx context.Context, sqlStr string, args ...any) ([]map[string]any, error) {
	release, err := g.client.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return g.client.raw.Query(ctx, sqlStr, args...)
}

func (g gatedConn) Run(ctx context.Context, sqlStr string, args ...any) (int64, error) {
	release, err := g.client.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()
	return g.client.raw.Run(ctx, sqlStr, args...)
}

// Query runs raw SQL on the underlying connection. Arguments are bound.
func (c *Client) Query(ctx context.Context, sqlStr string, args ...any) ([]map[string]any, error) {
	return c.conn.Query(ctx, sqlStr, args...)
}

// InTransaction reports whether a transaction is open on the connection.
func (c *Client) InTransaction() bool {
	return c.inTx.Load()
}

// Transaction runs fn between BEGIN TRANSACTION and COMMIT. If fn returns an
// error (or panics), or the commit fails, the transaction is rolled back and
// that error is returned; a failed rollback is only logged. fn must use the
// context it is given. The connection carries one transaction at a time:
// other callers wait for it to finish, and a nested call made with fn's
// context fails with ErrTransactionInProgress.
func (c *Client) Transaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if c.owns(ctx) {
		return &Error{Code: ErrTransactionInProgress.Code, Message: ErrTransactionInProgress.Message}
	}
	release, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	c.inTx.Store(true)
	defer c.inTx.Store(false)
	ctx = context.WithValue(ctx, txKey{}, c)

	log := c.log.With(zap.String("tx", uuid.NewString()))
	if _, err := c.raw.Run(ctx, "BEGIN TRANSACTION"); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	log.Debug("transaction started")

	committed := false
	defer func() {
		if committed {
			return
		}
		p := recover()
		if _, rbErr := c.raw.Run(context.WithoutCancel(ctx), "ROLLBACK"); rbErr != nil {
			log.Error("rollback failed", zap.Error(rbErr), zap.NamedError("cause", err))
		} else {
			log.Debug("transaction rolled back", zap.NamedError("cause", err))
		}
		if p != nil {
			panic(p)
		}
	}()

	if err = fn(ctx); err != nil {
		return err
	}
	if _, err = c.raw.Run(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	log.Debug("transaction committed")
	return nil
}
