// Package snapshot exports every collection to a JSON file and restores
// collections from one.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"nosqlite/internal/engine"
	"nosqlite/internal/metadata"
)

var ErrNotFound = errors.New("snapshot not found")

// Meta describes one snapshot file.
type Meta struct {
	ID          string         `json:"id"`
	CreatedAt   time.Time      `json:"createdAt"`
	Collections map[string]int `json:"collections"`
}

type file struct {
	Meta
	Data map[string][]engine.Document `json:"data"`
}

// Manager writes snapshots of the given models to dir and keeps the newest
// keep of them (all of them when keep <= 0).
type Manager struct {
	client *engine.Client
	models []*metadata.Model
	files  *fileStore
	keep   int
	log    *zap.Logger
	now    func() time.Time
}

func New(client *engine.Client, dir string, keep int, log *zap.Logger, models ...*metadata.Model) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{client: client, models: models, files: &fileStore{dir: dir}, keep: keep, log: log, now: time.Now}
}

// Export reads every collection in _id order and writes them to a new
// snapshot, then prunes old ones.
func (m *Manager) Export(ctx context.Context) (*Meta, error) {
	snap := file{
		Meta: Meta{ID: uuid.NewString(), CreatedAt: m.now().UTC(), Collections: map[string]int{}},
		Data: map[string][]engine.Document{},
	}
	for _, model := range m.models {
		docs, err := m.client.Collection(model).Find(nil).Sort(bson.D{engine.Asc("_id")}).Exec(ctx)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", model.Table, err)
		}
		snap.Data[model.Table] = docs
		snap.Collections[model.Table] = len(docs)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	path, err := m.files.Save(snap.ID, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	m.log.Info("snapshot written", zap.String("id", snap.ID), zap.String("path", path))

	if _, err := m.Prune(); err != nil {
		m.log.Warn("snapshot prune failed", zap.Error(err))
	}
	return &snap.Meta, nil
}

// List returns the stored snapshots, newest first.
func (m *Manager) List() ([]Meta, error) {
	ids, err := m.files.IDs()
	if err != nil {
		return nil, err
	}
	metas := make([]Meta, 0, len(ids))
	for _, id := range ids {
		snap, err := m.read(id)
		if err != nil {
			m.log.Warn("skipping unreadable snapshot", zap.String("id", id), zap.Error(err))
			continue
		}
		metas = append(metas, snap.Meta)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].CreatedAt.After(metas[j].CreatedAt) })
	return metas, nil
}

// Restore replaces the content of every collection in the snapshot inside
// one transaction. Collections missing from the snapshot are left alone.
func (m *Manager) Restore(ctx context.Context, id string) (*Meta, error) {
	snap, err := m.read(id)
	if err != nil {
		return nil, err
	}

	err = m.client.Transaction(ctx, func(ctx context.Context) error {
		for _, table := range sortedTables(snap.Data) {
			col, err := m.client.CollectionFor(table)
			if err != nil {
				return err
			}
			if _, err := col.DeleteMany(ctx, nil); err != nil {
				return err
			}
			if docs := snap.Data[table]; len(docs) > 0 {
				if _, err := col.InsertMany(ctx, docs); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("restore %s: %w", id, err)
	}
	m.log.Info("snapshot restored", zap.String("id", id))
	return &snap.Meta, nil
}

// Prune deletes all but the newest keep snapshots and returns how many it
// removed.
func (m *Manager) Prune() (int, error) {
	if m.keep <= 0 {
		return 0, nil
	}
	metas, err := m.List()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, meta := range metas[min(m.keep, len(metas)):] {
		if err := m.files.Delete(meta.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (m *Manager) read(id string) (*file, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r, err := m.files.Open(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	defer r.Close()

	var snap file
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", id, err)
	}
	if snap.Data == nil {
		snap.Data = map[string][]engine.Document{}
	}
	return &snap, nil
}

func sortedTables(data map[string][]engine.Document) []string {
	tables := make([]string, 0, len(data))
	for t := range data {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}
