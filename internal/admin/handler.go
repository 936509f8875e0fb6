// Package admin serves read access to the registered schema and lets an
// operator re-run the additive migration of a model.
package admin

import (
	"sort"

	"github.com/gofiber/fiber/v2"

	"nosqlite/internal/engine"
	"nosqlite/internal/metadata"
	"nosqlite/internal/store"
)

type Handler struct {
	client *engine.Client
}

func NewHandler(client *engine.Client) *Handler {
	return &Handler{client: client}
}

// RegisterAdminRoutes mounts the schema routes on router, which is expected
// to be the authenticated /api group. It must run before the generic
// /:model routes.
func RegisterAdminRoutes(router fiber.Router, h *Handler) {
	admin := router.Group("/_schema")

	admin.Get("/", h.ListModels)
	admin.Get("/:table", h.GetModel)
	admin.Post("/:table/migrate", h.Migrate)
}

type modelInfo struct {
	Name    string            `json:"name"`
	Table   string            `json:"table"`
	Parent  string            `json:"parent,omitempty"`
	Fields  []fieldInfo       `json:"fields"`
	Columns []metadata.Column `json:"columns,omitempty"`
	DDL     string            `json:"ddl,omitempty"`
}

type fieldInfo struct {
	metadata.Field
	Model string `json:"model,omitempty"` // embedded model name
}

// ListModels handles GET /api/_schema
func (h *Handler) ListModels(c *fiber.Ctx) error {
	models := h.client.Registry().AllModels()
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	out := make([]modelInfo, 0, len(models))
	for _, m := range models {
		out = append(out, describe(m, false, nil))
	}
	return c.JSON(fiber.Map{"data": out})
}

// GetModel handles GET /api/_schema/:table, including the generated columns
// and the CREATE TABLE statement the migrator would issue.
func (h *Handler) GetModel(c *fiber.Ctx) error {
	m, err := h.lookup(c.Params("table"))
	if err != nil {
		return err
	}
	mig := store.NewMigrator(nil, h.client.Dialect(), nil)
	return c.JSON(fiber.Map{"data": describe(m, true, mig)})
}

// Migrate handles POST /api/_schema/:table/migrate
func (h *Handler) Migrate(c *fiber.Ctx) error {
	m, err := h.lookup(c.Params("table"))
	if err != nil {
		return err
	}
	if err := h.client.Migrate(c.UserContext(), m); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"table": m.Table, "columns": len(m.Columns())}})
}

// lookup resolves any registered model, migrated or not, so that a newly
// declared model can be migrated from here.
func (h *Handler) lookup(table string) (*metadata.Model, error) {
	m, ok := h.client.Registry().LookupByTable(table)
	if !ok {
		return nil, &engine.Error{Code: engine.ErrUnknownModel.Code, Message: "unknown model table: " + table}
	}
	return m, nil
}

func describe(m *metadata.Model, detail bool, mig *store.Migrator) modelInfo {
	info := modelInfo{Name: m.Name, Table: m.Table}
	if m.Parent != nil {
		info.Parent = m.Parent.Name
	}
	for _, f := range m.Fields() {
		fi := fieldInfo{Field: f}
		if f.IsNested() {
			fi.Model = f.Ref.Name
		}
		info.Fields = append(info.Fields, fi)
	}
	if detail {
		info.Columns = m.Columns()
		info.DDL = mig.CreateTableSQL(m)
	}
	return info
}
