package api

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"nosqlite/internal/engine"
	"nosqlite/internal/models"
)

// Handler serves CRUD over every registered collection at /api/:model.
type Handler struct {
	client   *engine.Client
	rules    *Rules
	includes map[string]map[string]engine.Lookup // table -> include name -> lookup
	log      *zap.Logger
	now      func() time.Time
}

func NewHandler(client *engine.Client, rules *Rules, includes map[string]map[string]engine.Lookup, log *zap.Logger) *Handler {
	if rules == nil {
		rules = NewRules()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{client: client, rules: rules, includes: includes, log: log, now: time.Now}
}

// DefaultIncludes returns the lookups reachable through ?include= for the
// expense-book models.
func DefaultIncludes(set *models.Set) map[string]map[string]engine.Lookup {
	categoryDoc := engine.Lookup{
		From: set.Category.Table, LocalField: "category", ForeignField: "_id",
		As: "categoryDoc", Fields: []string{"name", "kind", "icon"}, Unwind: true,
	}
	entries := func(foreign string) engine.Lookup {
		return engine.Lookup{
			From: set.Entry.Table, LocalField: "_id", ForeignField: foreign,
			As: "entries", Fields: []string{"_id", "amount", "kind", "date", "note"},
		}
	}
	return map[string]map[string]engine.Lookup{
		set.Entry.Table: {
			"categoryDoc": categoryDoc,
			"walletDoc": {
				From: set.Wallet.Table, LocalField: "wallet", ForeignField: "_id",
				As: "walletDoc", Fields: []string{"name", "currency"}, Unwind: true,
			},
		},
		set.Budget.Table:   {"categoryDoc": categoryDoc},
		set.Wallet.Table:   {"entries": entries("wallet")},
		set.Category.Table: {"entries": entries("category")},
	}
}

// List handles GET /api/:model
func (h *Handler) List(c *fiber.Ctx) error {
	col, err := h.resolveCollection(c)
	if err != nil {
		return err
	}
	table := col.Model().Table

	params, err := parseListParams(c, col.Model(), h.includes[table])
	if err != nil {
		return err
	}

	q := col.Find(params.Filter)
	for _, lk := range params.Includes {
		q.Lookup(lk)
	}
	page, err := q.Paginate(c.UserContext(), engine.PageOptions{Page: params.Page, Limit: params.PerPage, Sort: params.Sort})
	if err != nil {
		return err
	}

	docs := page.Docs
	if docs == nil {
		docs = []engine.Document{}
	}
	return c.JSON(fiber.Map{
		"data": docs,
		"meta": fiber.Map{
			"page":        page.Page,
			"per_page":    page.Limit,
			"total":       page.TotalDocs,
			"total_pages": page.TotalPage,
		},
	})
}

// GetByID handles GET /api/:model/:id
func (h *Handler) GetByID(c *fiber.Ctx) error {
	col, err := h.resolveCollection(c)
	if err != nil {
		return err
	}
	id := c.Params("id")

	q := col.Find(engine.Filter{"_id": id})
	for _, name := range splitAndTrim(c.Query("include")) {
		lk, ok := h.includes[col.Model().Table][name]
		if !ok {
			return NewAppError("UNKNOWN_FIELD", fiber.StatusBadRequest, "Unknown include: "+name)
		}
		q.Lookup(lk)
	}

	doc, err := q.First(c.UserContext())
	if err != nil {
		return err
	}
	if doc == nil {
		return NotFoundError(col.Model().Table, id)
	}
	return c.JSON(fiber.Map{"data": doc})
}

// Create handles POST /api/:model
func (h *Handler) Create(c *fiber.Ctx) error {
	col, err := h.resolveCollection(c)
	if err != nil {
		return err
	}

	var body map[string]any
	if err := c.BodyParser(&body); err != nil || body == nil {
		return NewAppError("INVALID_PAYLOAD", fiber.StatusBadRequest, "Invalid JSON body")
	}
	h.stamp(col, body, true)
	if errs := h.rules.Validate(col.Model(), "create", body, nil); len(errs) > 0 {
		return ValidationError(errs)
	}

	doc, err := col.InsertOne(c.UserContext(), body)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": doc})
}

// Bulk handles POST /api/:model/bulk with a JSON array of documents.
func (h *Handler) Bulk(c *fiber.Ctx) error {
	col, err := h.resolveCollection(c)
	if err != nil {
		return err
	}

	var body []map[string]any
	if err := c.BodyParser(&body); err != nil || body == nil {
		return NewAppError("INVALID_PAYLOAD", fiber.StatusBadRequest, "Body must be a JSON array of documents")
	}

	docs := make([]engine.Document, len(body))
	var details []ErrorDetail
	for i, doc := range body {
		h.stamp(col, doc, true)
		for _, d := range h.rules.Validate(col.Model(), "create", doc, nil) {
			d.Field = indexedField(i, d.Field)
			details = append(details, d)
		}
		docs[i] = doc
	}
	if len(details) > 0 {
		return ValidationError(details)
	}

	stored, err := col.InsertMany(c.UserContext(), docs)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"data": stored,
		"meta": fiber.Map{"count": len(stored)},
	})
}

// Update handles PATCH /api/:model/:id. The body is shallow-merged into the
// stored document.
func (h *Handler) Update(c *fiber.Ctx) error {
	col, err := h.resolveCollection(c)
	if err != nil {
		return err
	}
	id := c.Params("id")

	current, err := col.FindByID(c.UserContext(), id)
	if err != nil {
		return err
	}
	if current == nil {
		return NotFoundError(col.Model().Table, id)
	}

	var patch map[string]any
	if err := c.BodyParser(&patch); err != nil || patch == nil {
		return NewAppError("INVALID_PAYLOAD", fiber.StatusBadRequest, "Invalid JSON body")
	}
	delete(patch, "_id")
	h.stamp(col, patch, false)

	preview := make(map[string]any, len(current)+len(patch))
	for k, v := range current {
		preview[k] = v
	}
	for k, v := range patch {
		preview[k] = v
	}
	if errs := h.rules.Validate(col.Model(), "update", preview, current); len(errs) > 0 {
		return ValidationError(errs)
	}

	doc, err := col.UpdateOne(c.UserContext(), engine.Filter{"_id": id}, patch)
	if err != nil {
		return err
	}
	if doc == nil {
		return NotFoundError(col.Model().Table, id)
	}
	return c.JSON(fiber.Map{"data": doc})
}

// Delete handles DELETE /api/:model/:id
func (h *Handler) Delete(c *fiber.Ctx) error {
	col, err := h.resolveCollection(c)
	if err != nil {
		return err
	}
	id := c.Params("id")

	doc, err := col.DeleteOne(c.UserContext(), engine.Filter{"_id": id})
	if err != nil {
		return err
	}
	if doc == nil {
		return NotFoundError(col.Model().Table, id)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"_id": id}})
}

func (h *Handler) resolveCollection(c *fiber.Ctx) (*engine.Collection, error) {
	return h.client.CollectionFor(c.Params("model"))
}

// stamp fills declared defaults on create and sets createdAt/updatedAt on
// models that declare them.
func (h *Handler) stamp(col *engine.Collection, doc map[string]any, create bool) {
	now := h.now().UTC().Format(engine.DateLayout)
	m := col.Model()
	if create {
		for _, f := range m.Fields() {
			if _, ok := doc[f.Name]; !ok && f.Default != nil {
				doc[f.Name] = f.Default
			}
		}
	}
	if create && m.HasField("createdAt") {
		if _, ok := doc["createdAt"]; !ok {
			doc["createdAt"] = now
		}
	}
	if m.HasField("updatedAt") {
		doc["updatedAt"] = now
	}
}

func indexedField(i int, field string) string {
	if field == "" {
		return fmt.Sprintf("[%d]", i)
	}
	return fmt.Sprintf("[%d].%s", i, field)
}
