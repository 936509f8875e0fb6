package api

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"nosqlite/internal/engine"
	"nosqlite/internal/ledger"
	"nosqlite/internal/models"
	"nosqlite/internal/snapshot"
)

// LedgerHandler exposes the bookkeeping operations that touch more than one
// collection.
type LedgerHandler struct {
	ledger *ledger.Service
}

func NewLedgerHandler(svc *ledger.Service) *LedgerHandler {
	return &LedgerHandler{ledger: svc}
}

// Transfer handles POST /api/ledger/transfer
func (h *LedgerHandler) Transfer(c *fiber.Ctx) error {
	var body struct {
		From   string  `json:"from"`
		To     string  `json:"to"`
		Amount float64 `json:"amount"`
		Note   string  `json:"note"`
		Date   string  `json:"date"`
	}
	if err := c.BodyParser(&body); err != nil {
		return NewAppError("INVALID_PAYLOAD", fiber.StatusBadRequest, "Invalid JSON body")
	}
	if body.From == "" || body.To == "" {
		return ValidationError([]ErrorDetail{{Field: "from", Rule: "required", Message: "from and to are required"}})
	}

	req := ledger.TransferRequest{From: body.From, To: body.To, Amount: body.Amount, Note: body.Note}
	if body.Date != "" {
		d, err := parseDate(body.Date)
		if err != nil {
			return NewAppError("INVALID_PAYLOAD", fiber.StatusBadRequest, "date must be RFC 3339 or YYYY-MM-DD")
		}
		req.Date = d
	}

	entry, err := h.ledger.Transfer(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": entry})
}

// Record handles POST /api/ledger/entries: an income or expense entry that
// also moves the wallet balance.
func (h *LedgerHandler) Record(c *fiber.Ctx) error {
	var entry models.Entry
	if err := c.BodyParser(&entry); err != nil {
		return NewAppError("INVALID_PAYLOAD", fiber.StatusBadRequest, "Invalid JSON body")
	}
	if entry.Wallet == "" {
		return ValidationError([]ErrorDetail{{Field: "wallet", Rule: "required", Message: "wallet is required"}})
	}

	stored, err := h.ledger.Record(c.UserContext(), entry)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": stored})
}

// Summary handles GET /api/ledger/summary?from=&to=&wallet=. The range
// defaults to the current calendar month.
func (h *LedgerHandler) Summary(c *fiber.Ctx) error {
	now := time.Now().UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	if raw := c.Query("from"); raw != "" {
		d, err := parseDate(raw)
		if err != nil {
			return NewAppError("INVALID_PAYLOAD", fiber.StatusBadRequest, "from must be RFC 3339 or YYYY-MM-DD")
		}
		from = d
	}
	if raw := c.Query("to"); raw != "" {
		d, err := parseDate(raw)
		if err != nil {
			return NewAppError("INVALID_PAYLOAD", fiber.StatusBadRequest, "to must be RFC 3339 or YYYY-MM-DD")
		}
		to = d
	}

	sum, err := h.ledger.Summary(c.UserContext(), from, to, c.Query("wallet"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": sum})
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(engine.DateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

// SnapshotHandler lists, takes and restores snapshots.
type SnapshotHandler struct {
	snapshots *snapshot.Manager
}

func NewSnapshotHandler(m *snapshot.Manager) *SnapshotHandler {
	return &SnapshotHandler{snapshots: m}
}

// List handles GET /api/snapshots
func (h *SnapshotHandler) List(c *fiber.Ctx) error {
	metas, err := h.snapshots.List()
	if err != nil {
		return err
	}
	if metas == nil {
		metas = []snapshot.Meta{}
	}
	return c.JSON(fiber.Map{"data": metas})
}

// Create handles POST /api/snapshots
func (h *SnapshotHandler) Create(c *fiber.Ctx) error {
	meta, err := h.snapshots.Export(c.UserContext())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": meta})
}

// Restore handles POST /api/snapshots/:id/restore
func (h *SnapshotHandler) Restore(c *fiber.Ctx) error {
	meta, err := h.snapshots.Restore(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": meta})
}
