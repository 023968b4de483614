package handlers

import (
	"github.com/gofiber/fiber/v2"

	"blockflow/internal/models"
	"blockflow/internal/registry"
)

// WorkflowHandler serves workflow definition CRUD and the block catalog.
type WorkflowHandler struct {
	store   *registry.WorkflowStore
	schemas *registry.SchemaRegistry
}

func NewWorkflowHandler(store *registry.WorkflowStore, schemas *registry.SchemaRegistry) *WorkflowHandler {
	return &WorkflowHandler{store: store, schemas: schemas}
}

// Save handles POST /api/workflows.
func (h *WorkflowHandler) Save(c *fiber.Ctx) error {
	var wf models.Workflow
	if err := c.BodyParser(&wf); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid workflow JSON"})
	}
	if err := h.store.Save(&wf); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"id": wf.ID, "version": wf.Version})
}

// List handles GET /api/workflows.
func (h *WorkflowHandler) List(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"workflows": h.store.List()})
}

// Get handles GET /api/workflows/:id.
func (h *WorkflowHandler) Get(c *fiber.Ctx) error {
	wf, ok := h.store.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Workflow not found"})
	}
	return c.JSON(wf)
}

// Delete handles DELETE /api/workflows/:id.
func (h *WorkflowHandler) Delete(c *fiber.Ctx) error {
	if !h.store.Delete(c.Params("id")) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Workflow not found"})
	}
	return c.JSON(fiber.Map{"deleted": true})
}

// BlockTypes handles GET /api/blocks: the declared block catalog.
func (h *WorkflowHandler) BlockTypes(c *fiber.Ctx) error {
	types := h.schemas.Types()
	catalog := make(map[string]any, len(types))
	for _, t := range types {
		schema, _ := h.schemas.Schema(t)
		catalog[t] = fiber.Map{"subBlocks": schema.SubBlocks, "outputs": schema.Outputs}
	}
	return c.JSON(fiber.Map{"blocks": catalog})
}
