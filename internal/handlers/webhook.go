package handlers

import (
	"encoding/json"
	"log"

	"github.com/gofiber/fiber/v2"

	"blockflow/internal/models"
)

// Webhook handles POST /api/webhooks/:workflowId: it starts the workflow from
// its webhook trigger block with the request payload as workflow input.
func (h *ExecutionHandler) Webhook(c *fiber.Ctx) error {
	workflowID := c.Params("workflowId")
	wf, ok := h.store.Get(workflowID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Workflow not found"})
	}

	trigger, ok := findTriggerBlock(wf, models.BlockTypeWebhookTrigger)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Workflow has no webhook trigger"})
	}

	var body any
	if len(c.Body()) > 0 {
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			body = string(c.Body())
		}
	}
	headers := make(map[string]any)
	for k, values := range c.GetReqHeaders() {
		if len(values) > 0 {
			headers[k] = values[0]
		}
	}
	query := make(map[string]any)
	for k, v := range c.Queries() {
		query[k] = v
	}

	log.Printf("🪝 [WEBHOOK] Triggering workflow '%s' via block '%s'", workflowID, trigger.ID)
	return h.startRun(c, wf, &ExecuteRequest{
		Input: map[string]any{
			"body":    body,
			"headers": headers,
			"query":   query,
			"method":  c.Method(),
		},
		StartBlockID: trigger.ID,
	}, "webhook")
}

func findTriggerBlock(wf *models.Workflow, blockType string) (models.Block, bool) {
	for _, b := range wf.Blocks {
		if b.Enabled && b.Metadata.ID == blockType {
			return b, true
		}
	}
	return models.Block{}, false
}
