package executor

import (
	"context"
	"fmt"
	"log"
	"strings"

	"blockflow/internal/models"
)

// routerHandler evaluates a router block's input against its configured
// routes and reports the chosen target. Downstream edges to every other
// target stay pruned for the rest of the run.
type routerHandler struct{}

func (h *routerHandler) CanHandle(block models.Block) bool {
	return block.Metadata.ID == models.BlockTypeRouter
}

func (h *routerHandler) Execute(_ context.Context, block models.Block, scope *runScope) (map[string]any, error) {
	params := scope.resolvedParams(block)
	routes, _ := params["routes"].(map[string]any)
	if len(routes) == 0 {
		// Raw params fall back when the route map itself held no templates.
		routes, _ = block.Config.Params["routes"].(map[string]any)
	}

	input := strings.TrimSpace(paramString(params, "input", ""))
	if input == "" {
		input = strings.TrimSpace(paramString(params, "value", ""))
	}
	if input == "" {
		return nil, fmt.Errorf("router %s received no input to route on", block.ID)
	}

	target := matchRoute(routes, input)
	if target == "" {
		// The resolved value may already be a target block id.
		for _, t := range routes {
			if id, ok := t.(string); ok && id == input {
				target = id
				break
			}
		}
	}
	if target == "" {
		return nil, fmt.Errorf("router %s: input %q matches no route", block.ID, input)
	}

	log.Printf("🔀 [ROUTER] Block '%s' selected target '%s' for input '%s'", block.ID, target, input)
	return map[string]any{
		outputKeySelectedRoute: target,
		"input":                input,
	}, nil
}

func matchRoute(routes map[string]any, input string) string {
	if t, ok := routes[input].(string); ok {
		return t
	}
	for value, target := range routes {
		if strings.EqualFold(strings.TrimSpace(value), input) {
			if t, ok := target.(string); ok {
				return t
			}
		}
	}
	return ""
}
