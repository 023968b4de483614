package executor

import (
	"errors"
	"fmt"

	"blockflow/internal/models"
)

// Structural validation errors. All are raised synchronously at construction;
// a workflow that fails validation never produces an Executor and never runs.
var (
	ErrEmptyWorkflow        = errors.New("workflow has no blocks")
	ErrNoStarterBlock       = errors.New("workflow must contain exactly one enabled starter block")
	ErrMultipleStarters     = errors.New("workflow contains more than one enabled starter block")
	ErrStarterHasIncoming   = errors.New("starter block must not have incoming connections")
	ErrStarterNoOutgoing    = errors.New("starter block must have at least one outgoing connection")
	ErrDanglingConnection   = errors.New("connection references a block that does not exist")
	ErrInvalidContainer     = errors.New("loop/parallel container is invalid")
	ErrInvalidBlockConfig   = errors.New("block config is invalid")
)

// validateWorkflow checks every structural invariant of the graph. It runs
// exactly once, at Executor construction, so all structural failures surface
// before any side effect occurs.
func validateWorkflow(wf *models.Workflow) error {
	if wf == nil || len(wf.Blocks) == 0 {
		return ErrEmptyWorkflow
	}

	blockIndex := make(map[string]models.Block, len(wf.Blocks))
	for _, b := range wf.Blocks {
		blockIndex[b.ID] = b
	}

	for _, c := range wf.Connections {
		if _, ok := blockIndex[c.Source]; !ok {
			return fmt.Errorf("%w: source %q", ErrDanglingConnection, c.Source)
		}
		if _, ok := blockIndex[c.Target]; !ok {
			return fmt.Errorf("%w: target %q", ErrDanglingConnection, c.Target)
		}
	}

	hasTrigger := false
	var starters []models.Block
	for _, b := range wf.Blocks {
		if !b.Enabled {
			continue
		}
		if b.Metadata.ID == models.BlockTypeStarter {
			starters = append(starters, b)
		}
		if b.IsTrigger() {
			hasTrigger = true
		}
	}

	// Trigger blocks substitute for the starter requirement entirely.
	if len(starters) == 0 && !hasTrigger {
		return ErrNoStarterBlock
	}
	if len(starters) > 1 {
		return ErrMultipleStarters
	}

	if len(starters) == 1 {
		starter := starters[0]
		outgoing := 0
		for _, c := range wf.Connections {
			if c.Target == starter.ID {
				return fmt.Errorf("%w: %q", ErrStarterHasIncoming, starter.ID)
			}
			if c.Source == starter.ID {
				outgoing++
			}
		}
		if outgoing == 0 && !hasTrigger {
			return fmt.Errorf("%w: %q", ErrStarterNoOutgoing, starter.ID)
		}
	}

	if err := validateContainers(wf, blockIndex); err != nil {
		return err
	}
	return validateBlockConfigs(wf, blockIndex)
}

// validateContainers checks loop and parallel groupings: each container key
// must match a block of the container type, members must exist, and no block
// may belong to two containers.
func validateContainers(wf *models.Workflow, blockIndex map[string]models.Block) error {
	owned := make(map[string]string) // member id → container id

	checkMembers := func(containerID string, nodes []string) error {
		if len(nodes) == 0 {
			return fmt.Errorf("%w: container %q has no member blocks", ErrInvalidContainer, containerID)
		}
		for _, id := range nodes {
			if _, ok := blockIndex[id]; !ok {
				return fmt.Errorf("%w: container %q references unknown block %q", ErrInvalidContainer, containerID, id)
			}
			if prev, taken := owned[id]; taken {
				return fmt.Errorf("%w: block %q belongs to both %q and %q", ErrInvalidContainer, id, prev, containerID)
			}
			owned[id] = containerID
		}
		return nil
	}

	for id, loop := range wf.Loops {
		b, ok := blockIndex[id]
		if !ok || b.Metadata.ID != models.BlockTypeLoop {
			return fmt.Errorf("%w: loop %q has no matching loop block", ErrInvalidContainer, id)
		}
		if loop.LoopType != "" && loop.LoopType != "for" && loop.LoopType != "forEach" {
			return fmt.Errorf("%w: loop %q has unknown loopType %q", ErrInvalidContainer, id, loop.LoopType)
		}
		if loop.LoopType == "forEach" && loop.ForEachItems == nil {
			return fmt.Errorf("%w: forEach loop %q has no forEachItems", ErrInvalidContainer, id)
		}
		if err := checkMembers(id, loop.Nodes); err != nil {
			return err
		}
	}
	for id, par := range wf.Parallels {
		b, ok := blockIndex[id]
		if !ok || b.Metadata.ID != models.BlockTypeParallel {
			return fmt.Errorf("%w: parallel %q has no matching parallel block", ErrInvalidContainer, id)
		}
		if par.ParallelType != "" && par.ParallelType != "count" && par.ParallelType != "collection" {
			return fmt.Errorf("%w: parallel %q has unknown parallelType %q", ErrInvalidContainer, id, par.ParallelType)
		}
		if par.ParallelType == "collection" && par.Distribution == nil {
			return fmt.Errorf("%w: collection parallel %q has no distribution", ErrInvalidContainer, id)
		}
		if err := checkMembers(id, par.Nodes); err != nil {
			return err
		}
	}
	return nil
}

// validateBlockConfigs type-checks the per-category param payloads up front so
// handlers never discover a malformed config mid-run.
func validateBlockConfigs(wf *models.Workflow, blockIndex map[string]models.Block) error {
	outgoingTargets := make(map[string]map[string]bool)
	for _, c := range wf.Connections {
		if outgoingTargets[c.Source] == nil {
			outgoingTargets[c.Source] = make(map[string]bool)
		}
		outgoingTargets[c.Source][c.Target] = true
	}

	for _, b := range wf.Blocks {
		if !b.Enabled {
			continue
		}
		switch b.Metadata.ID {
		case models.BlockTypeRouter:
			routes, ok := b.Config.Params["routes"].(map[string]any)
			if !ok || len(routes) == 0 {
				return fmt.Errorf("%w: router %q has no routes", ErrInvalidBlockConfig, b.ID)
			}
			for value, target := range routes {
				targetID, ok := target.(string)
				if !ok {
					return fmt.Errorf("%w: router %q route %q target must be a block id", ErrInvalidBlockConfig, b.ID, value)
				}
				if _, exists := blockIndex[targetID]; !exists {
					return fmt.Errorf("%w: router %q route %q references unknown block %q", ErrInvalidBlockConfig, b.ID, value, targetID)
				}
				if !outgoingTargets[b.ID][targetID] {
					return fmt.Errorf("%w: router %q route %q target %q is not connected", ErrInvalidBlockConfig, b.ID, value, targetID)
				}
			}
		case models.BlockTypeCondition:
			if op, present := b.Config.Params["operator"]; present {
				if _, ok := op.(string); !ok {
					return fmt.Errorf("%w: condition %q operator must be a string", ErrInvalidBlockConfig, b.ID)
				}
			}
		case models.BlockTypeWorkflow:
			if id := paramString(b.Config.Params, "workflowId", ""); id == "" {
				return fmt.Errorf("%w: workflow block %q has no workflowId", ErrInvalidBlockConfig, b.ID)
			}
		}
	}
	return nil
}
