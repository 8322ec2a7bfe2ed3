package executor

import (
	"context"
	"fmt"

	"github.com/pipeboard/automation/pkg/utils"
)

// MoveStageExecutor moves the run's lead to a pipeline stage
type MoveStageExecutor struct {
	board Board
}

// NewMoveStageExecutor creates a move_stage executor
func NewMoveStageExecutor(b Board) *MoveStageExecutor {
	return &MoveStageExecutor{board: b}
}

// Execute moves the lead identified by the run context
func (e *MoveStageExecutor) Execute(ctx context.Context, req Request) (map[string]interface{}, error) {
	if e.board == nil {
		return nil, Errorf(ErrKindConfig, "no board collaborator configured")
	}

	leadID := stringAt(req.Context, "lead.id")
	if leadID == "" {
		return nil, Errorf(ErrKindConfig, "run context has no lead.id to move")
	}

	if err := e.board.MoveStage(ctx, req.TenantID, leadID, req.Config.TargetStage); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, Errorf(ErrKindTimeout, "move_stage timed out: %v", err)
		}
		return nil, Errorf(ErrKindCollaborator, "move_stage failed: %v", err)
	}

	return map[string]interface{}{
		"lead": map[string]interface{}{
			"id":    leadID,
			"stage": req.Config.TargetStage,
		},
	}, nil
}

// MoveSectorExecutor moves the run's client to a service sector
type MoveSectorExecutor struct {
	board Board
}

// NewMoveSectorExecutor creates a move_sector executor
func NewMoveSectorExecutor(b Board) *MoveSectorExecutor {
	return &MoveSectorExecutor{board: b}
}

// Execute moves the client identified by the run context
func (e *MoveSectorExecutor) Execute(ctx context.Context, req Request) (map[string]interface{}, error) {
	if e.board == nil {
		return nil, Errorf(ErrKindConfig, "no board collaborator configured")
	}

	clientID := stringAt(req.Context, "client.id")
	if clientID == "" {
		return nil, Errorf(ErrKindConfig, "run context has no client.id to move")
	}

	if err := e.board.MoveSector(ctx, req.TenantID, clientID, req.Config.TargetSector); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, Errorf(ErrKindTimeout, "move_sector timed out: %v", err)
		}
		return nil, Errorf(ErrKindCollaborator, "move_sector failed: %v", err)
	}

	return map[string]interface{}{
		"client": map[string]interface{}{
			"id":     clientID,
			"sector": req.Config.TargetSector,
		},
	}, nil
}

func stringAt(m map[string]interface{}, path string) string {
	if v := utils.GetNestedValue(m, path); v != nil {
		return fmt.Sprintf("%v", v)
	}
	return ""
}
