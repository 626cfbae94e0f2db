package store

import (
	"context"
	"encoding/json"
	"fmt"

	"autoengineer/internal/tools"
)

// Record stores a registry execution result. It implements tools.Recorder.
func (s *ToolStore) Record(ctx context.Context, result *tools.ToolResult, args map[string]any) error {
	input, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode input for %s: %w", result.ToolName, err)
	}

	exec := ToolExecution{
		SessionID:  result.SessionID,
		ToolName:   result.ToolName,
		Input:      string(input),
		Result:     result.Result,
		Success:    result.IsSuccess(),
		DurationMs: result.DurationMs,
	}
	if result.Error != nil {
		exec.Error = result.Error.Error()
	}

	_, err = s.Store(ctx, exec)
	return err
}

var _ tools.Recorder = (*ToolStore)(nil)
