package sandbox

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// RunBatch executes cmds concurrently, at most concurrency at a time.
// Results are returned in input order. The first rejected command or podman
// failure cancels the commands that have not started yet. A non-zero exit
// does not.
func (s *PodmanSandbox) RunBatch(ctx context.Context, cmds []Command, concurrency int) ([]*ExecutionResult, error) {
	if concurrency <= 0 {
		concurrency = 1
	}

	results := make([]*ExecutionResult, len(cmds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, cmd := range cmds {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := s.Execute(gctx, cmd)
			if err != nil {
				return fmt.Errorf("command %d (%s): %w", i, cmd.CommandString(), err)
			}
			results[i] = res
			if !res.Success {
				return fmt.Errorf("command %d (%s): %w: %s", i, cmd.CommandString(), ErrExecutionFailed, res.Error)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
