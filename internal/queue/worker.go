package queue

import (
	"context"

	"github.com/hibiken/asynq"
)

// HandleDrainTask runs the engine for a publish:drain task. Per-item failures are recorded on
// the items themselves, so only store-level errors fail the task.
func (e *Engine) HandleDrainTask(ctx context.Context, task *asynq.Task) error {
	summary, err := e.Run(ctx)
	if err != nil {
		return err
	}
	e.logger.Info("publish drain finished",
		"mode", summary.Mode,
		"selected", summary.Selected,
		"completed", summary.Completed,
		"failed", summary.Failed,
		"exhausted", summary.Exhausted,
		"stale_reset", summary.StaleReset)
	return nil
}
