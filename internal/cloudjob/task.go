package cloudjob

import (
	"cloudjobs/internal/apperrors"
	"cloudjobs/internal/cloudapi"
	"context"
	"errors"
	"fmt"
)

// newWaitForTaskJob polls a provisioning task until it completes. A task the
// API does not know yet counts as pending: it may not be visible right after
// the create call that returned it.
func newWaitForTaskJob(opts Options, taskID string) *Job[*cloudapi.Task] {
	return newJob(NameWaitForTask, opts, func(ctx context.Context, c *core) (*cloudapi.Task, error) {
		op := "wait for task " + taskID
		return poll(ctx, c, op, c.opts.Budgets.Task, func(ctx context.Context) (*cloudapi.Task, bool, error) {
			task, err := c.opts.API.GetTask(ctx, c.opts.Credentials, taskID)
			if errors.Is(err, apperrors.ErrNotFound) {
				c.logger.Debug("Task not visible yet", "taskId", taskID)
				return nil, false, nil
			}
			if err != nil {
				return nil, false, err
			}
			c.logger.Debug("Task polled", "taskId", taskID, "status", task.Status)

			switch task.Status {
			case cloudapi.TaskCompleted:
				return task, true, nil
			case cloudapi.TaskError:
				return nil, false, apperrors.Unexpected(op, task.FailureReason())
			default:
				return nil, false, nil
			}
		})
	})
}

// awaitResource waits for task and returns the id of the resource it created.
// A completed task without one is a protocol error.
func awaitResource(ctx context.Context, c *core, task *cloudapi.Task, resource string) (int, error) {
	if task == nil || task.ID == "" {
		return 0, apperrors.Unexpected("create "+resource, "provisioning API returned no task")
	}
	c.logger.Info("Waiting for provisioning task", "taskId", task.ID, "resource", resource)

	done, err := runChild(ctx, c, func(o Options) *Job[*cloudapi.Task] {
		return newWaitForTaskJob(o, task.ID)
	})
	if err != nil {
		return 0, err
	}

	id, ok := done.ResourceID()
	if !ok {
		return 0, apperrors.Unexpected("create "+resource,
			fmt.Sprintf("task %s completed without a resource id", done.ID))
	}
	return id, nil
}
