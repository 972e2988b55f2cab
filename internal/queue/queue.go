package queue

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Enqueuer is the part of *asynq.Client the helpers use.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EnqueueDrain schedules one engine run. Unique keeps overlapping triggers from stacking runs.
func EnqueueDrain(client Enqueuer, unique time.Duration) error {
	opts := []asynq.Option{asynq.MaxRetry(0)}
	if unique > 0 {
		opts = append(opts, asynq.Unique(unique))
	}
	_, err := client.Enqueue(asynq.NewTask(TaskTypePublishDrain, nil), opts...)
	if err != nil {
		return err
	}
	slog.Info("publish drain enqueued")
	return nil
}

// EnqueuePost schedules queue item creation for an approved post once its slot is near.
func EnqueuePost(client Enqueuer, payload EnqueuePostPayload, delay time.Duration) error {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeEnqueuePost, taskPayload)

	_, err = client.Enqueue(task, asynq.ProcessIn(delay))
	if err != nil {
		return err
	}

	slog.Info("post enqueue scheduled", "post_id", payload.PostID, "delay", delay)
	return nil
}

// EnqueueGenerationCheck schedules a poll of an AI image job.
func EnqueueGenerationCheck(client Enqueuer, payload GenerationCheckPayload, delay time.Duration) error {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	_, err = client.Enqueue(asynq.NewTask(TaskTypeGenerationCheck, taskPayload), asynq.ProcessIn(delay), asynq.MaxRetry(3))
	if err != nil {
		return err
	}

	slog.Info("generation check scheduled", "post_id", payload.PostID, "attempt", payload.Attempt)
	return nil
}
