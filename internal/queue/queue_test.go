package queue_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/connorpauley-png/content-command-sub001/internal/queue"
	"github.com/connorpauley-png/content-command-sub001/internal/testsupport"
)

func hasOption(opts []asynq.Option, typ asynq.OptionType) bool {
	for _, o := range opts {
		if o.Type() == typ {
			return true
		}
	}
	return false
}

func TestEnqueueDrain(t *testing.T) {
	rec := &testsupport.RecordingEnqueuer{}
	if err := queue.EnqueueDrain(rec, 5*time.Minute); err != nil {
		t.Fatalf("EnqueueDrain: %v", err)
	}
	if err := queue.EnqueueDrain(rec, 0); err != nil {
		t.Fatalf("EnqueueDrain: %v", err)
	}

	tasks := rec.Tasks()
	if len(tasks) != 2 {
		t.Fatalf("tasks = %d", len(tasks))
	}
	if tasks[0].Type != queue.TaskTypePublishDrain {
		t.Fatalf("type = %s", tasks[0].Type)
	}
	if !hasOption(tasks[0].Opts, asynq.UniqueOpt) {
		t.Fatal("drain with a window should be unique")
	}
	if hasOption(tasks[1].Opts, asynq.UniqueOpt) {
		t.Fatal("drain without a window should not be unique")
	}
}

func TestEnqueuePostDelay(t *testing.T) {
	rec := &testsupport.RecordingEnqueuer{}
	if err := queue.EnqueuePost(rec, queue.EnqueuePostPayload{PostID: "p1"}, 90*time.Minute); err != nil {
		t.Fatalf("EnqueuePost: %v", err)
	}

	tasks := rec.Tasks()
	if len(tasks) != 1 || tasks[0].Type != queue.TaskTypeEnqueuePost {
		t.Fatalf("tasks = %+v", tasks)
	}
	var payload queue.EnqueuePostPayload
	if err := json.Unmarshal(tasks[0].Payload, &payload); err != nil || payload.PostID != "p1" {
		t.Fatalf("payload = %s (%v)", tasks[0].Payload, err)
	}
	if d, ok := testsupport.ProcessIn(tasks[0].Opts); !ok || d != 90*time.Minute {
		t.Fatalf("delay = %v, %v", d, ok)
	}
}

func TestEnqueueGenerationCheck(t *testing.T) {
	rec := &testsupport.RecordingEnqueuer{}
	payload := queue.GenerationCheckPayload{PostID: "p1", Attempt: 4}
	if err := queue.EnqueueGenerationCheck(rec, payload, 5*time.Second); err != nil {
		t.Fatalf("EnqueueGenerationCheck: %v", err)
	}

	tasks := rec.Tasks()
	if len(tasks) != 1 || tasks[0].Type != queue.TaskTypeGenerationCheck {
		t.Fatalf("tasks = %+v", tasks)
	}
	var got queue.GenerationCheckPayload
	if err := json.Unmarshal(tasks[0].Payload, &got); err != nil || got != payload {
		t.Fatalf("payload = %+v (%v)", got, err)
	}
	if d, _ := testsupport.ProcessIn(tasks[0].Opts); d != 5*time.Second {
		t.Fatalf("delay = %v", d)
	}
}

func TestEnqueueErrorsPropagate(t *testing.T) {
	boom := errors.New("redis down")
	rec := &testsupport.RecordingEnqueuer{Err: boom}
	if err := queue.EnqueueDrain(rec, time.Minute); !errors.Is(err, boom) {
		t.Fatalf("EnqueueDrain err = %v", err)
	}
	if err := queue.EnqueuePost(rec, queue.EnqueuePostPayload{PostID: "p1"}, time.Minute); !errors.Is(err, boom) {
		t.Fatalf("EnqueuePost err = %v", err)
	}
}
