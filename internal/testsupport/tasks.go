package testsupport

import (
	"sync"
	"time"

	"github.com/hibiken/asynq"
)

// EnqueuedTask is one task handed to a RecordingEnqueuer.
type EnqueuedTask struct {
	Type    string
	Payload []byte
	Opts    []asynq.Option
}

// RecordingEnqueuer stands in for *asynq.Client.
type RecordingEnqueuer struct {
	Err error

	mu    sync.Mutex
	tasks []EnqueuedTask
}

func (e *RecordingEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks = append(e.tasks, EnqueuedTask{Type: task.Type(), Payload: task.Payload(), Opts: opts})
	return &asynq.TaskInfo{Type: task.Type(), Payload: task.Payload()}, nil
}

func (e *RecordingEnqueuer) Tasks() []EnqueuedTask {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]EnqueuedTask(nil), e.tasks...)
}

// ProcessIn returns the asynq.ProcessIn delay among opts.
func ProcessIn(opts []asynq.Option) (time.Duration, bool) {
	for _, o := range opts {
		if o.Type() == asynq.ProcessInOpt {
			d, ok := o.Value().(time.Duration)
			return d, ok
		}
	}
	return 0, false
}
