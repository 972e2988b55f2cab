package testsupport

import (
	"context"
	"sync"
	"time"

	"github.com/connorpauley-png/content-command-sub001/internal/platform"
)

// ScriptedAdapter replays Results in order; the last one repeats once the script runs out.
type ScriptedAdapter struct {
	Key     string
	Results []platform.Result
	// Delay blocks each call until it elapses or the context ends.
	Delay time.Duration
	// Panic makes every call panic.
	Panic bool

	mu    sync.Mutex
	calls []platform.Content
}

func NewScriptedAdapter(key string, results ...platform.Result) *ScriptedAdapter {
	return &ScriptedAdapter{Key: key, Results: results}
}

func (a *ScriptedAdapter) Platform() string { return a.Key }

func (a *ScriptedAdapter) Publish(ctx context.Context, content platform.Content) platform.Result {
	a.mu.Lock()
	n := len(a.calls)
	a.calls = append(a.calls, platform.Content{Text: content.Text, Media: append([]string(nil), content.Media...)})
	a.mu.Unlock()

	if a.Panic {
		panic("scripted adapter panic")
	}
	if a.Delay > 0 {
		select {
		case <-time.After(a.Delay):
		case <-ctx.Done():
			return platform.Failed("%v", ctx.Err())
		}
	}
	if len(a.Results) == 0 {
		return platform.Succeeded(a.Key + "-id")
	}
	if n >= len(a.Results) {
		n = len(a.Results) - 1
	}
	return a.Results[n]
}

// Calls returns the contents published so far.
func (a *ScriptedAdapter) Calls() []platform.Content {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]platform.Content(nil), a.calls...)
}

// RecordingNotifier collects notifications.
type RecordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *RecordingNotifier) Notify(ctx context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

func (n *RecordingNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}
