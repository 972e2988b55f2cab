// Package platform holds the publishing targets: their structural constraints (Catalog) and
// the adapters that push normalized content to each external API.
package platform

import (
	"context"
	"fmt"
	"sort"
	"unicode/utf8"
)

// Content is the normalized payload every adapter accepts.
type Content struct {
	Text  string
	Media []string
}

// Result is what an adapter reports back. Ordinary remote failures are results, not errors.
type Result struct {
	Success        bool   `json:"success"`
	ExternalPostID string `json:"external_post_id,omitempty"`
	URL            string `json:"url,omitempty"`
	Error          string `json:"error,omitempty"`
}

func Succeeded(externalID string) Result {
	return Result{Success: true, ExternalPostID: externalID}
}

func Failed(format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

type Adapter interface {
	Platform() string
	Publish(ctx context.Context, content Content) Result
}

// Registry maps platform keys to adapters. It is built once at startup.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Platform()] = a
	}
	return r
}

func (r *Registry) Get(platform string) (Adapter, bool) {
	if r == nil {
		return nil, false
	}
	a, ok := r.adapters[platform]
	return a, ok
}

func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Wrap returns a registry whose adapters are decorated by fn.
func (r *Registry) Wrap(fn func(Adapter) Adapter) *Registry {
	wrapped := &Registry{adapters: make(map[string]Adapter, len(r.adapters))}
	for k, a := range r.adapters {
		wrapped.adapters[k] = fn(a)
	}
	return wrapped
}

// Truncate cuts text to limit runes, ending in "..." when it had to cut.
func Truncate(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	if limit <= 3 {
		return string([]rune(text)[:limit])
	}
	runes := []rune(text)
	return string(runes[:limit-3]) + "..."
}

type dryRun struct {
	platform string
}

// DryRun wraps an adapter so publishing never leaves the process.
func DryRun(a Adapter) Adapter {
	return dryRun{platform: a.Platform()}
}

func (d dryRun) Platform() string { return d.platform }

func (d dryRun) Publish(ctx context.Context, content Content) Result {
	return Succeeded("dry-run-" + d.platform)
}

type unavailable struct {
	spec Spec
}

// Unavailable is registered for catalog platforms that have no live integration.
func Unavailable(spec Spec) Adapter {
	return unavailable{spec: spec}
}

func (u unavailable) Platform() string { return u.spec.Key }

func (u unavailable) Publish(ctx context.Context, content Content) Result {
	return Failed("%s is not connected", u.spec.Name)
}
