package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/connorpauley-png/content-command-sub001/internal/api/handlers"
	"github.com/connorpauley-png/content-command-sub001/internal/api/middleware"
	"github.com/connorpauley-png/content-command-sub001/internal/lifecycle"
	"github.com/connorpauley-png/content-command-sub001/internal/models"
	"github.com/connorpauley-png/content-command-sub001/internal/platform"
	"github.com/connorpauley-png/content-command-sub001/internal/queue"
	"github.com/connorpauley-png/content-command-sub001/internal/scheduler"
	"github.com/connorpauley-png/content-command-sub001/internal/service"
	"github.com/connorpauley-png/content-command-sub001/internal/testsupport"
	"github.com/connorpauley-png/content-command-sub001/internal/transfer"
	"github.com/connorpauley-png/content-command-sub001/internal/validation"
	"github.com/connorpauley-png/content-command-sub001/pkg/utils"
)

const (
	secretKey     = "jwt-secret"
	cronSecret    = "cron-secret"
	webhookSecret = "hook-secret"
)

var t0 = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

type testApp struct {
	app      *fiber.App
	store    *testsupport.MemStore
	facebook *testsupport.ScriptedAdapter
	tasks    *testsupport.RecordingEnqueuer
}

func newTestApp(t *testing.T, async bool) *testApp {
	t.Helper()
	catalog := platform.DefaultCatalog()
	clk := testsupport.NewFakeClock(t0)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ta := &testApp{
		store:    testsupport.NewMemStore(),
		facebook: testsupport.NewScriptedAdapter(platform.Facebook),
		tasks:    &testsupport.RecordingEnqueuer{},
	}

	gate := validation.New(catalog, "", nil)
	machine := lifecycle.Machine{RequiresMedia: catalog.RequiresMedia, PhotoSourceFor: catalog.PhotoSourceFor}
	posts := service.NewPostService(service.PostDeps{
		Store:   ta.store,
		Catalog: catalog,
		Machine: machine,
		Gate:    gate,
		Tasks:   ta.tasks,
		Clock:   clk,
		Logger:  logger,
	}, service.PostOptions{})
	engine := queue.NewEngine(queue.Deps{
		Store:    ta.store,
		Adapters: platform.NewRegistry(ta.facebook),
		Gate:     gate,
		Machine:  machine,
		Clock:    clk,
		Logger:   logger,
	}, queue.Options{})

	var drainTasks queue.Enqueuer
	if async {
		drainTasks = ta.tasks
	}

	ta.app = NewApp(false)
	Register(ta.app, Handlers{
		Auth:       middleware.NewAuthMiddleware(secretKey, cronSecret),
		Publish:    handlers.NewPublishHandler(engine, drainTasks, service.NewHealthService(ta.store, clk, "queue", false), time.Minute),
		Posts:      handlers.NewPostHandler(posts),
		Validation: handlers.NewValidationHandler(gate),
		Schedule:   handlers.NewScheduleHandler(service.NewScheduleService(ta.store, posts, clk, scheduler.Options{}, logger)),
		Platform:   handlers.NewPlatformHandler(service.NewPlatformService(ta.store, nil, platform.StaticCredentials{}), posts, nil, webhookSecret),
	})
	return ta
}

func (ta *testApp) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestAuthRequired(t *testing.T) {
	ta := newTestApp(t, false)

	if resp := ta.do(t, http.MethodGet, "/api/posts", "", nil); resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("no token: status %d", resp.StatusCode)
	}
	if resp := ta.do(t, http.MethodGet, "/api/posts", "not-a-jwt", nil); resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("bad token: status %d", resp.StatusCode)
	}
	if resp := ta.do(t, http.MethodGet, "/api/posts", cronSecret, nil); resp.StatusCode != fiber.StatusOK {
		t.Fatalf("cron secret: status %d", resp.StatusCode)
	}

	token, err := utils.GenerateToken(secretKey, "operator", "admin", time.Hour, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if resp := ta.do(t, http.MethodGet, "/api/posts", token, nil); resp.StatusCode != fiber.StatusOK {
		t.Fatalf("jwt: status %d", resp.StatusCode)
	}

	other, err := utils.GenerateToken("another-key", "operator", "admin", time.Hour, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if resp := ta.do(t, http.MethodGet, "/api/posts", other, nil); resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("foreign jwt: status %d", resp.StatusCode)
	}
}

func TestPostWorkflowOverHTTP(t *testing.T) {
	ta := newTestApp(t, false)

	resp := ta.do(t, http.MethodPost, "/api/posts", cronSecret, transfer.PostCreation{
		Content:   "Fresh mulch and a trimmed hedge on Elm Street.",
		Platforms: []string{platform.Facebook, platform.Instagram},
	})
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("create: status %d", resp.StatusCode)
	}
	var created models.Post
	decode(t, resp, &created)
	if created.Status != models.PostStatusIdea {
		t.Fatalf("created status = %s", created.Status)
	}

	resp = ta.do(t, http.MethodPost, "/api/posts/"+created.ID+"/actions", cronSecret, transfer.WorkflowAction{Action: transfer.ActionApproveTextOnly})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("approve: status %d", resp.StatusCode)
	}
	var approved models.Post
	decode(t, resp, &approved)
	if approved.Status != models.PostStatusApproved {
		t.Fatalf("approved status = %s", approved.Status)
	}
	if len(approved.Platforms) != 1 || approved.Platforms[0] != platform.Facebook {
		t.Fatalf("platforms = %v, want media-only platforms dropped", approved.Platforms)
	}

	resp = ta.do(t, http.MethodPost, "/api/posts/"+created.ID+"/actions", cronSecret, transfer.WorkflowAction{Action: transfer.ActionApproveIdea})
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("approve idea twice: status %d", resp.StatusCode)
	}

	resp = ta.do(t, http.MethodPost, "/api/posts/"+created.ID+"/actions", cronSecret, transfer.WorkflowAction{Action: "publish_now"})
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("unknown action: status %d", resp.StatusCode)
	}

	resp = ta.do(t, http.MethodGet, "/api/posts/missing", cronSecret, nil)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("missing post: status %d", resp.StatusCode)
	}
}

func TestCreatePostRejectsEmptyContent(t *testing.T) {
	ta := newTestApp(t, false)
	resp := ta.do(t, http.MethodPost, "/api/posts", cronSecret, transfer.PostCreation{Content: "  ", Platforms: []string{platform.Facebook}})
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestValidateDraft(t *testing.T) {
	ta := newTestApp(t, false)

	resp := ta.do(t, http.MethodPost, "/api/validate", cronSecret, transfer.ValidationRequest{
		Content:   "Before and after \U0001F525",
		Platforms: []string{platform.Facebook},
	})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var out transfer.ValidationResponse
	decode(t, resp, &out)
	if out.Valid {
		t.Fatal("draft with an emoji passed validation")
	}
	if len(out.Errors) != 1 || out.Errors[0].Code != validation.CodeEmoji {
		t.Fatalf("errors = %+v", out.Errors)
	}
}

func TestMatchPhotos(t *testing.T) {
	ta := newTestApp(t, false)

	resp := ta.do(t, http.MethodPost, "/api/match", cronSecret, map[string]any{
		"photos": []map[string]any{
			{"id": "before", "fingerprint": "brick house left fence oak tree", "messy": 8, "clean": 1},
			{"id": "after", "fingerprint": "brick house left fence oak tree trimmed", "messy": 1, "clean": 9},
		},
	})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var out transfer.MatchResponse
	decode(t, resp, &out)
	if len(out.Pairs) != 1 || out.Pairs[0].Before.ID != "before" || out.Pairs[0].Caption == "" {
		t.Fatalf("pairs = %+v", out.Pairs)
	}
}

func TestPublishSync(t *testing.T) {
	ta := newTestApp(t, false)

	at := t0.Add(-time.Minute)
	ta.store.AddPost(models.Post{
		ID:          "p1",
		Content:     "Spring cleanup wrapped on Oak Avenue.",
		Platforms:   []string{platform.Facebook},
		Status:      models.PostStatusApproved,
		ScheduledAt: &at,
	})
	ta.store.AddQueueItem(models.QueueItem{
		ID:          "p1-facebook",
		PostID:      "p1",
		Platform:    platform.Facebook,
		Content:     "Spring cleanup wrapped on Oak Avenue.",
		State:       models.QueueStatePending,
		MaxAttempts: 3,
		ScheduledAt: at,
	})

	resp := ta.do(t, http.MethodGet, "/api/cron/publish", cronSecret, nil)
	var health service.Health
	decode(t, resp, &health)
	if health.DuePosts != 1 || health.Status != "ok" {
		t.Fatalf("health = %+v", health)
	}

	resp = ta.do(t, http.MethodPost, "/api/cron/publish", cronSecret, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("publish: status %d", resp.StatusCode)
	}
	var summary queue.RunSummary
	decode(t, resp, &summary)
	if summary.Completed != 1 || summary.Posts["p1"] != models.PostStatusPosted {
		t.Fatalf("summary = %+v", summary)
	}
	if len(ta.facebook.Calls()) != 1 {
		t.Fatalf("facebook calls = %d", len(ta.facebook.Calls()))
	}
}

func TestPublishAsyncEnqueuesDrain(t *testing.T) {
	ta := newTestApp(t, true)

	resp := ta.do(t, http.MethodPost, "/api/cron/publish", cronSecret, nil)
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status %d", resp.StatusCode)
	}
	tasks := ta.tasks.Tasks()
	if len(tasks) != 1 || tasks[0].Type != queue.TaskTypePublishDrain {
		t.Fatalf("tasks = %+v", tasks)
	}
	if len(ta.facebook.Calls()) != 0 {
		t.Fatal("engine ran inline while a worker is configured")
	}
}

func TestAstriaCallbackSecret(t *testing.T) {
	ta := newTestApp(t, false)

	resp := ta.do(t, http.MethodPost, "/webhooks/astria?secret=wrong", "", map[string]any{"prompt": map[string]any{"id": 1}})
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status %d", resp.StatusCode)
	}
}
