package main

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/connorpauley-png/content-command-sub001/internal/models"
	"github.com/connorpauley-png/content-command-sub001/internal/queue"
	"github.com/connorpauley-png/content-command-sub001/internal/scheduler"
	"github.com/connorpauley-png/content-command-sub001/internal/transfer"
	"github.com/connorpauley-png/content-command-sub001/pkg/utils"
)

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--env", ""}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestMatchCommandFromStdin(t *testing.T) {
	input := `{"photos":[
		{"id":"before","fingerprint":"brick house left fence oak tree","messy":8,"clean":1},
		{"id":"after","fingerprint":"brick house left fence oak tree trimmed","messy":1,"clean":9}
	]}`
	out, err := runCLI(t, input, "match", "-")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if !strings.Contains(out, "before") || !strings.Contains(out, "after") || !strings.Contains(out, "0.86") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestMatchCommandNoPairs(t *testing.T) {
	out, err := runCLI(t, `[{"id":"a","fingerprint":"red barn","messy":2}]`, "match", "-")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if !strings.Contains(out, "No before/after pairs found") {
		t.Fatalf("output = %q", out)
	}
}

func TestMatchCommandRejectsGarbage(t *testing.T) {
	if _, err := runCLI(t, "not json", "match", "-"); err == nil {
		t.Fatal("expected a decode error")
	}
}

func TestSecretCommand(t *testing.T) {
	out, err := runCLI(t, "", "secret", "--bytes", "16")
	if err != nil {
		t.Fatalf("secret: %v", err)
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(raw) != 16 {
		t.Fatalf("secret has %d bytes", len(raw))
	}
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("SECRET_KEY", "cli-secret")
	out, err := runCLI(t, "", "token", "scheduler-bot", "--ttl", "1h")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	claims, err := utils.ValidateToken("cli-secret", strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("issued token does not validate: %v", err)
	}
	if claims.Name != "scheduler-bot" || claims.Role != "operator" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestTokenCommandNeedsSecret(t *testing.T) {
	t.Setenv("SECRET_KEY", "")
	if _, err := runCLI(t, "", "token", "someone"); err == nil {
		t.Fatal("expected an error without SECRET_KEY")
	}
}

func TestRenderRunSummary(t *testing.T) {
	out := renderRunSummary(queue.RunSummary{
		Mode:      "queue",
		Selected:  3,
		Completed: 2,
		Failed:    1,
		Posts:     map[string]models.PostStatus{"p2": models.PostStatusFailed, "p1": models.PostStatusPosted},
		Errors:    []string{"x: rate limited"},
	})
	for _, want := range []string{"Completed", "posted", "failed", "error: x: rate limited"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "p1") > strings.Index(out, "p2") {
		t.Fatalf("posts are not sorted:\n%s", out)
	}
}

func TestRenderScheduleFill(t *testing.T) {
	if got := renderScheduleFill(transfer.ScheduleFillResponse{}); got != "No posts waiting for a slot" {
		t.Fatalf("empty fill = %q", got)
	}
	out := renderScheduleFill(transfer.ScheduleFillResponse{
		Assigned: []scheduler.Assignment{{PostID: "p1", AccountID: "acct", At: time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC)}},
		Skipped:  []scheduler.Skipped{{PostID: "p2", Reason: "no free slot"}},
		Enqueued: 1,
	})
	for _, want := range []string{"p1", "2026-03-02T23:00:00Z", "no free slot", "Enqueued: 1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("fill output missing %q:\n%s", want, out)
		}
	}
}
