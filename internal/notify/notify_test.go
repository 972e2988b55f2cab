package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
)

type fakeWebhook struct {
	id, token string
	params    *discordgo.WebhookParams
	err       error
}

func (f *fakeWebhook) WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.id, f.token, f.params = webhookID, token, data
	return nil, f.err
}

func TestDiscordNotifyTruncates(t *testing.T) {
	fake := &fakeWebhook{}
	d := &Discord{session: fake, webhookID: "123", token: "abc", username: "bot"}
	if err := d.Notify(context.Background(), strings.Repeat("x", 2500)); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if fake.id != "123" || fake.token != "abc" {
		t.Fatalf("webhook = %s/%s", fake.id, fake.token)
	}
	if n := utf8.RuneCountInString(fake.params.Content); n != maxContent {
		t.Fatalf("content length = %d", n)
	}
}

func TestLoggedSwallowsErrors(t *testing.T) {
	fake := &fakeWebhook{err: errors.New("rate limited")}
	d := &Discord{session: fake, webhookID: "1", token: "t"}
	n := Logged(d, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := n.Notify(context.Background(), "hello"); err != nil {
		t.Fatalf("Logged returned %v", err)
	}
	if err := d.Notify(context.Background(), "hello"); err == nil {
		t.Fatal("expected raw error from Discord")
	}
}

func TestFromConfigWithoutWebhookIsNop(t *testing.T) {
	if _, ok := FromConfig("", "").(nop); !ok {
		t.Fatal("expected nop notifier")
	}
	if _, err := NewDiscord("", "x"); err == nil {
		t.Fatal("expected error for missing id")
	}
}
