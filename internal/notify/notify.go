// Package notify sends reviewer notifications about publish outcomes and integrity findings.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
)

type Notifier interface {
	Notify(ctx context.Context, message string) error
}

type nop struct{}

// Nop drops every notification.
func Nop() Notifier { return nop{} }

func (nop) Notify(ctx context.Context, message string) error { return nil }

// discord message content limit
const maxContent = 2000

type webhookExecutor interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type Discord struct {
	session   webhookExecutor
	webhookID string
	token     string
	username  string
}

// NewDiscord posts through a channel webhook. It needs no bot token, only the webhook id and
// token from the webhook URL.
func NewDiscord(webhookID, token string) (*Discord, error) {
	if webhookID == "" || token == "" {
		return nil, fmt.Errorf("discord webhook id and token are required")
	}
	s, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return &Discord{session: s, webhookID: webhookID, token: token, username: "Content Command"}, nil
}

func (d *Discord) Notify(ctx context.Context, message string) error {
	if utf8.RuneCountInString(message) > maxContent {
		message = string([]rune(message)[:maxContent-3]) + "..."
	}
	_, err := d.session.WebhookExecute(d.webhookID, d.token, false, &discordgo.WebhookParams{
		Content:  message,
		Username: d.username,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	return nil
}

// FromConfig returns a Discord notifier when a webhook is configured and Nop otherwise.
func FromConfig(webhookID, token string) Notifier {
	if webhookID == "" || token == "" {
		return Nop()
	}
	d, err := NewDiscord(webhookID, token)
	if err != nil {
		slog.Warn("discord notifier disabled", "error", err)
		return Nop()
	}
	return d
}

// Logged wraps n so delivery errors are logged instead of returned to the caller.
func Logged(n Notifier, logger *slog.Logger) Notifier {
	return logged{next: n, logger: logger}
}

type logged struct {
	next   Notifier
	logger *slog.Logger
}

func (l logged) Notify(ctx context.Context, message string) error {
	if err := l.next.Notify(ctx, message); err != nil {
		l.logger.Warn("notification failed", "error", err)
	}
	return nil
}
