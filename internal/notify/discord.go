package notify

import (
	"context"
	"fmt"
	"net/http"
)

// DiscordSender pushes engine events to a Discord channel webhook. Discord
// answers 204 No Content on success.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a sender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: senderTimeout},
	}
}

type discordMessage struct {
	Content string `json:"content"`
}

// Send delivers one event with the title bolded in Discord markdown.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	msg := discordMessage{Content: fmt.Sprintf("**%s**\n%s", title, message)}
	if err := postJSON(ctx, d.client, d.webhookURL, msg); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

// Name returns the sender identifier used in dispatch logs.
func (d *DiscordSender) Name() string {
	return "discord"
}
