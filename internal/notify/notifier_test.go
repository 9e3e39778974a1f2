package notify

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cycleforge/flasharb/internal/config"
	"github.com/cycleforge/flasharb/internal/domain"
)

type recordingSender struct {
	name   string
	titles []string
	err    error
}

func (s *recordingSender) Send(_ context.Context, title, _ string) error {
	s.titles = append(s.titles, title)
	return s.err
}

func (s *recordingSender) Name() string { return s.name }

func TestNotifierFiltersEvents(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, []string{domain.EventConfirmed}, slog.Default())

	require.NoError(t, n.Notify(context.Background(), domain.EventCandidateFound, "candidate", "body"))
	require.NoError(t, n.Notify(context.Background(), domain.EventConfirmed, "confirmed", "body"))

	assert.Equal(t, []string{"confirmed"}, sender.titles)
}

func TestNotifierEmptyFilterAllowsAll(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, nil, slog.Default())

	require.NoError(t, n.Notify(context.Background(), domain.EventStatus, "status", "body"))
	assert.Len(t, sender.titles, 1)
}

func TestNotifierCollectsSenderErrors(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, slog.Default())

	err := n.Notify(context.Background(), domain.EventAbandoned, "abandoned", "body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")

	// Failure of one sender must not block the other.
	assert.Len(t, good.titles, 1)
}

func TestFromConfigBuildsConfiguredChannels(t *testing.T) {
	n := FromConfig(config.NotifyConfig{
		TelegramToken:  "token",
		TelegramChatID: "chat",
	}, slog.Default())
	require.Len(t, n.senders, 1)
	assert.Equal(t, "telegram", n.senders[0].Name())

	empty := FromConfig(config.NotifyConfig{}, slog.Default())
	assert.Empty(t, empty.senders)
}

func TestChainEventsForwardsFailover(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, nil, slog.Default())
	ev := NewChainEvents(n)

	ev.EndpointFailover("wss://primary", "wss://backup")
	require.Len(t, sender.titles, 1)
	assert.Equal(t, "RPC Failover", sender.titles[0])
}
