package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegramSenderPostsSendMessage(t *testing.T) {
	var gotPath string
	var got telegramMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("bot-token", "chat-42")
	s.api = srv.URL

	err := s.Send(context.Background(), "Trade confirmed", "WETH->DAI->WETH profit=1 wei")
	require.NoError(t, err)

	assert.Equal(t, "/botbot-token/sendMessage", gotPath)
	assert.Equal(t, "chat-42", got.ChatID)
	assert.Equal(t, "*Trade confirmed*\nWETH->DAI->WETH profit=1 wei", got.Text)
	assert.Equal(t, "Markdown", got.ParseMode)
}

func TestTelegramSenderSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "chat not found", http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewTelegramSender("bot-token", "chat-42")
	s.api = srv.URL

	err := s.Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram: status 400")
	assert.Contains(t, err.Error(), "chat not found")
}

func TestDiscordSenderPostsWebhook(t *testing.T) {
	var got discordMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	err := s.Send(context.Background(), "RPC Failover", "primary -> backup-1")
	require.NoError(t, err)

	assert.Equal(t, "**RPC Failover**\nprimary -> backup-1", got.Content)
}
