package messenger

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BatmanBruc/paygate-bot/types"
)

func TestBuildInlineKeyboard(t *testing.T) {
	buttons := make([]types.Button, 0, 7)
	for _, id := range []string{"1", "2", "3", "4", "5", "6", "7"} {
		buttons = append(buttons, types.Button{Text: "Plan " + id, Data: id})
	}

	kb := BuildInlineKeyboard(buttons)
	require.Len(t, kb.InlineKeyboard, 3)
	assert.Len(t, kb.InlineKeyboard[0], 3)
	assert.Len(t, kb.InlineKeyboard[2], 1)
	assert.Equal(t, " Plan 1 ", kb.InlineKeyboard[0][0].Text)
	assert.Equal(t, "7", kb.InlineKeyboard[2][0].CallbackData)
}

func TestSend(t *testing.T) {
	var path, body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`))
	}))
	defer server.Close()

	tg, err := NewTelegram("123:abc", nil, WithServerURL(server.URL))
	require.NoError(t, err)

	err = tg.Send(context.Background(), types.OutboundMessage{
		ChatID:  42,
		Text:    "hello there",
		Buttons: []types.Button{{Text: "Plan 1", Data: "1"}},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "/sendMessage"), path)
	assert.Contains(t, body, "hello there")
	assert.Contains(t, body, "inline_keyboard")
}

func TestSend_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	}))
	defer server.Close()

	tg, err := NewTelegram("123:abc", nil, WithServerURL(server.URL))
	require.NoError(t, err)

	err = tg.Send(context.Background(), types.OutboundMessage{ChatID: 42, Text: "hi"})
	assert.Error(t, err)
}
