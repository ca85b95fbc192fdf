package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-bot/internal/chat"
)

const updatesPayload = `{
	"ok": true,
	"result": [
		{
			"update_id": 10,
			"message": {
				"message_id": 1,
				"text": "/start ref_cafe0042",
				"chat": {"id": 100},
				"from": {"id": 100, "first_name": "Amine"}
			}
		},
		{
			"update_id": 11,
			"callback_query": {
				"id": "cb-1",
				"data": "prod:5",
				"from": {"id": 100, "first_name": "Amine"},
				"message": {"message_id": 2, "chat": {"id": 100}}
			}
		}
	]
}`

func TestUpdates(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/getUpdates"))
		if calls.Add(1) == 1 {
			_, _ = io.WriteString(w, updatesPayload)
			return
		}
		_, _ = io.WriteString(w, `{"ok": true, "result": []}`)
	}))
	defer srv.Close()

	tr := New("token", WithBaseURL(srv.URL))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	updates := tr.Updates(ctx)

	first := <-updates
	require.NotNil(t, first.Message)
	assert.Equal(t, int64(10), first.ID)
	assert.Equal(t, "/start ref_cafe0042", first.Message.Text)
	assert.Equal(t, int64(100), first.Message.ChatID)
	assert.Equal(t, "Amine", first.Message.FirstName)

	second := <-updates
	require.NotNil(t, second.Callback)
	assert.Equal(t, "cb-1", second.Callback.ID)
	assert.Equal(t, "prod:5", second.Callback.Data)
	assert.Equal(t, int64(2), second.Callback.MessageID)

	cancel()
	for range updates {
	}
}

func TestSend(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/sendMessage"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = io.WriteString(w, `{"ok": true, "result": {}}`)
	}))
	defer srv.Close()

	tr := New("token", WithBaseURL(srv.URL))

	err := tr.Send(context.Background(), chat.Outgoing{
		ChatID: 100,
		Text:   "Pick a category:",
		Keyboard: [][]chat.Button{
			{{Text: "Subscriptions", Data: "cat:Subscriptions"}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, float64(100), body["chat_id"])
	assert.Equal(t, "Pick a category:", body["text"])

	markup, ok := body["reply_markup"].(map[string]any)
	require.True(t, ok, "keyboard must be attached")
	rows := markup["inline_keyboard"].([]any)
	require.Len(t, rows, 1)
	btn := rows[0].([]any)[0].(map[string]any)
	assert.Equal(t, "Subscriptions", btn["text"])
	assert.Equal(t, "cat:Subscriptions", btn["callback_data"])
}

func TestSend_NoKeyboardField(t *testing.T) {
	var raw []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ = io.ReadAll(r.Body)
		_, _ = io.WriteString(w, `{"ok": true, "result": {}}`)
	}))
	defer srv.Close()

	tr := New("token", WithBaseURL(srv.URL))

	require.NoError(t, tr.Send(context.Background(), chat.Outgoing{ChatID: 1, Text: "hi"}))
	assert.NotContains(t, string(raw), "reply_markup")
}

func TestBotName_ResolvedOnceViaGetMe(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/getMe"))
		calls.Add(1)
		_, _ = io.WriteString(w, `{"ok": true, "result": {"id": 42, "is_bot": true, "username": "digital_shop_bot"}}`)
	}))
	defer srv.Close()

	tr := New("token", WithBaseURL(srv.URL))

	name, err := tr.BotName(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "digital_shop_bot", name)

	// Second call is served from cache.
	name, err = tr.BotName(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "digital_shop_bot", name)
	assert.Equal(t, int64(1), calls.Load())
}

func TestCall_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"ok": false, "description": "Unauthorized"}`)
	}))
	defer srv.Close()

	tr := New("bad-token", WithBaseURL(srv.URL))

	err := tr.AnswerCallback(context.Background(), "cb-1", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unauthorized")
}
