package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func modelResponse(text string) []byte {
	body, _ := json.Marshal(map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{
					"parts": []any{map[string]any{"text": text}},
				},
			},
		},
	})
	return body
}

func TestDraft_Disabled(t *testing.T) {
	d := New("")

	_, err := d.Draft(context.Background(), "a music subscription")
	require.ErrorIs(t, err, ErrDisabled)
}

func TestDraft_ParsesModelOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, ":generateContent")
		_, _ = w.Write(modelResponse(
			`{"name":"Spotify Premium","price":4.99,"category":"Subscriptions","subcategory":"Music","description":"One month of ad-free music."}`))
	}))
	defer srv.Close()

	d := New("test-key", WithBaseURL(srv.URL))

	draft, err := d.Draft(context.Background(), "a music subscription")
	require.NoError(t, err)

	assert.Equal(t, "Spotify Premium", draft.Name)
	assert.True(t, decimal.RequireFromString("4.99").Equal(draft.Price))
	assert.Equal(t, "Subscriptions", draft.Category)
	assert.Equal(t, "Music", draft.Subcategory)
}

func TestDraft_ToleratesCodeFences(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(modelResponse(
			"```json\n{\"name\":\"Steam Wallet $10\",\"price\":10.5,\"category\":\"Gift Cards\",\"subcategory\":\"Gaming\",\"description\":\"Top-up code.\"}\n```"))
	}))
	defer srv.Close()

	d := New("test-key", WithBaseURL(srv.URL))

	draft, err := d.Draft(context.Background(), "steam gift card")
	require.NoError(t, err)
	assert.Equal(t, "Steam Wallet $10", draft.Name)
}

func TestDraft_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d := New("test-key", WithBaseURL(srv.URL))

	_, err := d.Draft(context.Background(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestDraft_MissingName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(modelResponse(`{"price":1.00}`))
	}))
	defer srv.Close()

	d := New("test-key", WithBaseURL(srv.URL))

	_, err := d.Draft(context.Background(), "anything")
	require.Error(t, err)
}
