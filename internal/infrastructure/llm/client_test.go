package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, DefaultModel, req.Model)
		require.Equal(t, 0.3, req.Temperature)
		require.Equal(t, 250, req.MaxTokens)
		require.Len(t, req.Messages, 2)
		require.Equal(t, "system", req.Messages[0].Role)
		require.Equal(t, "what is pneumonia?", req.Messages[1].Content)

		w.Write([]byte(`{"choices":[{"message":{"content":"  An infection of the lungs. "}}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{APIKey: "key", BaseURL: srv.URL})
	require.NoError(t, err)

	reply, err := c.Chat(context.Background(), "sys", "what is pneumonia?")
	require.NoError(t, err)
	require.Equal(t, "An infection of the lungs.", reply)
}

func TestChatErrors(t *testing.T) {
	_, err := NewClient(Config{})
	require.ErrorIs(t, err, errMissingAPIKey)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/status":
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		case "/empty":
			w.Write([]byte(`{"choices":[]}`))
		default:
			w.Write([]byte(`{"error":{"message":"model not found"}}`))
		}
	}))
	defer srv.Close()

	for path, want := range map[string]string{
		"/status": "status 429",
		"/empty":  "no choices",
		"/api":    "model not found",
	} {
		c, err := NewClient(Config{APIKey: "key", BaseURL: srv.URL + path})
		require.NoError(t, err)
		_, err = c.Chat(context.Background(), "sys", "hi")
		require.ErrorContains(t, err, want, path)
	}
}
