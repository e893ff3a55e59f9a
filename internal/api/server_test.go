package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatsync/internal/store"
	"chatsync/internal/websocket"
	"chatsync/pkg/types"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Store, *websocket.Registry) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "chatsync.db"), store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	registry := websocket.NewRegistry()
	srv := httptest.NewServer(NewServer(st, registry, 0).Routes())
	t.Cleanup(srv.Close)

	return srv, st, registry
}

func TestMessagesEndpoint_ReturnsActiveSnapshot(t *testing.T) {
	req := require.New(t)
	srv, st, _ := newTestServer(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	first, err := st.Append(ctx, "Alice", "one", base)
	req.NoError(err)
	second, err := st.Append(ctx, "Bob", "two", base.Add(time.Second))
	req.NoError(err)

	doomed, err := st.Append(ctx, "Alice", "gone", base.Add(2*time.Second))
	req.NoError(err)
	_, err = st.SoftDelete(ctx, doomed.ID, "Alice")
	req.NoError(err)

	resp, err := http.Get(srv.URL + "/api/messages")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal("application/json", resp.Header.Get("Content-Type"))

	var messages []*types.Message
	req.NoError(json.NewDecoder(resp.Body).Decode(&messages))
	req.Len(messages, 2)
	req.Equal(first.ID, messages[0].ID)
	req.Equal(second.ID, messages[1].ID)
}

func TestMessagesEndpoint_EmptyRoom(t *testing.T) {
	req := require.New(t)
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/messages")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	var messages []*types.Message
	req.NoError(json.NewDecoder(resp.Body).Decode(&messages))
	req.Empty(messages)
}

func TestHealthEndpoint(t *testing.T) {
	req := require.New(t)
	srv, st, registry := newTestServer(t)

	_, err := st.Append(context.Background(), "Alice", "hi", time.Now())
	req.NoError(err)
	registry.OnConnect("c1", nopSender{})

	resp, err := http.Get(srv.URL + "/health")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	var payload map[string]any
	req.NoError(json.NewDecoder(resp.Body).Decode(&payload))
	req.Equal("healthy", payload["status"])
	req.EqualValues(1, payload["messages"])
	req.EqualValues(1, payload["connections"])
}

type nopSender struct{}

func (nopSender) WriteJSON(v any) error { return nil }
func (nopSender) Close() error          { return nil }
