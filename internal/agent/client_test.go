package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jwulff/articube/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startMockAPI serves handler and returns a client pointed at it.
func startMockAPI(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL, auth.NewSource("test-token"), Options{Timeout: 5 * time.Second})
	require.NoError(t, err)
	return client
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient("not a url", auth.NewSource("x"), Options{})
	assert.Error(t, err)
}

func TestQuery(t *testing.T) {
	client := startMockAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/agent/query", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("save_to_history"))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "what is rust", body["query"])
		assert.Equal(t, map[string]any{}, body["additional_context"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(QueryResponse{
			Response: "A systems language.",
			Sources:  []Source{{Title: "Rust", Link: "https://rust-lang.org", Snippet: "fast"}},
		})
	})

	got, err := client.Query(context.Background(), QueryRequest{Query: "what is rust"}, true)
	require.NoError(t, err)
	assert.Equal(t, "A systems language.", got.Response)
	require.Len(t, got.Sources, 1)
	assert.Equal(t, "https://rust-lang.org", got.Sources[0].Link)
}

func TestQuerySaveToHistoryFalse(t *testing.T) {
	client := startMockAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "false", r.URL.Query().Get("save_to_history"))
		json.NewEncoder(w).Encode(QueryResponse{Response: "ok"})
	})

	_, err := client.Query(context.Background(), QueryRequest{Query: "q"}, false)
	require.NoError(t, err)
}

func TestQueryHTTPErrorIsNormalized(t *testing.T) {
	client := startMockAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail":"Agent error: model overloaded"}`))
	})

	_, err := client.Query(context.Background(), QueryRequest{Query: "q"}, true)
	var de *DisplayError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "Agent error: model overloaded", de.Message)
	assert.Equal(t, http.StatusInternalServerError, de.Status)
}

func TestQueryTransportErrorUsesFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	client, err := NewClient(url, auth.NewSource("t"), Options{Timeout: time.Second})
	require.NoError(t, err)

	_, err = client.Query(context.Background(), QueryRequest{Query: "q"}, true)
	var de *DisplayError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, QueryFailedMessage, de.Message)
	assert.Zero(t, de.Status)
}

func TestQueryWithoutTokenNeverHitsNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hits.Add(1) }))
	defer srv.Close()

	client, err := NewClient(srv.URL, auth.NewSource(""), Options{})
	require.NoError(t, err)

	_, err = client.Query(context.Background(), QueryRequest{Query: "q"}, true)
	assert.ErrorIs(t, err, auth.ErrNoToken)
	assert.Zero(t, hits.Load())
}

func TestHistory(t *testing.T) {
	client := startMockAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/agent/history", r.URL.Path)
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		json.NewEncoder(w).Encode([]HistoryItem{
			{ID: "h2", Query: "second", Response: "b", Timestamp: "2026-01-02T00:00:00"},
			{ID: "h1", Query: "first", Response: "a", Timestamp: "2026-01-01T00:00:00"},
		})
	})

	items, err := client.History(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "h2", items[0].ID)
	assert.Equal(t, "first", items[1].Query)
}

func TestHistoryClampsLimit(t *testing.T) {
	var seen []string
	var mu sync.Mutex
	client := startMockAPI(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.URL.Query().Get("limit"))
		mu.Unlock()
		w.Write([]byte(`[]`))
	})

	_, err := client.History(context.Background(), 0)
	require.NoError(t, err)
	_, err = client.History(context.Background(), 500)
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "50"}, seen)
}

func TestHistoryErrorUsesFallback(t *testing.T) {
	client := startMockAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.History(context.Background(), 10)
	var de *DisplayError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "502: Bad Gateway", de.Message)
}

func TestContentIsCached(t *testing.T) {
	var hits atomic.Int32
	client := startMockAPI(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/api/content/abc123", r.URL.Path)
		json.NewEncoder(w).Encode(Content{ID: "abc123", Title: "Ownership", FullContent: "Borrowing rules..."})
	})

	for range 3 {
		got, err := client.Content(context.Background(), "abc123")
		require.NoError(t, err)
		assert.Equal(t, "Ownership", got.Title)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestContentNotFound(t *testing.T) {
	client := startMockAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"Content not found"}`))
	})

	_, err := client.Content(context.Background(), "missing")
	var de *DisplayError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "Content not found", de.Message)
	assert.Equal(t, http.StatusNotFound, de.Status)
}

func TestContentSharedFetchSurvivesCallerCancel(t *testing.T) {
	release := make(chan struct{})
	var hits atomic.Int32
	client := startMockAPI(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		json.NewEncoder(w).Encode(Content{ID: "abc123", Title: "Ownership"})
	})
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }
	t.Cleanup(unblock)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := client.Content(ctx, "abc123")
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, 5*time.Millisecond)

	type result struct {
		c   *Content
		err error
	}
	second := make(chan result, 1)
	go func() {
		c, err := client.Content(context.Background(), "abc123")
		second <- result{c, err}
	}()

	cancel()
	select {
	case err := <-firstErr:
		var de *DisplayError
		require.True(t, errors.As(err, &de))
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	unblock()
	select {
	case res := <-second:
		require.NoError(t, res.err)
		assert.Equal(t, "Ownership", res.c.Title)
	case <-time.After(time.Second):
		t.Fatal("joined caller did not return")
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestSaved(t *testing.T) {
	client := startMockAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/content/saved/", r.URL.Path)
		json.NewEncoder(w).Encode([]Content{
			{ID: "c1", Title: "Ownership", ContentType: "article"},
			{ID: "c2", Title: "Lifetimes"},
		})
	})

	items, err := client.Saved(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "c1", items[0].ID)
	assert.Equal(t, "Lifetimes", items[1].Title)
}

func TestSaveContent(t *testing.T) {
	client := startMockAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/content/c1/save", r.URL.Path)
		assert.Equal(t, "420", r.URL.Query().Get("read_position"))
		assert.Equal(t, "chapter two", r.URL.Query().Get("notes"))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"message":"Content saved successfully"}`))
	})

	pos := 420
	require.NoError(t, client.SaveContent(context.Background(), "c1", SaveOptions{ReadPosition: &pos, Notes: "chapter two"}))
}

func TestSaveContentWithoutOptions(t *testing.T) {
	client := startMockAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.RawQuery)
		w.WriteHeader(http.StatusCreated)
	})

	require.NoError(t, client.SaveContent(context.Background(), "c1", SaveOptions{}))
}

func TestUnsaveContent(t *testing.T) {
	client := startMockAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/content/c1/save", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.UnsaveContent(context.Background(), "c1"))
}

func TestUnsaveContentNotSaved(t *testing.T) {
	client := startMockAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"Content not found in saved list"}`))
	})

	err := client.UnsaveContent(context.Background(), "c1")
	var de *DisplayError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "Content not found in saved list", de.Message)
}

func TestSavedTransportErrorUsesFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	client, err := NewClient(url, auth.NewSource("t"), Options{Timeout: time.Second})
	require.NoError(t, err)

	_, err = client.Saved(context.Background())
	var de *DisplayError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, SavedFailedMessage, de.Message)
}
