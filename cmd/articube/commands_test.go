package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/jwulff/articube/internal/agent"
	"github.com/jwulff/articube/internal/config"
	"github.com/jwulff/articube/internal/db"
	"github.com/jwulff/articube/internal/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cliEnv struct {
	dir    string
	config string
	dbPath string
	apiURL string
}

func newCLIEnv(t *testing.T, handler http.HandlerFunc) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	env := &cliEnv{
		dir:    dir,
		config: filepath.Join(dir, "config.yaml"),
		dbPath: filepath.Join(dir, "articube.sqlite"),
	}
	if handler != nil {
		srv := httptest.NewServer(handler)
		t.Cleanup(srv.Close)
		env.apiURL = srv.URL
	}
	t.Setenv("ARTICUBE_TOKEN", "test-token")
	t.Setenv("ARTICUBE_DB_PATH", env.dbPath)
	t.Setenv("ARTICUBE_LOG_PATH", filepath.Join(dir, "articube.log"))
	return env
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	full := append([]string{"--config", e.config}, args...)
	if e.apiURL != "" {
		full = append(full, "--api-url", e.apiURL)
	}
	cmd.SetArgs(full)
	err := cmd.Execute()
	return out.String(), err
}

func TestSearchCommand(t *testing.T) {
	env := newCLIEnv(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/agent/query", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var req agent.QueryRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "what is a cube", req.Query)

		_ = json.NewEncoder(w).Encode(agent.QueryResponse{
			Response: "A solid with six faces.",
			Sources:  []agent.Source{{Title: "Geometry", Link: "https://example.com/geo"}},
		})
	})

	out, err := env.run(t, "search", "--raw", "what", "is", "a", "cube")
	require.NoError(t, err)
	assert.Contains(t, out, "A solid with six faces.")
	assert.Contains(t, out, "[Geometry](https://example.com/geo)")
}

func TestSearchCommandReportsServerError(t *testing.T) {
	env := newCLIEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"agent unavailable"}`))
	})

	_, err := env.run(t, "search", "anything")
	require.Error(t, err)
	var de *agent.DisplayError
	assert.ErrorAs(t, err, &de)
}

func TestHistoryCommand(t *testing.T) {
	env := newCLIEnv(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/agent/history", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("limit"))
		_ = json.NewEncoder(w).Encode([]agent.HistoryItem{
			{ID: "1", Query: "first question", Response: "a", Timestamp: "2026-03-01T10:00:00"},
			{ID: "2", Query: "second question", Response: "b", Timestamp: "not a time"},
		})
	})

	out, err := env.run(t, "history", "-n", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "first question")
	assert.Contains(t, out, "second question")
	assert.Contains(t, out, "not a time")
}

func seedProgress(t *testing.T, path string) {
	t.Helper()
	store, err := db.Open(path)
	require.NoError(t, err)
	p := progress.New(store)
	p.Save("doc-1", 250, 1000, "chapter two")
	p.Save("doc-2", 0, 0, "")
	require.NoError(t, store.Close())
}

func TestProgressCommands(t *testing.T) {
	env := newCLIEnv(t, nil)

	out, err := env.run(t, "progress", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing read yet.")

	seedProgress(t, env.dbPath)

	out, err = env.run(t, "progress", "list", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "doc-1")
	assert.Contains(t, out, "25%")
	assert.Contains(t, out, "doc-2")
	assert.Contains(t, out, "100%")

	out, err = env.run(t, "progress", "show", "doc-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Progress:  25%")
	assert.Contains(t, out, "Notes:     chapter two")

	out, err = env.run(t, "progress", "rm", "doc-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed doc-1")

	_, err = env.run(t, "progress", "show", "doc-1")
	assert.Error(t, err)
	_, err = env.run(t, "progress", "rm", "doc-1")
	assert.Error(t, err)
}

func TestSavedCommands(t *testing.T) {
	var lastSave url.Values
	env := newCLIEnv(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/content/saved/":
			_ = json.NewEncoder(w).Encode([]agent.Content{
				{ID: "doc-1", Title: "Ownership", ContentType: "article"},
				{ID: "doc-7", Title: "Lifetimes"},
			})
		case r.Method == http.MethodPost && r.URL.Path == "/api/content/doc-1/save":
			lastSave = r.URL.Query()
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"message":"Content saved successfully"}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/api/content/doc-1/save":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"Content not found in saved list"}`))
		}
	})
	seedProgress(t, env.dbPath)

	out, err := env.run(t, "saved", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Ownership")
	assert.Contains(t, out, "article")
	assert.Contains(t, out, "25%")
	assert.Contains(t, out, "Lifetimes")

	out, err = env.run(t, "saved", "add", "doc-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved doc-1")
	assert.Equal(t, "250", lastSave.Get("read_position"))
	assert.Equal(t, "chapter two", lastSave.Get("notes"))

	_, err = env.run(t, "saved", "add", "doc-1", "--position", "5", "--notes", "redo")
	require.NoError(t, err)
	assert.Equal(t, "5", lastSave.Get("read_position"))
	assert.Equal(t, "redo", lastSave.Get("notes"))

	out, err = env.run(t, "saved", "rm", "doc-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed doc-1 from saved")

	_, err = env.run(t, "saved", "rm", "doc-9")
	require.Error(t, err)
	assert.Equal(t, "Content not found in saved list", err.Error())
}

func TestConfigInit(t *testing.T) {
	env := newCLIEnv(t, nil)

	out, err := env.run(t, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, env.config+"\n", out)

	_, err = env.run(t, "config", "init", "--api-url", "https://articube.example.com")
	require.NoError(t, err)
	_, err = os.Stat(env.config)
	require.NoError(t, err)

	t.Setenv("ARTICUBE_API_URL", "")
	cfg, err := config.Load(env.config)
	require.NoError(t, err)
	assert.Equal(t, "https://articube.example.com", cfg.APIURL)

	_, err = env.run(t, "config", "init")
	assert.Error(t, err, "refuses to overwrite")

	_, err = env.run(t, "config", "init", "--force")
	assert.NoError(t, err)
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "garbage", formatTimestamp("garbage"))
	assert.NotEqual(t, "2026-03-01T10:00:00Z", formatTimestamp("2026-03-01T10:00:00Z"))
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "one", firstLine("one"))
	assert.Equal(t, "one…", firstLine("one\ntwo"))
}
