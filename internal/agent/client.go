package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// TokenSource supplies the bearer token for each request.
type TokenSource interface {
	Bearer() (string, error)
}

// Client talks to the ArtiCube API over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	log     *zap.Logger

	contents *lru.Cache[string, *Content]
	inflight singleflight.Group
}

// Options configures a Client.
type Options struct {
	Timeout          time.Duration
	ContentCacheSize int
	HTTPClient       *http.Client
	Logger           *zap.Logger
}

// NewClient creates a Client for the API rooted at baseURL.
func NewClient(baseURL string, tokens TokenSource, opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid api url %q", baseURL)
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	size := opts.ContentCacheSize
	if size <= 0 {
		size = 64
	}
	cache, err := lru.New[string, *Content](size)
	if err != nil {
		return nil, fmt.Errorf("create content cache: %w", err)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		baseURL:  u.String(),
		http:     hc,
		tokens:   tokens,
		log:      log.Named("agent"),
		contents: cache,
	}, nil
}

// Query asks the agent a question. saveToHistory controls whether the
// server records the exchange in the user's query history.
func (c *Client) Query(ctx context.Context, req QueryRequest, saveToHistory bool) (*QueryResponse, error) {
	if req.AdditionalContext == nil {
		req.AdditionalContext = map[string]any{}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, AsDisplay(fmt.Errorf("marshal query: %w", err), QueryFailedMessage)
	}

	params := url.Values{"save_to_history": {strconv.FormatBool(saveToHistory)}}
	var out QueryResponse
	if err := c.do(ctx, http.MethodPost, "/api/agent/query", params, body, QueryFailedMessage, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History returns up to limit of the user's most recent queries, newest
// first. limit is clamped to the range the server accepts.
func (c *Client) History(ctx context.Context, limit int) ([]HistoryItem, error) {
	limit = min(max(limit, MinHistoryLimit), MaxHistoryLimit)
	params := url.Values{"limit": {strconv.Itoa(limit)}}

	var out []HistoryItem
	if err := c.do(ctx, http.MethodGet, "/api/agent/history", params, nil, HistoryFailedMessage, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Content fetches a content item. Results are cached and concurrent
// fetches of the same id share one request.
func (c *Client) Content(ctx context.Context, id string) (*Content, error) {
	if id == "" {
		return nil, &DisplayError{Message: "No content selected."}
	}
	if cached, ok := c.contents.Get(id); ok {
		return cached, nil
	}

	// The shared fetch is detached from any one caller's ctx and bounded
	// by the http client timeout.
	shared := context.WithoutCancel(ctx)
	ch := c.inflight.DoChan(id, func() (any, error) {
		var out Content
		path := "/api/content/" + url.PathEscape(id)
		if err := c.do(shared, http.MethodGet, path, nil, nil, ContentFailedMessage, &out); err != nil {
			return nil, err
		}
		c.contents.Add(id, &out)
		return &out, nil
	})

	select {
	case <-ctx.Done():
		return nil, AsDisplay(ctx.Err(), ContentFailedMessage)
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Content), nil
	}
}

// Saved lists the user's saved content items. Items carry no full text.
func (c *Client) Saved(ctx context.Context) ([]Content, error) {
	var out []Content
	if err := c.do(ctx, http.MethodGet, "/api/content/saved/", nil, nil, SavedFailedMessage, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveContent adds id to the saved list, or updates the stored position
// and notes when it is already there.
func (c *Client) SaveContent(ctx context.Context, id string, opts SaveOptions) error {
	if id == "" {
		return &DisplayError{Message: "No content selected."}
	}
	params := url.Values{}
	if opts.ReadPosition != nil {
		params.Set("read_position", strconv.Itoa(*opts.ReadPosition))
	}
	if opts.Notes != "" {
		params.Set("notes", opts.Notes)
	}
	path := "/api/content/" + url.PathEscape(id) + "/save"
	return c.do(ctx, http.MethodPost, path, params, nil, SaveFailedMessage, nil)
}

// UnsaveContent removes id from the saved list.
func (c *Client) UnsaveContent(ctx context.Context, id string) error {
	if id == "" {
		return &DisplayError{Message: "No content selected."}
	}
	path := "/api/content/" + url.PathEscape(id) + "/save"
	return c.do(ctx, http.MethodDelete, path, nil, nil, UnsaveFailedMessage, nil)
}

// do performs one JSON round trip. A nil out discards the response body.
// Every failure comes back as a *DisplayError.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body []byte, fallback string, out any) error {
	token, err := c.tokens.Bearer()
	if err != nil {
		return &DisplayError{Message: err.Error(), Err: err}
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return AsDisplay(fmt.Errorf("build request: %w", err), fallback)
	}
	requestID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			c.log.Debug("request canceled", zap.String("path", path), zap.String("requestId", requestID))
		} else {
			c.log.Warn("request failed", zap.String("path", path), zap.String("requestId", requestID), zap.Error(err))
		}
		return AsDisplay(fmt.Errorf("%s %s: %w", method, path, err), fallback)
	}
	defer resp.Body.Close()

	c.log.Debug("request done",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("requestId", requestID))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		de := errorFromResponse(resp, fallback)
		c.log.Warn("request rejected",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("message", de.Message),
			zap.String("requestId", requestID))
		return de
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return AsDisplay(fmt.Errorf("decode %s response: %w", path, err), fallback)
	}
	return nil
}
