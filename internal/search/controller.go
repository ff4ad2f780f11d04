// Package search drives one search interaction from query entry to
// rendered result.
package search

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jwulff/articube/internal/agent"
	"github.com/jwulff/articube/internal/history"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Querier answers queries.
type Querier interface {
	Query(ctx context.Context, req agent.QueryRequest, saveToHistory bool) (*agent.QueryResponse, error)
}

// HistoryCache is the subset of *history.Cache the controller drives.
type HistoryCache interface {
	RecordOptimistic(query, response string) history.Entry
	Resolve(id, response string) bool
	Refresh(ctx context.Context, limit int) ([]history.Entry, error)
	Clear()
}

// Options configures a Controller.
type Options struct {
	HistoryLimit      int
	SaveToHistory     bool
	AdditionalContext map[string]any
	Logger            *zap.Logger
}

// DefaultHistoryLimit is the number of history entries fetched on open.
const DefaultHistoryLimit = 10

// Controller owns the SearchSession. It is safe for concurrent use; the
// lock is never held across a network call. Lock order is controller,
// then history cache.
type Controller struct {
	api     Querier
	history HistoryCache
	opts    Options
	log     *zap.Logger

	mu      sync.Mutex
	session session
	// token identifies the latest dispatch. Only the outcome carrying the
	// current token is applied; Close bumps it to drop in-flight outcomes.
	token uint64
}

// NewController creates a Controller.
func NewController(api Querier, cache HistoryCache, opts Options) *Controller {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		api:     api,
		history: cache,
		opts:    opts,
		log:     log.Named("search"),
	}
}

// Open starts a session. A non-blank initialQuery different from the last
// dispatched query is submitted; history is always refreshed. The returned
// error is the history refresh failure, if any.
func (c *Controller) Open(ctx context.Context, initialQuery string) error {
	c.mu.Lock()
	c.session.open = true
	c.session.query = initialQuery
	dispatch := strings.TrimSpace(initialQuery) != "" && initialQuery != c.session.previousQuery
	c.mu.Unlock()

	var g errgroup.Group
	g.Go(func() error {
		_, err := c.history.Refresh(ctx, c.opts.HistoryLimit)
		return err
	})
	if dispatch {
		g.Go(func() error {
			// Search failures live in the session state, not in Open's error.
			c.submit(ctx, initialQuery, OriginInitial)
			return nil
		})
	} else {
		c.log.Debug("skipping repeat initial query", zap.String("query", initialQuery))
	}
	return g.Wait()
}

// Submit dispatches query. Blank queries fail with ErrEmptyQuery and never
// reach the network. A failed request returns its *agent.DisplayError; a
// result superseded by a newer dispatch or by Close is dropped and Submit
// returns nil.
func (c *Controller) Submit(ctx context.Context, query string) error {
	return c.submit(ctx, query, OriginTyped)
}

// SelectHistoryItem re-runs a history entry's query.
func (c *Controller) SelectHistoryItem(ctx context.Context, entry history.Entry) error {
	return c.submit(ctx, entry.Query, OriginHistory)
}

func (c *Controller) submit(ctx context.Context, query string, origin Origin) error {
	if strings.TrimSpace(query) == "" {
		return ErrEmptyQuery
	}

	c.mu.Lock()
	c.token++
	token := c.token
	c.session.state = StateDispatching
	c.session.query = query
	c.session.previousQuery = query
	c.session.origin = origin
	c.session.result = nil
	c.session.err = ""
	// Recorded under the lock so a concurrent Close clears it.
	pending := c.history.RecordOptimistic(query, "")
	c.mu.Unlock()

	c.log.Debug("dispatch", zap.Uint64("token", token), zap.String("query", query), zap.String("origin", origin.String()))

	resp, err := c.api.Query(ctx, agent.QueryRequest{
		Query:             query,
		AdditionalContext: c.opts.AdditionalContext,
	}, c.opts.SaveToHistory)

	c.mu.Lock()
	if token != c.token {
		latest := c.token
		c.mu.Unlock()
		c.log.Debug("discarding stale result", zap.Uint64("token", token), zap.Uint64("latest", latest))
		return nil
	}
	if err != nil {
		de := agent.AsDisplay(err, agent.QueryFailedMessage)
		c.session.state = StateFailed
		c.session.err = de.Message
		c.session.result = nil
		c.mu.Unlock()
		if !errors.Is(err, context.Canceled) {
			c.log.Warn("query failed", zap.String("query", query), zap.Error(err))
		}
		return de
	}
	c.session.state = StateSucceeded
	c.session.err = ""
	c.session.result = &Result{
		Response: resp.Response,
		Sources:  resp.Sources,
		Metadata: resp.Metadata,
	}
	c.mu.Unlock()

	c.history.Resolve(pending.ID, resp.Response)
	return nil
}

// Close ends the session: state returns to idle, the result, error and
// previous query are cleared, any in-flight result is invalidated and the
// history cache is emptied so the next Open refetches it.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token++
	c.session = session{}
	c.history.Clear()
}

// ClearResult drops the result and error without closing the session. A
// dispatch still in flight is left alone.
func (c *Controller) ClearResult() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.session.result = nil
	c.session.err = ""
	if c.session.state != StateDispatching {
		c.session.state = StateIdle
	}
}

// SetQuery records the current input text.
func (c *Controller) SetQuery(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.query = text
}

// Snapshot returns a consistent copy of the session.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.snapshot()
}
