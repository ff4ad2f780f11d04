// Package history mirrors the user's query history, combining the server's
// list with optimistic local entries.
package history

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/jwulff/articube/internal/agent"
	"go.uber.org/zap"
)

// LocalIDPrefix marks ids of entries the server has not confirmed yet.
const LocalIDPrefix = "local-"

// Entry is one submitted search.
type Entry struct {
	ID         string
	Query      string
	Response   string
	Timestamp  string // ISO-8601
	Optimistic bool
}

// Fetcher loads the authoritative history list.
type Fetcher interface {
	History(ctx context.Context, limit int) ([]agent.HistoryItem, error)
}

// FetchError reports a failed refresh. It wraps the user-facing
// *agent.DisplayError.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string { return "fetch history: " + e.Err.Error() }

func (e *FetchError) Unwrap() error { return e.Err }

// Cache is the in-memory history list, newest first.
type Cache struct {
	mu      sync.Mutex
	fetcher Fetcher
	log     *zap.Logger
	now     func() time.Time

	entries []Entry
	// gen is bumped by Clear so refreshes started before it are dropped.
	gen uint64
}

// New creates an empty Cache.
func New(fetcher Fetcher, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{fetcher: fetcher, log: log.Named("history"), now: time.Now}
}

// RecordOptimistic prepends a locally identified entry for a query that has
// just been dispatched. The next Refresh supersedes it.
func (c *Cache) RecordOptimistic(query, response string) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e := Entry{
		ID:         LocalIDPrefix + strconv.FormatInt(now.UnixNano(), 10),
		Query:      query,
		Response:   response,
		Timestamp:  now.UTC().Format(time.RFC3339Nano),
		Optimistic: true,
	}
	// Two records in the same clock tick still need distinct ids.
	for _, existing := range c.entries {
		if existing.ID == e.ID {
			e.ID += "-" + strconv.Itoa(len(c.entries))
			break
		}
	}
	c.entries = append([]Entry{e}, c.entries...)
	return e
}

// Resolve fills in the response of an optimistic entry that is still in the
// list. It reports whether the entry was found.
func (c *Cache) Resolve(id, response string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.entries {
		if c.entries[i].ID == id && c.entries[i].Optimistic {
			c.entries[i].Response = response
			return true
		}
	}
	return false
}

// Refresh replaces the list with the server's newest limit entries, in the
// order the server returns them. Local entries are not merged back in.
func (c *Cache) Refresh(ctx context.Context, limit int) ([]Entry, error) {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	items, err := c.fetcher.History(ctx, limit)
	if err != nil {
		c.log.Warn("refresh failed", zap.Int("limit", limit), zap.Error(err))
		return nil, &FetchError{Err: agent.AsDisplay(err, agent.HistoryFailedMessage)}
	}

	entries := make([]Entry, len(items))
	for i, it := range items {
		entries[i] = Entry{
			ID:        it.ID,
			Query:     it.Query,
			Response:  it.Response,
			Timestamp: it.Timestamp,
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		c.log.Debug("discarding refresh after clear", zap.Int("entries", len(entries)))
		return c.snapshot(), nil
	}
	c.entries = entries
	return c.snapshot(), nil
}

// Clear empties the list.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
	c.gen++
}

// Entries returns a copy of the current list.
func (c *Cache) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Cache) snapshot() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}
