package progress

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Store owns ReadingProgress records. It never returns persistence errors
// to callers: failures are logged. Reads that fail look like absent data,
// while writes are skipped when the current collection cannot be read.
//
// Every write re-serialises the whole collection, so a write costs O(n) in
// the number of tracked items.
type Store struct {
	mu     sync.Mutex
	medium Medium
	log    *zap.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for persistence failures.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides the time source used for LastRead.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Store over medium.
func New(medium Medium, opts ...Option) *Store {
	s := &Store{
		medium: medium,
		log:    zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("progress")
	return s
}

// CompletionPercentage derives the completion percentage for a scroll
// position. Content that does not scroll (totalHeight <= 0) counts as
// fully read.
func CompletionPercentage(position, totalHeight int) int {
	if totalHeight <= 0 {
		return 100
	}
	if position < 0 {
		position = 0
	}
	pct := int(math.Round(float64(position) / float64(totalHeight) * 100))
	return min(max(pct, 0), 100)
}

// Save records position for contentID, replacing any previous record.
func (s *Store) Save(contentID string, position, totalHeight int, notes string) {
	if contentID == "" {
		return
	}
	position = max(position, 0)

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		s.log.Warn("save reading progress skipped",
			zap.String("contentId", contentID), zap.Error(err))
		return
	}
	data[contentID] = ReadingProgress{
		ContentID:            contentID,
		Position:             position,
		LastRead:             s.now(),
		CompletionPercentage: CompletionPercentage(position, totalHeight),
		Notes:                notes,
	}
	if err := s.persist(data); err != nil {
		s.log.Warn("save reading progress",
			zap.String("contentId", contentID), zap.Error(err))
	}
}

// Get returns the record for contentID, or nil if none is stored.
func (s *Store) Get(contentID string) *ReadingProgress {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, _ := s.load()
	p, ok := data[contentID]
	if !ok {
		return nil
	}
	return &p
}

// GetAll returns every record, most recently read first.
func (s *Store) GetAll() []ReadingProgress {
	s.mu.Lock()
	data, _ := s.load()
	s.mu.Unlock()

	all := make([]ReadingProgress, 0, len(data))
	for _, p := range data {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].LastRead.Equal(all[j].LastRead) {
			return all[i].LastRead.After(all[j].LastRead)
		}
		return all[i].ContentID < all[j].ContentID
	})
	return all
}

// GetRecent returns at most limit records from GetAll. A non-positive
// limit means DefaultRecentLimit.
func (s *Store) GetRecent(limit int) []ReadingProgress {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	all := s.GetAll()
	if len(all) > limit {
		all = all[:limit]
	}
	return all
}

// Remove deletes the record for contentID if present. Removing the last
// record drops the key from the medium.
func (s *Store) Remove(contentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		s.log.Warn("remove reading progress skipped",
			zap.String("contentId", contentID), zap.Error(err))
		return
	}
	if _, ok := data[contentID]; !ok {
		return
	}
	delete(data, contentID)
	if len(data) == 0 {
		err = s.medium.RemoveItem(StorageKey)
	} else {
		err = s.persist(data)
	}
	if err != nil {
		s.log.Warn("remove reading progress",
			zap.String("contentId", contentID), zap.Error(err))
	}
}

// load reads the whole collection. Corrupt data yields an empty
// collection; a medium failure is returned with an empty collection.
func (s *Store) load() (map[string]ReadingProgress, error) {
	data := make(map[string]ReadingProgress)

	raw, ok, err := s.medium.GetItem(StorageKey)
	if err != nil {
		s.log.Warn("read reading progress", zap.Error(err))
		return data, fmt.Errorf("read: %w", err)
	}
	if !ok || raw == "" {
		return data, nil
	}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		s.log.Warn("parse reading progress", zap.Error(err))
		return make(map[string]ReadingProgress), nil
	}
	if data == nil {
		data = make(map[string]ReadingProgress)
	}
	return data, nil
}

func (s *Store) persist(data map[string]ReadingProgress) error {
	blob, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := s.medium.SetItem(StorageKey, string(blob)); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}
