// Package progress persists per-content reading progress in a local
// key-value medium.
package progress

import "time"

// StorageKey is the single key the whole progress collection lives under.
const StorageKey = "articube_reading_progress"

// DefaultRecentLimit is the number of entries GetRecent returns when no
// positive limit is given.
const DefaultRecentLimit = 5

// ReadingProgress is the saved reading state of one content item.
type ReadingProgress struct {
	ContentID            string    `json:"contentId"`
	Position             int       `json:"position"`
	LastRead             time.Time `json:"lastRead"`
	CompletionPercentage int       `json:"completionPercentage"`
	Notes                string    `json:"notes,omitempty"`
}

// Medium is the persistent string key-value space the store writes to.
type Medium interface {
	GetItem(key string) (string, bool, error)
	SetItem(key, value string) error
	RemoveItem(key string) error
}
