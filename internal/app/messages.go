package app

import (
	"github.com/jwulff/articube/internal/agent"
	"github.com/jwulff/articube/internal/progress"
)

// SearchOpenedMsg is sent when the search modal finished opening: history
// was refreshed and any carried-in query has resolved.
type SearchOpenedMsg struct {
	Query string
	Err   error // history refresh failure
}

// SearchDoneMsg is sent when a submitted query resolved. Stale outcomes
// arrive with a nil Err and leave the session untouched.
type SearchDoneMsg struct {
	Query string
	Err   error
}

// RecentLoadedMsg carries the recently read items for the home screen.
type RecentLoadedMsg struct {
	Items []progress.ReadingProgress
}

// ContentLoadedMsg carries a content item for the reader.
type ContentLoadedMsg struct {
	ID      string
	Content *agent.Content
	Err     error
}

// SavedLoadedMsg carries the user's saved content list.
type SavedLoadedMsg struct {
	Items []agent.Content
	Err   error
}

// SaveToggledMsg reports the outcome of saving (Saved true) or unsaving an
// item.
type SaveToggledMsg struct {
	ID    string
	Saved bool
	Err   error
}

// ClipboardMsg reports the outcome of copying the answer.
type ClipboardMsg struct {
	Err error
}

// ClearTransientErrorMsg clears a transient error after a timeout.
type ClearTransientErrorMsg struct{}

// scrollRestoreMsg asks the reader viewport to jump to a saved position.
type scrollRestoreMsg struct {
	host *viewportHost
	pos  int
}
