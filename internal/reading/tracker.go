// Package reading tracks the scroll position of the content item on screen
// and keeps its saved reading progress current.
package reading

import (
	"sync"
	"time"

	"github.com/jwulff/articube/internal/progress"
	"go.uber.org/zap"
)

// Metrics is a scroll host's geometry, in the host's units.
type Metrics struct {
	Top          int
	ScrollHeight int
	ClientHeight int
}

// Scrollable returns how far the host can scroll.
func (m Metrics) Scrollable() int {
	return m.ScrollHeight - m.ClientHeight
}

// ScrollHost is the view whose scrolling is tracked.
type ScrollHost interface {
	Metrics() Metrics
	ScrollTo(pos int)
}

// ProgressStore is the subset of *progress.Store the tracker writes to.
type ProgressStore interface {
	Save(contentID string, position, totalHeight int, notes string)
	Get(contentID string) *progress.ReadingProgress
}

// Phase is the tracker's lifecycle position.
type Phase int

const (
	PhaseUnattached Phase = iota
	PhaseRestoring
	PhaseTracking
)

func (p Phase) String() string {
	switch p {
	case PhaseUnattached:
		return "unattached"
	case PhaseRestoring:
		return "restoring"
	case PhaseTracking:
		return "tracking"
	}
	return "unknown"
}

// Defaults for Options.
const (
	DefaultDebounce     = 250 * time.Millisecond
	DefaultRestoreDelay = time.Second
)

// Options configures a Tracker.
type Options struct {
	// Debounce is the trailing delay between the last scroll event and the
	// write it triggers.
	Debounce time.Duration
	// RestoreDelay lets content layout settle before the saved position
	// is restored.
	RestoreDelay time.Duration
	Logger       *zap.Logger
}

// Tracker follows one content item at a time.
type Tracker struct {
	store        ProgressStore
	debounce     time.Duration
	restoreDelay time.Duration
	log          *zap.Logger

	mu           sync.Mutex
	contentID    string
	host         ScrollHost
	phase        Phase
	notes        string
	savedPercent int
	last         Metrics
	dirty        bool
	notesDirty   bool
	restorePos   int
	saveTimer    *time.Timer
	restoreTimer *time.Timer
	// session distinguishes attachments so timers from an earlier one
	// cannot act on a later one.
	session uint64
}

// New creates an unattached Tracker.
func New(store ProgressStore, opts Options) *Tracker {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.RestoreDelay < 0 {
		opts.RestoreDelay = 0
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{
		store:        store,
		debounce:     opts.Debounce,
		restoreDelay: opts.RestoreDelay,
		log:          log.Named("reading"),
	}
}

// Attach starts tracking contentID in host. Any previous item is detached
// first. When progress was saved earlier, the host is scrolled back to it
// after the restore delay.
func (t *Tracker) Attach(contentID string, host ScrollHost) {
	t.Detach()

	saved := t.store.Get(contentID)
	metrics := host.Metrics()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.session++
	t.contentID = contentID
	t.host = host
	t.last = metrics
	t.dirty = false
	t.notesDirty = false
	t.notes = ""
	t.savedPercent = 0
	t.restorePos = 0

	if saved == nil {
		t.phase = PhaseTracking
		t.log.Debug("attached", zap.String("contentId", contentID))
		return
	}

	t.notes = saved.Notes
	t.savedPercent = saved.CompletionPercentage
	t.phase = PhaseRestoring
	t.restorePos = saved.Position
	session := t.session
	pos := saved.Position
	t.restoreTimer = time.AfterFunc(t.restoreDelay, func() { t.restore(session, pos) })
	t.log.Debug("attached, restoring",
		zap.String("contentId", contentID),
		zap.Int("position", pos),
		zap.Int("percent", saved.CompletionPercentage))
}

func (t *Tracker) restore(session uint64, pos int) {
	t.mu.Lock()
	if session != t.session || t.phase != PhaseRestoring {
		t.mu.Unlock()
		return
	}
	host := t.host
	t.last.Top = pos
	t.phase = PhaseTracking
	// Scroll events seen while restoring were held back; flush them now
	// relative to the restored position.
	if t.dirty {
		t.armSaveLocked()
	}
	t.mu.Unlock()

	host.ScrollTo(pos)
}

// OnScroll records the host's current position and schedules a save once
// scrolling pauses for the debounce interval.
func (t *Tracker) OnScroll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.phase == PhaseUnattached {
		return
	}
	t.last = t.host.Metrics()
	t.dirty = true
	if t.phase == PhaseRestoring {
		return
	}
	t.armSaveLocked()
}

// SetNotes replaces the notes saved with the current item.
func (t *Tracker) SetNotes(notes string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.phase == PhaseUnattached {
		return
	}
	t.notes = notes
	t.dirty = true
	t.notesDirty = true
	if t.phase == PhaseTracking {
		t.armSaveLocked()
	}
}

func (t *Tracker) armSaveLocked() {
	if t.saveTimer != nil {
		t.saveTimer.Stop()
	}
	session := t.session
	t.saveTimer = time.AfterFunc(t.debounce, func() { t.flush(session) })
}

func (t *Tracker) flush(session uint64) {
	t.mu.Lock()
	if session != t.session || t.phase != PhaseTracking || !t.dirty {
		t.mu.Unlock()
		return
	}
	id, last, notes := t.contentID, t.last, t.notes
	t.dirty = false
	t.mu.Unlock()

	t.save(id, last, notes)
}

// Detach stops tracking and writes the last known position. If the saved
// position was never restored, the saved position is kept: nothing is
// written unless the notes changed, in which case they are saved with the
// saved position.
func (t *Tracker) Detach() {
	t.mu.Lock()
	if t.phase == PhaseUnattached {
		t.mu.Unlock()
		return
	}
	if t.saveTimer != nil {
		t.saveTimer.Stop()
		t.saveTimer = nil
	}
	if t.restoreTimer != nil {
		t.restoreTimer.Stop()
		t.restoreTimer = nil
	}
	id, last, notes, phase := t.contentID, t.last, t.notes, t.phase
	notesDirty, restorePos := t.notesDirty, t.restorePos
	t.session++
	t.phase = PhaseUnattached
	t.contentID = ""
	t.host = nil
	t.dirty = false
	t.notesDirty = false
	t.mu.Unlock()

	if phase == PhaseRestoring {
		if !notesDirty {
			t.log.Debug("detached before restore, keeping saved progress", zap.String("contentId", id))
			return
		}
		last.Top = restorePos
	}
	t.save(id, last, notes)
	t.log.Debug("detached", zap.String("contentId", id), zap.Int("position", last.Top))
}

func (t *Tracker) save(id string, m Metrics, notes string) {
	t.store.Save(id, m.Top, m.Scrollable(), notes)

	pct := progress.CompletionPercentage(m.Top, m.Scrollable())
	t.mu.Lock()
	if t.contentID == id {
		t.savedPercent = pct
	}
	t.mu.Unlock()
}

// SavedPercentage returns the completion percentage last saved for the
// attached item, for rendering a progress indicator before any scrolling.
func (t *Tracker) SavedPercentage() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.savedPercent
}

// Notes returns the notes for the attached item.
func (t *Tracker) Notes() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.notes
}

// Phase returns the current lifecycle phase.
func (t *Tracker) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// ContentID returns the attached item's id, or "" when unattached.
func (t *Tracker) ContentID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.contentID
}
