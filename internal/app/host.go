package app

import (
	"sync"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/jwulff/articube/internal/reading"

	tea "github.com/charmbracelet/bubbletea"
)

// viewportHost exposes the reader viewport to the tracker. The tracker runs
// on timer goroutines, so it sees a copy of the viewport geometry taken in
// Update, and scroll requests travel back to Update through restore.
type viewportHost struct {
	mu      sync.Mutex
	metrics reading.Metrics
	restore chan int
	closed  bool
}

func newViewportHost() *viewportHost {
	return &viewportHost{restore: make(chan int, 1)}
}

func (h *viewportHost) Metrics() reading.Metrics {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.metrics
}

func (h *viewportHost) ScrollTo(pos int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	select {
	case h.restore <- pos:
	default:
	}
}

// set records the viewport's current geometry.
func (h *viewportHost) set(vp viewport.Model) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.metrics = reading.Metrics{
		Top:          vp.YOffset,
		ScrollHeight: vp.TotalLineCount(),
		ClientHeight: vp.Height,
	}
}

func (h *viewportHost) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		close(h.restore)
	}
}

// readScrollCmd waits for the tracker to ask for a restore.
func readScrollCmd(h *viewportHost) tea.Cmd {
	return func() tea.Msg {
		pos, ok := <-h.restore
		if !ok {
			return nil
		}
		return scrollRestoreMsg{host: h, pos: pos}
	}
}
