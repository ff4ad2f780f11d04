package app

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/glamour"
	"github.com/jwulff/articube/internal/agent"
	"github.com/jwulff/articube/internal/history"
	"github.com/jwulff/articube/internal/progress"
	"github.com/jwulff/articube/internal/reading"
	"github.com/jwulff/articube/internal/search"
	"github.com/jwulff/articube/internal/ui"
	"go.uber.org/zap"

	tea "github.com/charmbracelet/bubbletea"
)

// Mode is the active screen.
type Mode int

const (
	ModeHome Mode = iota
	ModeSearch
	ModeReader
)

// PanelFocus tracks which panel of the search modal has keyboard focus.
type PanelFocus int

const (
	FocusInput PanelFocus = iota
	FocusHistory
)

// HomePanel tracks which home screen list has keyboard focus.
type HomePanel int

const (
	PanelRecent HomePanel = iota
	PanelSaved
)

// ContentSource fetches content items for the reader and manages the
// user's saved list.
type ContentSource interface {
	Content(ctx context.Context, id string) (*agent.Content, error)
	Saved(ctx context.Context) ([]agent.Content, error)
	SaveContent(ctx context.Context, id string, opts agent.SaveOptions) error
	UnsaveContent(ctx context.Context, id string) error
}

// Deps are the collaborators the TUI drives.
type Deps struct {
	Search      *search.Controller
	History     *history.Cache
	Progress    *progress.Store
	Tracker     *reading.Tracker
	Content     ContentSource
	Clipboard   func(string) error
	RecentLimit int
	// Timeout bounds each network command. Zero means no limit.
	Timeout time.Duration
	Logger  *zap.Logger
}

func (d Deps) context() (context.Context, context.CancelFunc) {
	if d.Timeout > 0 {
		return context.WithTimeout(context.Background(), d.Timeout)
	}
	return context.WithCancel(context.Background())
}

// Launch selects what the TUI shows first.
type Launch struct {
	// Query opens the search modal with this query.
	Query string
	// ContentID opens the reader on this item.
	ContentID string
}

// Model is the root bubbletea model for the articube TUI.
type Model struct {
	deps   Deps
	log    *zap.Logger
	launch Launch

	mode   Mode
	width  int
	height int

	// Home
	homeInput      textinput.Model
	homeFocus      HomePanel
	recent         []progress.ReadingProgress
	selectedRecent int
	saved          []agent.Content
	selectedSaved  int

	// Search modal
	focus           PanelFocus
	input           textinput.Model
	spinner         spinner.Model
	resultView      viewport.Model
	session         search.Snapshot
	history         []history.Entry
	selectedHistory int
	renderedAnswer  string
	inflight        int

	// Reader
	readerView     viewport.Model
	readerHost     *viewportHost
	contentID      string
	content        *agent.Content
	loadingContent bool
	notesInput     textinput.Model
	editingNotes   bool

	renderers map[int]*glamour.TermRenderer

	// Errors
	errorMessage   string
	errorTransient bool

	// Status
	statusText string
}

// New creates a Model on the home screen, or on the screen launch asks for.
func New(deps Deps, launch Launch) Model {
	if deps.RecentLimit <= 0 {
		deps.RecentLimit = progress.DefaultRecentLimit
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	home := textinput.New()
	home.Placeholder = "Search the knowledge base..."
	home.Prompt = ""
	home.CharLimit = 1000

	input := textinput.New()
	input.Placeholder = "Ask a question (Enter to search)"
	input.Prompt = "› "
	input.PromptStyle = ui.PromptStyle
	input.CharLimit = 1000

	notes := textinput.New()
	notes.Placeholder = "Notes for this item"
	notes.Prompt = ""
	notes.CharLimit = 2000

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = ui.SpinnerStyle

	m := Model{
		deps:       deps,
		log:        log.Named("tui"),
		launch:     launch,
		homeInput:  home,
		input:      input,
		notesInput: notes,
		spinner:    sp,
		resultView: viewport.New(60, 20),
		readerView: viewport.New(80, 20),
		renderers:  map[int]*glamour.TermRenderer{},
	}
	switch {
	case launch.ContentID != "":
		m.mode = ModeReader
		m.contentID = launch.ContentID
		m.loadingContent = true
	case strings.TrimSpace(launch.Query) != "":
		m.mode = ModeSearch
		m.input.SetValue(launch.Query)
		m.input.Focus()
		m.inflight = 1
	}
	return m
}

// Init loads recent reading and starts whatever the launch asked for.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{loadRecentCmd(m.deps.Progress, m.deps.RecentLimit), loadSavedCmd(m.deps)}
	switch m.mode {
	case ModeReader:
		cmds = append(cmds, fetchContentCmd(m.deps, m.contentID), m.spinner.Tick)
	case ModeSearch:
		cmds = append(cmds, openSearchCmd(m.deps, m.launch.Query), m.spinner.Tick)
	}
	return tea.Batch(cmds...)
}

// openSearchCmd opens the search session, carrying query in.
func openSearchCmd(d Deps, query string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := d.context()
		defer cancel()
		return SearchOpenedMsg{Query: query, Err: d.Search.Open(ctx, query)}
	}
}

// submitCmd dispatches a typed query.
func submitCmd(d Deps, query string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := d.context()
		defer cancel()
		return SearchDoneMsg{Query: query, Err: d.Search.Submit(ctx, query)}
	}
}

// selectHistoryCmd re-runs a history entry.
func selectHistoryCmd(d Deps, entry history.Entry) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := d.context()
		defer cancel()
		return SearchDoneMsg{Query: entry.Query, Err: d.Search.SelectHistoryItem(ctx, entry)}
	}
}

// loadRecentCmd reads the most recently read items.
func loadRecentCmd(store *progress.Store, limit int) tea.Cmd {
	return func() tea.Msg {
		return RecentLoadedMsg{Items: store.GetRecent(limit)}
	}
}

// fetchContentCmd loads a content item for the reader.
func fetchContentCmd(d Deps, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := d.context()
		defer cancel()
		c, err := d.Content.Content(ctx, id)
		return ContentLoadedMsg{ID: id, Content: c, Err: err}
	}
}

// loadSavedCmd fetches the saved list.
func loadSavedCmd(d Deps) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := d.context()
		defer cancel()
		items, err := d.Content.Saved(ctx)
		return SavedLoadedMsg{Items: items, Err: err}
	}
}

// toggleSaveCmd adds id to the saved list, or removes it when save is false.
func toggleSaveCmd(d Deps, id string, save bool, opts agent.SaveOptions) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := d.context()
		defer cancel()
		var err error
		if save {
			err = d.Content.SaveContent(ctx, id, opts)
		} else {
			err = d.Content.UnsaveContent(ctx, id)
		}
		return SaveToggledMsg{ID: id, Saved: save, Err: err}
	}
}

// copyCmd writes text to the system clipboard.
func copyCmd(write func(string) error, text string) tea.Cmd {
	return func() tea.Msg {
		return ClipboardMsg{Err: write(text)}
	}
}

// clearTransientErrorCmd fires after a delay to clear transient errors.
func clearTransientErrorCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(time.Time) tea.Msg {
		return ClearTransientErrorMsg{}
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		if m.mode == ModeReader {
			return m.scrollReader(msg)
		}
		if m.mode == ModeSearch {
			var cmd tea.Cmd
			m.resultView, cmd = m.resultView.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case SearchOpenedMsg:
		if strings.TrimSpace(msg.Query) != "" {
			m.settle()
		}
		m.syncSession()
		if msg.Err != nil && m.mode == ModeSearch {
			return m, m.showError(agent.AsDisplay(msg.Err, agent.HistoryFailedMessage).Message)
		}
		return m, nil

	case SearchDoneMsg:
		m.settle()
		m.syncSession()
		if search.IsValidation(msg.Err) && m.mode == ModeSearch {
			return m, m.showError(msg.Err.Error())
		}
		return m, nil

	case spinner.TickMsg:
		m.syncSession()
		if !m.busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case RecentLoadedMsg:
		m.recent = msg.Items
		if m.selectedRecent >= len(m.recent) {
			m.selectedRecent = max(0, len(m.recent)-1)
		}
		return m, nil

	case SavedLoadedMsg:
		if msg.Err != nil {
			return m, m.showError(agent.AsDisplay(msg.Err, agent.SavedFailedMessage).Message)
		}
		m.saved = msg.Items
		if m.selectedSaved >= len(m.saved) {
			m.selectedSaved = max(0, len(m.saved)-1)
		}
		return m, nil

	case SaveToggledMsg:
		if msg.Err != nil {
			fallback := agent.SaveFailedMessage
			if !msg.Saved {
				fallback = agent.UnsaveFailedMessage
			}
			return m, m.showError(agent.AsDisplay(msg.Err, fallback).Message)
		}
		if msg.Saved {
			m.statusText = "Saved"
		} else {
			m.statusText = "Removed from saved"
		}
		return m, loadSavedCmd(m.deps)

	case ContentLoadedMsg:
		if m.mode != ModeReader || msg.ID != m.contentID {
			return m, nil
		}
		m.loadingContent = false
		if msg.Err != nil {
			return m, m.showError(agent.AsDisplay(msg.Err, agent.ContentFailedMessage).Message)
		}
		m.content = msg.Content
		return m, m.attachReader()

	case scrollRestoreMsg:
		if m.mode != ModeReader || msg.host != m.readerHost {
			return m, nil
		}
		m.readerView.SetYOffset(msg.pos)
		m.readerHost.set(m.readerView)
		m.deps.Tracker.OnScroll()
		return m, nil

	case ClipboardMsg:
		if msg.Err != nil {
			return m, m.showError("Could not copy to clipboard: " + msg.Err.Error())
		}
		m.statusText = "Answer copied to clipboard"
		return m, nil

	case ClearTransientErrorMsg:
		if m.errorTransient {
			m.errorMessage = ""
			m.errorTransient = false
		}
		return m, nil
	}

	return m, nil
}

// handleKey routes key presses to the active screen.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == KeyCtrlC {
		return m.quit()
	}
	switch m.mode {
	case ModeSearch:
		return m.handleSearchKey(msg)
	case ModeReader:
		return m.handleReaderKey(msg)
	}
	return m.handleHomeKey(msg)
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	switch m.mode {
	case ModeSearch:
		m.deps.Search.Close()
	case ModeReader:
		m.closeReader()
	}
	return m, tea.Quit
}

func (m Model) handleHomeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.homeInput.Focused() {
		switch msg.String() {
		case KeyEnter:
			query := m.homeInput.Value()
			m.homeInput.Reset()
			m.homeInput.Blur()
			return m.openSearch(query)
		case KeyEsc:
			m.homeInput.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.homeInput, cmd = m.homeInput.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case KeyQuit:
		return m.quit()

	case KeySearch:
		return m, m.homeInput.Focus()

	case KeyTab:
		if m.homeFocus == PanelRecent {
			m.homeFocus = PanelSaved
		} else {
			m.homeFocus = PanelRecent
		}
		return m, nil

	case KeyJ, KeyDown:
		if m.homeFocus == PanelSaved {
			if m.selectedSaved < len(m.saved)-1 {
				m.selectedSaved++
			}
		} else if m.selectedRecent < len(m.recent)-1 {
			m.selectedRecent++
		}
		return m, nil

	case KeyK, KeyUp:
		if m.homeFocus == PanelSaved {
			if m.selectedSaved > 0 {
				m.selectedSaved--
			}
		} else if m.selectedRecent > 0 {
			m.selectedRecent--
		}
		return m, nil

	case KeyRefresh:
		return m, tea.Batch(loadRecentCmd(m.deps.Progress, m.deps.RecentLimit), loadSavedCmd(m.deps))

	case KeyUnsave:
		if m.homeFocus == PanelSaved && m.selectedSaved < len(m.saved) {
			return m, toggleSaveCmd(m.deps, m.saved[m.selectedSaved].ID, false, agent.SaveOptions{})
		}
		return m, nil

	case KeyEnter:
		if m.homeFocus == PanelSaved {
			if m.selectedSaved < len(m.saved) {
				return m.openReader(m.saved[m.selectedSaved].ID)
			}
			return m, nil
		}
		if m.selectedRecent < len(m.recent) {
			return m.openReader(m.recent[m.selectedRecent].ContentID)
		}
		return m, nil
	}
	return m, nil
}

// openSearch shows the search modal. A non-blank query is dispatched as
// the modal opens.
func (m Model) openSearch(query string) (tea.Model, tea.Cmd) {
	m.mode = ModeSearch
	m.focus = FocusInput
	m.selectedHistory = 0
	m.statusText = ""
	m.input.SetValue(query)
	m.input.CursorEnd()

	cmds := []tea.Cmd{m.input.Focus(), openSearchCmd(m.deps, query)}
	if strings.TrimSpace(query) != "" {
		m.inflight++
		cmds = append(cmds, m.spinner.Tick)
	}
	return m, tea.Batch(cmds...)
}

func (m Model) closeSearch() (tea.Model, tea.Cmd) {
	m.deps.Search.Close()
	m.mode = ModeHome
	m.focus = FocusInput
	m.inflight = 0
	m.input.Reset()
	m.input.Blur()
	m.statusText = ""
	m.syncSession()
	return m, loadRecentCmd(m.deps.Progress, m.deps.RecentLimit)
}

func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyEsc:
		return m.closeSearch()

	case KeyTab:
		if m.focus == FocusInput {
			m.focus = FocusHistory
			m.input.Blur()
			return m, nil
		}
		m.focus = FocusInput
		return m, m.input.Focus()

	case KeyClearResult:
		m.deps.Search.ClearResult()
		m.syncSession()
		return m, nil

	case KeyCopyCtrl:
		return m.copyAnswer()

	case KeyPgUp, KeyPgDown:
		var cmd tea.Cmd
		m.resultView, cmd = m.resultView.Update(msg)
		return m, cmd
	}

	if m.focus == FocusHistory {
		return m.handleHistoryKey(msg)
	}

	if msg.String() == KeyEnter {
		m.inflight++
		m.statusText = ""
		return m, tea.Batch(submitCmd(m.deps, m.input.Value()), m.spinner.Tick)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.deps.Search.SetQuery(m.input.Value())
	return m, cmd
}

func (m Model) handleHistoryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyJ, KeyDown:
		if m.selectedHistory < len(m.history)-1 {
			m.selectedHistory++
		}
		return m, nil

	case KeyK, KeyUp:
		if m.selectedHistory > 0 {
			m.selectedHistory--
		}
		return m, nil

	case KeyCopy:
		return m.copyAnswer()

	case KeyEnter:
		if m.selectedHistory < len(m.history) {
			entry := m.history[m.selectedHistory]
			m.input.SetValue(entry.Query)
			m.inflight++
			m.statusText = ""
			return m, tea.Batch(selectHistoryCmd(m.deps, entry), m.spinner.Tick)
		}
		return m, nil
	}
	return m, nil
}

func (m Model) copyAnswer() (tea.Model, tea.Cmd) {
	if m.session.Result == nil || m.deps.Clipboard == nil {
		return m, nil
	}
	return m, copyCmd(m.deps.Clipboard, m.session.Result.Response)
}

func (m Model) openReader(contentID string) (tea.Model, tea.Cmd) {
	m.closeReader()
	m.mode = ModeReader
	m.contentID = contentID
	m.content = nil
	m.loadingContent = true
	m.editingNotes = false
	return m, tea.Batch(fetchContentCmd(m.deps, contentID), m.spinner.Tick)
}

// attachReader shows the loaded content and starts tracking its scroll
// position.
func (m *Model) attachReader() tea.Cmd {
	m.readerView.SetContent(m.renderContent())
	m.readerView.GotoTop()
	m.readerHost = newViewportHost()
	m.readerHost.set(m.readerView)
	m.deps.Tracker.Attach(m.contentID, m.readerHost)
	m.notesInput.SetValue(m.deps.Tracker.Notes())
	return readScrollCmd(m.readerHost)
}

// closeReader stops tracking, which writes the final position.
func (m *Model) closeReader() {
	if m.readerHost == nil {
		return
	}
	m.deps.Tracker.Detach()
	m.readerHost.close()
	m.readerHost = nil
}

func (m Model) handleReaderKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.editingNotes {
		switch msg.String() {
		case KeyEnter:
			m.deps.Tracker.SetNotes(m.notesInput.Value())
			m.editingNotes = false
			m.notesInput.Blur()
			m.statusText = "Notes saved"
			return m, nil
		case KeyEsc:
			m.notesInput.SetValue(m.deps.Tracker.Notes())
			m.editingNotes = false
			m.notesInput.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.notesInput, cmd = m.notesInput.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case KeyEsc:
		m.closeReader()
		m.mode = ModeHome
		m.content = nil
		m.contentID = ""
		m.loadingContent = false
		m.statusText = ""
		return m, loadRecentCmd(m.deps.Progress, m.deps.RecentLimit)

	case KeyQuit:
		return m.quit()

	case KeyNotes:
		if m.readerHost == nil {
			return m, nil
		}
		m.editingNotes = true
		m.statusText = ""
		return m, m.notesInput.Focus()

	case KeySave:
		return m.toggleSave()
	}

	return m.scrollReader(msg)
}

// toggleSave saves the open item with its position and notes, or removes
// it from the saved list when it is already there.
func (m Model) toggleSave() (tea.Model, tea.Cmd) {
	if m.contentID == "" {
		return m, nil
	}
	if m.isSaved(m.contentID) {
		return m, toggleSaveCmd(m.deps, m.contentID, false, agent.SaveOptions{})
	}
	var opts agent.SaveOptions
	if m.readerHost != nil {
		pos := m.readerHost.Metrics().Top
		opts.ReadPosition = &pos
		opts.Notes = m.deps.Tracker.Notes()
	}
	return m, toggleSaveCmd(m.deps, m.contentID, true, opts)
}

func (m Model) isSaved(id string) bool {
	for _, c := range m.saved {
		if c.ID == id {
			return true
		}
	}
	return false
}

// scrollReader hands msg to the reader viewport and reports any movement
// to the tracker.
func (m Model) scrollReader(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.readerHost == nil {
		return m, nil
	}
	before := m.readerView.YOffset
	var cmd tea.Cmd
	m.readerView, cmd = m.readerView.Update(msg)
	if m.readerView.YOffset != before {
		m.readerHost.set(m.readerView)
		m.deps.Tracker.OnScroll()
	}
	return m, cmd
}

// syncSession copies controller and history state into the model and
// re-renders the answer when it changed.
func (m *Model) syncSession() {
	m.session = m.deps.Search.Snapshot()
	m.history = m.deps.History.Entries()
	if m.selectedHistory >= len(m.history) {
		m.selectedHistory = max(0, len(m.history)-1)
	}

	answer := ""
	if m.session.Result != nil {
		answer = ResultMarkdown(m.session.Result)
	}
	if answer != m.renderedAnswer {
		m.renderedAnswer = answer
		m.resultView.SetContent(m.markdown(answer, m.resultView.Width))
		m.resultView.GotoTop()
	}
}

func (m *Model) settle() {
	if m.inflight > 0 {
		m.inflight--
	}
}

func (m Model) busy() bool {
	return m.inflight > 0 || m.session.Loading || m.loadingContent
}

func (m *Model) showError(text string) tea.Cmd {
	m.errorMessage = text
	m.errorTransient = true
	return clearTransientErrorCmd()
}

func (m *Model) resize() {
	m.homeInput.Width = max(10, m.width-6)
	m.input.Width = max(10, m.width-6)
	m.notesInput.Width = max(10, m.width-10)

	m.resultView.Width = m.resultPanelWidth()
	m.resultView.Height = m.contentHeight() - 1
	if m.renderedAnswer != "" {
		m.resultView.SetContent(m.markdown(m.renderedAnswer, m.resultView.Width))
	}

	m.readerView.Width = m.width
	m.readerView.Height = m.readerHeight()
	if m.content != nil {
		offset := m.readerView.YOffset
		m.readerView.SetContent(m.renderContent())
		m.readerView.SetYOffset(offset)
		if m.readerHost != nil {
			m.readerHost.set(m.readerView)
			m.deps.Tracker.OnScroll()
		}
	}
}

// markdown renders src for the given width, falling back to the raw text.
func (m *Model) markdown(src string, width int) string {
	if src == "" {
		return ""
	}
	width = max(20, width-2)
	r, ok := m.renderers[width]
	if !ok {
		var err error
		r, err = glamour.NewTermRenderer(
			glamour.WithStylePath("dark"),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			m.log.Warn("create markdown renderer", zap.Error(err))
			return src
		}
		m.renderers[width] = r
	}
	out, err := r.Render(src)
	if err != nil {
		m.log.Debug("render markdown", zap.Error(err))
		return src
	}
	return strings.TrimRight(out, "\n")
}

func (m Model) renderContent() string {
	if m.content == nil {
		return ""
	}
	return m.markdown(contentMarkdown(m.content), m.readerView.Width)
}

// Mode returns the active screen.
func (m Model) Mode() Mode { return m.mode }
