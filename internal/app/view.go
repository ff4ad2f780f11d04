package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jwulff/articube/internal/agent"
	"github.com/jwulff/articube/internal/progress"
	"github.com/jwulff/articube/internal/reading"
	"github.com/jwulff/articube/internal/search"
	"github.com/jwulff/articube/internal/ui"
)

func (m Model) contentHeight() int {
	if m.height == 0 {
		return 20
	}
	// Reserve: header(1) + input(1) + divider(1) + divider(1) + error(1) + footer(1) + padding
	reserved := 7
	return max(5, m.height-reserved)
}

func (m Model) readerHeight() int {
	if m.height == 0 {
		return 20
	}
	// Reserve: header(1) + divider(1) + divider(1) + notes(1) + error(1) + footer(1)
	return max(3, m.height-6)
}

func (m Model) historyPanelWidth() int {
	if m.width == 0 {
		return 30
	}
	return max(20, m.width*30/100)
}

func (m Model) resultPanelWidth() int {
	if m.width == 0 {
		return 60
	}
	return max(30, m.width-m.historyPanelWidth()-3)
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sections []string
	switch m.mode {
	case ModeSearch:
		sections = m.searchSections()
	case ModeReader:
		sections = m.readerSections()
	default:
		sections = m.homeSections()
	}

	if m.errorMessage != "" {
		sections = append(sections, m.renderErrorBar())
	} else if m.statusText != "" {
		sections = append(sections, ui.StatusStyle.Render(m.statusText))
	}
	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) divider() string {
	return ui.DividerStyle.Render(strings.Repeat("─", m.width))
}

func (m Model) homeSections() []string {
	header := ui.TitleStyle.Render("ARTICUBE") + ui.DimStyle.Render(" knowledge search")

	var bar string
	if m.homeInput.Focused() {
		bar = ui.PromptStyle.Render("/ ") + m.homeInput.View()
	} else {
		bar = ui.DimStyle.Render("Press / to search")
	}

	height := m.contentHeight()
	lines := []string{panelTitle(fmt.Sprintf("CONTINUE READING (%d)", len(m.recent)), m.homeFocus == PanelRecent)}
	if len(m.recent) == 0 {
		lines = append(lines, ui.DimStyle.Render("  Nothing read yet."))
	}
	for i, p := range m.recent {
		lines = append(lines, m.renderRecentRow(i, p))
		if p.Notes != "" {
			lines = append(lines, ui.NotesStyle.Render("      "+truncateToWidth(p.Notes, max(10, m.width-8))))
		}
	}

	lines = append(lines, "", panelTitle(fmt.Sprintf("SAVED (%d)", len(m.saved)), m.homeFocus == PanelSaved))
	if len(m.saved) == 0 {
		lines = append(lines, ui.DimStyle.Render("  Nothing saved yet. Press s in the reader to save an item."))
	}
	for i, c := range m.saved {
		lines = append(lines, m.renderSavedRow(i, c))
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	if len(lines) > height {
		lines = lines[:height]
	}

	return []string{header, bar, m.divider(), strings.Join(lines, "\n"), m.divider()}
}

func (m Model) renderRecentRow(i int, p progress.ReadingProgress) string {
	when := ui.TimestampStyle.Render(p.LastRead.Local().Format("Jan 2 15:04"))
	meter := renderProgressBar(p.CompletionPercentage, 10) + fmt.Sprintf(" %3d%%", p.CompletionPercentage)
	idWidth := max(10, m.width-30)
	id := truncateToWidth(p.ContentID, idWidth)

	if i == m.selectedRecent && m.homeFocus == PanelRecent {
		return ui.SelectedStyle.Render("> ") + padRight(ui.SelectedStyle.Render(id), idWidth) + " " + meter + "  " + when
	}
	return "  " + padRight(id, idWidth) + " " + meter + "  " + when
}

func (m Model) renderSavedRow(i int, c agent.Content) string {
	title := c.Title
	if title == "" {
		title = c.ID
	}
	kind := ""
	if c.ContentType != "" {
		kind = ui.DimStyle.Render(" [" + c.ContentType + "]")
	}
	title = truncateToWidth(title, max(10, m.width-20))

	if i == m.selectedSaved && m.homeFocus == PanelSaved {
		return ui.SelectedStyle.Render("> "+title) + kind
	}
	return "  " + title + kind
}

func panelTitle(title string, active bool) string {
	if active {
		return ui.PanelTitleActiveStyle.Render(title)
	}
	return ui.PanelTitleStyle.Render(title)
}

func renderProgressBar(percent, barLen int) string {
	filled := percent * barLen / 100
	if filled > barLen {
		filled = barLen
	}
	style := ui.ProgressFillStyle
	if percent >= 100 {
		style = ui.ProgressDoneStyle
	}

	var bar string
	for i := 0; i < barLen; i++ {
		if i < filled {
			bar += style.Render("█")
		} else {
			bar += ui.ProgressEmptyStyle.Render("░")
		}
	}
	return bar
}

func (m Model) searchSections() []string {
	header := ui.TitleStyle.Render("SEARCH")
	if m.session.Loading {
		header += "  " + m.spinner.View() + ui.DimStyle.Render(" searching")
	}
	return []string{header, m.input.View(), m.divider(), m.renderMainContent(), m.divider()}
}

func (m Model) renderMainContent() string {
	historyW := m.historyPanelWidth()
	resultW := m.resultPanelWidth()
	contentH := m.contentHeight()

	historyPanel := m.renderHistoryPanel(historyW, contentH)
	resultPanel := m.renderResultPanel(resultW, contentH)

	divider := ui.DividerStyle.Render("│")

	historyLines := strings.Split(historyPanel, "\n")
	resultLines := strings.Split(resultPanel, "\n")

	for len(historyLines) < contentH {
		historyLines = append(historyLines, strings.Repeat(" ", historyW))
	}

	var rows []string
	for i := 0; i < contentH; i++ {
		r := ""
		if i < len(resultLines) {
			r = resultLines[i]
		}
		rows = append(rows, historyLines[i]+divider+r)
	}
	return strings.Join(rows, "\n")
}

func (m Model) renderHistoryPanel(width, height int) string {
	title := fmt.Sprintf("HISTORY (%d)", len(m.history))
	var header string
	if m.focus == FocusHistory {
		header = ui.PanelTitleActiveStyle.Render(title)
	} else {
		header = ui.PanelTitleStyle.Render(title)
	}

	lines := []string{header}
	if len(m.history) == 0 {
		lines = append(lines, ui.DimStyle.Render("  No searches yet"))
	}
	for i, e := range m.history {
		query := truncateToWidth(e.Query, max(5, width-3))
		switch {
		case i == m.selectedHistory && m.focus == FocusHistory:
			lines = append(lines, ui.SelectedStyle.Render("> "+query))
		case e.Optimistic:
			lines = append(lines, ui.PendingStyle.Render("  "+query))
		default:
			lines = append(lines, "  "+query)
		}
	}

	if len(lines) > height {
		lines = lines[:height]
	}
	for i, l := range lines {
		lines[i] = padRight(l, width)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderResultPanel(width, height int) string {
	lines := []string{ui.PanelTitleStyle.Render("ANSWER")}

	switch {
	case m.session.Loading:
		lines = append(lines, "", "  "+m.spinner.View()+" Retrieving information...")
	case m.session.Error != "":
		lines = append(lines, "")
		for _, l := range wrapText(m.session.Error, max(10, width-4)) {
			lines = append(lines, ui.ErrorTextStyle.Render("  "+l))
		}
	case m.session.Result != nil:
		lines = append(lines, strings.Split(m.resultView.View(), "\n")...)
	default:
		lines = append(lines, "", ui.DimStyle.Render("  Type a question and press Enter"))
	}

	if len(lines) > height {
		lines = lines[:height]
	}
	return strings.Join(lines, "\n")
}

func (m Model) readerSections() []string {
	title := m.contentID
	if m.content != nil && m.content.Title != "" {
		title = m.content.Title
	}
	pct := m.readerPercent()
	header := ui.TitleStyle.Render(truncateToWidth(title, max(10, m.width-30))) +
		"  " + renderProgressBar(pct, 10) + fmt.Sprintf(" %d%%", pct)
	if m.isSaved(m.contentID) {
		header += "  " + ui.SourceTitleStyle.Render("★ saved")
	}

	var body string
	switch {
	case m.loadingContent:
		body = "\n  " + m.spinner.View() + " Loading content..."
	case m.content == nil:
		body = "\n" + ui.DimStyle.Render("  Content unavailable.")
	default:
		body = m.readerView.View()
	}
	body = padLines(body, m.readerHeight())

	var notes string
	switch {
	case m.editingNotes:
		notes = ui.PromptStyle.Render("Notes: ") + m.notesInput.View()
	case m.readerHost != nil && m.deps.Tracker.Notes() != "":
		notes = ui.NotesStyle.Render("Notes: " + m.deps.Tracker.Notes())
	default:
		notes = ui.DimStyle.Render("No notes")
	}

	return []string{header, m.divider(), body, m.divider(), notes}
}

// readerPercent is the saved percentage until the saved position has been
// restored, then the live position.
func (m Model) readerPercent() int {
	if m.readerHost == nil {
		return 0
	}
	if m.deps.Tracker.Phase() == reading.PhaseRestoring {
		return m.deps.Tracker.SavedPercentage()
	}
	mt := m.readerHost.Metrics()
	return progress.CompletionPercentage(mt.Top, mt.Scrollable())
}

func (m Model) renderErrorBar() string {
	return ui.ErrorStyle.Render("Error: ") + ui.ErrorTextStyle.Render(m.errorMessage)
}

func footerItem(key, desc string) string {
	return ui.FooterKeyStyle.Render(key) + ui.FooterDescStyle.Render(" "+desc)
}

func (m Model) renderFooter() string {
	var parts []string

	switch m.mode {
	case ModeSearch:
		parts = append(parts, footerItem("Enter", "Search"))
		parts = append(parts, footerItem("Tab", "History"))
		if m.focus == FocusHistory {
			parts = append(parts, footerItem("j/k", "Nav"))
		}
		parts = append(parts, footerItem("PgUp/PgDn", "Scroll"))
		parts = append(parts, footerItem("^L", "Clear"))
		parts = append(parts, footerItem("^Y", "Copy"))
		parts = append(parts, footerItem("Esc", "Close"))
	case ModeReader:
		if m.editingNotes {
			parts = append(parts, footerItem("Enter", "Save notes"))
			parts = append(parts, footerItem("Esc", "Cancel"))
		} else {
			parts = append(parts, footerItem("↑↓", "Scroll"))
			parts = append(parts, footerItem("n", "Notes"))
			if m.isSaved(m.contentID) {
				parts = append(parts, footerItem("s", "Unsave"))
			} else {
				parts = append(parts, footerItem("s", "Save"))
			}
			parts = append(parts, footerItem("Esc", "Back"))
			parts = append(parts, footerItem("q", "Quit"))
		}
	default:
		if m.homeInput.Focused() {
			parts = append(parts, footerItem("Enter", "Search"))
			parts = append(parts, footerItem("Esc", "Cancel"))
		} else {
			parts = append(parts, footerItem("/", "Search"))
			parts = append(parts, footerItem("Tab", "Recent/Saved"))
			parts = append(parts, footerItem("j/k", "Nav"))
			parts = append(parts, footerItem("Enter", "Read"))
			if m.homeFocus == PanelSaved {
				parts = append(parts, footerItem("x", "Unsave"))
			}
			parts = append(parts, footerItem("r", "Refresh"))
			parts = append(parts, footerItem("q", "Quit"))
		}
	}

	return strings.Join(parts, "  ")
}

// ResultMarkdown formats an answer and its sources as markdown.
func ResultMarkdown(r *search.Result) string {
	var b strings.Builder
	b.WriteString(r.Response)
	if len(r.Sources) > 0 {
		b.WriteString("\n\n---\n\n**Sources**\n\n")
		for _, s := range r.Sources {
			title := s.Title
			if title == "" {
				title = s.Link
			}
			if s.Link != "" {
				fmt.Fprintf(&b, "- [%s](%s)", title, s.Link)
			} else {
				fmt.Fprintf(&b, "- %s", title)
			}
			if s.Snippet != "" {
				fmt.Fprintf(&b, ": %s", s.Snippet)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// contentMarkdown formats a content item for the reader.
func contentMarkdown(c *agent.Content) string {
	var b strings.Builder
	if c.Title != "" {
		fmt.Fprintf(&b, "# %s\n\n", c.Title)
	}
	if c.Summary != "" {
		fmt.Fprintf(&b, "_%s_\n\n", c.Summary)
	}
	b.WriteString(c.FullContent)
	if c.SourceURL != "" {
		fmt.Fprintf(&b, "\n\nSource: %s", c.SourceURL)
	}
	if len(c.Tags) > 0 {
		fmt.Fprintf(&b, "\n\nTags: %s", strings.Join(c.Tags, ", "))
	}
	return b.String()
}

// Helpers

func padRight(s string, width int) string {
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

func padLines(s string, height int) string {
	lines := strings.Split(s, "\n")
	for len(lines) < height {
		lines = append(lines, "")
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	return strings.Join(lines, "\n")
}

func truncateToWidth(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	if len(runes) > width-1 {
		return string(runes[:width-1]) + "…"
	}
	return s
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		var current string
		for _, word := range strings.Fields(paragraph) {
			if current == "" {
				current = word
			} else if len(current)+1+len(word) <= width {
				current += " " + word
			} else {
				lines = append(lines, current)
				current = word
			}
		}
		lines = append(lines, current)
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}
