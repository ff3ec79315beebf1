package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/reflow/wordwrap"

	"github.com/tildaslashalef/driftq/internal/app"
	"github.com/tildaslashalef/driftq/internal/syncer"
	"github.com/tildaslashalef/driftq/internal/tui"
)

// SyncKeyMap defines keybindings for the sync TUI
type SyncKeyMap struct {
	Help key.Binding
	Quit key.Binding
}

// ShortHelp returns keybindings to show in the mini help view
func (k SyncKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Quit}
}

// FullHelp returns all keybindings for the help view
func (k SyncKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Help, k.Quit},
	}
}

// DefaultSyncKeyMap returns the default keybindings
func DefaultSyncKeyMap() SyncKeyMap {
	return SyncKeyMap{
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// Message types
type (
	// syncStartedMsg is forwarded from the sync-started event
	syncStartedMsg struct {
		eligible int
	}

	// queueUpdatedMsg is forwarded after every queue mutation
	queueUpdatedMsg struct{}

	// syncDoneMsg carries the blocking run's outcome
	syncDoneMsg struct {
		summary *syncer.Summary
		err     error
	}
)

// SyncModel represents the state of the sync TUI
type SyncModel struct {
	app      *app.App
	keymap   SyncKeyMap
	help     help.Model
	spinner  spinner.Model
	progress progress.Model
	styles   tui.Styles

	width    int
	showHelp bool
	eligible int
	summary  *syncer.Summary
	err      error
	done     bool
}

// NewSyncModel creates a new sync model
func NewSyncModel(a *app.App) SyncModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = tui.DefaultStyles().Spinner

	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(40),
		progress.WithoutPercentage(),
	)

	return SyncModel{
		app:      a,
		keymap:   DefaultSyncKeyMap(),
		help:     help.New(),
		spinner:  s,
		progress: p,
		styles:   tui.DefaultStyles(),
		width:    80,
	}
}

// Init starts the spinner and kicks off the blocking run
func (m SyncModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.runSync(),
	)
}

// runSync drains the queue on a background goroutine and reports back
func (m SyncModel) runSync() tea.Cmd {
	return func() tea.Msg {
		summary, err := m.app.Syncer.SyncNow(context.Background())
		return syncDoneMsg{summary: summary, err: err}
	}
}

// Update handles messages
func (m SyncModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keymap.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keymap.Help):
			m.showHelp = !m.showHelp
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		model, cmd := m.progress.Update(msg)
		m.progress = model.(progress.Model)
		return m, cmd

	case syncStartedMsg:
		m.eligible = msg.eligible
		return m, nil

	case queueUpdatedMsg:
		return m, m.progress.SetPercent(m.percentDone())

	case syncDoneMsg:
		m.done = true
		m.summary = msg.summary
		m.err = msg.err
		return m, tea.Sequence(m.progress.SetPercent(1.0), tea.Quit)
	}

	return m, nil
}

// percentDone derives run progress from what is left on the queue
func (m SyncModel) percentDone() float64 {
	if m.eligible == 0 {
		return 0
	}

	remaining := 0
	for _, item := range m.app.Queue.Items() {
		if item.Eligible() {
			remaining++
		}
	}

	done := m.eligible - remaining
	if done < 0 {
		done = 0
	}
	return float64(done) / float64(m.eligible)
}

// View renders the sync progress or the final summary
func (m SyncModel) View() string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("driftq sync"))
	b.WriteString("\n\n")

	switch {
	case !m.done:
		b.WriteString(fmt.Sprintf("%s Replaying queued mutations...\n\n", m.spinner.View()))
		b.WriteString(m.progress.View())
		b.WriteString("\n")

	case m.err != nil:
		b.WriteString(m.styles.Error.Render("Sync failed: " + m.err.Error()))
		b.WriteString("\n")

	default:
		b.WriteString(m.renderSummary())
	}

	if m.showHelp {
		b.WriteString("\n" + m.help.View(m.keymap))
	} else {
		b.WriteString("\n" + m.styles.Subtle.Render("? help · q quit"))
	}
	b.WriteString("\n")

	return b.String()
}

// renderSummary renders the run outcome plus any terminal failures that
// now need user attention
func (m SyncModel) renderSummary() string {
	var b strings.Builder

	if m.summary == nil || m.summary.Attempted == 0 {
		b.WriteString(m.styles.Info.Render("Nothing to sync"))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(m.styles.Success.Render(fmt.Sprintf("✓ %d succeeded", m.summary.Succeeded)))
	if m.summary.Failed > 0 {
		b.WriteString("  ")
		b.WriteString(m.styles.Warning.Render(fmt.Sprintf("%d will retry", m.summary.Failed)))
	}
	if m.summary.TerminallyFailed > 0 {
		b.WriteString("  ")
		b.WriteString(m.styles.Error.Render(fmt.Sprintf("%d need attention", m.summary.TerminallyFailed)))
	}
	b.WriteString("\n")

	wrapWidth := m.width - 4
	if wrapWidth < 20 {
		wrapWidth = 20
	}

	for _, item := range m.app.Queue.Items() {
		if !item.Terminal() {
			continue
		}
		reason := wordwrap.String(item.Description()+": "+item.LastError, wrapWidth)
		b.WriteString(m.styles.Subtle.Render(reason))
		b.WriteString("\n")
	}

	return b.String()
}
