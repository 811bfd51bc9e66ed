package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/boergens/spotify-shokz-sync/internal/models"
	"github.com/boergens/spotify-shokz-sync/internal/repositories"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ReviewView ViewState = iota
	SummaryView
)

// Model represents the reviewer application state.
type Model struct {
	view         ViewState
	store        *repositories.TrackRepository
	width        int
	height       int
	pending      list.Model
	loaded       bool
	approved     int
	rejected     int
	lastTrack    *models.Track
	lastDecision models.Decision
	err          error
	help         help.Model
	keys         keyMap
}

// NewModel creates a reviewer over the pending queue in the given store.
func NewModel(store *repositories.TrackRepository) *Model {
	return &Model{
		view:  ReviewView,
		store: store,
		help:  help.New(),
		keys:  newKeyMap(),
	}
}

// Init loads the pending queue from the store.
func (m *Model) Init() tea.Cmd {
	return m.loadPending()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.loaded {
			m.pending.SetSize(msg.Width-4, msg.Height-8)
		}
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case ReviewView:
			return m.handleReviewKeys(msg)
		case SummaryView:
			return m.handleSummaryKeys(msg)
		}

	case pendingLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		items := make([]list.Item, len(msg.tracks))
		for i, track := range msg.tracks {
			items[i] = trackItem{track: track}
		}
		m.pending = list.New(items, list.NewDefaultDelegate(), 0, 0)
		m.pending.Title = "Pending Tracks"
		m.pending.SetFilteringEnabled(false)
		if m.width > 0 {
			m.pending.SetSize(m.width-4, m.height-8)
		}
		m.loaded = true
		m.view = ReviewView
		return m, nil

	case decisionAppliedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		for i, it := range m.pending.Items() {
			if item, ok := it.(trackItem); ok && item.track.ID == msg.track.ID {
				m.pending.RemoveItem(i)
				if msg.decision == models.DecisionApprove {
					m.approved++
				} else {
					m.rejected++
				}
				m.lastTrack = msg.track
				m.lastDecision = msg.decision
				break
			}
		}
		if len(m.pending.Items()) == 0 {
			m.view = SummaryView
		}
		return m, nil
	}

	if m.loaded && m.view == ReviewView {
		var cmd tea.Cmd
		m.pending, cmd = m.pending.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case ReviewView:
		return m.renderReview()
	case SummaryView:
		return m.renderSummary()
	default:
		return ""
	}
}

func (m *Model) handleReviewKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "y":
		return m, m.decide(models.DecisionApprove)
	case "n":
		return m, m.decide(models.DecisionReject)
	case "r":
		return m, m.loadPending()
	}

	if !m.loaded {
		return m, nil
	}
	var cmd tea.Cmd
	m.pending, cmd = m.pending.Update(msg)
	return m, cmd
}

func (m *Model) handleSummaryKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "r":
		return m, m.loadPending()
	}
	return m, nil
}

// decide writes the verdict for the selected track. The store enforces the
// lifecycle edges, so a track decided elsewhere in the meantime is a no-op.
func (m *Model) decide(decision models.Decision) tea.Cmd {
	if !m.loaded {
		return nil
	}
	selected := m.pending.SelectedItem()
	if selected == nil {
		return nil
	}
	item, ok := selected.(trackItem)
	if !ok {
		return nil
	}

	status := models.StatusApproved
	if decision == models.DecisionReject {
		status = models.StatusRejected
	}
	return func() tea.Msg {
		err := m.store.SetStatus(item.track.ID, status, "")
		return decisionAppliedMsg{track: item.track, decision: decision, err: err}
	}
}

func (m *Model) loadPending() tea.Cmd {
	return func() tea.Msg {
		tracks, err := m.store.ListByStatus(models.StatusPending)
		return pendingLoadedMsg{tracks: tracks, err: err}
	}
}

func (m *Model) renderReview() string {
	if !m.loaded {
		return styles.help.Render("Loading pending tracks...")
	}

	helpKeys := []key.Binding{m.keys.approve, m.keys.reject, m.keys.refresh, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	if len(m.pending.Items()) == 0 {
		title := styles.title.Render("Pending Tracks")
		empty := styles.help.Render("Nothing waiting for review. New likes show up here once the poller sees them.")
		return fmt.Sprintf("%s\n%s\n\n%s", title, empty, helpView)
	}

	return fmt.Sprintf("%s\n%s\n%s", m.pending.View(), m.renderLastDecision(), helpView)
}

func (m *Model) renderLastDecision() string {
	if m.lastTrack == nil {
		return ""
	}
	if m.lastDecision == models.DecisionApprove {
		return styles.ok.Render(fmt.Sprintf("✓ Approved %s", m.lastTrack.Display()))
	}
	return styles.warn.Render(fmt.Sprintf("✗ Rejected %s", m.lastTrack.Display()))
}

func (m *Model) renderSummary() string {
	title := styles.title.Render("Review Complete")
	info := fmt.Sprintf(
		"\n%s %d\n%s %d\n",
		styles.ok.Render("Approved:"), m.approved,
		styles.warn.Render("Rejected:"), m.rejected,
	)

	helpKeys := []key.Binding{m.keys.refresh, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s%s\n%s", title, info, helpView)
}
