package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/boergens/spotify-shokz-sync/internal/models"
)

var (
	_ tea.Msg = pendingLoadedMsg{}
	_ tea.Msg = decisionAppliedMsg{}
)

// pendingLoadedMsg carries the pending queue read from the store.
type pendingLoadedMsg struct {
	tracks []*models.Track
	err    error
}

// decisionAppliedMsg reports one verdict written to the store.
type decisionAppliedMsg struct {
	track    *models.Track
	decision models.Decision
	err      error
}
