// Package ui implements the interactive review terminal using bubbletea's Elm architecture.
//
// The TUI walks the operator through the pending queue:
//  1. [ReviewView] : Navigate pending tracks and approve (y) or reject (n) each one
//  2. [SummaryView] : Session totals once the queue is drained
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern.
// Verdicts are written straight to the track store, so the daemon's capture loop
// picks approvals up on its next pass even while the reviewer stays open. It is
// the local fallback for the chat-based approval channel.
//
// Keyboard navigation uses vim-style bindings (j/k, y/n, r, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
