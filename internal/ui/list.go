package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"

	"github.com/boergens/spotify-shokz-sync/internal/models"
	"github.com/boergens/spotify-shokz-sync/internal/shared"
)

var (
	_ list.Item = trackItem{}
)

// trackItem wraps [models.Track] to implement [list.Item].
type trackItem struct {
	track *models.Track
}

func (i trackItem) FilterValue() string { return i.track.Display() }
func (i trackItem) Title() string       { return i.track.Name }
func (i trackItem) Description() string {
	desc := i.track.Artist
	if i.track.Album != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.track.Album)
	}
	if i.track.DurationMS > 0 {
		desc = fmt.Sprintf("%s • %s", desc, shared.FormatDuration(i.track.DurationMS))
	}
	return desc
}
