// package models defines the track entity and its lifecycle state machine
package models

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle stage of a track.
type Status string

const (
	StatusPending  Status = "pending"  // announced, awaiting a human decision
	StatusApproved Status = "approved" // approved for capture
	StatusRejected Status = "rejected" // declined; terminal
	StatusRecorded Status = "recorded" // captured and tagged, awaiting device sync
	StatusSynced   Status = "synced"   // copied to a device; terminal
)

// Statuses lists every defined status in pipeline order.
var Statuses = []Status{StatusPending, StatusApproved, StatusRejected, StatusRecorded, StatusSynced}

// ParseStatus converts user/database input into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusPending:
		return StatusPending, nil
	case StatusApproved:
		return StatusApproved, nil
	case StatusRejected:
		return StatusRejected, nil
	case StatusRecorded:
		return StatusRecorded, nil
	case StatusSynced:
		return StatusSynced, nil
	default:
		return "", fmt.Errorf("unknown track status: %q", s)
	}
}

func (s Status) String() string { return string(s) }

// Terminal reports whether no further transitions leave this status.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusSynced
}

// CanTransition reports whether the edge from → to exists in the lifecycle
// state machine. Self-transitions are not edges; retries keep the status
// unchanged without passing through here.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusApproved || to == StatusRejected
	case StatusApproved:
		return to == StatusRecorded
	case StatusRecorded:
		return to == StatusSynced
	default:
		return false
	}
}

// ValidateTransition returns an error describing an illegal edge, nil otherwise.
func ValidateTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid track status transition %s -> %s", from, to)
	}
	return nil
}

// Track is a single liked song moving through the pipeline.
//
// Identity and the descriptive fields come from the catalog source and are
// immutable after insertion. Status, artifact and retry fields are owned by
// the store.
type Track struct {
	ID          string // stable catalog identifier (Spotify track ID)
	Name        string
	Artist      string
	Album       string
	ArtworkURL  string
	TrackNumber int
	DurationMS  int

	Status      Status
	AddedAt     time.Time  // when the catalog source saw the like
	ProcessedAt *time.Time // set when a transition carries an artifact
	FilePath    string     // capture artifact; empty until recorded

	RetryCount  int
	LastError   string
	LastRetryAt *time.Time
}

// Display renders the track as "Artist - Name" for logs and announcements.
func (t *Track) Display() string {
	return fmt.Sprintf("%s - %s", t.Artist, t.Name)
}

// MaxCaptureDuration is the capture time budget: track length plus padding
// for playback start latency and the trailing silence window.
func (t *Track) MaxCaptureDuration(padding time.Duration) time.Duration {
	return time.Duration(t.DurationMS)*time.Millisecond + padding
}
