// package services implements the pipeline's external collaborators
//
// Spotify (catalog + playback), Discord (approvals), ffmpeg (capture),
// ID3 tagging, removable volumes, Wi-Fi gate
package services

import (
	"context"

	"github.com/boergens/spotify-shokz-sync/internal/models"
)

// CatalogSource yields tracks liked since the previous call. Implementations
// own the high-water mark; the caller only deduplicates by track ID.
type CatalogSource interface {
	FetchNew(ctx context.Context) ([]*models.Track, error)
}

// Player controls playback on the listener's active device.
type Player interface {
	// Play starts playback of the given track.
	Play(ctx context.Context, trackID string) error

	// Pause stops playback once a capture finishes.
	Pause(ctx context.Context) error
}

// Recorder captures system audio for a single track into an MP3 file.
type Recorder interface {
	// Record writes the capture into destDir and returns the file path.
	// The recording stops at sustained silence or the track's padded
	// duration, whichever comes first.
	Record(ctx context.Context, track *models.Track, destDir string) (string, error)
}

// Tagger writes ID3 metadata onto a finished recording.
type Tagger interface {
	Tag(ctx context.Context, path string, track *models.Track) error
}

// Notifier carries approval traffic and lifecycle notices to the reviewer.
type Notifier interface {
	// Announce presents a track for review and returns an opaque handle
	// that the reviewer's eventual decision will reference.
	Announce(ctx context.Context, track *models.Track) (string, error)

	// Acknowledge confirms a resolved decision back to the reviewer.
	Acknowledge(ctx context.Context, track *models.Track, decision models.Decision) error

	// Notify posts a free-form lifecycle notice.
	Notify(ctx context.Context, message string) error
}

// Volume is a mounted removable device.
type Volume struct {
	Name string
	Path string
}

// VolumeTransport enumerates removable volumes and moves recordings onto
// them.
type VolumeTransport interface {
	// Volumes lists the currently mounted removable volumes.
	Volumes(ctx context.Context) ([]Volume, error)

	// EnsureMusicFolder finds or creates the music destination on a
	// writable volume.
	EnsureMusicFolder(volume Volume) (string, error)

	// HasFile reports whether dir already contains a file called name.
	HasFile(dir, name string) bool

	// Copy copies src into destDir under name, verifies the result and
	// returns the destination path.
	Copy(ctx context.Context, src, destDir, name string) (string, error)
}

// NetworkGate reports whether the machine is on the network the pipeline
// requires.
type NetworkGate interface {
	Connected(ctx context.Context) (bool, error)
}
