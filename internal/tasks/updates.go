package tasks

import (
	"fmt"
	"path/filepath"

	"github.com/boergens/spotify-shokz-sync/internal/models"
	"github.com/boergens/spotify-shokz-sync/internal/services"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	StartPlayback Phase = iota
	CaptureAudio
	TagFile
	MarkRecorded
	ResolveFolder
	CopyFile
	MarkSynced
)

func (p Phase) String() string {
	switch p {
	case StartPlayback:
		return "start_playback"
	case CaptureAudio:
		return "capture_audio"
	case TagFile:
		return "tag_file"
	case MarkRecorded:
		return "mark_recorded"
	case ResolveFolder:
		return "resolve_folder"
	case CopyFile:
		return "copy_file"
	case MarkSynced:
		return "mark_synced"
	default:
		return ""
	}
}

func playbackUpdate(step, total int, track *models.Track) ProgressUpdate {
	return ProgressUpdate{
		Phase:   StartPlayback,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Playing: %s", step, total, track.Display()),
	}
}

func captureUpdate(step, total int, track *models.Track) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CaptureAudio,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Recording: %s", step, total, track.Display()),
		Data:    track,
	}
}

func tagUpdate(step, total int, path string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   TagFile,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Tagging: %s...", step, total, filepath.Base(path)),
	}
}

func recordedUpdate(step, total int, track *models.Track, path string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   MarkRecorded,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s", step, total, filepath.Base(path)),
		Data:    track,
	}
}

func captureFailedUpdate(step, total int, track *models.Track, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CaptureAudio,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, track.Display(), err),
	}
}

func resolveFolderUpdate(volume services.Volume) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveFolder,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Resolving music folder on %s...", volume.Name),
		Data:    volume,
	}
}

func copyUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CopyFile,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Copying: %s...", step, total, name),
	}
}

func syncedUpdate(step, total int, name string, alreadyPresent bool) ProgressUpdate {
	if alreadyPresent {
		return ProgressUpdate{
			Phase:   MarkSynced,
			Step:    step,
			Total:   total,
			Message: fmt.Sprintf("[%d/%d] ✓ %s (already on device)", step, total, name),
		}
	}
	return ProgressUpdate{
		Phase:   MarkSynced,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s", step, total, name),
	}
}

func syncFailedUpdate(step, total int, name string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CopyFile,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, name, err),
	}
}
