// package tasks implements the capture and device sync engines.
//
// The core abstractions are RecordingEngine, which turns approved tracks into
// tagged MP3s in the local library, and SyncEngine, which pushes recorded
// tracks onto removable volumes. Operations emit progress updates via channels
// for non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/boergens/spotify-shokz-sync/internal/models"
	"github.com/boergens/spotify-shokz-sync/internal/repositories"
	"github.com/boergens/spotify-shokz-sync/internal/services"
	"github.com/boergens/spotify-shokz-sync/internal/shared"
)

// playbackLead is how long capture waits after starting playback, giving the
// player time to actually produce audio.
const playbackLead = 500 * time.Millisecond

// CaptureRunResult summarizes one pass over the approved queue.
type CaptureRunResult struct {
	Captured []string // Track IDs that reached recorded this pass
	Failed   []string // Track IDs whose pipeline failed this pass
	Total    int      // Approved tracks queued at the start of the pass
}

// VolumeSyncResult summarizes one sync run against a single volume.
type VolumeSyncResult struct {
	Volume  services.Volume // Volume the run targeted
	Folder  string          // Resolved music folder on the volume
	Copied  []string        // Track IDs copied onto the volume
	Skipped []string        // Track IDs already present, marked synced without copying
	Failed  []string        // Track IDs whose copy failed
	Total   int             // Eligible recorded tracks at the start of the run
}

// Synced returns how many tracks ended the run on the volume, counting both
// fresh copies and files that were already there.
func (r *VolumeSyncResult) Synced() int {
	return len(r.Copied) + len(r.Skipped)
}

// RecordingEngine implements the play → record → tag pipeline.
// Contains dependencies on the store and the playback, capture, tagging, and
// notification services.
type RecordingEngine struct {
	store    *repositories.TrackRepository
	player   services.Player
	recorder services.Recorder
	tagger   services.Tagger
	notifier services.Notifier
	cfg      shared.CaptureConfig
	library  string
	logger   *log.Logger

	// wait is replaced in tests so pipeline pacing does not slow them down.
	wait func(ctx context.Context, d time.Duration)
}

// NewRecordingEngine creates a RecordingEngine writing captures into library.
// A nil logger falls back to the default stderr logger.
func NewRecordingEngine(store *repositories.TrackRepository, player services.Player, recorder services.Recorder, tagger services.Tagger, notifier services.Notifier, cfg shared.CaptureConfig, library string, logger *log.Logger) *RecordingEngine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &RecordingEngine{
		store:    store,
		player:   player,
		recorder: recorder,
		tagger:   tagger,
		notifier: notifier,
		cfg:      cfg,
		library:  library,
		logger:   logger,
		wait:     sleepContext,
	}
}

// Run captures every approved track, in the order they were liked.
//
// The queue is deliberately not backoff-filtered: a failed capture leaves the
// track approved and it is retried on the next pass. When the record_failures
// policy is on, failures additionally count against the retry budget so
// persistent ones surface in stuck listings.
func (e *RecordingEngine) Run(ctx context.Context, progress chan<- ProgressUpdate) (*CaptureRunResult, error) {
	if e.store == nil {
		return nil, fmt.Errorf("%w: track store not initialized", shared.ErrServiceUnavailable)
	}
	if e.player == nil || e.recorder == nil {
		return nil, fmt.Errorf("%w: capture pipeline not initialized", shared.ErrServiceUnavailable)
	}

	queue, err := e.store.ListByStatus(models.StatusApproved)
	if err != nil {
		return nil, fmt.Errorf("failed to list approved tracks: %w", err)
	}

	result := &CaptureRunResult{Total: len(queue)}
	for i, track := range queue {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		step, total := i+1, len(queue)
		if err := e.capture(ctx, track, step, total, progress); err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			e.fail(track, err)
			sendProgress(progress, captureFailedUpdate(step, total, track, err))
			result.Failed = append(result.Failed, track.ID)
		} else {
			result.Captured = append(result.Captured, track.ID)
		}

		// Let the player settle before the next take starts.
		e.wait(ctx, e.cfg.Pause())
	}
	return result, nil
}

// capture runs the pipeline for a single track and advances it to recorded.
func (e *RecordingEngine) capture(ctx context.Context, track *models.Track, step, total int, progress chan<- ProgressUpdate) error {
	sendProgress(progress, playbackUpdate(step, total, track))
	if err := e.player.Play(ctx, track.ID); err != nil {
		return fmt.Errorf("failed to start playback: %w", err)
	}
	e.wait(ctx, playbackLead)

	sendProgress(progress, captureUpdate(step, total, track))
	path, err := e.recorder.Record(ctx, track, e.library)

	// Playback stops whether or not the take succeeded; a failed one must not
	// keep playing into the next.
	if pauseErr := e.player.Pause(ctx); pauseErr != nil {
		e.logger.Warn("failed to stop playback", "track", track.ID, "error", pauseErr)
	}
	if err != nil {
		return err
	}

	sendProgress(progress, tagUpdate(step, total, path))
	if e.tagger != nil {
		if err := e.tagger.Tag(ctx, path, track); err != nil {
			return fmt.Errorf("failed to tag %s: %w", filepath.Base(path), err)
		}
	}

	if err := e.store.SetStatus(track.ID, models.StatusRecorded, path); err != nil {
		return fmt.Errorf("failed to mark %s recorded: %w", track.ID, err)
	}
	sendProgress(progress, recordedUpdate(step, total, track, path))
	e.logger.Info("track recorded", "track", track.ID, "title", track.Display(), "path", path)
	e.notify(ctx, fmt.Sprintf("Recorded **%s** by %s. Ready for sync.", track.Name, track.Artist))
	return nil
}

// fail logs a pipeline failure and, when the policy is on, charges it against
// the track's retry budget.
func (e *RecordingEngine) fail(track *models.Track, err error) {
	e.logger.Error("capture failed", "track", track.ID, "title", track.Display(), "error", err)
	if !e.cfg.RecordFailures {
		return
	}
	if recErr := e.store.RecordFailure(track.ID, err.Error()); recErr != nil {
		e.logger.Warn("failed to record capture failure", "track", track.ID, "error", recErr)
	}
}

func (e *RecordingEngine) notify(ctx context.Context, message string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, message); err != nil {
		e.logger.Warn("failed to send notice", "error", err)
	}
}

// SyncEngine copies recorded tracks onto removable volumes.
// Contains dependencies on the store, the volume transport, and the notifier.
type SyncEngine struct {
	store     *repositories.TrackRepository
	transport services.VolumeTransport
	notifier  services.Notifier
	retry     shared.RetryConfig
	library   string
	logger    *log.Logger
}

// NewSyncEngine creates a SyncEngine sourcing captures from library.
// A nil logger falls back to the default stderr logger.
func NewSyncEngine(store *repositories.TrackRepository, transport services.VolumeTransport, notifier services.Notifier, retry shared.RetryConfig, library string, logger *log.Logger) *SyncEngine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &SyncEngine{
		store:     store,
		transport: transport,
		notifier:  notifier,
		retry:     retry,
		library:   library,
		logger:    logger,
	}
}

// SyncVolume pushes every retry-eligible recorded track onto a single volume.
//
// A same-named file already on the volume counts as synced without copying.
// Copy errors charge the retry budget; a cancelled or timed-out run does not,
// so the next sighting of the volume retries cleanly.
func (e *SyncEngine) SyncVolume(ctx context.Context, volume services.Volume, progress chan<- ProgressUpdate) (*VolumeSyncResult, error) {
	if e.store == nil {
		return nil, fmt.Errorf("%w: track store not initialized", shared.ErrServiceUnavailable)
	}
	if e.transport == nil {
		return nil, fmt.Errorf("%w: volume transport not initialized", shared.ErrServiceUnavailable)
	}

	result := &VolumeSyncResult{Volume: volume}

	sendProgress(progress, resolveFolderUpdate(volume))
	folder, err := e.transport.EnsureMusicFolder(volume)
	if err != nil {
		return result, fmt.Errorf("failed to resolve music folder on %s: %w", volume.Name, err)
	}
	result.Folder = folder

	queue, err := e.store.ListRetryEligible(models.StatusRecorded, e.retry.MaxAttempts, e.retry.BaseBackoff())
	if err != nil {
		return result, fmt.Errorf("failed to list recorded tracks: %w", err)
	}
	result.Total = len(queue)

	for i, track := range queue {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		step, total := i+1, len(queue)
		name, src := e.fileFor(track)

		if e.transport.HasFile(folder, name) {
			if err := e.store.SetStatus(track.ID, models.StatusSynced, ""); err != nil {
				e.logger.Warn("failed to mark synced", "track", track.ID, "error", err)
				continue
			}
			result.Skipped = append(result.Skipped, track.ID)
			sendProgress(progress, syncedUpdate(step, total, name, true))
			continue
		}

		sendProgress(progress, copyUpdate(step, total, name))
		if _, err := e.transport.Copy(ctx, src, folder, name); err != nil {
			// A cancelled or timed-out copy is abandoned without charging the
			// budget; the volume was not at fault.
			if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return result, err
			}
			e.logger.Error("copy failed", "track", track.ID, "file", name, "error", err)
			if recErr := e.store.RecordFailure(track.ID, err.Error()); recErr != nil {
				e.logger.Warn("failed to record copy failure", "track", track.ID, "error", recErr)
			}
			result.Failed = append(result.Failed, track.ID)
			sendProgress(progress, syncFailedUpdate(step, total, name, err))
			continue
		}

		if err := e.store.SetStatus(track.ID, models.StatusSynced, ""); err != nil {
			e.logger.Warn("failed to mark synced", "track", track.ID, "error", err)
			continue
		}
		result.Copied = append(result.Copied, track.ID)
		sendProgress(progress, syncedUpdate(step, total, name, false))
	}

	if n := result.Synced(); n > 0 {
		e.logger.Info("volume sync complete", "volume", volume.Name, "synced", n, "failed", len(result.Failed))
		e.notify(ctx, fmt.Sprintf("Synced %d track(s) to your MP3 player.", n))
	}
	return result, nil
}

// fileFor returns the device filename for a track and the local path a copy
// should read from. Rows whose recorded file moved or predates file path
// tracking fall back to the library directory.
func (e *SyncEngine) fileFor(track *models.Track) (name, src string) {
	if track.FilePath == "" {
		name = services.BuildFilename(track)
		return name, filepath.Join(e.library, name)
	}
	name = filepath.Base(track.FilePath)
	src = track.FilePath
	if _, err := os.Stat(src); err != nil {
		src = filepath.Join(e.library, name)
	}
	return name, src
}

func (e *SyncEngine) notify(ctx context.Context, message string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, message); err != nil {
		e.logger.Warn("failed to send notice", "error", err)
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default so progress reporting never stalls a pipeline.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
		// Sent successfully
	default:
		// Channel full or closed, skip this update
	}
}

// sleepContext waits for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
