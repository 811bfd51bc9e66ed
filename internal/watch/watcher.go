// package watch owns the daemon loops that drive tracks through the lifecycle.
package watch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/boergens/spotify-shokz-sync/internal/approval"
	"github.com/boergens/spotify-shokz-sync/internal/repositories"
	"github.com/boergens/spotify-shokz-sync/internal/services"
	"github.com/boergens/spotify-shokz-sync/internal/shared"
	"github.com/boergens/spotify-shokz-sync/internal/tasks"
)

// Watcher runs the poll, capture, and volume loops. Each loop ticks on its
// own cadence in its own goroutine, so a long capture never stops likes from
// being discovered or a freshly plugged volume from being noticed.
type Watcher struct {
	cfg       *shared.Config
	store     *repositories.TrackRepository
	catalog   services.CatalogSource
	approvals *approval.Coordinator
	recorder  *tasks.RecordingEngine
	syncer    *tasks.SyncEngine
	transport services.VolumeTransport
	gate      services.NetworkGate
	progress  chan<- tasks.ProgressUpdate
	logger    *log.Logger

	// busy serializes the capture and sync stages: both contend for the
	// audio path and the library directory, so whichever tick wins the
	// CompareAndSwap runs and the other skips its turn.
	busy atomic.Bool

	// Cadences and the shutdown budget are copied out of the config at
	// construction; tests shrink them.
	pollEvery    time.Duration
	captureEvery time.Duration
	volumeEvery  time.Duration
	grace        time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Opts contains the collaborators for creating a Watcher.
type Opts struct {
	Config    *shared.Config
	Store     *repositories.TrackRepository
	Catalog   services.CatalogSource
	Approvals *approval.Coordinator
	Recorder  *tasks.RecordingEngine
	Syncer    *tasks.SyncEngine
	Transport services.VolumeTransport
	Gate      services.NetworkGate
	Logger    *log.Logger

	// Progress receives engine updates when set; the daemon forwards them to
	// the log at debug level.
	Progress chan<- tasks.ProgressUpdate
}

// New creates a Watcher from opts. A nil config falls back to the embedded
// defaults and a nil logger to the default stderr logger.
func New(opts Opts) *Watcher {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	return &Watcher{
		cfg:          opts.Config,
		store:        opts.Store,
		catalog:      opts.Catalog,
		approvals:    opts.Approvals,
		recorder:     opts.Recorder,
		syncer:       opts.Syncer,
		transport:    opts.Transport,
		gate:         opts.Gate,
		progress:     opts.Progress,
		logger:       opts.Logger,
		pollEvery:    opts.Config.Watch.PollInterval(),
		captureEvery: opts.Config.Watch.CaptureInterval(),
		volumeEvery:  opts.Config.Watch.VolumeInterval(),
		grace:        opts.Config.Watch.ShutdownGrace(),
	}
}

// Start launches the three loops. The poll loop runs its first tick
// immediately so a fresh daemon announces the backlog without waiting out an
// interval; capture and sync wait a full cadence before their first tick.
func (w *Watcher) Start() {
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.wg.Add(3)
	go w.pollLoop()
	go w.captureLoop()
	go w.volumeLoop()
	w.logger.Info("watcher started",
		"poll", w.pollEvery, "capture", w.captureEvery, "volumes", w.volumeEvery)
}

// Stop cancels the loops and waits up to the shutdown grace budget for
// in-flight work to observe the cancellation.
func (w *Watcher) Stop() error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("watcher stopped")
		return nil
	case <-time.After(w.grace):
		w.logger.Error("shutdown grace budget exhausted", "grace", w.grace)
		return shared.ErrTimeout
	}
}

func (w *Watcher) pollLoop() {
	defer w.wg.Done()

	w.pollTick()

	ticker := time.NewTicker(w.pollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.pollTick()
		}
	}
}

// pollTick pulls new likes from the catalog, stores them, and announces
// everything pending. Announcing the whole pending set rather than just this
// tick's inserts means a failed announcement is retried on the next poll.
func (w *Watcher) pollTick() {
	if !w.online() {
		return
	}

	fresh, err := w.catalog.FetchNew(w.ctx)
	if err != nil {
		if w.ctx.Err() == nil {
			w.logger.Warn("catalog poll failed", "error", err)
		}
		return
	}

	inserted := 0
	for _, track := range fresh {
		created, err := w.store.Insert(track)
		if err != nil {
			w.logger.Warn("failed to store track", "track", track.ID, "error", err)
			continue
		}
		if created {
			inserted++
			w.logger.Info("new like discovered", "track", track.ID, "title", track.Display())
		}
	}
	if inserted > 0 {
		w.logger.Info("poll complete", "new", inserted)
	}

	if err := w.approvals.AnnouncePending(w.ctx); err != nil && w.ctx.Err() == nil {
		w.logger.Warn("failed to announce pending tracks", "error", err)
	}
}

func (w *Watcher) captureLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.captureEvery)
	defer ticker.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.captureTick()
		}
	}
}

func (w *Watcher) captureTick() {
	if !w.online() {
		return
	}
	if !w.busy.CompareAndSwap(false, true) {
		w.logger.Debug("pipeline busy, skipping capture tick")
		return
	}
	defer w.busy.Store(false)

	result, err := w.recorder.Run(w.ctx, w.progress)
	if err != nil {
		if w.ctx.Err() == nil {
			w.logger.Warn("capture pass failed", "error", err)
		}
		return
	}
	if result.Total > 0 {
		w.logger.Info("capture pass complete",
			"captured", len(result.Captured), "failed", len(result.Failed))
	}
}

func (w *Watcher) volumeLoop() {
	defer w.wg.Done()

	synced := make(map[string]struct{})
	ticker := time.NewTicker(w.volumeEvery)
	defer ticker.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.volumeTick(synced)
		}
	}
}

// volumeTick syncs volumes that appeared since they were last done. The
// synced set lives for the daemon session; unplugging a volume clears its
// entry, so plugging it back in syncs it again.
func (w *Watcher) volumeTick(synced map[string]struct{}) {
	volumes, err := w.transport.Volumes(w.ctx)
	if err != nil {
		if w.ctx.Err() == nil {
			w.logger.Warn("volume scan failed", "error", err)
		}
		return
	}

	current := make(map[string]struct{}, len(volumes))
	for _, volume := range volumes {
		current[volume.Path] = struct{}{}
	}
	for path := range synced {
		if _, ok := current[path]; !ok {
			w.logger.Info("volume removed", "path", path)
			delete(synced, path)
		}
	}

	if !w.busy.CompareAndSwap(false, true) {
		return
	}
	defer w.busy.Store(false)

	for _, volume := range volumes {
		if _, ok := synced[volume.Path]; ok {
			continue
		}
		if w.ctx.Err() != nil {
			return
		}
		w.logger.Info("volume detected", "volume", volume.Name, "path", volume.Path)

		ctx, cancel := context.WithTimeout(w.ctx, w.cfg.Sync.VolumeTimeout())
		result, err := w.syncer.SyncVolume(ctx, volume, w.progress)
		cancel()
		if err != nil {
			// A timed-out or cancelled run stays out of the synced set so the
			// next sighting of the volume picks up where it stopped.
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				w.logger.Warn("volume sync abandoned", "volume", volume.Name, "error", err)
				continue
			}
			w.logger.Warn("volume sync failed", "volume", volume.Name, "error", err)
		}
		synced[volume.Path] = struct{}{}
		if result != nil && result.Synced() > 0 {
			w.logger.Info("volume synced", "volume", volume.Name,
				"copied", len(result.Copied), "already_present", len(result.Skipped))
		}
	}
}

// online reports whether the configured network gate allows work this tick.
func (w *Watcher) online() bool {
	ok, err := w.gate.Connected(w.ctx)
	if err != nil {
		if w.ctx.Err() == nil {
			w.logger.Warn("network check failed", "error", err)
		}
		return false
	}
	if !ok {
		w.logger.Debug("not on the configured network, skipping tick")
	}
	return ok
}
