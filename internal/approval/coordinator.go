// Package approval owns the announcement bookkeeping between the poll loop
// and the notifier: which pending tracks have a live announcement, and which
// announcement handle belongs to which track. Reviewer verdicts come back
// through [Coordinator.Resolve] and are applied to the store, whose
// transition guard has the final say.
package approval

import (
	"context"
	"fmt"
	"sync"

	"github.com/boergens/spotify-shokz-sync/internal/models"
	"github.com/boergens/spotify-shokz-sync/internal/repositories"
	"github.com/boergens/spotify-shokz-sync/internal/services"
	"github.com/boergens/spotify-shokz-sync/internal/shared"
	"github.com/charmbracelet/log"
)

// Coordinator deduplicates announcements and routes decisions. Announcements
// arrive from the poll loop, decisions from the notifier's gateway
// goroutines, so the handle maps are locked.
type Coordinator struct {
	store    *repositories.TrackRepository
	notifier services.Notifier
	logger   *log.Logger

	mu       sync.Mutex
	byHandle map[string]string
	byTrack  map[string]string
}

func NewCoordinator(store *repositories.TrackRepository, notifier services.Notifier, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Coordinator{
		store:    store,
		notifier: notifier,
		logger:   logger,
		byHandle: make(map[string]string),
		byTrack:  make(map[string]string),
	}
}

// Request announces one track unless an announcement is already live for it.
// A failed announcement leaves the track as it was; the next poll tick tries
// again.
func (c *Coordinator) Request(ctx context.Context, track *models.Track) error {
	c.mu.Lock()
	_, live := c.byTrack[track.ID]
	c.mu.Unlock()
	if live {
		return nil
	}

	handle, err := c.notifier.Announce(ctx, track)
	if err != nil {
		return fmt.Errorf("failed to announce %s: %w", track.ID, err)
	}

	c.mu.Lock()
	c.byHandle[handle] = track.ID
	c.byTrack[track.ID] = handle
	c.mu.Unlock()

	c.logger.Info("announced track for review", "track", track.Display(), "handle", handle)
	return nil
}

// AnnouncePending announces every stored pending track without a live
// announcement. Running it on each poll tick also picks up pending rows from
// a previous run and retries announcements that failed.
func (c *Coordinator) AnnouncePending(ctx context.Context) error {
	pending, err := c.store.ListByStatus(models.StatusPending)
	if err != nil {
		return err
	}

	for _, track := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.Request(ctx, track); err != nil {
			c.logger.Warn("announcement failed, will retry next poll",
				"track", track.Display(), "error", err)
		}
	}
	return nil
}

// Resolve applies a reviewer verdict by announcement handle. Unknown handles
// are dropped; they belong to a previous run or to a message that was never
// an announcement. A recognized verdict retires the handle either way — the
// store's transition guard decides whether the status change still applies.
func (c *Coordinator) Resolve(ctx context.Context, handle string, decision models.Decision) {
	status, ok := statusFor(decision)
	if !ok {
		c.logger.Warn("dropping unrecognized decision", "handle", handle)
		return
	}

	c.mu.Lock()
	trackID, known := c.byHandle[handle]
	if known {
		delete(c.byHandle, handle)
		delete(c.byTrack, trackID)
	}
	c.mu.Unlock()

	if !known {
		c.logger.Warn("dropping decision for unknown announcement", "handle", handle)
		return
	}

	if err := c.store.SetStatus(trackID, status, ""); err != nil {
		c.logger.Error("failed to apply decision", "track", trackID, "decision", decision, "error", err)
		return
	}

	track, err := c.store.Get(trackID)
	if err != nil {
		c.logger.Warn("decided track vanished before acknowledgement", "track", trackID, "error", err)
		return
	}

	c.logger.Info("decision applied", "track", track.Display(), "decision", decision, "status", track.Status)

	if err := c.notifier.Acknowledge(ctx, track, decision); err != nil {
		c.logger.Warn("failed to acknowledge decision", "track", track.Display(), "error", err)
	}
}

func statusFor(decision models.Decision) (models.Status, bool) {
	switch decision {
	case models.DecisionApprove:
		return models.StatusApproved, true
	case models.DecisionReject:
		return models.StatusRejected, true
	default:
		return "", false
	}
}
