// Package repositories implements SQLite persistence for the track pipeline.
//
// [TrackRepository] is the single durable store: liked songs enter as pending
// rows and advance through the capture lifecycle via guarded status changes.
// Every mutation is committed before the call returns, so a crash between
// loop ticks never loses an acknowledged transition.
//
// Status changes go through [TrackRepository.SetStatus], which enforces
// [models.CanTransition] and ignores illegal edges, so a late or duplicate
// caller cannot move a row out of a terminal state. Retry bookkeeping
// (retry_count, last_error, last_retry_at) is cleared by the same statement
// that advances a row, keeping the failure history consistent with the stage
// it belongs to.
package repositories
