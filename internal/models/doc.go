// Package models defines the domain entities for the liked-song recording pipeline.
//
// The central type is [Track], a single liked song moving through the
// capture lifecycle. Its [Status] forms a small directed state machine:
//
//	pending → approved → recorded → synced
//	pending → rejected
//
// [StatusRejected] and [StatusSynced] are terminal; nothing re-enters
// [StatusPending]. [CanTransition] is the single source of truth for legal
// edges and is consulted by the persistence layer before any status write.
//
// The package also holds the retry/backoff policy as pure functions
// ([Backoff], [EligibleAt]) so eligibility decisions are testable without a
// database or a clock.
package models
