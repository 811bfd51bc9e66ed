// Package tasks orchestrates the capture and device sync stages of the track
// lifecycle with real-time progress reporting.
//
// # Core Operations
//
// Two engines drive the work:
//
//  1. [RecordingEngine.Run] : Capture pass over the approved queue
//     - Lists every approved track, oldest like first
//     - Starts playback, records the loopback stream, stops playback
//     - Stamps ID3 metadata and album art onto the capture
//     - Advances each success to recorded with its file path
//
//  2. [SyncEngine.SyncVolume] : Push recorded tracks onto one volume
//     - Finds or creates the music folder on the volume
//     - Lists recorded tracks whose retry budget and backoff allow a run
//     - Marks same-named files already on the device synced without copying
//     - Copies the rest and advances each success to synced
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and
// optional data for advanced UI rendering. Updates use select with default to
// prevent blocking.
//
// # Failure Policy
//
// A failed capture leaves the track approved so the next pass retries it,
// and charges the retry budget only when the record_failures policy is on.
// A failed copy always charges the budget. A cancelled or timed-out run
// abandons the remaining queue without charging anything.
//
// # Implementation
//
// Both engines depend on [repositories.TrackRepository] for queue reads and
// status transitions, and on the service interfaces:
//   - [services.Player] and [services.Recorder] : playback and loopback capture
//   - [services.Tagger] : ID3 metadata stamping
//   - [services.VolumeTransport] : volume discovery and verified copies
//   - [services.Notifier] : lifecycle notices to the approval channel
package tasks
