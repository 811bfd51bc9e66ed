// Package services implements the pipeline's external collaborators: the
// Spotify catalog and player, the Discord approval channel, the ffmpeg
// capture chain, ID3 tagging, removable volumes and the Wi-Fi gate.
//
// # Collaborator Interfaces
//
// Each collaborator is consumed through a small interface ([CatalogSource],
// [Player], [Recorder], [Tagger], [Notifier], [VolumeTransport],
// [NetworkGate]) so the engines and the watcher can be exercised against
// fakes. The implementations in this package are the production bindings.
//
// # Spotify Implementation
//
// [SpotifyService] uses OAuth2 with automatic token refresh. Refreshed
// tokens are persisted back to disk through [refreshableTokenSource] so a
// restart never needs the browser again. All calls go through one
// rate-limited client.
//
// [LikedSongsSource] adapts the service to [CatalogSource]: it owns the
// added-at high-water mark and returns only tracks liked since the last call.
//
// # Discord Implementation
//
// [DiscordNotifier] announces pending tracks as embeds, seeds ✅/❌
// reactions, and converts replies and reactions into decisions delivered to
// the installed [DecisionFunc]. [LogNotifier] stands in when Discord is not
// configured; it only logs, so pending tracks wait for the review TUI.
//
// # Capture Implementation
//
// [FFmpegRecorder] records the loopback device to a temp WAV, finds the
// first sustained silence with the silencedetect filter, and encodes the
// trimmed take to MP3. [ID3Tagger] then stamps title, artist, album, track
// number and front-cover art onto the file.
//
// # Device Sync Implementation
//
// [FilesystemVolumes] scans the platform mount roots for removable volumes,
// locates or creates the device music folder, and performs size-verified
// copies. [WifiGate] holds the network-bound stages closed until the
// configured SSID is joined.
//
// # Error Handling
//
// Services use typed errors from the shared package:
//   - [shared.ErrNotAuthenticated] : Authenticate() not called
//   - [shared.ErrAPIRequest] : HTTP request failed
//   - [shared.ErrServiceUnavailable] : no Spotify playback device available
//   - [shared.ErrCaptureFailed] : ffmpeg record or encode failed
//   - [shared.ErrVolumeUnavailable] : volume unwritable or gone
//   - [shared.ErrSizeMismatch] : device copy came up short
package services
