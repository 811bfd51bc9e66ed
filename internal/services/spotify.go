// Spotify Web API client for the catalog and playback surfaces
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/boergens/spotify-shokz-sync/internal/models"
	"github.com/boergens/spotify-shokz-sync/internal/shared"
	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// spotifyRateLimit bounds request throughput; the Web API throttles
	// well above this but bursts from tight pagination loops trip it.
	spotifyRateLimit = 5.0
)

// spotifyScopes covers library reads plus the playback control the capture
// pipeline drives.
var spotifyScopes = []string{
	"user-library-read",
	"user-read-playback-state",
	"user-modify-playback-state",
}

type followers struct {
	Total int `json:"total"`
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Email       string         `json:"email"`
	Country     string         `json:"country"`
	Product     string         `json:"product"` // premium, free, etc.
	Followers   followers      `json:"followers"`
	Images      []SpotifyImage `json:"images"`
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []SpotifyArtist `json:"artists"`
	Album       SpotifyAlbum    `json:"album"`
	TrackNumber int             `json:"track_number"`
	DurationMS  int             `json:"duration_ms"`
	Explicit    bool            `json:"explicit"`
	URI         string          `json:"uri"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	ReleaseDate string         `json:"release_date"`
	TotalTracks int            `json:"total_tracks"`
	Images      []SpotifyImage `json:"images"`
	URI         string         `json:"uri"`
}

// SpotifySavedTrack represents a track saved in the user's library.
type SpotifySavedTrack struct {
	AddedAt string       `json:"added_at"`
	Track   SpotifyTrack `json:"track"`
}

// SpotifyPaginatedTracks represents a paginated response of saved tracks.
type SpotifyPaginatedTracks struct {
	Items    []SpotifySavedTrack `json:"items"`
	Total    int                 `json:"total"`
	Limit    int                 `json:"limit"`
	Offset   int                 `json:"offset"`
	Next     *string             `json:"next"`
	Previous *string             `json:"previous"`
}

// SpotifyDevice represents a playback device.
type SpotifyDevice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	IsActive bool   `json:"is_active"`
}

type devicesResponse struct {
	Devices []SpotifyDevice `json:"devices"`
}

// SpotifyService talks to the Spotify Web API for library polling and
// playback control. Uses [oauth2] for authentication with automatic token
// refresh; refreshed tokens are persisted so a restart does not force
// reauthorization.
type SpotifyService struct {
	config         *oauth2.Config
	token          *oauth2.Token
	tokenPath      string
	httpClient     *http.Client
	limiter        *rate.Limiter
	logger         *log.Logger
	baseURL        string
	onTokenRefresh func(*oauth2.Token)
}

// NewSpotifyService creates a Spotify client from the configured OAuth2
// credentials. tokenPath is where the granted token lives between runs.
func NewSpotifyService(cfg shared.SpotifyConfig, tokenPath string, logger *log.Logger) (*SpotifyService, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: missing spotify client_id", shared.ErrMissingCredentials)
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: missing spotify client_secret", shared.ErrMissingCredentials)
	}

	redirectURI := cfg.RedirectURI
	if redirectURI == "" {
		redirectURI = "http://localhost:8080/callback"
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       spotifyScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	s := &SpotifyService{
		config:     config,
		tokenPath:  tokenPath,
		httpClient: http.DefaultClient,
		limiter:    rate.NewLimiter(rate.Limit(spotifyRateLimit), 1),
		logger:     logger,
		baseURL:    spotifyBaseURL,
	}
	s.onTokenRefresh = s.persistToken

	return s, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// AuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) AuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// SetTokenRefreshCallback replaces the hook invoked whenever the client
// obtains a new access token. The default persists tokens to tokenPath.
func (s *SpotifyService) SetTokenRefreshCallback(fn func(*oauth2.Token)) {
	s.onTokenRefresh = fn
}

// Exchange trades an authorization code for a token, persists it and arms
// the client.
func (s *SpotifyService) Exchange(ctx context.Context, code string) error {
	token, err := s.config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange auth code: %w", err)
	}

	s.persistToken(token)
	s.arm(ctx, token)
	return nil
}

// Authenticate loads the persisted token from disk and arms the client.
// Returns [shared.ErrNotAuthenticated] when no token has been granted yet.
func (s *SpotifyService) Authenticate(ctx context.Context) error {
	data, err := os.ReadFile(s.tokenPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: no token at %s", shared.ErrNotAuthenticated, s.tokenPath)
	}
	if err != nil {
		return fmt.Errorf("failed to read token file: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return fmt.Errorf("failed to parse token file: %w", err)
	}

	s.arm(ctx, &token)
	return nil
}

// arm installs an auto-refreshing HTTP client around the given token.
func (s *SpotifyService) arm(ctx context.Context, token *oauth2.Token) {
	s.token = token
	source := &refreshableTokenSource{
		source:   s.config.TokenSource(ctx, token),
		last:     token.AccessToken,
		callback: func(t *oauth2.Token) { s.notifyTokenRefresh(t) },
	}
	s.httpClient = oauth2.NewClient(ctx, source)
}

func (s *SpotifyService) notifyTokenRefresh(token *oauth2.Token) {
	s.token = token
	if s.onTokenRefresh != nil {
		s.onTokenRefresh(token)
	}
}

// persistToken writes the token to tokenPath with owner-only permissions.
// Failures are logged rather than returned: the in-memory token still works
// for this run, the next run just has to reauthorize.
func (s *SpotifyService) persistToken(token *oauth2.Token) {
	if err := os.MkdirAll(filepath.Dir(s.tokenPath), 0700); err != nil {
		s.logger.Warn("failed to create token directory", "path", s.tokenPath, "error", err)
		return
	}

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		s.logger.Warn("failed to encode token", "error", err)
		return
	}

	if err := os.WriteFile(s.tokenPath, data, 0600); err != nil {
		s.logger.Warn("failed to write token file", "path", s.tokenPath, "error", err)
	}
}

// refreshableTokenSource wraps an [oauth2.TokenSource] and invokes a callback
// whenever the access token changes, so refreshed tokens reach disk.
type refreshableTokenSource struct {
	source   oauth2.TokenSource
	callback func(*oauth2.Token)

	mu   sync.Mutex
	last string
}

func (r *refreshableTokenSource) Token() (*oauth2.Token, error) {
	token, err := r.source.Token()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if token.AccessToken != r.last {
		r.last = token.AccessToken
		if r.callback != nil {
			r.callback(token)
		}
	}

	return token, nil
}

// doRequest performs an authenticated, rate-limited HTTP request against the
// Spotify API. A non-nil body is sent as JSON; a non-nil result is decoded
// from the response.
func (s *SpotifyService) doRequest(ctx context.Context, method, endpoint string, body any, result any) error {
	if s.token == nil {
		return fmt.Errorf("%w: call Authenticate first", shared.ErrNotAuthenticated)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: spotify API status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// CurrentUser retrieves the authenticated user's profile.
func (s *SpotifyService) CurrentUser(ctx context.Context) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.doRequest(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SavedTracks retrieves one page of the user's saved tracks, newest first.
func (s *SpotifyService) SavedTracks(ctx context.Context, limit, offset int) (*SpotifyPaginatedTracks, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	endpoint := fmt.Sprintf("/me/tracks?limit=%d&offset=%d", limit, offset)

	var response SpotifyPaginatedTracks
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}

	return &response, nil
}

// FetchLikedSince walks the saved-tracks pages newest first and returns every
// track added at or after the cutoff. The walk stops at the first older item,
// so steady-state polls cost one page.
func (s *SpotifyService) FetchLikedSince(ctx context.Context, since time.Time) ([]*models.Track, error) {
	var tracks []*models.Track
	limit, offset := 50, 0

	for {
		page, err := s.SavedTracks(ctx, limit, offset)
		if err != nil {
			return nil, err
		}
		if len(page.Items) == 0 {
			break
		}

		for _, item := range page.Items {
			track, err := trackFromSaved(item)
			if err != nil {
				return nil, err
			}
			if track.AddedAt.Before(since) {
				return tracks, nil
			}
			tracks = append(tracks, track)
		}

		if page.Next == nil {
			break
		}
		offset += limit
	}

	return tracks, nil
}

// Devices retrieves the user's available playback devices.
func (s *SpotifyService) Devices(ctx context.Context) ([]SpotifyDevice, error) {
	var response devicesResponse
	if err := s.doRequest(ctx, http.MethodGet, "/me/player/devices", nil, &response); err != nil {
		return nil, err
	}
	return response.Devices, nil
}

// activeDevice picks the active playback device, falling back to the first
// available one.
func (s *SpotifyService) activeDevice(ctx context.Context) (string, error) {
	devices, err := s.Devices(ctx)
	if err != nil {
		return "", err
	}

	for _, d := range devices {
		if d.IsActive {
			return d.ID, nil
		}
	}
	if len(devices) > 0 {
		return devices[0].ID, nil
	}

	return "", fmt.Errorf("%w: no spotify playback device found, open the app", shared.ErrServiceUnavailable)
}

// Play starts playback of the given track on the active device.
func (s *SpotifyService) Play(ctx context.Context, trackID string) error {
	deviceID, err := s.activeDevice(ctx)
	if err != nil {
		return err
	}

	endpoint := "/me/player/play?device_id=" + url.QueryEscape(deviceID)
	body := map[string]any{
		"uris": []string{"spotify:track:" + trackID},
	}

	if err := s.doRequest(ctx, http.MethodPut, endpoint, body, nil); err != nil {
		return fmt.Errorf("failed to start playback of %s: %w", trackID, err)
	}

	return nil
}

// Pause stops playback on the active device.
func (s *SpotifyService) Pause(ctx context.Context) error {
	deviceID, err := s.activeDevice(ctx)
	if err != nil {
		return err
	}

	endpoint := "/me/player/pause?device_id=" + url.QueryEscape(deviceID)
	if err := s.doRequest(ctx, http.MethodPut, endpoint, nil, nil); err != nil {
		return fmt.Errorf("failed to pause playback: %w", err)
	}

	return nil
}

// trackFromSaved maps a saved-track item onto the domain model.
func trackFromSaved(item SpotifySavedTrack) (*models.Track, error) {
	addedAt, err := time.Parse(time.RFC3339, item.AddedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse added_at %q: %w", item.AddedAt, err)
	}

	track := &models.Track{
		ID:          item.Track.ID,
		Name:        item.Track.Name,
		Album:       item.Track.Album.Name,
		TrackNumber: item.Track.TrackNumber,
		DurationMS:  item.Track.DurationMS,
		Status:      models.StatusPending,
		AddedAt:     addedAt.UTC(),
	}
	if len(item.Track.Artists) > 0 {
		track.Artist = item.Track.Artists[0].Name
	}
	if len(item.Track.Album.Images) > 0 {
		track.ArtworkURL = item.Track.Album.Images[0].URL
	}

	return track, nil
}

// LikedSongsSource adapts [SpotifyService] to [CatalogSource]. It owns the
// added_at high-water mark, so already-imported likes are never re-fetched;
// the store's idempotent insert covers the boundary item that equals the
// mark. FetchNew is called from a single goroutine (the poll loop), so the
// mark needs no locking.
type LikedSongsSource struct {
	spotify   *SpotifyService
	watermark time.Time
}

// NewLikedSongsSource seeds the high-water mark. Callers derive the seed from
// the newest stored track, falling back to the startup time, so a fresh
// database does not pull the whole library.
func NewLikedSongsSource(spotify *SpotifyService, seed time.Time) *LikedSongsSource {
	return &LikedSongsSource{spotify: spotify, watermark: seed}
}

// FetchNew returns tracks liked since the previous call and advances the
// high-water mark.
func (s *LikedSongsSource) FetchNew(ctx context.Context) ([]*models.Track, error) {
	tracks, err := s.spotify.FetchLikedSince(ctx, s.watermark)
	if err != nil {
		return nil, err
	}

	for _, track := range tracks {
		if track.AddedAt.After(s.watermark) {
			s.watermark = track.AddedAt
		}
	}

	return tracks, nil
}
