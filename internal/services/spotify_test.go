package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/boergens/spotify-shokz-sync/internal/models"
	"github.com/boergens/spotify-shokz-sync/internal/shared"
	"golang.org/x/oauth2"
)

func testSpotifyConfig() shared.SpotifyConfig {
	return shared.SpotifyConfig{
		ClientID:     "test_client_id",
		ClientSecret: "test_client_secret",
	}
}

// newTestSpotifyService points an armed service at a test server.
func newTestSpotifyService(t *testing.T, handler http.Handler) *SpotifyService {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	srv, err := NewSpotifyService(testSpotifyConfig(), filepath.Join(t.TempDir(), "token.json"), nil)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	srv.token = &oauth2.Token{AccessToken: "test_token"}
	srv.baseURL = server.URL

	return srv
}

func savedTrackJSON(id, name, addedAt string) string {
	return fmt.Sprintf(`{
		"added_at": %q,
		"track": {
			"id": %q,
			"name": %q,
			"artists": [{"id": "a1", "name": "Test Artist"}],
			"album": {
				"id": "al1",
				"name": "Test Album",
				"images": [{"url": "https://img.example/cover.jpg", "height": 640, "width": 640}]
			},
			"track_number": 7,
			"duration_ms": 225000
		}
	}`, addedAt, id, name)
}

func TestSpotifyService(t *testing.T) {
	t.Run("NewSpotifyService", func(t *testing.T) {
		t.Run("with valid credentials", func(t *testing.T) {
			srv, err := NewSpotifyService(testSpotifyConfig(), "token.json", nil)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if srv.Name() != "Spotify" {
				t.Errorf("expected service name 'Spotify', got %s", srv.Name())
			}
		})

		t.Run("missing client id", func(t *testing.T) {
			_, err := NewSpotifyService(shared.SpotifyConfig{ClientSecret: "secret"}, "token.json", nil)
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("missing client secret", func(t *testing.T) {
			_, err := NewSpotifyService(shared.SpotifyConfig{ClientID: "id"}, "token.json", nil)
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("default redirect uri", func(t *testing.T) {
			srv, err := NewSpotifyService(testSpotifyConfig(), "token.json", nil)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if srv.config.RedirectURL != "http://localhost:8080/callback" {
				t.Errorf("expected default redirect URI, got %s", srv.config.RedirectURL)
			}
		})
	})

	t.Run("AuthURL", func(t *testing.T) {
		srv, err := NewSpotifyService(testSpotifyConfig(), "token.json", nil)
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}

		authURL := srv.AuthURL("test_state")
		if !strings.Contains(authURL, "accounts.spotify.com") {
			t.Error("auth URL should contain Spotify domain")
		}
		if !strings.Contains(authURL, "test_client_id") {
			t.Error("auth URL should contain client_id")
		}
		if !strings.Contains(authURL, "test_state") {
			t.Error("auth URL should contain state")
		}
		if !strings.Contains(authURL, "user-library-read") {
			t.Error("auth URL should request the library scope")
		}
	})

	t.Run("Authenticate", func(t *testing.T) {
		t.Run("missing token file", func(t *testing.T) {
			srv, err := NewSpotifyService(testSpotifyConfig(), filepath.Join(t.TempDir(), "token.json"), nil)
			if err != nil {
				t.Fatalf("failed to create service: %v", err)
			}

			if err := srv.Authenticate(context.Background()); !errors.Is(err, shared.ErrNotAuthenticated) {
				t.Errorf("expected ErrNotAuthenticated, got %v", err)
			}
		})

		t.Run("round trips a persisted token", func(t *testing.T) {
			tokenPath := filepath.Join(t.TempDir(), "nested", "token.json")

			first, err := NewSpotifyService(testSpotifyConfig(), tokenPath, nil)
			if err != nil {
				t.Fatalf("failed to create service: %v", err)
			}
			first.persistToken(&oauth2.Token{AccessToken: "persisted_token", RefreshToken: "refresh"})

			second, err := NewSpotifyService(testSpotifyConfig(), tokenPath, nil)
			if err != nil {
				t.Fatalf("failed to create service: %v", err)
			}
			if err := second.Authenticate(context.Background()); err != nil {
				t.Fatalf("expected authenticate to succeed, got %v", err)
			}
			if second.token == nil || second.token.AccessToken != "persisted_token" {
				t.Errorf("expected persisted token to be loaded, got %+v", second.token)
			}
		})
	})

	t.Run("requests require a token", func(t *testing.T) {
		srv, err := NewSpotifyService(testSpotifyConfig(), "token.json", nil)
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}

		if _, err := srv.CurrentUser(context.Background()); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("FetchLikedSince", func(t *testing.T) {
		t.Run("stops at the first item older than the cutoff", func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/me/tracks" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				fmt.Fprintf(w, `{"items": [%s, %s, %s, %s], "next": "next-page"}`,
					savedTrackJSON("t4", "Newest", "2025-06-04T10:00:00Z"),
					savedTrackJSON("t3", "Newer", "2025-06-03T10:00:00Z"),
					savedTrackJSON("t2", "Boundary", "2025-06-02T10:00:00Z"),
					savedTrackJSON("t1", "Old", "2025-06-01T10:00:00Z"),
				)
			})
			srv := newTestSpotifyService(t, handler)

			since := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
			tracks, err := srv.FetchLikedSince(context.Background(), since)
			if err != nil {
				t.Fatalf("failed to fetch: %v", err)
			}

			// The boundary item equal to the cutoff is included; the store's
			// idempotent insert swallows the duplicate.
			if len(tracks) != 3 {
				t.Fatalf("expected 3 tracks, got %d", len(tracks))
			}
			if tracks[0].ID != "t4" || tracks[2].ID != "t2" {
				t.Errorf("expected newest-first t4..t2, got %s..%s", tracks[0].ID, tracks[2].ID)
			}
		})

		t.Run("walks pages until exhausted", func(t *testing.T) {
			var offsets []string
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				offset := r.URL.Query().Get("offset")
				offsets = append(offsets, offset)
				if offset == "0" {
					fmt.Fprintf(w, `{"items": [%s], "next": "page2"}`,
						savedTrackJSON("t2", "Second", "2025-06-02T10:00:00Z"))
					return
				}
				fmt.Fprintf(w, `{"items": [%s], "next": null}`,
					savedTrackJSON("t1", "First", "2025-06-01T10:00:00Z"))
			})
			srv := newTestSpotifyService(t, handler)

			tracks, err := srv.FetchLikedSince(context.Background(), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
			if err != nil {
				t.Fatalf("failed to fetch: %v", err)
			}
			if len(tracks) != 2 {
				t.Fatalf("expected 2 tracks across pages, got %d", len(tracks))
			}
			if len(offsets) != 2 || offsets[0] != "0" || offsets[1] != "50" {
				t.Errorf("expected offsets [0 50], got %v", offsets)
			}
		})

		t.Run("maps catalog fields onto the model", func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprintf(w, `{"items": [%s], "next": null}`,
					savedTrackJSON("t9", "Mapped Song", "2025-06-05T08:30:00Z"))
			})
			srv := newTestSpotifyService(t, handler)

			tracks, err := srv.FetchLikedSince(context.Background(), time.Time{})
			if err != nil {
				t.Fatalf("failed to fetch: %v", err)
			}
			if len(tracks) != 1 {
				t.Fatalf("expected 1 track, got %d", len(tracks))
			}

			track := tracks[0]
			if track.Name != "Mapped Song" || track.Artist != "Test Artist" || track.Album != "Test Album" {
				t.Errorf("unexpected mapping: %+v", track)
			}
			if track.TrackNumber != 7 || track.DurationMS != 225000 {
				t.Errorf("expected track 7 at 225000ms, got %d at %d", track.TrackNumber, track.DurationMS)
			}
			if track.ArtworkURL != "https://img.example/cover.jpg" {
				t.Errorf("unexpected artwork URL %s", track.ArtworkURL)
			}
			if track.Status != models.StatusPending {
				t.Errorf("expected pending status, got %s", track.Status)
			}
			want := time.Date(2025, 6, 5, 8, 30, 0, 0, time.UTC)
			if !track.AddedAt.Equal(want) {
				t.Errorf("expected added_at %v, got %v", want, track.AddedAt)
			}
		})
	})

	t.Run("Play", func(t *testing.T) {
		t.Run("targets the active device", func(t *testing.T) {
			var playBody map[string]any
			var playQuery string
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Path {
				case "/me/player/devices":
					fmt.Fprint(w, `{"devices": [
						{"id": "idle", "name": "Phone", "is_active": false},
						{"id": "active", "name": "Mac", "is_active": true}
					]}`)
				case "/me/player/play":
					playQuery = r.URL.Query().Get("device_id")
					if err := json.NewDecoder(r.Body).Decode(&playBody); err != nil {
						t.Errorf("failed to decode play body: %v", err)
					}
					w.WriteHeader(http.StatusNoContent)
				default:
					t.Errorf("unexpected path %s", r.URL.Path)
				}
			})
			srv := newTestSpotifyService(t, handler)

			if err := srv.Play(context.Background(), "track123"); err != nil {
				t.Fatalf("failed to play: %v", err)
			}
			if playQuery != "active" {
				t.Errorf("expected the active device, got %q", playQuery)
			}
			uris, _ := playBody["uris"].([]any)
			if len(uris) != 1 || uris[0] != "spotify:track:track123" {
				t.Errorf("unexpected play body: %v", playBody)
			}
		})

		t.Run("falls back to the first device", func(t *testing.T) {
			var playQuery string
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Path {
				case "/me/player/devices":
					fmt.Fprint(w, `{"devices": [{"id": "only", "name": "Speaker", "is_active": false}]}`)
				case "/me/player/play":
					playQuery = r.URL.Query().Get("device_id")
					w.WriteHeader(http.StatusNoContent)
				}
			})
			srv := newTestSpotifyService(t, handler)

			if err := srv.Play(context.Background(), "track123"); err != nil {
				t.Fatalf("failed to play: %v", err)
			}
			if playQuery != "only" {
				t.Errorf("expected fallback to the only device, got %q", playQuery)
			}
		})

		t.Run("errors with no devices", func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"devices": []}`)
			})
			srv := newTestSpotifyService(t, handler)

			err := srv.Play(context.Background(), "track123")
			if !errors.Is(err, shared.ErrServiceUnavailable) {
				t.Errorf("expected ErrServiceUnavailable, got %v", err)
			}
		})
	})

	t.Run("Pause hits the player endpoint", func(t *testing.T) {
		var paused bool
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/me/player/devices":
				fmt.Fprint(w, `{"devices": [{"id": "active", "name": "Mac", "is_active": true}]}`)
			case "/me/player/pause":
				paused = r.Method == http.MethodPut
				w.WriteHeader(http.StatusNoContent)
			}
		})
		srv := newTestSpotifyService(t, handler)

		if err := srv.Pause(context.Background()); err != nil {
			t.Fatalf("failed to pause: %v", err)
		}
		if !paused {
			t.Error("expected a PUT to /me/player/pause")
		}
	})

	t.Run("API errors carry the typed sentinel", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
		srv := newTestSpotifyService(t, handler)

		_, err := srv.CurrentUser(context.Background())
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
	})

	t.Run("SetTokenRefreshCallback", func(t *testing.T) {
		srv, err := NewSpotifyService(testSpotifyConfig(), "token.json", nil)
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}

		srv.SetTokenRefreshCallback(func(token *oauth2.Token) {})
		if srv.onTokenRefresh == nil {
			t.Error("expected callback to be set")
		}

		srv.SetTokenRefreshCallback(nil)
		if srv.onTokenRefresh != nil {
			t.Error("expected callback to be cleared")
		}
	})

	t.Run("refreshableTokenSource", func(t *testing.T) {
		t.Run("calls callback on first token fetch", func(t *testing.T) {
			var captured *oauth2.Token
			mockSource := &mockTokenSource{token: &oauth2.Token{AccessToken: "test_token"}}

			source := &refreshableTokenSource{
				source:   mockSource,
				callback: func(token *oauth2.Token) { captured = token },
			}

			token, err := source.Token()
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if captured == nil || captured.AccessToken != "test_token" {
				t.Errorf("expected callback with the fetched token, got %+v", captured)
			}
			if token.AccessToken != "test_token" {
				t.Errorf("expected returned token 'test_token', got %s", token.AccessToken)
			}
		})

		t.Run("calls callback when token changes", func(t *testing.T) {
			callCount := 0
			mockSource := &mockTokenSource{token: &oauth2.Token{AccessToken: "token1"}}

			source := &refreshableTokenSource{
				source:   mockSource,
				callback: func(token *oauth2.Token) { callCount++ },
			}

			_, _ = source.Token()
			mockSource.token = &oauth2.Token{AccessToken: "token2"}
			token2, _ := source.Token()

			if callCount != 2 {
				t.Errorf("expected callback called twice, got %d", callCount)
			}
			if token2.AccessToken != "token2" {
				t.Errorf("expected new token, got %s", token2.AccessToken)
			}
		})

		t.Run("skips callback when token unchanged", func(t *testing.T) {
			callCount := 0
			mockSource := &mockTokenSource{token: &oauth2.Token{AccessToken: "same_token"}}

			source := &refreshableTokenSource{
				source:   mockSource,
				callback: func(token *oauth2.Token) { callCount++ },
			}

			source.Token()
			source.Token()
			source.Token()

			if callCount != 1 {
				t.Errorf("expected callback called once, got %d", callCount)
			}
		})

		t.Run("handles nil callback", func(t *testing.T) {
			mockSource := &mockTokenSource{token: &oauth2.Token{AccessToken: "test_token"}}
			source := &refreshableTokenSource{source: mockSource}

			token, err := source.Token()
			if err != nil {
				t.Fatalf("expected no error with nil callback, got %v", err)
			}
			if token.AccessToken != "test_token" {
				t.Error("expected token to be returned despite nil callback")
			}
		})

		t.Run("propagates source errors", func(t *testing.T) {
			mockSource := &mockTokenSource{err: errors.New("token source error")}
			source := &refreshableTokenSource{
				source:   mockSource,
				callback: func(token *oauth2.Token) { t.Error("callback should not be called on error") },
			}

			token, err := source.Token()
			if err == nil {
				t.Fatal("expected error from source")
			}
			if token != nil {
				t.Error("expected nil token on error")
			}
		})
	})
}

func TestLikedSongsSource(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"items": [%s, %s], "next": null}`,
			savedTrackJSON("t2", "Newest", "2025-06-04T10:00:00Z"),
			savedTrackJSON("t1", "Older", "2025-06-03T10:00:00Z"),
		)
	})
	srv := newTestSpotifyService(t, handler)

	source := NewLikedSongsSource(srv, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	first, err := source.FetchNew(context.Background())
	if err != nil {
		t.Fatalf("first fetch failed: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 tracks on first fetch, got %d", len(first))
	}

	// The mark now sits on the newest item, so a second fetch returns only
	// the boundary duplicate for the store to swallow.
	second, err := source.FetchNew(context.Background())
	if err != nil {
		t.Fatalf("second fetch failed: %v", err)
	}
	if len(second) != 1 || second[0].ID != "t2" {
		t.Errorf("expected only the boundary item on second fetch, got %d tracks", len(second))
	}

	var _ CatalogSource = source
}

// mockTokenSource implements [oauth2.TokenSource] for testing
type mockTokenSource struct {
	token *oauth2.Token
	err   error
}

func (m *mockTokenSource) Token() (*oauth2.Token, error) {
	return m.token, m.err
}
