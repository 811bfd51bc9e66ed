// ID3v2 metadata for captured MP3s
package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/boergens/spotify-shokz-sync/internal/models"
	"github.com/boergens/spotify-shokz-sync/internal/shared"
	"github.com/bogem/id3v2/v2"
	"github.com/charmbracelet/log"
)

const artworkTimeout = 10 * time.Second

// BuildFilename renders the canonical "Artist - Title.mp3" name used for the
// local recording and for the copy on the device.
func BuildFilename(track *models.Track) string {
	return shared.SanitizeFilename(fmt.Sprintf("%s - %s", track.Artist, track.Name)) + ".mp3"
}

// ID3Tagger writes title, artist, album, track number and front-cover art
// onto a captured MP3.
type ID3Tagger struct {
	httpClient *http.Client
	logger     *log.Logger
}

func NewID3Tagger(logger *log.Logger) *ID3Tagger {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &ID3Tagger{
		httpClient: &http.Client{Timeout: artworkTimeout},
		logger:     logger,
	}
}

// Tag stamps the track's metadata onto the file at path. Artwork is fetched
// from the catalog's URL; a failed fetch degrades to an untagged cover, it
// never fails the capture.
func (t *ID3Tagger) Tag(ctx context.Context, path string, track *models.Track) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("failed to open %s for tagging: %w", path, err)
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	tag.SetTitle(track.Name)
	tag.SetArtist(track.Artist)
	tag.SetAlbum(track.Album)
	if track.TrackNumber > 0 {
		tag.AddTextFrame(tag.CommonID("Track number/Position in set"), id3v2.EncodingUTF8, strconv.Itoa(track.TrackNumber))
	}

	if track.ArtworkURL != "" {
		if art, err := t.fetchArtwork(ctx, track.ArtworkURL); err != nil {
			t.logger.Warn("failed to fetch album art", "track", track.Display(), "error", err)
		} else {
			// A retried tagging pass must not stack covers.
			tag.DeleteFrames(tag.CommonID("Attached picture"))
			tag.AddAttachedPicture(id3v2.PictureFrame{
				Encoding:    id3v2.EncodingUTF8,
				MimeType:    "image/jpeg",
				PictureType: id3v2.PTFrontCover,
				Description: "Cover",
				Picture:     art,
			})
		}
	}

	if err := tag.Save(); err != nil {
		return fmt.Errorf("failed to save tags for %s: %w", path, err)
	}

	t.logger.Info("tagged", "track", track.Display(), "path", path)
	return nil
}

func (t *ID3Tagger) fetchArtwork(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, artworkTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching artwork", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
