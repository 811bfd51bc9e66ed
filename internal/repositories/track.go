package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/boergens/spotify-shokz-sync/internal/models"
	"github.com/boergens/spotify-shokz-sync/internal/shared"
	"github.com/charmbracelet/log"
)

// trackColumns is the full column list in scan order.
const trackColumns = `spotify_id, name, artist, album, artwork_url, track_number, duration_ms, status, added_at, processed_at, file_path, retry_count, last_error, last_retry_at`

// TrackRepository persists tracks and owns every status transition.
//
// All writes go through the single configured connection (see
// [shared.ConfigureDatabase]), so read-modify-write sequences like
// [TrackRepository.SetStatus] observe a consistent row.
type TrackRepository struct {
	db     *sql.DB
	logger *log.Logger

	// now is swapped in tests to pin backoff arithmetic.
	now func() time.Time
}

// NewTrackRepository creates a new TrackRepository with the given database
// connection. A nil logger falls back to the default stderr logger.
func NewTrackRepository(db *sql.DB, logger *log.Logger) *TrackRepository {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &TrackRepository{db: db, logger: logger, now: time.Now}
}

// Insert stores a newly discovered track. Returns true when the row was
// created and false when the spotify_id was already known, so callers can
// treat re-discovery of an old like as a no-op without a prior lookup.
func (r *TrackRepository) Insert(track *models.Track) (bool, error) {
	if track.ID == "" {
		return false, fmt.Errorf("%w: track id is required", shared.ErrInvalidInput)
	}

	status := track.Status
	if status == "" {
		status = models.StatusPending
	}
	addedAt := track.AddedAt
	if addedAt.IsZero() {
		addedAt = r.now()
	}

	query := `
		INSERT INTO tracks (spotify_id, name, artist, album, artwork_url, track_number, duration_ms, status, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (spotify_id) DO NOTHING
	`

	result, err := r.db.Exec(query,
		track.ID,
		track.Name,
		track.Artist,
		track.Album,
		track.ArtworkURL,
		track.TrackNumber,
		track.DurationMS,
		status,
		addedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert track: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows > 0, nil
}

// Get retrieves a track by its Spotify ID.
func (r *TrackRepository) Get(id string) (*models.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE spotify_id = ?`
	return r.scanOne(r.db.QueryRow(query, id))
}

// SetStatus advances a track to the given status.
//
// Illegal transitions and unknown IDs are logged and dropped without an
// error: they mean a slow worker lost a race that another path already won,
// and the row it raced against must not be disturbed. When filePath is
// non-empty the file location and processed_at are recorded alongside the
// status. Retry bookkeeping is cleared in the same statement, so a row that
// advances always starts its next stage with a clean failure history.
func (r *TrackRepository) SetStatus(id string, status models.Status, filePath string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current models.Status
	err = tx.QueryRow(`SELECT status FROM tracks WHERE spotify_id = ?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		r.logger.Warn("dropping status change for unknown track", "id", id, "to", status)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read track status: %w", err)
	}

	if !models.CanTransition(current, status) {
		r.logger.Warn("dropping illegal status transition", "id", id, "from", current, "to", status)
		return nil
	}

	if filePath != "" {
		_, err = tx.Exec(`
			UPDATE tracks
			SET status = ?, file_path = ?, processed_at = ?,
			    retry_count = 0, last_error = '', last_retry_at = NULL
			WHERE spotify_id = ?
		`, status, filePath, r.now(), id)
	} else {
		_, err = tx.Exec(`
			UPDATE tracks
			SET status = ?,
			    retry_count = 0, last_error = '', last_retry_at = NULL
			WHERE spotify_id = ?
		`, status, id)
	}
	if err != nil {
		return fmt.Errorf("failed to update track status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit status update: %w", err)
	}

	return nil
}

// ListByStatus retrieves all tracks in the given status, oldest first.
func (r *TrackRepository) ListByStatus(status models.Status) ([]*models.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE status = ? ORDER BY added_at ASC, spotify_id ASC`
	return r.list(query, status)
}

// RecordFailure notes a failed attempt against a track: the retry counter is
// incremented and the error text and attempt time are kept for operators. A
// no-op for unknown IDs.
func (r *TrackRepository) RecordFailure(id string, errText string) error {
	query := `
		UPDATE tracks
		SET retry_count = retry_count + 1, last_error = ?, last_retry_at = ?
		WHERE spotify_id = ?
	`

	if _, err := r.db.Exec(query, errText, r.now(), id); err != nil {
		return fmt.Errorf("failed to record failure: %w", err)
	}

	return nil
}

// ResetRetry clears a track's failure history so it becomes immediately
// eligible again. Exposed to operators through the retry command.
func (r *TrackRepository) ResetRetry(id string) error {
	query := `
		UPDATE tracks
		SET retry_count = 0, last_error = '', last_retry_at = NULL
		WHERE spotify_id = ?
	`

	if _, err := r.db.Exec(query, id); err != nil {
		return fmt.Errorf("failed to reset retry state: %w", err)
	}

	return nil
}

// ListRetryEligible retrieves tracks in the given status whose retry budget
// is not exhausted and whose backoff window has elapsed. The candidate scan
// happens in SQL; the backoff gate is [models.Track.RetryEligible] so the
// doubling arithmetic lives in exactly one place.
func (r *TrackRepository) ListRetryEligible(status models.Status, maxRetries int, minBackoff time.Duration) ([]*models.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE status = ? AND retry_count < ? ORDER BY added_at ASC, spotify_id ASC`

	candidates, err := r.list(query, status, maxRetries)
	if err != nil {
		return nil, err
	}

	now := r.now()
	eligible := make([]*models.Track, 0, len(candidates))
	for _, track := range candidates {
		if track.RetryEligible(now, minBackoff) {
			eligible = append(eligible, track)
		}
	}

	return eligible, nil
}

// ListStuck retrieves non-terminal tracks that exhausted their retry budget.
// They are never failed automatically; they sit here until an operator
// resets or rejects them.
func (r *TrackRepository) ListStuck(maxRetries int) ([]*models.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE retry_count >= ? AND status IN (?, ?) ORDER BY added_at ASC, spotify_id ASC`
	return r.list(query, maxRetries, models.StatusApproved, models.StatusRecorded)
}

// ResetStuck clears the failure history of every stuck track and reports how
// many rows were touched.
func (r *TrackRepository) ResetStuck(maxRetries int) (int, error) {
	query := `
		UPDATE tracks
		SET retry_count = 0, last_error = '', last_retry_at = NULL
		WHERE retry_count >= ? AND status IN (?, ?)
	`

	result, err := r.db.Exec(query, maxRetries, models.StatusApproved, models.StatusRecorded)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stuck tracks: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return int(rows), nil
}

// CountByStatus reports how many tracks sit in each status. Statuses with no
// rows are absent from the map.
func (r *TrackRepository) CountByStatus() (map[models.Status]int, error) {
	rows, err := r.db.Query(`SELECT status, COUNT(*) FROM tracks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count tracks: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Status]int, len(models.Statuses))
	for rows.Next() {
		var (
			status models.Status
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[status] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return counts, nil
}

// NewestAddedAt returns the added_at of the most recently liked track, or
// the zero time when the table is empty. Seeds the catalog watermark on
// startup so old likes are not re-imported.
func (r *TrackRepository) NewestAddedAt() (time.Time, error) {
	var newest time.Time
	err := r.db.QueryRow(`SELECT added_at FROM tracks ORDER BY added_at DESC LIMIT 1`).Scan(&newest)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read newest added_at: %w", err)
	}

	return newest, nil
}

// list runs a SELECT over trackColumns and scans every row.
func (r *TrackRepository) list(query string, args ...any) ([]*models.Track, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*models.Track
	for rows.Next() {
		track, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return tracks, nil
}

// scanOne scans a single [sql.Row] into a [models.Track]
func (r *TrackRepository) scanOne(row *sql.Row) (*models.Track, error) {
	var (
		track       models.Track
		processedAt sql.NullTime
		lastRetryAt sql.NullTime
	)

	err := row.Scan(
		&track.ID, &track.Name, &track.Artist, &track.Album, &track.ArtworkURL,
		&track.TrackNumber, &track.DurationMS, &track.Status, &track.AddedAt,
		&processedAt, &track.FilePath, &track.RetryCount, &track.LastError, &lastRetryAt,
	)
	if err == sql.ErrNoRows {
		return nil, shared.ErrTrackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan track: %w", err)
	}

	if processedAt.Valid {
		track.ProcessedAt = &processedAt.Time
	}
	if lastRetryAt.Valid {
		track.LastRetryAt = &lastRetryAt.Time
	}

	return &track, nil
}

// scanRow scans a row from [sql.Rows] into a [models.Track]
func (r *TrackRepository) scanRow(rows *sql.Rows) (*models.Track, error) {
	var (
		track       models.Track
		processedAt sql.NullTime
		lastRetryAt sql.NullTime
	)

	err := rows.Scan(
		&track.ID, &track.Name, &track.Artist, &track.Album, &track.ArtworkURL,
		&track.TrackNumber, &track.DurationMS, &track.Status, &track.AddedAt,
		&processedAt, &track.FilePath, &track.RetryCount, &track.LastError, &lastRetryAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan track: %w", err)
	}

	if processedAt.Valid {
		track.ProcessedAt = &processedAt.Time
	}
	if lastRetryAt.Valid {
		track.LastRetryAt = &lastRetryAt.Time
	}

	return &track, nil
}
