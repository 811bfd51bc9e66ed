// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/boergens/spotify-shokz-sync/internal/models"
	"github.com/boergens/spotify-shokz-sync/internal/services"
)

// FakeCatalog is a test double for [services.CatalogSource]. Each call to
// FetchNew pops one queued batch; an exhausted queue yields nothing, like a
// poll with no new likes.
type FakeCatalog struct {
	mu      sync.Mutex
	Queue   [][]*models.Track
	Err     error
	Fetches int
}

func (f *FakeCatalog) FetchNew(ctx context.Context) ([]*models.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Fetches++
	if f.Err != nil {
		return nil, f.Err
	}
	if len(f.Queue) == 0 {
		return nil, nil
	}
	batch := f.Queue[0]
	f.Queue = f.Queue[1:]
	return batch, nil
}

// Enqueue adds a batch for a later FetchNew.
func (f *FakeCatalog) Enqueue(tracks ...*models.Track) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Queue = append(f.Queue, tracks)
}

// FetchCount reports how many polls have happened.
func (f *FakeCatalog) FetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Fetches
}

// FakePlayer is a test double for [services.Player].
type FakePlayer struct {
	mu       sync.Mutex
	Played   []string
	Pauses   int
	PlayErr  error
	PauseErr error
}

func (f *FakePlayer) Play(ctx context.Context, trackID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PlayErr != nil {
		return f.PlayErr
	}
	f.Played = append(f.Played, trackID)
	return nil
}

func (f *FakePlayer) Pause(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PauseErr != nil {
		return f.PauseErr
	}
	f.Pauses++
	return nil
}

// PlayedTracks returns a copy of the play log.
func (f *FakePlayer) PlayedTracks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Played...)
}

// FakeRecorder is a test double for [services.Recorder]. It writes a small
// real file so downstream stages can stat and copy it. A non-nil Block
// channel holds Record until the channel is closed, which lets tests pin the
// recorder "busy".
type FakeRecorder struct {
	mu       sync.Mutex
	Recorded []string
	Err      error
	Block    chan struct{}
}

func (f *FakeRecorder) Record(ctx context.Context, track *models.Track, destDir string) (string, error) {
	if f.Block != nil {
		select {
		case <-f.Block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.Err != nil {
		return "", f.Err
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(destDir, services.BuildFilename(track))
	if err := os.WriteFile(path, []byte("fake audio"), 0o644); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.Recorded = append(f.Recorded, track.ID)
	return path, nil
}

// RecordedTracks returns a copy of the capture log.
func (f *FakeRecorder) RecordedTracks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Recorded...)
}

// FakeTagger is a test double for [services.Tagger].
type FakeTagger struct {
	mu     sync.Mutex
	Tagged []string
	Err    error
}

func (f *FakeTagger) Tag(ctx context.Context, path string, track *models.Track) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Tagged = append(f.Tagged, path)
	return nil
}

// FakeNotifier is a test double for [services.Notifier]. Handles are
// sequential and recorded in Handles (handle -> track ID) so tests can
// resolve announcements.
type FakeNotifier struct {
	mu          sync.Mutex
	Announced   []string
	Handles     map[string]string
	Acks        []string
	Notices     []string
	AnnounceErr error
	next        int
}

func (f *FakeNotifier) Announce(ctx context.Context, track *models.Track) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AnnounceErr != nil {
		return "", f.AnnounceErr
	}

	f.next++
	handle := fmt.Sprintf("handle-%d", f.next)
	if f.Handles == nil {
		f.Handles = make(map[string]string)
	}
	f.Handles[handle] = track.ID
	f.Announced = append(f.Announced, track.ID)
	return handle, nil
}

func (f *FakeNotifier) Acknowledge(ctx context.Context, track *models.Track, decision models.Decision) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Acks = append(f.Acks, fmt.Sprintf("%s:%s", track.ID, decision))
	return nil
}

func (f *FakeNotifier) Notify(ctx context.Context, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Notices = append(f.Notices, message)
	return nil
}

// SetAnnounceErr swaps the announcement failure mid-test.
func (f *FakeNotifier) SetAnnounceErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AnnounceErr = err
}

// AnnouncedTracks returns a copy of the announcement log.
func (f *FakeNotifier) AnnouncedTracks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Announced...)
}

// HandleFor returns the live handle for a track ID, if any.
func (f *FakeNotifier) HandleFor(trackID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for handle, id := range f.Handles {
		if id == trackID {
			return handle, true
		}
	}
	return "", false
}

// FakeTransport is a test double for [services.VolumeTransport].
type FakeTransport struct {
	mu         sync.Mutex
	Mounted    []services.Volume
	Existing   map[string]struct{}
	Copies     []string
	Sources    []string
	Ensures    int
	VolumesErr error
	EnsureErr  error
	CopyErr    error
}

func (f *FakeTransport) Volumes(ctx context.Context) ([]services.Volume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.VolumesErr != nil {
		return nil, f.VolumesErr
	}
	return append([]services.Volume(nil), f.Mounted...), nil
}

func (f *FakeTransport) EnsureMusicFolder(volume services.Volume) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Ensures++
	if f.EnsureErr != nil {
		return "", f.EnsureErr
	}
	return filepath.Join(volume.Path, "Music"), nil
}

func (f *FakeTransport) HasFile(dir, name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.Existing[name]
	return ok
}

func (f *FakeTransport) Copy(ctx context.Context, src, destDir, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CopyErr != nil {
		return "", f.CopyErr
	}
	if f.Existing == nil {
		f.Existing = make(map[string]struct{})
	}
	f.Existing[name] = struct{}{}
	f.Copies = append(f.Copies, name)
	f.Sources = append(f.Sources, src)
	return filepath.Join(destDir, name), nil
}

// Mount attaches a volume mid-test.
func (f *FakeTransport) Mount(volume services.Volume) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Mounted = append(f.Mounted, volume)
}

// Unmount detaches all volumes.
func (f *FakeTransport) Unmount() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Mounted = nil
}

// EnsureCount reports how many sync runs reached the volume.
func (f *FakeTransport) EnsureCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Ensures
}

// SetCopyErr swaps the copy failure mid-test.
func (f *FakeTransport) SetCopyErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CopyErr = err
}

// CopiedFiles returns a copy of the copy log.
func (f *FakeTransport) CopiedFiles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Copies...)
}

// FakeGate is a test double for [services.NetworkGate].
type FakeGate struct {
	mu     sync.Mutex
	online bool
	Err    error
}

func NewFakeGate(online bool) *FakeGate {
	return &FakeGate{online: online}
}

func (f *FakeGate) Connected(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online, f.Err
}

// SetOnline flips the gate mid-test.
func (f *FakeGate) SetOnline(online bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online = online
}

// Fakes must keep tracking the service interfaces.
var (
	_ services.CatalogSource   = (*FakeCatalog)(nil)
	_ services.Player          = (*FakePlayer)(nil)
	_ services.Recorder        = (*FakeRecorder)(nil)
	_ services.Tagger          = (*FakeTagger)(nil)
	_ services.Notifier        = (*FakeNotifier)(nil)
	_ services.VolumeTransport = (*FakeTransport)(nil)
	_ services.NetworkGate     = (*FakeGate)(nil)
)

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
