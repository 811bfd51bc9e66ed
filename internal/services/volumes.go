// Removable volume discovery and device copy
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/boergens/spotify-shokz-sync/internal/shared"
	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"
)

// copyChunk bounds how much is written between context checks; device sticks
// are slow enough that a whole-file copy could outlive the sync timeout.
const copyChunk = 1 << 20

// musicFolderNames are the device folders checked before creating one, in
// preference order.
var musicFolderNames = []string{"Music", "MUSIC", "music", "Mp3", "MP3", "Songs"}

// FilesystemVolumes discovers mounted removable volumes and copies recordings
// onto them. Discovery scans the platform mount roots: /Volumes on macOS
// (minus the system disk), /media/<user>/<device> and /mnt/<device> on Linux.
type FilesystemVolumes struct {
	roots   []string
	exclude map[string]struct{}
	logger  *log.Logger
}

func NewFilesystemVolumes(cfg shared.SyncConfig, logger *log.Logger) *FilesystemVolumes {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	roots := cfg.VolumeRoots
	if len(roots) == 0 {
		if runtime.GOOS == "darwin" {
			roots = []string{"/Volumes"}
		} else {
			roots = []string{"/media", "/mnt"}
		}
	}

	exclude := make(map[string]struct{}, len(cfg.ExcludeVolumes))
	for _, name := range cfg.ExcludeVolumes {
		exclude[name] = struct{}{}
	}

	return &FilesystemVolumes{roots: roots, exclude: exclude, logger: logger}
}

// Volumes lists the mounted candidate volumes. A missing mount root is not an
// error, just an empty contribution.
func (v *FilesystemVolumes) Volumes(ctx context.Context) ([]Volume, error) {
	var volumes []Volume
	for _, root := range v.roots {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		entries, err := os.ReadDir(root)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to scan %s: %w", root, err)
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			// /media nests mounts one level deeper, under the user.
			if filepath.Base(filepath.Clean(root)) == "media" {
				userDir := filepath.Join(root, entry.Name())
				subEntries, err := os.ReadDir(userDir)
				if err != nil {
					continue
				}
				for _, sub := range subEntries {
					if sub.IsDir() {
						volumes = v.appendVolume(volumes, userDir, sub.Name())
					}
				}
				continue
			}
			volumes = v.appendVolume(volumes, root, entry.Name())
		}
	}
	return volumes, nil
}

func (v *FilesystemVolumes) appendVolume(volumes []Volume, dir, name string) []Volume {
	if _, excluded := v.exclude[name]; excluded {
		return volumes
	}
	return append(volumes, Volume{Name: name, Path: filepath.Join(dir, name)})
}

// EnsureMusicFolder returns the folder recordings sync into, creating Music/
// when the volume has none of the usual candidates. Read-only volumes are
// reported as unavailable rather than half-synced.
func (v *FilesystemVolumes) EnsureMusicFolder(volume Volume) (string, error) {
	if err := unix.Access(volume.Path, unix.W_OK); err != nil {
		return "", fmt.Errorf("%w: %s is not writable: %v", shared.ErrVolumeUnavailable, volume.Name, err)
	}

	for _, name := range musicFolderNames {
		folder := filepath.Join(volume.Path, name)
		if info, err := os.Stat(folder); err == nil && info.IsDir() {
			return folder, nil
		}
	}

	folder := filepath.Join(volume.Path, "Music")
	if err := os.Mkdir(folder, 0o755); err != nil && !errors.Is(err, os.ErrExist) {
		return "", fmt.Errorf("failed to create music folder on %s: %w", volume.Name, err)
	}
	return folder, nil
}

// HasFile reports whether the device folder already holds a file of this name.
func (v *FilesystemVolumes) HasFile(dir, name string) bool {
	info, err := os.Stat(filepath.Join(dir, name))
	return err == nil && info.Mode().IsRegular()
}

// Copy writes src into destDir under name and verifies the byte count. A
// short or failed copy removes the partial file so the device never keeps a
// truncated recording.
func (v *FilesystemVolumes) Copy(ctx context.Context, src, destDir, name string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("failed to open source %s: %w", src, err)
	}
	defer in.Close()

	srcInfo, err := in.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat source %s: %w", src, err)
	}

	dest := filepath.Join(destDir, name)
	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create %s: %v", shared.ErrVolumeUnavailable, dest, err)
	}

	v.logger.Info("copying", "file", name, "dest", destDir)

	var written int64
	for err == nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
			break
		}
		var n int64
		n, err = io.CopyN(out, in, copyChunk)
		written += n
	}
	if errors.Is(err, io.EOF) {
		err = nil
	}

	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dest)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("failed to copy %s: %w", name, err)
	}

	if written != srcInfo.Size() {
		os.Remove(dest)
		return "", fmt.Errorf("%w: %s: wrote %d of %d bytes", shared.ErrSizeMismatch, name, written, srcInfo.Size())
	}

	return dest, nil
}
