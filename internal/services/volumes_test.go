package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/boergens/spotify-shokz-sync/internal/shared"
)

func mkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestFilesystemVolumes(t *testing.T) {
	t.Run("Volumes", func(t *testing.T) {
		t.Run("lists mounts minus exclusions", func(t *testing.T) {
			root := t.TempDir()
			mkdirAll(t, filepath.Join(root, "SHOKZ"))
			mkdirAll(t, filepath.Join(root, "Macintosh HD"))
			writeFile(t, filepath.Join(root, "not-a-volume.txt"), "x")

			v := NewFilesystemVolumes(shared.SyncConfig{
				VolumeRoots:    []string{root},
				ExcludeVolumes: []string{"Macintosh HD"},
			}, nil)

			volumes, err := v.Volumes(context.Background())
			if err != nil {
				t.Fatalf("failed to list volumes: %v", err)
			}
			if len(volumes) != 1 {
				t.Fatalf("expected one volume, got %v", volumes)
			}
			if volumes[0].Name != "SHOKZ" || volumes[0].Path != filepath.Join(root, "SHOKZ") {
				t.Errorf("unexpected volume %+v", volumes[0])
			}
		})

		t.Run("media roots nest one level deeper", func(t *testing.T) {
			base := t.TempDir()
			media := filepath.Join(base, "media")
			mkdirAll(t, filepath.Join(media, "user", "USB1"))
			mkdirAll(t, filepath.Join(media, "user", "USB2"))

			v := NewFilesystemVolumes(shared.SyncConfig{VolumeRoots: []string{media}}, nil)

			volumes, err := v.Volumes(context.Background())
			if err != nil {
				t.Fatalf("failed to list volumes: %v", err)
			}
			if len(volumes) != 2 {
				t.Fatalf("expected two volumes, got %v", volumes)
			}
			if volumes[0].Path != filepath.Join(media, "user", "USB1") {
				t.Errorf("unexpected path %s", volumes[0].Path)
			}
		})

		t.Run("missing roots contribute nothing", func(t *testing.T) {
			v := NewFilesystemVolumes(shared.SyncConfig{
				VolumeRoots: []string{filepath.Join(t.TempDir(), "nope")},
			}, nil)

			volumes, err := v.Volumes(context.Background())
			if err != nil {
				t.Fatalf("expected missing root to be skipped, got %v", err)
			}
			if len(volumes) != 0 {
				t.Errorf("expected no volumes, got %v", volumes)
			}
		})
	})

	t.Run("EnsureMusicFolder", func(t *testing.T) {
		v := NewFilesystemVolumes(shared.SyncConfig{}, nil)

		t.Run("prefers an existing folder", func(t *testing.T) {
			vol := Volume{Name: "STICK", Path: t.TempDir()}
			mkdirAll(t, filepath.Join(vol.Path, "MUSIC"))

			folder, err := v.EnsureMusicFolder(vol)
			if err != nil {
				t.Fatalf("failed: %v", err)
			}
			if folder != filepath.Join(vol.Path, "MUSIC") {
				t.Errorf("expected the existing MUSIC folder, got %s", folder)
			}
		})

		t.Run("creates Music when none exists", func(t *testing.T) {
			vol := Volume{Name: "STICK", Path: t.TempDir()}

			folder, err := v.EnsureMusicFolder(vol)
			if err != nil {
				t.Fatalf("failed: %v", err)
			}
			if folder != filepath.Join(vol.Path, "Music") {
				t.Errorf("expected a created Music folder, got %s", folder)
			}
			if info, err := os.Stat(folder); err != nil || !info.IsDir() {
				t.Errorf("expected the folder on disk: %v", err)
			}
		})

		t.Run("rejects read-only volumes", func(t *testing.T) {
			if os.Geteuid() == 0 {
				t.Skip("write access checks are moot as root")
			}

			vol := Volume{Name: "STICK", Path: t.TempDir()}
			if err := os.Chmod(vol.Path, 0o555); err != nil {
				t.Fatalf("failed to chmod: %v", err)
			}
			t.Cleanup(func() { os.Chmod(vol.Path, 0o755) })

			_, err := v.EnsureMusicFolder(vol)
			if !errors.Is(err, shared.ErrVolumeUnavailable) {
				t.Errorf("expected ErrVolumeUnavailable, got %v", err)
			}
		})
	})

	t.Run("HasFile", func(t *testing.T) {
		v := NewFilesystemVolumes(shared.SyncConfig{}, nil)
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "Artist - Song.mp3"), "audio")
		mkdirAll(t, filepath.Join(dir, "dir.mp3"))

		if !v.HasFile(dir, "Artist - Song.mp3") {
			t.Error("expected the file to be found")
		}
		if v.HasFile(dir, "Other - Song.mp3") {
			t.Error("expected a missing file to be absent")
		}
		if v.HasFile(dir, "dir.mp3") {
			t.Error("expected a directory not to count as a file")
		}
	})

	t.Run("Copy", func(t *testing.T) {
		v := NewFilesystemVolumes(shared.SyncConfig{}, nil)

		t.Run("copies and verifies", func(t *testing.T) {
			src := filepath.Join(t.TempDir(), "src.mp3")
			writeFile(t, src, "the recorded audio bytes")
			destDir := t.TempDir()

			dest, err := v.Copy(context.Background(), src, destDir, "Artist - Song.mp3")
			if err != nil {
				t.Fatalf("copy failed: %v", err)
			}
			if dest != filepath.Join(destDir, "Artist - Song.mp3") {
				t.Errorf("unexpected destination %s", dest)
			}

			content, err := os.ReadFile(dest)
			if err != nil {
				t.Fatalf("failed to read copy: %v", err)
			}
			if string(content) != "the recorded audio bytes" {
				t.Errorf("copy content mismatch: %q", content)
			}
		})

		t.Run("missing source errors", func(t *testing.T) {
			_, err := v.Copy(context.Background(), filepath.Join(t.TempDir(), "absent.mp3"), t.TempDir(), "x.mp3")
			if err == nil {
				t.Error("expected an error for a missing source")
			}
		})

		t.Run("a short copy is detected and removed", func(t *testing.T) {
			dir := t.TempDir()
			src := filepath.Join(dir, "take.mp3")
			writeFile(t, src, "a complete recording")

			// Copying a file onto itself truncates the source before the
			// first read, so the verified byte count comes up short.
			_, err := v.Copy(context.Background(), src, dir, "take.mp3")
			if !errors.Is(err, shared.ErrSizeMismatch) {
				t.Fatalf("expected ErrSizeMismatch, got %v", err)
			}
			if _, err := os.Stat(src); !errors.Is(err, os.ErrNotExist) {
				t.Error("expected the short copy to be removed")
			}
		})

		t.Run("cancellation removes the partial file", func(t *testing.T) {
			src := filepath.Join(t.TempDir(), "src.mp3")
			writeFile(t, src, "bytes that will not arrive")
			destDir := t.TempDir()

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			_, err := v.Copy(ctx, src, destDir, "x.mp3")
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("expected context.Canceled, got %v", err)
			}
			if _, err := os.Stat(filepath.Join(destDir, "x.mp3")); !errors.Is(err, os.ErrNotExist) {
				t.Error("expected the partial file to be removed")
			}
		})
	})

	t.Run("platform defaults apply without configured roots", func(t *testing.T) {
		v := NewFilesystemVolumes(shared.SyncConfig{}, nil)
		if len(v.roots) == 0 {
			t.Error("expected platform mount roots")
		}
	})

	var _ VolumeTransport = NewFilesystemVolumes(shared.SyncConfig{}, nil)
}
