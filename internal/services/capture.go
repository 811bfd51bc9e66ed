// Loopback audio capture via ffmpeg
package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/boergens/spotify-shokz-sync/internal/models"
	"github.com/boergens/spotify-shokz-sync/internal/shared"
	"github.com/charmbracelet/log"
)

const (
	formatAVFoundation = "avfoundation"
	formatPulse        = "pulse"

	captureSampleRate = "44100"
	captureChannels   = "2"

	defaultBitrate                = "192k"
	defaultSilenceThresholdDB     = -50
	defaultSilenceDurationSeconds = 3
)

// FFmpegRecorder captures whatever plays on the loopback device and trims the
// trailing silence. The capture runs in three passes over a temp WAV: record
// up to the time budget, locate the first sustained silence, then encode the
// trimmed audio to MP3.
type FFmpegRecorder struct {
	cfg    shared.CaptureConfig
	logger *log.Logger

	// run executes ffmpeg and returns its stderr; swapped out in tests.
	run func(ctx context.Context, args []string) (string, error)
}

// NewFFmpegRecorder normalizes the capture config (binary path, input format
// per platform, silence window) and returns a ready recorder.
func NewFFmpegRecorder(cfg shared.CaptureConfig, logger *log.Logger) *FFmpegRecorder {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.InputFormat == "" {
		if runtime.GOOS == "darwin" {
			cfg.InputFormat = formatAVFoundation
		} else {
			cfg.InputFormat = formatPulse
		}
	}
	if cfg.Bitrate == "" {
		cfg.Bitrate = defaultBitrate
	}
	if cfg.SilenceThresholdDB == 0 {
		cfg.SilenceThresholdDB = defaultSilenceThresholdDB
	}
	if cfg.SilenceDurationSeconds <= 0 {
		cfg.SilenceDurationSeconds = defaultSilenceDurationSeconds
	}

	r := &FFmpegRecorder{cfg: cfg, logger: logger}
	r.run = r.runFFmpeg
	return r
}

// Record captures one track into destDir and returns the MP3 path. The time
// budget is the track length plus the configured padding; the trailing
// silence window is trimmed off when ffmpeg finds one.
func (r *FFmpegRecorder) Record(ctx context.Context, track *models.Track, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create recording directory: %w", err)
	}

	input, err := r.resolveInput(ctx)
	if err != nil {
		return "", err
	}

	filename := BuildFilename(track)
	mp3Path := filepath.Join(destDir, filename)
	tempWAV := filepath.Join(destDir, "_temp_"+strings.TrimSuffix(filename, ".mp3")+".wav")

	maxSeconds := track.MaxCaptureDuration(r.cfg.Padding()).Seconds()
	r.logger.Info("recording", "track", track.Display(), "device", input, "max_seconds", maxSeconds)

	out, err := r.run(ctx, []string{
		"-f", r.cfg.InputFormat,
		"-i", input,
		"-t", formatSeconds(maxSeconds),
		"-ar", captureSampleRate,
		"-ac", captureChannels,
		"-y",
		tempWAV,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: recording: %v: %s", shared.ErrCaptureFailed, err, stderrTail(out))
	}
	defer os.Remove(tempWAV)

	// silencedetect reports on stderr and the null muxer exits nonzero on
	// some builds; the parse decides, not the exit code.
	out, _ = r.run(ctx, []string{
		"-i", tempWAV,
		"-af", fmt.Sprintf("silencedetect=noise=%ddB:d=%d", r.cfg.SilenceThresholdDB, r.cfg.SilenceDurationSeconds),
		"-f", "null",
		"-",
	})

	trimSeconds := maxSeconds
	if start, ok := parseSilenceStart(out); ok {
		trimSeconds = start
		r.logger.Debug("silence detected", "track", track.Display(), "at_seconds", start)
	}

	out, err = r.run(ctx, []string{
		"-i", tempWAV,
		"-t", formatSeconds(trimSeconds),
		"-ar", captureSampleRate,
		"-ac", captureChannels,
		"-b:a", r.cfg.Bitrate,
		"-y",
		mp3Path,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: encoding: %v: %s", shared.ErrCaptureFailed, err, stderrTail(out))
	}

	r.logger.Info("capture complete", "track", track.Display(), "path", mp3Path, "seconds", trimSeconds)
	return mp3Path, nil
}

// ListDevices names the audio capture devices ffmpeg can see. Only the
// avfoundation listing is parsed; PulseAudio sources are enumerated by name
// through pactl instead.
func (r *FFmpegRecorder) ListDevices(ctx context.Context) ([]string, error) {
	out, _ := r.run(ctx, []string{"-f", formatAVFoundation, "-list_devices", "true", "-i", ""})
	devices := parseAudioDevices(out)
	if len(devices) == 0 {
		return nil, fmt.Errorf("%w: no audio devices reported", shared.ErrCaptureFailed)
	}
	return devices, nil
}

// resolveInput turns the configured device into an ffmpeg -i argument.
// avfoundation addresses devices by index (":N"), so a configured name is
// resolved against the device listing. Other input formats address sources
// by name and pass through untouched.
func (r *FFmpegRecorder) resolveInput(ctx context.Context) (string, error) {
	device := r.cfg.InputDevice
	if r.cfg.InputFormat != formatAVFoundation {
		if device == "" {
			return "default", nil
		}
		return device, nil
	}
	if strings.HasPrefix(device, ":") {
		return device, nil
	}

	out, _ := r.run(ctx, []string{"-f", formatAVFoundation, "-list_devices", "true", "-i", ""})
	if idx, ok := parseDeviceIndex(out, device); ok {
		return fmt.Sprintf(":%d", idx), nil
	}
	return "", fmt.Errorf("%w: audio device %q not found (available: %s)",
		shared.ErrCaptureFailed, device, strings.Join(parseAudioDevices(out), ", "))
}

func (r *FFmpegRecorder) runFFmpeg(ctx context.Context, args []string) (string, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.cfg.FFmpegPath, args...)
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.String(), err
}

// parseSilenceStart finds the first silencedetect report in ffmpeg stderr,
// e.g. "[silencedetect @ 0x...] silence_start: 187.543".
func parseSilenceStart(stderr string) (float64, bool) {
	for _, line := range strings.Split(stderr, "\n") {
		_, after, found := strings.Cut(line, "silence_start:")
		if !found {
			continue
		}
		fields := strings.Fields(after)
		if len(fields) == 0 {
			continue
		}
		start, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			continue
		}
		return start, true
	}
	return 0, false
}

// parseAudioDevices extracts device names from the -list_devices stderr:
//
//	[AVFoundation indev @ 0x...] AVFoundation audio devices:
//	[AVFoundation indev @ 0x...] [0] MacBook Pro Microphone
//	[AVFoundation indev @ 0x...] [1] BlackHole 2ch
func parseAudioDevices(stderr string) []string {
	var devices []string
	inAudio := false
	for _, line := range strings.Split(stderr, "\n") {
		if strings.Contains(line, "AVFoundation audio devices:") {
			inAudio = true
			continue
		}
		if !inAudio || !strings.HasPrefix(line, "[AVFoundation") {
			continue
		}
		first := strings.Index(line, "]")
		if first < 0 {
			continue
		}
		second := strings.Index(line[first+1:], "]")
		if second < 0 {
			continue
		}
		if name := strings.TrimSpace(line[first+1+second+1:]); name != "" {
			devices = append(devices, name)
		}
	}
	return devices
}

// parseDeviceIndex resolves a device name to its avfoundation index.
func parseDeviceIndex(stderr, name string) (int, bool) {
	inAudio := false
	for _, line := range strings.Split(stderr, "\n") {
		if strings.Contains(line, "AVFoundation audio devices:") {
			inAudio = true
			continue
		}
		if !inAudio || !strings.HasPrefix(line, "[AVFoundation") || !strings.Contains(line, name) {
			continue
		}
		rest := line[strings.Index(line, "]")+1:]
		open := strings.Index(rest, "[")
		closing := strings.Index(rest, "]")
		if open < 0 || closing < open {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimSpace(rest[open+1 : closing]))
		if err != nil {
			continue
		}
		return idx, true
	}
	return 0, false
}

func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 1, 64)
}

func stderrTail(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
