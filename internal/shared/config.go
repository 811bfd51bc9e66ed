package shared

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Library     LibraryConfig     `toml:"library"`
	Watch       WatchConfig       `toml:"watch"`
	Network     NetworkConfig     `toml:"network"`
	Capture     CaptureConfig     `toml:"capture"`
	Retry       RetryConfig       `toml:"retry"`
	Sync        SyncConfig        `toml:"sync"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
	Discord DiscordConfig `toml:"discord"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	TokenPath    string `toml:"token_path"`
}

// DiscordConfig contains the approval bot credentials. Both fields empty
// disables the Discord notifier; tracks then wait for the review TUI.
type DiscordConfig struct {
	BotToken  string `toml:"bot_token"`
	ChannelID string `toml:"channel_id"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// LibraryConfig locates the local recording library.
type LibraryConfig struct {
	Directory string `toml:"directory"`
}

// WatchConfig contains the loop cadences and the shutdown grace budget.
type WatchConfig struct {
	PollIntervalSeconds    int `toml:"poll_interval_seconds"`
	CaptureIntervalSeconds int `toml:"capture_interval_seconds"`
	VolumeIntervalSeconds  int `toml:"volume_interval_seconds"`
	ShutdownGraceSeconds   int `toml:"shutdown_grace_seconds"`
}

func (w WatchConfig) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalSeconds) * time.Second
}

func (w WatchConfig) CaptureInterval() time.Duration {
	return time.Duration(w.CaptureIntervalSeconds) * time.Second
}

func (w WatchConfig) VolumeInterval() time.Duration {
	return time.Duration(w.VolumeIntervalSeconds) * time.Second
}

func (w WatchConfig) ShutdownGrace() time.Duration {
	return time.Duration(w.ShutdownGraceSeconds) * time.Second
}

// NetworkConfig names the network the pipeline requires. An empty SSID
// disables gating entirely.
type NetworkConfig struct {
	SSID string `toml:"ssid"`
}

// CaptureConfig tunes the loopback recorder.
type CaptureConfig struct {
	FFmpegPath             string `toml:"ffmpeg_path"`
	InputFormat            string `toml:"input_format"`
	InputDevice            string `toml:"input_device"`
	Bitrate                string `toml:"bitrate"`
	SilenceThresholdDB     int    `toml:"silence_threshold_db"`
	SilenceDurationSeconds int    `toml:"silence_duration_seconds"`
	PaddingSeconds         int    `toml:"padding_seconds"`
	PauseSeconds           int    `toml:"pause_seconds"`
	RecordFailures         bool   `toml:"record_failures"`
}

func (c CaptureConfig) Padding() time.Duration {
	return time.Duration(c.PaddingSeconds) * time.Second
}

func (c CaptureConfig) Pause() time.Duration {
	return time.Duration(c.PauseSeconds) * time.Second
}

// RetryConfig bounds the automatic retry machinery.
type RetryConfig struct {
	MaxAttempts        int `toml:"max_attempts"`
	BaseBackoffMinutes int `toml:"base_backoff_minutes"`
}

func (r RetryConfig) BaseBackoff() time.Duration {
	return time.Duration(r.BaseBackoffMinutes) * time.Minute
}

// SyncConfig tunes device sync.
type SyncConfig struct {
	VolumeTimeoutSeconds int      `toml:"volume_timeout_seconds"`
	VolumeRoots          []string `toml:"volume_roots"`
	ExcludeVolumes       []string `toml:"exclude_volumes"`
}

func (s SyncConfig) VolumeTimeout() time.Duration {
	return time.Duration(s.VolumeTimeoutSeconds) * time.Second
}

// LoadConfig reads and parses a TOML configuration file from the specified
// path, then applies environment overrides for secrets.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyEnv()
	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	config.applyEnv()
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnv overlays secret material from the environment so credentials can
// be kept out of the config file (a .env file is honored by the entrypoint).
func (c *Config) applyEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Credentials.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Credentials.Spotify.ClientSecret = v
	}
	if v := os.Getenv("DISCORD_BOT_TOKEN"); v != "" {
		c.Credentials.Discord.BotToken = v
	}
	if v := os.Getenv("DISCORD_CHANNEL_ID"); v != "" {
		c.Credentials.Discord.ChannelID = v
	}
}

// Validate checks the fields the daemon cannot start without. Optional
// integrations (Discord, network gating) are not validated here.
func (c *Config) Validate() error {
	if c.Credentials.Spotify.ClientID == "" || c.Credentials.Spotify.ClientSecret == "" {
		return fmt.Errorf("%w: spotify client_id and client_secret are required", ErrMissingCredentials)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database path is required", ErrInvalidConfig)
	}
	if c.Library.Directory == "" {
		return fmt.Errorf("%w: library directory is required", ErrInvalidConfig)
	}
	if c.Watch.PollIntervalSeconds <= 0 || c.Watch.CaptureIntervalSeconds <= 0 || c.Watch.VolumeIntervalSeconds <= 0 {
		return fmt.Errorf("%w: watch intervals must be positive", ErrInvalidConfig)
	}
	if c.Retry.MaxAttempts <= 0 || c.Retry.BaseBackoffMinutes <= 0 {
		return fmt.Errorf("%w: retry bounds must be positive", ErrInvalidConfig)
	}
	return nil
}

// SpotifyTokenPath resolves the on-disk location of the cached OAuth token,
// defaulting under the user's home directory.
func (c *Config) SpotifyTokenPath() (string, error) {
	if c.Credentials.Spotify.TokenPath != "" {
		return c.Credentials.Spotify.TokenPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".shokz-sync", "token.json"), nil
}
