package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and control-socket configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	MediaDir   string `toml:"media_dir"`
	LogDir     string `toml:"log_dir"`
	SocketPath string `toml:"socket_path"`
}

// Capture contains screen capture producer settings.
type Capture struct {
	FrameIntervalSeconds int  `toml:"frame_interval_seconds"`
	SegmentSeconds       int  `toml:"segment_seconds"`
	StartOnLaunch        bool `toml:"start_on_launch"`
}

// Foreground contains foreground window sampling settings.
type Foreground struct {
	SampleIntervalSeconds int `toml:"sample_interval_seconds"`
	HistoryMinutes        int `toml:"history_minutes"`
}

// Analysis contains batch analyzer timing and sizing settings.
type Analysis struct {
	PollIntervalSeconds  int `toml:"poll_interval_seconds"`
	SettleDelaySeconds   int `toml:"settle_delay_seconds"`
	MaxBatchMinutes      int `toml:"max_batch_minutes"`
	MaxBatchSegments     int `toml:"max_batch_segments"`
	KeyframesPerSegment  int `toml:"keyframes_per_segment"`
	MaxFrameWidth        int `toml:"max_frame_width"`
	MaxFrameHeight       int `toml:"max_frame_height"`
	JPEGQuality          int `toml:"jpeg_quality"`
	MergeGapSeconds      int `toml:"merge_gap_seconds"`
	RetryLimit           int `toml:"retry_limit"`
	BatchTimeoutSeconds  int `toml:"batch_timeout_seconds"`
	ErrorRetrySeconds    int `toml:"error_retry_seconds"`
	RecentCardsInContext int `toml:"recent_cards_in_context"`
}

// Vision contains the OpenAI-compatible inference endpoint settings.
type Vision struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Digest contains digest scheduling settings.
type Digest struct {
	SendTimes           []string `toml:"send_times"`
	CatchUpWindowHours  int      `toml:"catch_up_window_hours"`
	RetryLimit          int      `toml:"retry_limit"`
	PollIntervalSeconds int      `toml:"poll_interval_seconds"`
}

// Notifications contains ntfy push notification settings.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains log output settings.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for timelens.
//
// Sections by subsystem:
//   - Paths: data/media/log directories and the IPC socket
//   - Capture: frame cadence and segment length
//   - Foreground: window identity sampling
//   - Analysis: batching, keyframes, retries
//   - Vision: inference endpoint connection
//   - Digest: daily digest schedule and catch-up
//   - Notifications: ntfy push settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Capture       Capture       `toml:"capture"`
	Foreground    Foreground    `toml:"foreground"`
	Analysis      Analysis      `toml:"analysis"`
	Vision        Vision        `toml:"vision"`
	Digest        Digest        `toml:"digest"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/timelens/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized. The second return value is the
// resolved path and the third reports whether the file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("timelens.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	pathFields := []*string{
		&c.Paths.DataDir,
		&c.Paths.MediaDir,
		&c.Paths.LogDir,
		&c.Paths.SocketPath,
	}
	for _, field := range pathFields {
		expanded, err := expandPath(strings.TrimSpace(*field))
		if err != nil {
			return err
		}
		*field = expanded
	}

	c.Vision.APIKey = strings.TrimSpace(c.Vision.APIKey)
	c.Vision.BaseURL = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(c.Vision.BaseURL), "/"))
	c.Vision.Model = strings.TrimSpace(c.Vision.Model)
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	for i, raw := range c.Digest.SendTimes {
		c.Digest.SendTimes[i] = strings.TrimSpace(raw)
	}
	return nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.MediaDir, c.Paths.LogDir, filepath.Dir(c.Paths.SocketPath)}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location under the data dir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "timelens.db")
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "timelensd.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
