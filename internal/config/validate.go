package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validateForeground(); err != nil {
		return err
	}
	if err := c.validateAnalysis(); err != nil {
		return err
	}
	if err := c.validateVision(); err != nil {
		return err
	}
	if err := c.validateDigest(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.MediaDir) == "" {
		return errors.New("paths.media_dir must be set")
	}
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		return errors.New("paths.socket_path must be set")
	}
	return nil
}

func (c *Config) validateCapture() error {
	return ensurePositiveMap(map[string]int{
		"capture.frame_interval_seconds": c.Capture.FrameIntervalSeconds,
		"capture.segment_seconds":        c.Capture.SegmentSeconds,
	})
}

func (c *Config) validateForeground() error {
	return ensurePositiveMap(map[string]int{
		"foreground.sample_interval_seconds": c.Foreground.SampleIntervalSeconds,
		"foreground.history_minutes":         c.Foreground.HistoryMinutes,
	})
}

func (c *Config) validateAnalysis() error {
	if err := ensurePositiveMap(map[string]int{
		"analysis.poll_interval_seconds": c.Analysis.PollIntervalSeconds,
		"analysis.max_batch_minutes":     c.Analysis.MaxBatchMinutes,
		"analysis.max_batch_segments":    c.Analysis.MaxBatchSegments,
		"analysis.keyframes_per_segment": c.Analysis.KeyframesPerSegment,
		"analysis.max_frame_width":       c.Analysis.MaxFrameWidth,
		"analysis.max_frame_height":      c.Analysis.MaxFrameHeight,
		"analysis.batch_timeout_seconds": c.Analysis.BatchTimeoutSeconds,
		"analysis.error_retry_seconds":   c.Analysis.ErrorRetrySeconds,
	}); err != nil {
		return err
	}
	if c.Analysis.SettleDelaySeconds < 0 {
		return errors.New("analysis.settle_delay_seconds must be >= 0")
	}
	if c.Analysis.MergeGapSeconds < 0 {
		return errors.New("analysis.merge_gap_seconds must be >= 0")
	}
	if c.Analysis.RetryLimit < 0 {
		return errors.New("analysis.retry_limit must be >= 0")
	}
	if c.Analysis.RecentCardsInContext < 0 {
		return errors.New("analysis.recent_cards_in_context must be >= 0")
	}
	if c.Analysis.JPEGQuality < 1 || c.Analysis.JPEGQuality > 100 {
		return errors.New("analysis.jpeg_quality must be between 1 and 100")
	}
	maxBatchSeconds := c.Analysis.MaxBatchMinutes * 60
	if c.Capture.SegmentSeconds > maxBatchSeconds {
		return errors.New("capture.segment_seconds must not exceed analysis.max_batch_minutes")
	}
	return nil
}

func (c *Config) validateVision() error {
	if strings.TrimSpace(c.Vision.BaseURL) == "" {
		return errors.New("vision.base_url must be set")
	}
	if strings.TrimSpace(c.Vision.Model) == "" {
		return errors.New("vision.model must be set")
	}
	if c.Vision.TimeoutSeconds <= 0 {
		return errors.New("vision.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateDigest() error {
	if len(c.Digest.SendTimes) == 0 {
		return errors.New("digest.send_times must include at least one HH:MM entry")
	}
	seen := map[string]struct{}{}
	for _, raw := range c.Digest.SendTimes {
		if _, err := time.Parse("15:04", raw); err != nil {
			return fmt.Errorf("digest.send_times entry %q must be HH:MM", raw)
		}
		if _, dup := seen[raw]; dup {
			return fmt.Errorf("digest.send_times entry %q is duplicated", raw)
		}
		seen[raw] = struct{}{}
	}
	if c.Digest.CatchUpWindowHours <= 0 {
		return errors.New("digest.catch_up_window_hours must be positive")
	}
	if c.Digest.RetryLimit < 1 {
		return errors.New("digest.retry_limit must be >= 1")
	}
	if c.Digest.PollIntervalSeconds <= 0 {
		return errors.New("digest.poll_interval_seconds must be positive")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
