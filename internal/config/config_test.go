package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultValidatesAfterNormalize(t *testing.T) {
	cfg := Default()
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatal("file should not exist")
	}
	if resolved != path {
		t.Fatalf("resolved = %q, want %q", resolved, path)
	}
	if cfg.Capture.SegmentSeconds != 60 {
		t.Fatalf("segment_seconds = %d, want default 60", cfg.Capture.SegmentSeconds)
	}
}

func TestLoadOverridesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
data_dir = "` + dir + `/data"

[capture]
segment_seconds = 30

[vision]
base_url = "https://example.test/v1/"
model = " custom-model "
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatal("file should exist")
	}
	if cfg.Capture.SegmentSeconds != 30 {
		t.Fatalf("segment_seconds = %d", cfg.Capture.SegmentSeconds)
	}
	if cfg.Vision.BaseURL != "https://example.test/v1" {
		t.Fatalf("base_url not trimmed: %q", cfg.Vision.BaseURL)
	}
	if cfg.Vision.Model != "custom-model" {
		t.Fatalf("model not trimmed: %q", cfg.Vision.Model)
	}
	if cfg.Capture.FrameIntervalSeconds != 1 {
		t.Fatalf("unrelated default lost: %d", cfg.Capture.FrameIntervalSeconds)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		frag   string
	}{
		{"zero segment seconds", func(c *Config) { c.Capture.SegmentSeconds = 0 }, "capture.segment_seconds"},
		{"bad jpeg quality", func(c *Config) { c.Analysis.JPEGQuality = 0 }, "jpeg_quality"},
		{"bad send time", func(c *Config) { c.Digest.SendTimes = []string{"25:99"} }, "send_times"},
		{"duplicate send time", func(c *Config) { c.Digest.SendTimes = []string{"12:00", "12:00"} }, "duplicated"},
		{"empty model", func(c *Config) { c.Vision.Model = "" }, "vision.model"},
		{"bad log format", func(c *Config) { c.Logging.Format = "yaml" }, "logging.format"},
		{"segment longer than batch", func(c *Config) {
			c.Capture.SegmentSeconds = 3600
			c.Analysis.MaxBatchMinutes = 15
		}, "segment_seconds"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			if err := cfg.normalize(); err != nil {
				t.Fatalf("normalize: %v", err)
			}
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.frag) {
				t.Fatalf("error %q does not mention %q", err, tc.frag)
			}
		})
	}
}

func TestExpandPathHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	got, err := ExpandPath("~/x/y")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(home, "x", "y") {
		t.Fatalf("ExpandPath = %q", got)
	}
}

func TestCreateSampleWritesParseableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("sample file missing")
	}
	if len(cfg.Digest.SendTimes) != 2 {
		t.Fatalf("send_times = %v", cfg.Digest.SendTimes)
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Paths.DataDir = filepath.Join(dir, "data")
	cfg.Paths.MediaDir = filepath.Join(dir, "media")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	cfg.Paths.SocketPath = filepath.Join(dir, "run", "timelensd.sock")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, p := range []string{cfg.Paths.DataDir, cfg.Paths.MediaDir, cfg.Paths.LogDir, filepath.Dir(cfg.Paths.SocketPath)} {
		if info, err := os.Stat(p); err != nil || !info.IsDir() {
			t.Fatalf("directory %s missing: %v", p, err)
		}
	}
}
