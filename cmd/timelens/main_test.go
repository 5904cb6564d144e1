package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"timelens/internal/ipc"
)

func TestResolveTimelineWindow(t *testing.T) {
	t.Run("default is today", func(t *testing.T) {
		from, to, err := resolveTimelineWindow("", "", "")
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if from.Hour() != 0 || from.Minute() != 0 {
			t.Errorf("window start = %v, want midnight", from)
		}
		if to.Sub(from) != 24*time.Hour {
			t.Errorf("window length = %v, want 24h", to.Sub(from))
		}
	})

	t.Run("date flag", func(t *testing.T) {
		from, to, err := resolveTimelineWindow("2026-03-04", "", "")
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		want := time.Date(2026, 3, 4, 0, 0, 0, 0, time.Local)
		if !from.Equal(want) {
			t.Errorf("window start = %v, want %v", from, want)
		}
		if !to.Equal(want.AddDate(0, 0, 1)) {
			t.Errorf("window end = %v", to)
		}
	})

	t.Run("from and to", func(t *testing.T) {
		from, to, err := resolveTimelineWindow("", "2026-03-04T09:00:00Z", "2026-03-04T17:00:00Z")
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if to.Sub(from) != 8*time.Hour {
			t.Errorf("window length = %v, want 8h", to.Sub(from))
		}
	})

	t.Run("rejections", func(t *testing.T) {
		cases := [][3]string{
			{"2026-03-04", "2026-03-04T09:00:00Z", ""},
			{"", "2026-03-04T09:00:00Z", ""},
			{"", "2026-03-04T17:00:00Z", "2026-03-04T09:00:00Z"},
			{"not-a-date", "", ""},
		}
		for _, c := range cases {
			if _, _, err := resolveTimelineWindow(c[0], c[1], c[2]); err == nil {
				t.Errorf("resolveTimelineWindow(%q, %q, %q) should fail", c[0], c[1], c[2])
			}
		}
	})
}

func TestFormatAppSites(t *testing.T) {
	if got := formatAppSites(nil); got != "" {
		t.Errorf("empty sites = %q", got)
	}
	sites := []ipc.AppSite{
		{Name: "VS Code"}, {Name: "Firefox"}, {Name: "Terminal"}, {Name: "Slack"},
	}
	if got := formatAppSites(sites); got != "VS Code, Firefox, Terminal (+1)" {
		t.Errorf("sites = %q", got)
	}
}

func TestFormatSpan(t *testing.T) {
	if got := formatSpan(15 * time.Minute); got != "15m" {
		t.Errorf("span = %q", got)
	}
	if got := formatSpan(95 * time.Minute); got != "1h35m" {
		t.Errorf("span = %q", got)
	}
}

func TestRenderPlain(t *testing.T) {
	got := renderPlain([]string{"A", "B"}, [][]string{{"1", "2"}, {"3", "4"}})
	want := "A\tB\n1\t2\n3\t4"
	if got != want {
		t.Errorf("plain table = %q, want %q", got, want)
	}
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	cmd := newConfigInitCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--path", target})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out.String(), target) {
		t.Errorf("output missing target path: %q", out.String())
	}

	// Refuses to clobber without --overwrite.
	cmd = newConfigInitCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--path", target})
	if err := cmd.Execute(); err == nil {
		t.Error("second init without --overwrite should fail")
	}
}
