package daemon

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"timelens/internal/capture"
	"timelens/internal/config"
	"timelens/internal/services/vision"
	"timelens/internal/store"
	"timelens/internal/testsupport"
)

type stubSource struct{}

func (stubSource) Capture(context.Context) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: 0x20, G: 0x40, B: 0x60, A: 0xFF})
		}
	}
	return img, nil
}

type stubSampler struct{}

func (stubSampler) Sample(context.Context) (string, error) {
	return "Test Window", nil
}

type stubTranscriber struct{}

func (stubTranscriber) Transcribe(context.Context, string, string, []vision.Image) (string, error) {
	return "", errors.New("no inference in tests")
}

func newTestDaemon(t *testing.T, cfg *config.Config) *Daemon {
	t.Helper()

	st := testsupport.MustOpenStore(t, cfg)
	d, err := New(cfg, st, nil, Components{
		FrameSource: stubSource{},
		Sampler:     stubSampler{},
		Transcriber: stubTranscriber{},
	})
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Capture.StartOnLaunch = false
	d := newTestDaemon(t, cfg)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	status := d.Status(context.Background())
	if !status.Running {
		t.Error("status should report running")
	}
	if status.Capture != capture.StateIdle {
		t.Errorf("capture state = %s, want idle without start_on_launch", status.Capture)
	}
	if status.PID <= 0 {
		t.Errorf("status PID = %d", status.PID)
	}

	d.Stop()
	if d.Status(context.Background()).Running {
		t.Error("status should report stopped")
	}
}

func TestDaemonSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Capture.StartOnLaunch = false

	first := newTestDaemon(t, cfg)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("start first: %v", err)
	}

	second := newTestDaemon(t, cfg)
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("second instance should fail to acquire the lock")
	}

	first.Stop()
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("second instance should start once the lock is free: %v", err)
	}
}

func TestRecordingControls(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Capture.StartOnLaunch = false
	d := newTestDaemon(t, cfg)

	if err := d.StartRecording(); err == nil {
		t.Error("recording before daemon start should fail")
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := d.StartRecording(); err != nil {
		t.Fatalf("start recording: %v", err)
	}
	if got := d.Status(context.Background()).Capture; got != capture.StateRecording {
		t.Errorf("capture state = %s, want recording", got)
	}
	if err := d.PauseRecording(); err != nil {
		t.Fatalf("pause recording: %v", err)
	}
	if got := d.Status(context.Background()).Capture; got != capture.StatePaused {
		t.Errorf("capture state = %s, want paused", got)
	}
	if err := d.ResumeRecording(); err != nil {
		t.Fatalf("resume recording: %v", err)
	}
	if err := d.StopRecording(); err != nil {
		t.Fatalf("stop recording: %v", err)
	}
	if got := d.Status(context.Background()).Capture; got != capture.StateStopped {
		t.Errorf("capture state = %s, want stopped", got)
	}
}

func TestDaemonRecoversInterruptedWork(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Capture.StartOnLaunch = false
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	start := time.Now().UTC().Add(-time.Hour)
	var ids []int64
	for i := 0; i < 2; i++ {
		segStart := start.Add(time.Duration(i) * time.Minute)
		segment, err := st.InsertSegment(ctx, cfg.Paths.MediaDir+"/x.mjpeg", segStart, segStart.Add(time.Minute))
		if err != nil {
			t.Fatalf("insert segment: %v", err)
		}
		ids = append(ids, segment.ID)
	}
	if _, err := st.ClaimBatch(ctx, ids); err != nil {
		t.Fatalf("claim batch: %v", err)
	}

	d, err := New(cfg, st, nil, Components{
		FrameSource: stubSource{},
		Sampler:     stubSampler{},
		Transcriber: stubTranscriber{},
	})
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	t.Cleanup(d.Stop)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	for _, id := range ids {
		segment, err := st.GetSegment(ctx, id)
		if err != nil {
			t.Fatalf("get segment: %v", err)
		}
		if segment.Status != store.SegmentPending {
			t.Errorf("segment %d status = %s, want pending after recovery", id, segment.Status)
		}
	}
	batches, err := st.Batches(ctx, store.BatchFailed)
	if err != nil {
		t.Fatalf("list batches: %v", err)
	}
	if len(batches) != 1 {
		t.Errorf("interrupted batches marked failed = %d, want 1", len(batches))
	}
}

func TestTimelineWindowValidation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Capture.StartOnLaunch = false
	d := newTestDaemon(t, cfg)

	now := time.Now()
	if _, err := d.Timeline(context.Background(), now, now.Add(-time.Hour)); err == nil {
		t.Error("inverted timeline window should be rejected")
	}
	if _, err := d.Timeline(context.Background(), now.Add(-time.Hour), now); err != nil {
		t.Errorf("valid timeline window: %v", err)
	}
}

func TestTestDigestUnknownPeriod(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Capture.StartOnLaunch = false
	d := newTestDaemon(t, cfg)

	if err := d.TestDigest(context.Background(), "03:33"); err == nil {
		t.Error("unknown digest period should be rejected")
	}
}
