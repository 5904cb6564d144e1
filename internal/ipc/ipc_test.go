package ipc

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"timelens/internal/daemon"
	"timelens/internal/services/vision"
	"timelens/internal/store"
	"timelens/internal/testsupport"
)

type stubSource struct{}

func (stubSource) Capture(context.Context) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
}

type stubSampler struct{}

func (stubSampler) Sample(context.Context) (string, error) {
	return "Test Window", nil
}

type stubTranscriber struct{}

func (stubTranscriber) Transcribe(context.Context, string, string, []vision.Image) (string, error) {
	return "", errors.New("no inference in tests")
}

func startServer(t *testing.T) (*Client, *store.Store) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	cfg.Capture.StartOnLaunch = false
	st := testsupport.MustOpenStore(t, cfg)

	d, err := daemon.New(cfg, st, nil, daemon.Components{
		FrameSource: stubSource{},
		Sampler:     stubSampler{},
		Transcriber: stubTranscriber{},
	})
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start daemon: %v", err)
	}
	t.Cleanup(d.Stop)

	server, err := NewServer(context.Background(), cfg.Paths.SocketPath, d, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	server.Serve()
	t.Cleanup(server.Close)

	client, err := Dial(cfg.Paths.SocketPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, st
}

func completeOneBatch(t *testing.T, st *store.Store) *store.Batch {
	t.Helper()

	ctx := context.Background()
	start := time.Now().UTC().Add(-time.Hour)
	segment, err := st.InsertSegment(ctx, "/tmp/seg.mjpeg", start, start.Add(time.Minute))
	if err != nil {
		t.Fatalf("insert segment: %v", err)
	}
	batch, err := st.ClaimBatch(ctx, []int64{segment.ID})
	if err != nil {
		t.Fatalf("claim batch: %v", err)
	}
	err = st.CompleteBatch(ctx, batch.ID, "[]", []store.TimelineCard{{
		BatchID:           batch.ID,
		Category:          "coding",
		Title:             "Editing tests",
		Summary:           "Package tests in the editor.",
		StartTime:         batch.SpanStart,
		EndTime:           batch.SpanEnd,
		AppSites:          []store.AppSite{{Name: "VS Code", Seconds: 60}},
		ProductivityScore: 80,
	}})
	if err != nil {
		t.Fatalf("complete batch: %v", err)
	}
	return batch
}

func TestStatusRoundTrip(t *testing.T) {
	client, _ := startServer(t)

	status, err := client.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Running {
		t.Error("status should report running")
	}
	if status.Capture != "idle" {
		t.Errorf("capture state = %q, want idle", status.Capture)
	}
	if status.PID <= 0 {
		t.Errorf("pid = %d", status.PID)
	}
	if _, ok := status.Stats["segments_pending"]; !ok {
		t.Error("stats missing segment counts")
	}
}

func TestRecordControlRoundTrip(t *testing.T) {
	client, _ := startServer(t)

	resp, err := client.RecordStart()
	if err != nil {
		t.Fatalf("record start: %v", err)
	}
	if resp.State != "recording" {
		t.Errorf("state after start = %q", resp.State)
	}

	resp, err = client.RecordPause()
	if err != nil {
		t.Fatalf("record pause: %v", err)
	}
	if resp.State != "paused" {
		t.Errorf("state after pause = %q", resp.State)
	}

	resp, err = client.RecordResume()
	if err != nil {
		t.Fatalf("record resume: %v", err)
	}
	if resp.State != "recording" {
		t.Errorf("state after resume = %q", resp.State)
	}

	resp, err = client.RecordStop()
	if err != nil {
		t.Fatalf("record stop: %v", err)
	}
	if resp.State != "stopped" {
		t.Errorf("state after stop = %q", resp.State)
	}

	// Pausing while stopped is an error surfaced in the message, not an RPC
	// failure.
	resp, err = client.RecordPause()
	if err != nil {
		t.Fatalf("record pause while stopped: %v", err)
	}
	if resp.Message == "" {
		t.Error("invalid transition should carry a message")
	}
}

func TestTimelineRoundTrip(t *testing.T) {
	client, st := startServer(t)
	batch := completeOneBatch(t, st)

	resp, err := client.Timeline(batch.SpanStart.Add(-time.Minute), batch.SpanEnd.Add(time.Minute))
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(resp.Cards) != 1 {
		t.Fatalf("cards = %d, want 1", len(resp.Cards))
	}
	card := resp.Cards[0]
	if card.Category != "coding" || card.Title != "Editing tests" {
		t.Errorf("card = %+v", card)
	}
	if len(card.AppSites) != 1 || card.AppSites[0].Seconds != 60 {
		t.Errorf("app sites = %+v", card.AppSites)
	}
	if !card.StartTime.Equal(batch.SpanStart) {
		t.Errorf("card start = %v, want %v", card.StartTime, batch.SpanStart)
	}

	if _, err := client.Timeline(batch.SpanEnd, batch.SpanStart); err == nil {
		t.Error("inverted window should surface as an RPC error")
	}
}

func TestBatchesRoundTrip(t *testing.T) {
	client, st := startServer(t)
	batch := completeOneBatch(t, st)

	resp, err := client.Batches([]string{"completed"})
	if err != nil {
		t.Fatalf("batches: %v", err)
	}
	if len(resp.Batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(resp.Batches))
	}
	if resp.Batches[0].ID != batch.ID || resp.Batches[0].Status != "completed" {
		t.Errorf("batch = %+v", resp.Batches[0])
	}
	if resp.Batches[0].CompletedAt == nil {
		t.Error("completed batch should carry a completion time")
	}

	if _, err := client.Batches([]string{"bogus"}); err == nil {
		t.Error("unknown status should surface as an RPC error")
	}
}

func TestStatsRoundTrip(t *testing.T) {
	client, st := startServer(t)
	completeOneBatch(t, st)

	resp, err := client.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if resp.SegmentsCompleted != 1 || resp.BatchesCompleted != 1 || resp.Cards != 1 {
		t.Errorf("stats = %+v", resp)
	}
}

func TestDatabaseHealthRoundTrip(t *testing.T) {
	client, _ := startServer(t)

	resp, err := client.DatabaseHealth()
	if err != nil {
		t.Fatalf("database health: %v", err)
	}
	if !resp.DatabaseExists || !resp.DatabaseReadable || !resp.IntegrityCheck {
		t.Errorf("health = %+v", resp)
	}
	if len(resp.MissingTables) != 0 {
		t.Errorf("missing tables = %v", resp.MissingTables)
	}
}

func TestDigestTestRoundTrip(t *testing.T) {
	client, _ := startServer(t)

	resp, err := client.DigestTest("12:00")
	if err != nil {
		t.Fatalf("digest test: %v", err)
	}
	if !resp.Sent {
		t.Errorf("digest test with noop notifier should succeed: %s", resp.Message)
	}

	resp, err = client.DigestTest("03:33")
	if err != nil {
		t.Fatalf("digest test: %v", err)
	}
	if resp.Sent {
		t.Error("unknown period should not report sent")
	}
}
