package analysis

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"timelens/internal/capture"
	"timelens/internal/services/vision"
	"timelens/internal/store"
	"timelens/internal/testsupport"
)

type transcribeResult struct {
	payload string
	err     error
}

// scriptedTranscriber replays canned responses and records what it was asked.
type scriptedTranscriber struct {
	mu         sync.Mutex
	responses  []transcribeResult
	calls      int
	lastPrompt string
	lastImages int
}

func (s *scriptedTranscriber) Transcribe(_ context.Context, _, userPrompt string, images []vision.Image) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls >= len(s.responses) {
		return "", errors.New("no scripted response left")
	}
	result := s.responses[s.calls]
	s.calls++
	s.lastPrompt = userPrompt
	s.lastImages = len(images)
	return result.payload, result.err
}

type fixedHints struct {
	identities []string
}

func (f fixedHints) IdentitiesBetween(_, _ time.Time, _ int) []string {
	return f.identities
}

func testOptions() Options {
	return Options{
		PollInterval:        10 * time.Millisecond,
		SettleDelay:         0,
		ErrorRetry:          10 * time.Millisecond,
		MaxBatchSpan:        15 * time.Minute,
		MaxBatchSegments:    20,
		KeyframesPerSegment: 2,
		MaxFrameWidth:       64,
		MaxFrameHeight:      64,
		JPEGQuality:         70,
		MergeGap:            90 * time.Second,
		RetryLimit:          3,
		BatchTimeout:        5 * time.Second,
		RecentCards:         5,
	}
}

func writeSegmentMedia(t *testing.T, dir string, n, frames int) string {
	t.Helper()

	path := filepath.Join(dir, fmt.Sprintf("seg-%d.mjpeg", n))
	writer, err := capture.NewSegmentWriter(path)
	if err != nil {
		t.Fatalf("new segment writer: %v", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: uint8(40 * n), G: 0x80, B: 0x20, A: 0xFF})
		}
	}
	for i := 0; i < frames; i++ {
		if err := writer.WriteFrame(img); err != nil {
			t.Fatalf("write frame: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close segment writer: %v", err)
	}
	return path
}

// insertMediaSegments writes media files and registers contiguous segments
// starting an hour in the past so they are settled for any cutoff.
func insertMediaSegments(t *testing.T, st *store.Store, mediaDir string, count int, length time.Duration) []*store.Segment {
	t.Helper()

	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)
	segments := make([]*store.Segment, count)
	for i := 0; i < count; i++ {
		path := writeSegmentMedia(t, mediaDir, i, 3)
		start := base.Add(time.Duration(i) * length)
		segment, err := st.InsertSegment(ctx, path, start, start.Add(length))
		if err != nil {
			t.Fatalf("insert segment %d: %v", i, err)
		}
		segments[i] = segment
	}
	return segments
}

func observationPayload(spanSeconds float64) string {
	split := spanSeconds - 80
	return fmt.Sprintf(`[
		{"start_seconds": 0, "end_seconds": %.0f, "category": "coding",
		 "title": "Editing server code", "summary": "Working in the editor.",
		 "app_sites": [{"name": "VS Code", "seconds": %.0f}],
		 "productivity_score": 85},
		{"start_seconds": %.0f, "end_seconds": %.0f, "category": "browsing",
		 "title": "Reading documentation",
		 "app_sites": [{"name": "Firefox", "seconds": 80}],
		 "productivity_score": 60}
	]`, split, split, split, spanSeconds)
}

func TestRunCycleCompletesBatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	segments := insertMediaSegments(t, st, cfg.Paths.MediaDir, 3, time.Minute)
	spanSeconds := 180.0

	transcriber := &scriptedTranscriber{responses: []transcribeResult{
		{payload: observationPayload(spanSeconds)},
	}}
	analyzer, err := NewAnalyzer(st, transcriber, fixedHints{identities: []string{"VS Code", "Firefox"}}, testOptions(), nil)
	if err != nil {
		t.Fatalf("new analyzer: %v", err)
	}

	if err := analyzer.runCycle(ctx); err != nil {
		t.Fatalf("run cycle: %v", err)
	}

	batches, err := st.Batches(ctx, store.BatchCompleted)
	if err != nil {
		t.Fatalf("list batches: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("completed batches = %d, want 1", len(batches))
	}
	batch := batches[0]
	if batch.ObservationsJSON != observationPayload(spanSeconds) {
		t.Error("raw observations payload not preserved on completed batch")
	}

	cards, err := st.CardsForBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("cards for batch: %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("cards = %d, want 2", len(cards))
	}
	if !cards[0].StartTime.Equal(batch.SpanStart) {
		t.Errorf("first card starts %v, want span start %v", cards[0].StartTime, batch.SpanStart)
	}
	if !cards[1].EndTime.Equal(batch.SpanEnd) {
		t.Errorf("last card ends %v, want span end %v", cards[1].EndTime, batch.SpanEnd)
	}
	if !cards[0].EndTime.Equal(cards[1].StartTime) {
		t.Error("cards do not tile the span without a gap")
	}
	if cards[0].Category != "coding" || cards[1].Category != "browsing" {
		t.Errorf("card categories = %q, %q", cards[0].Category, cards[1].Category)
	}

	for _, segment := range segments {
		updated, err := st.GetSegment(ctx, segment.ID)
		if err != nil {
			t.Fatalf("get segment: %v", err)
		}
		if updated.Status != store.SegmentCompleted {
			t.Errorf("segment %d status = %s, want completed", segment.ID, updated.Status)
		}
		if _, err := os.Stat(segment.MediaPath); !os.IsNotExist(err) {
			t.Errorf("segment %d media still present after completion", segment.ID)
		}
	}

	// Two keyframes per segment, three segments.
	if transcriber.lastImages != 6 {
		t.Errorf("inference images = %d, want 6", transcriber.lastImages)
	}
	if !strings.Contains(transcriber.lastPrompt, "VS Code; Firefox") {
		t.Errorf("prompt missing foreground hints: %q", transcriber.lastPrompt)
	}
}

func TestRunCycleFailureThenRetry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	segments := insertMediaSegments(t, st, cfg.Paths.MediaDir, 2, time.Minute)

	transcriber := &scriptedTranscriber{responses: []transcribeResult{
		{err: errors.New("upstream timeout")},
		{payload: observationPayload(120)},
	}}
	analyzer, err := NewAnalyzer(st, transcriber, nil, testOptions(), nil)
	if err != nil {
		t.Fatalf("new analyzer: %v", err)
	}

	if err := analyzer.runCycle(ctx); err != nil {
		t.Fatalf("first cycle: %v", err)
	}

	failed, err := st.Batches(ctx, store.BatchFailed)
	if err != nil {
		t.Fatalf("list batches: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("failed batches = %d, want 1", len(failed))
	}
	if !strings.Contains(failed[0].ErrorMessage, "upstream timeout") {
		t.Errorf("failed batch error = %q", failed[0].ErrorMessage)
	}
	for _, segment := range segments {
		updated, err := st.GetSegment(ctx, segment.ID)
		if err != nil {
			t.Fatalf("get segment: %v", err)
		}
		if updated.Status != store.SegmentPending {
			t.Errorf("segment %d status = %s, want pending after failure", segment.ID, updated.Status)
		}
		if updated.RetryCount != 1 {
			t.Errorf("segment %d retry count = %d, want 1", segment.ID, updated.RetryCount)
		}
		if _, err := os.Stat(segment.MediaPath); err != nil {
			t.Errorf("segment %d media should survive a failed batch: %v", segment.ID, err)
		}
	}

	if err := analyzer.runCycle(ctx); err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	completed, err := st.Batches(ctx, store.BatchCompleted)
	if err != nil {
		t.Fatalf("list batches: %v", err)
	}
	if len(completed) != 1 {
		t.Fatalf("completed batches after retry = %d, want 1", len(completed))
	}
}

func TestRunCycleSchemaViolationPreservesPayload(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	insertMediaSegments(t, st, cfg.Paths.MediaDir, 1, time.Minute)

	badPayload := `[{"start_seconds": 0, "end_seconds": 60, "category": "gaming", "title": "x", "productivity_score": 50}]`
	transcriber := &scriptedTranscriber{responses: []transcribeResult{{payload: badPayload}}}
	analyzer, err := NewAnalyzer(st, transcriber, nil, testOptions(), nil)
	if err != nil {
		t.Fatalf("new analyzer: %v", err)
	}

	if err := analyzer.runCycle(ctx); err != nil {
		t.Fatalf("run cycle: %v", err)
	}

	failed, err := st.Batches(ctx, store.BatchFailed)
	if err != nil {
		t.Fatalf("list batches: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("failed batches = %d, want 1", len(failed))
	}
	if failed[0].ObservationsJSON != badPayload {
		t.Errorf("rejected payload not preserved: %q", failed[0].ObservationsJSON)
	}
	if !strings.Contains(failed[0].ErrorMessage, "schema violation") {
		t.Errorf("error message = %q, want schema violation", failed[0].ErrorMessage)
	}
}

func TestRunCycleLeavesUnsettledSegments(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	segments := insertMediaSegments(t, st, cfg.Paths.MediaDir, 1, time.Minute)

	opts := testOptions()
	opts.SettleDelay = 2 * time.Hour
	transcriber := &scriptedTranscriber{}
	analyzer, err := NewAnalyzer(st, transcriber, nil, opts, nil)
	if err != nil {
		t.Fatalf("new analyzer: %v", err)
	}

	if err := analyzer.runCycle(ctx); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if transcriber.calls != 0 {
		t.Errorf("transcriber called %d times for unsettled segments", transcriber.calls)
	}
	updated, err := st.GetSegment(ctx, segments[0].ID)
	if err != nil {
		t.Fatalf("get segment: %v", err)
	}
	if updated.Status != store.SegmentPending {
		t.Errorf("segment status = %s, want pending", updated.Status)
	}
}

func TestAnalyzerStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	analyzer, err := NewAnalyzer(st, &scriptedTranscriber{}, nil, testOptions(), nil)
	if err != nil {
		t.Fatalf("new analyzer: %v", err)
	}
	if err := analyzer.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := analyzer.Start(context.Background()); err == nil {
		t.Error("second start should fail while running")
	}
	analyzer.Stop()
	analyzer.Stop() // idempotent

	if err := analyzer.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	analyzer.Stop()
}

func TestGroupSegmentsSpanBound(t *testing.T) {
	base := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	segments := make([]*store.Segment, 25)
	for i := range segments {
		start := base.Add(time.Duration(i) * time.Minute)
		segments[i] = &store.Segment{ID: int64(i + 1), StartTime: start, EndTime: start.Add(time.Minute)}
	}

	groups := groupSegments(segments, 15*time.Minute, 20)
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}
	if len(groups[0]) != 15 || len(groups[1]) != 10 {
		t.Errorf("group sizes = %d, %d, want 15, 10", len(groups[0]), len(groups[1]))
	}
	span := groups[0][len(groups[0])-1].EndTime.Sub(groups[0][0].StartTime)
	if span > 15*time.Minute {
		t.Errorf("first group span %v exceeds bound", span)
	}
}

func TestGroupSegmentsCountBound(t *testing.T) {
	base := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	segments := make([]*store.Segment, 45)
	for i := range segments {
		start := base.Add(time.Duration(i) * time.Second)
		segments[i] = &store.Segment{ID: int64(i + 1), StartTime: start, EndTime: start.Add(time.Second)}
	}

	groups := groupSegments(segments, 15*time.Minute, 20)
	if len(groups) != 3 {
		t.Fatalf("groups = %d, want 3", len(groups))
	}
	for i, want := range []int{20, 20, 5} {
		if len(groups[i]) != want {
			t.Errorf("group %d size = %d, want %d", i, len(groups[i]), want)
		}
	}
}
