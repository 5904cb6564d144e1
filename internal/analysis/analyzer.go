// Package analysis claims settled segments into batches, asks the vision
// model to transcribe them, and persists the resulting timeline cards.
package analysis

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"timelens/internal/logging"
	"timelens/internal/services/vision"
	"timelens/internal/store"
)

// Store is the slice of the persistence layer the analyzer needs.
type Store interface {
	PendingSegmentsBefore(ctx context.Context, cutoff time.Time) ([]*store.Segment, error)
	ClaimBatch(ctx context.Context, segmentIDs []int64) (*store.Batch, error)
	CompleteBatch(ctx context.Context, batchID int64, rawObservations string, cards []store.TimelineCard) error
	FailBatch(ctx context.Context, batchID int64, errDetail, rawObservations string, retryLimit int) error
	RecentCards(ctx context.Context, limit int) ([]*store.TimelineCard, error)
}

// Transcriber is the inference call the analyzer makes per batch.
type Transcriber interface {
	Transcribe(ctx context.Context, systemPrompt, userPrompt string, images []vision.Image) (string, error)
}

// HintSource supplies foreground identity hints for a time range. Optional.
type HintSource interface {
	IdentitiesBetween(from, to time.Time, limit int) []string
}

const hintLimit = 10

// Options configures the analyzer.
type Options struct {
	PollInterval     time.Duration
	SettleDelay      time.Duration
	ErrorRetry       time.Duration
	MaxBatchSpan     time.Duration
	MaxBatchSegments int

	KeyframesPerSegment int
	MaxFrameWidth       int
	MaxFrameHeight      int
	JPEGQuality         int

	MergeGap     time.Duration
	RetryLimit   int
	BatchTimeout time.Duration
	RecentCards  int
}

// Analyzer runs the periodic batch analysis cycle.
type Analyzer struct {
	store       Store
	transcriber Transcriber
	hints       HintSource
	opts        Options
	logger      *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewAnalyzer constructs an analyzer.
func NewAnalyzer(st Store, transcriber Transcriber, hints HintSource, opts Options, logger *slog.Logger) (*Analyzer, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if transcriber == nil {
		return nil, errors.New("transcriber is required")
	}
	if opts.PollInterval <= 0 || opts.MaxBatchSpan <= 0 || opts.MaxBatchSegments <= 0 {
		return nil, errors.New("poll interval, max batch span, and max batch segments must be positive")
	}
	if opts.ErrorRetry <= 0 {
		opts.ErrorRetry = opts.PollInterval
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = 5 * time.Minute
	}
	if opts.RetryLimit <= 0 {
		opts.RetryLimit = 3
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Analyzer{
		store:       st,
		transcriber: transcriber,
		hints:       hints,
		opts:        opts,
		logger:      logging.WithComponent(logger, "analysis"),
	}, nil
}

// Start launches the wake cycle until the context is cancelled or Stop is
// called. An in-flight batch is allowed to reach completion or failure before
// the loop exits.
func (a *Analyzer) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return errors.New("analyzer already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	a.running = true
	go a.run(runCtx)
	return nil
}

// Stop ends the wake cycle and waits for the current cycle to finish.
func (a *Analyzer) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	cancel := a.cancel
	done := a.done
	a.running = false
	a.mu.Unlock()

	cancel()
	<-done
}

func (a *Analyzer) run(ctx context.Context) {
	defer close(a.done)

	for {
		wait := a.opts.PollInterval
		if err := a.runCycle(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			a.logger.Error("analysis cycle failed", logging.Error(err))
			wait = a.opts.ErrorRetry
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// runCycle selects settled segments, groups them, and processes each claimed
// batch in time order.
func (a *Analyzer) runCycle(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-a.opts.SettleDelay)
	segments, err := a.store.PendingSegmentsBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return nil
	}

	for _, group := range groupSegments(segments, a.opts.MaxBatchSpan, a.opts.MaxBatchSegments) {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		ids := make([]int64, len(group))
		for i, segment := range group {
			ids[i] = segment.ID
		}
		batch, err := a.store.ClaimBatch(ctx, ids)
		if errors.Is(err, store.ErrSegmentClaimed) {
			// Lost a race with another claim; the segments will be
			// picked up next cycle if still pending.
			continue
		}
		if err != nil {
			return err
		}

		if err := a.processBatch(ctx, batch, group); err != nil {
			return err
		}
	}
	return nil
}

// groupSegments partitions chronological segments into batches bounded by
// wall-clock span and segment count.
func groupSegments(segments []*store.Segment, maxSpan time.Duration, maxCount int) [][]*store.Segment {
	var groups [][]*store.Segment
	var current []*store.Segment
	for _, segment := range segments {
		if len(current) > 0 {
			spanExceeded := segment.EndTime.Sub(current[0].StartTime) > maxSpan
			if spanExceeded || len(current) >= maxCount {
				groups = append(groups, current)
				current = nil
			}
		}
		current = append(current, segment)
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

// processBatch runs inference for one claimed batch and persists the outcome.
// Inference and acceptance failures fail the batch through the store; only
// store-level failures propagate.
func (a *Analyzer) processBatch(ctx context.Context, batch *store.Batch, segments []*store.Segment) error {
	logger := a.logger.With(logging.Int64(logging.FieldBatchID, batch.ID))

	// The batch gets its own deadline, detached from the run context so
	// daemon shutdown lets the in-flight batch finish.
	batchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.opts.BatchTimeout)
	defer cancel()

	keyframes, err := extractKeyframes(segments, keyframeOptions{
		PerSegment: a.opts.KeyframesPerSegment,
		MaxWidth:   a.opts.MaxFrameWidth,
		MaxHeight:  a.opts.MaxFrameHeight,
		Quality:    a.opts.JPEGQuality,
	}, func(segment *store.Segment) float64 {
		return segment.StartTime.Sub(batch.SpanStart).Seconds()
	})
	if err != nil {
		return a.failBatch(batchCtx, logger, batch.ID, "extract keyframes: "+err.Error(), "")
	}

	var hints []string
	if a.hints != nil {
		hints = a.hints.IdentitiesBetween(batch.SpanStart, batch.SpanEnd, hintLimit)
	}
	var recent []*store.TimelineCard
	if a.opts.RecentCards > 0 {
		recent, err = a.store.RecentCards(batchCtx, a.opts.RecentCards)
		if err != nil {
			logger.Warn("recent cards unavailable", logging.Error(err))
		}
	}

	images := make([]vision.Image, len(keyframes))
	for i, kf := range keyframes {
		images[i] = kf.Image
	}
	raw, err := a.transcriber.Transcribe(batchCtx, transcriptionSystemPrompt, buildUserPrompt(batch, keyframes, hints, recent), images)
	if err != nil {
		return a.failBatch(batchCtx, logger, batch.ID, "inference: "+err.Error(), "")
	}

	observations, err := parseObservations(raw, batch.SpanEnd.Sub(batch.SpanStart).Seconds())
	if err != nil {
		var schemaErr *SchemaViolationError
		if errors.As(err, &schemaErr) {
			return a.failBatch(batchCtx, logger, batch.ID, schemaErr.Error(), schemaErr.Raw)
		}
		return a.failBatch(batchCtx, logger, batch.ID, "parse observations: "+err.Error(), raw)
	}

	cards := buildCards(observations, batch, a.opts.MergeGap)
	if err := a.store.CompleteBatch(batchCtx, batch.ID, raw, cards); err != nil {
		return err
	}

	// Media is deleted only now, after completion is durable. Rows keep
	// their original bounds.
	for _, segment := range segments {
		if err := os.Remove(segment.MediaPath); err != nil && !os.IsNotExist(err) {
			logger.Warn("remove segment media",
				logging.Error(err), logging.String(logging.FieldPath, segment.MediaPath))
		}
	}

	logger.Info("batch completed",
		logging.Int(logging.FieldCount, len(cards)),
		logging.Duration(logging.FieldDuration, batch.SpanEnd.Sub(batch.SpanStart)))
	return nil
}

func (a *Analyzer) failBatch(ctx context.Context, logger *slog.Logger, batchID int64, detail, raw string) error {
	logger.Warn("batch failed", logging.String(logging.FieldErrorHint, detail))
	if err := a.store.FailBatch(ctx, batchID, detail, raw, a.opts.RetryLimit); err != nil {
		return err
	}
	return nil
}
