// Package daemon wires the capture producer, foreground tracker, batch
// analyzer, and digest scheduler into one single-instance process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"timelens/internal/analysis"
	"timelens/internal/capture"
	"timelens/internal/config"
	"timelens/internal/digest"
	"timelens/internal/foreground"
	"timelens/internal/logging"
	"timelens/internal/notify"
	"timelens/internal/services/vision"
	"timelens/internal/store"
)

// Components lets callers swap capture, sampling, inference, and notification
// backends. Nil fields get the platform defaults.
type Components struct {
	FrameSource capture.FrameSource
	Sampler     foreground.Sampler
	Transcriber analysis.Transcriber
	Notifier    notify.Service
}

// Daemon coordinates the background actors and enforces single-instance
// execution through a lock file.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store

	producer  *capture.Producer
	tracker   *foreground.Tracker
	analyzer  *analysis.Analyzer
	scheduler *digest.Scheduler

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status is the daemon runtime snapshot served over IPC.
type Status struct {
	Running      bool
	Capture      capture.State
	CaptureError string
	DatabasePath string
	LockPath     string
	PID          int
	Stats        store.Stats
}

// New constructs a daemon with its actors wired but not started.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, components Components) (*Daemon, error) {
	if cfg == nil || st == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if components.FrameSource == nil {
		components.FrameSource = capture.NewScreenSource()
	}
	if components.Sampler == nil {
		components.Sampler = foreground.NewWindowSampler()
	}
	if components.Transcriber == nil {
		components.Transcriber = vision.NewClient(vision.Config{
			APIKey:         cfg.Vision.APIKey,
			BaseURL:        cfg.Vision.BaseURL,
			Model:          cfg.Vision.Model,
			TimeoutSeconds: cfg.Vision.TimeoutSeconds,
		})
	}
	if components.Notifier == nil {
		components.Notifier = notify.NewService(cfg.Notifications, logger)
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logging.WithComponent(logger, "daemon"),
		store:    st,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}

	producer, err := capture.NewProducer(components.FrameSource, st, capture.Options{
		MediaDir:      cfg.Paths.MediaDir,
		FrameInterval: time.Duration(cfg.Capture.FrameIntervalSeconds) * time.Second,
		SegmentLength: time.Duration(cfg.Capture.SegmentSeconds) * time.Second,
		OnUnavailable: func(err error) {
			d.logger.Error("capture became unavailable", logging.Error(err))
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("build capture producer: %w", err)
	}
	d.producer = producer

	tracker, err := foreground.NewTracker(components.Sampler, foreground.Options{
		SampleInterval: time.Duration(cfg.Foreground.SampleIntervalSeconds) * time.Second,
		History:        time.Duration(cfg.Foreground.HistoryMinutes) * time.Minute,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("build foreground tracker: %w", err)
	}
	d.tracker = tracker

	analyzer, err := analysis.NewAnalyzer(st, components.Transcriber, tracker, analysis.Options{
		PollInterval:        time.Duration(cfg.Analysis.PollIntervalSeconds) * time.Second,
		SettleDelay:         time.Duration(cfg.Analysis.SettleDelaySeconds) * time.Second,
		ErrorRetry:          time.Duration(cfg.Analysis.ErrorRetrySeconds) * time.Second,
		MaxBatchSpan:        time.Duration(cfg.Analysis.MaxBatchMinutes) * time.Minute,
		MaxBatchSegments:    cfg.Analysis.MaxBatchSegments,
		KeyframesPerSegment: cfg.Analysis.KeyframesPerSegment,
		MaxFrameWidth:       cfg.Analysis.MaxFrameWidth,
		MaxFrameHeight:      cfg.Analysis.MaxFrameHeight,
		JPEGQuality:         cfg.Analysis.JPEGQuality,
		MergeGap:            time.Duration(cfg.Analysis.MergeGapSeconds) * time.Second,
		RetryLimit:          cfg.Analysis.RetryLimit,
		BatchTimeout:        time.Duration(cfg.Analysis.BatchTimeoutSeconds) * time.Second,
		RecentCards:         cfg.Analysis.RecentCardsInContext,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("build analyzer: %w", err)
	}
	d.analyzer = analyzer

	scheduler, err := digest.NewScheduler(st, components.Notifier, digest.Options{
		SendTimes:     cfg.Digest.SendTimes,
		CatchUpWindow: time.Duration(cfg.Digest.CatchUpWindowHours) * time.Hour,
		RetryLimit:    cfg.Digest.RetryLimit,
		PollInterval:  time.Duration(cfg.Digest.PollIntervalSeconds) * time.Second,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("build digest scheduler: %w", err)
	}
	d.scheduler = scheduler

	return d, nil
}

// Start acquires the instance lock, recovers interrupted work, and launches
// the background actors.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another timelens daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	reverted, err := d.store.ResetStuckProcessing(d.ctx)
	if err != nil {
		d.releaseLock()
		d.cancel()
		return fmt.Errorf("recover interrupted work: %w", err)
	}
	if reverted > 0 {
		d.logger.Info("recovered interrupted segments", logging.Int64(logging.FieldCount, reverted))
	}

	if err := d.tracker.Start(d.ctx); err != nil {
		d.releaseLock()
		d.cancel()
		return fmt.Errorf("start foreground tracker: %w", err)
	}
	if err := d.analyzer.Start(d.ctx); err != nil {
		d.tracker.Stop()
		d.releaseLock()
		d.cancel()
		return fmt.Errorf("start analyzer: %w", err)
	}
	if err := d.scheduler.Start(d.ctx); err != nil {
		d.analyzer.Stop()
		d.tracker.Stop()
		d.releaseLock()
		d.cancel()
		return fmt.Errorf("start digest scheduler: %w", err)
	}

	if d.cfg.Capture.StartOnLaunch {
		if err := d.producer.Start(d.ctx); err != nil {
			d.logger.Warn("recording did not start on launch", logging.Error(err))
		}
	}

	d.running.Store(true)
	d.logger.Info("daemon started", logging.String(logging.FieldPath, d.lockPath))
	return nil
}

// Stop flushes recording, drains the actors, and releases the lock. The
// analyzer is stopped last among consumers so an in-flight batch can finish.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if err := d.producer.Stop(); err != nil {
		d.logger.Warn("stop recording", logging.Error(err))
	}
	d.scheduler.Stop()
	d.tracker.Stop()
	d.analyzer.Stop()

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.ctx = nil
	d.releaseLock()
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

func (d *Daemon) releaseLock() {
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release daemon lock", logging.Error(err))
	}
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// StartRecording begins screen capture.
func (d *Daemon) StartRecording() error {
	if !d.running.Load() {
		return errors.New("daemon is not running")
	}
	return d.producer.Start(d.ctx)
}

// PauseRecording suspends capture, discarding the partial segment.
func (d *Daemon) PauseRecording() error {
	return d.producer.Pause()
}

// ResumeRecording continues capture on a fresh segment boundary.
func (d *Daemon) ResumeRecording() error {
	return d.producer.Resume()
}

// StopRecording ends capture, flushing the partial segment.
func (d *Daemon) StopRecording() error {
	return d.producer.Stop()
}

// Timeline returns cards overlapping the window, ordered by start time.
func (d *Daemon) Timeline(ctx context.Context, from, to time.Time) ([]*store.TimelineCard, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("timeline window end %s is not after start %s", to.Format(time.RFC3339), from.Format(time.RFC3339))
	}
	return d.store.CardsBetween(ctx, from, to)
}

// ListBatches returns batches, optionally filtered by status.
func (d *Daemon) ListBatches(ctx context.Context, statuses []store.BatchStatus) ([]*store.Batch, error) {
	return d.store.Batches(ctx, statuses...)
}

// Stats returns row counts by status.
func (d *Daemon) Stats(ctx context.Context) (store.Stats, error) {
	return d.store.CollectStats(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (store.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

// TestDigest sends the digest for a period immediately, bypassing the
// schedule.
func (d *Daemon) TestDigest(ctx context.Context, period string) error {
	return d.scheduler.TriggerTestSend(ctx, period)
}

// Status returns the current daemon snapshot.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		Capture:      d.producer.State(),
		DatabasePath: d.store.Path(),
		LockPath:     d.lockPath,
		PID:          os.Getpid(),
	}
	if err := d.producer.LastError(); err != nil {
		status.CaptureError = err.Error()
	}
	if stats, err := d.store.CollectStats(ctx); err == nil {
		status.Stats = stats
	} else {
		d.logger.Warn("collect stats", logging.Error(err))
	}
	return status
}
