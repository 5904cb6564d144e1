package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"timelens/internal/logging"
	"timelens/internal/store"
)

// FrameSource produces one display frame per call. Platform capture backends
// implement this; tests inject synthetic sources.
type FrameSource interface {
	Capture(ctx context.Context) (image.Image, error)
}

// SegmentRecorder is the slice of the store the producer needs.
type SegmentRecorder interface {
	InsertSegment(ctx context.Context, mediaPath string, start, end time.Time) (*store.Segment, error)
}

// State describes the producer lifecycle.
type State string

const (
	StateIdle        State = "idle"
	StateRecording   State = "recording"
	StatePaused      State = "paused"
	StateStopped     State = "stopped"
	StateUnavailable State = "unavailable"
)

// Options configures a Producer.
type Options struct {
	MediaDir      string
	FrameInterval time.Duration
	SegmentLength time.Duration

	// OnUnavailable is invoked once when recording becomes unavailable
	// after a source or encoder failure. Optional.
	OnUnavailable func(err error)
}

// Producer samples a frame source at a fixed cadence, streams frames into
// per-segment media files, and registers each closed segment with the store.
// Segment bounds follow the capture wall clock, never the frame count, so a
// slow source cannot drift the timeline.
type Producer struct {
	opts    Options
	source  FrameSource
	records SegmentRecorder
	logger  *slog.Logger

	mu      sync.Mutex
	state   State
	paused  bool
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error
}

// NewProducer constructs a producer. The store and source are required.
func NewProducer(source FrameSource, records SegmentRecorder, opts Options, logger *slog.Logger) (*Producer, error) {
	if source == nil {
		return nil, errors.New("frame source is required")
	}
	if records == nil {
		return nil, errors.New("segment recorder is required")
	}
	if opts.MediaDir == "" {
		return nil, errors.New("media dir is required")
	}
	if opts.FrameInterval <= 0 || opts.SegmentLength <= 0 {
		return nil, errors.New("frame interval and segment length must be positive")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Producer{
		opts:    opts,
		source:  source,
		records: records,
		logger:  logging.WithComponent(logger, "capture"),
		state:   StateIdle,
	}, nil
}

// Start begins recording. Returns an error when already recording.
func (p *Producer) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateRecording || p.state == StatePaused {
		return errors.New("already recording")
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.paused = false
	p.state = StateRecording
	p.lastErr = nil

	go p.run(runCtx)
	p.logger.Info("recording started",
		logging.Duration("frame_interval", p.opts.FrameInterval),
		logging.Duration("segment_length", p.opts.SegmentLength))
	return nil
}

// Pause suspends capture and discards the in-flight partial segment. No row
// is written and the partial media file is deleted, so nothing recorded since
// the last segment boundary leaves the machine.
func (p *Producer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateRecording {
		return fmt.Errorf("cannot pause while %s", p.state)
	}
	p.paused = true
	p.state = StatePaused
	p.logger.Info("recording paused")
	return nil
}

// Resume continues capture on a fresh segment boundary.
func (p *Producer) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StatePaused {
		return fmt.Errorf("cannot resume while %s", p.state)
	}
	p.paused = false
	p.state = StateRecording
	p.logger.Info("recording resumed")
	return nil
}

// Stop ends recording. The in-flight segment is flushed and registered with
// its actual end time before Stop returns.
func (p *Producer) Stop() error {
	p.mu.Lock()
	if p.state != StateRecording && p.state != StatePaused {
		p.mu.Unlock()
		return nil
	}
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()

	cancel()
	<-done

	p.mu.Lock()
	p.state = StateStopped
	p.mu.Unlock()
	p.logger.Info("recording stopped")
	return nil
}

// State reports the current producer state.
func (p *Producer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// LastError returns the failure that made recording unavailable, if any.
func (p *Producer) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

func (p *Producer) isPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Producer) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.opts.FrameInterval)
	defer ticker.Stop()

	var (
		writer   *SegmentWriter
		segStart time.Time
	)

	discard := func() {
		if writer == nil {
			return
		}
		if err := writer.Discard(); err != nil {
			p.logger.Warn("discard partial segment", logging.Error(err))
		}
		writer = nil
	}

	finalize := func(end time.Time) {
		if writer == nil {
			return
		}
		if writer.FrameCount() == 0 || !end.After(segStart) {
			discard()
			return
		}
		path := writer.Path()
		if err := writer.Close(); err != nil {
			p.logger.Error("close segment", logging.Error(err), logging.String(logging.FieldPath, path))
			writer = nil
			return
		}
		writer = nil
		segment, err := p.records.InsertSegment(context.Background(), path, segStart, end)
		if err != nil {
			p.logger.Error("register segment", logging.Error(err), logging.String(logging.FieldPath, path))
			return
		}
		p.logger.Debug("segment registered",
			logging.Int64(logging.FieldSegmentID, segment.ID),
			logging.Duration(logging.FieldDuration, end.Sub(segStart)))
	}

	// flush closes out the in-flight segment on shutdown. A paused partial
	// is discarded, never registered: pause means nothing captured since the
	// last boundary may persist.
	flush := func(end time.Time) {
		if p.isPaused() {
			discard()
			return
		}
		finalize(end)
	}

	fail := func(err error) {
		discard()
		p.mu.Lock()
		p.state = StateUnavailable
		p.lastErr = err
		p.mu.Unlock()
		p.logger.Error("recording unavailable", logging.Error(err))
		if p.opts.OnUnavailable != nil {
			p.opts.OnUnavailable(err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush(time.Now().UTC())
			return
		case <-ticker.C:
			if p.isPaused() {
				discard()
				continue
			}

			if writer == nil {
				segStart = time.Now().UTC()
				path := filepath.Join(p.opts.MediaDir, uuid.New().String()+".mjpeg")
				w, err := NewSegmentWriter(path)
				if err != nil {
					fail(err)
					return
				}
				writer = w
			}

			frame, err := p.source.Capture(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					flush(time.Now().UTC())
					return
				}
				fail(fmt.Errorf("capture frame: %w", err))
				return
			}
			if err := writer.WriteFrame(frame); err != nil {
				fail(err)
				return
			}

			if boundary := segStart.Add(p.opts.SegmentLength); !time.Now().UTC().Before(boundary) {
				finalize(boundary)
				// Next segment starts exactly at the previous boundary so
				// segments tile without gaps.
				segStart = boundary
				path := filepath.Join(p.opts.MediaDir, uuid.New().String()+".mjpeg")
				w, err := NewSegmentWriter(path)
				if err != nil {
					fail(err)
					return
				}
				writer = w
			}
		}
	}
}
