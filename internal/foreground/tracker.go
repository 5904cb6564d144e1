// Package foreground samples the foreground window identity on a fixed
// cadence and answers which identities were active during a time range. The
// output is advisory context for analysis prompts, never ground truth.
package foreground

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"timelens/internal/logging"
)

// Sampler reports the current foreground process/window identity, e.g.
// "firefox — GitHub". Platform backends implement this; tests inject fakes.
type Sampler interface {
	Sample(ctx context.Context) (string, error)
}

// sample is one timestamped identity observation.
type sample struct {
	at       time.Time
	identity string
}

// Options configures a Tracker.
type Options struct {
	SampleInterval time.Duration
	// History bounds the in-memory ring. It should cover at least the
	// largest analysis batch span.
	History time.Duration
}

// Tracker keeps a bounded ring of recent foreground identity samples.
type Tracker struct {
	opts    Options
	sampler Sampler
	logger  *slog.Logger

	mu      sync.Mutex
	samples []sample
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewTracker constructs a tracker.
func NewTracker(sampler Sampler, opts Options, logger *slog.Logger) (*Tracker, error) {
	if sampler == nil {
		return nil, errors.New("sampler is required")
	}
	if opts.SampleInterval <= 0 || opts.History <= 0 {
		return nil, errors.New("sample interval and history must be positive")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Tracker{
		opts:    opts,
		sampler: sampler,
		logger:  logging.WithComponent(logger, "foreground"),
	}, nil
}

// Start begins sampling until the context is cancelled or Stop is called.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return errors.New("tracker already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	t.running = true
	go t.run(runCtx)
	return nil
}

// Stop ends sampling and waits for the loop to exit.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	cancel := t.cancel
	done := t.done
	t.running = false
	t.mu.Unlock()

	cancel()
	<-done
}

func (t *Tracker) run(ctx context.Context) {
	defer close(t.done)

	ticker := time.NewTicker(t.opts.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			identity, err := t.sampler.Sample(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				// Sampling failures are tolerable; hints just get sparser.
				t.logger.Debug("foreground sample failed", logging.Error(err))
				continue
			}
			if identity == "" {
				continue
			}
			t.record(time.Now().UTC(), identity)
		}
	}
}

func (t *Tracker) record(at time.Time, identity string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples = append(t.samples, sample{at: at, identity: identity})
	t.trimLocked(at)
}

func (t *Tracker) trimLocked(now time.Time) {
	cutoff := now.Add(-t.opts.History)
	idx := 0
	for idx < len(t.samples) && t.samples[idx].at.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		t.samples = append(t.samples[:0], t.samples[idx:]...)
	}
}

// IdentitiesBetween returns deduplicated identities observed in [from, to),
// most recent first, capped at limit (0 means no cap).
func (t *Tracker) IdentitiesBetween(from, to time.Time, limit int) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	seen := make(map[string]struct{})
	var identities []string
	for i := len(t.samples) - 1; i >= 0; i-- {
		s := t.samples[i]
		if !s.at.Before(to) {
			continue
		}
		if s.at.Before(from) {
			break
		}
		if _, dup := seen[s.identity]; dup {
			continue
		}
		seen[s.identity] = struct{}{}
		identities = append(identities, s.identity)
		if limit > 0 && len(identities) >= limit {
			break
		}
	}
	return identities
}
