// Package digest sends periodic activity summaries. Each configured daily
// instant is a period labeled by its "HH:MM" send time; a period missed while
// the host was asleep is caught up on the next wake if still inside the
// catch-up window.
package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"timelens/internal/logging"
	"timelens/internal/notify"
	"timelens/internal/store"
)

// testPeriodPrefix marks digest_log rows produced by TriggerTestSend so they
// never satisfy the real schedule.
const testPeriodPrefix = "test:"

// Store is the slice of the persistence layer the scheduler needs.
type Store interface {
	CardsBetween(ctx context.Context, from, to time.Time) ([]*store.TimelineCard, error)
	LastSuccessfulDigest(ctx context.Context, period string) (time.Time, bool, error)
	DigestAttemptsOn(ctx context.Context, period string, day time.Time) (int, error)
	AppendDigestLog(ctx context.Context, entry store.DigestLogEntry) error
}

// Options configures the scheduler.
type Options struct {
	SendTimes     []string
	CatchUpWindow time.Duration
	RetryLimit    int
	PollInterval  time.Duration
}

type sendInstant struct {
	period string
	hour   int
	minute int
}

// Scheduler drives the daily digest send times.
type Scheduler struct {
	store    Store
	sender   notify.Service
	instants []sendInstant
	opts     Options
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewScheduler constructs a scheduler from validated send times.
func NewScheduler(st Store, sender notify.Service, opts Options, logger *slog.Logger) (*Scheduler, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if sender == nil {
		return nil, errors.New("sender is required")
	}
	if len(opts.SendTimes) == 0 {
		return nil, errors.New("at least one send time is required")
	}
	if opts.CatchUpWindow <= 0 {
		opts.CatchUpWindow = 2 * time.Hour
	}
	if opts.RetryLimit <= 0 {
		opts.RetryLimit = 3
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Minute
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	instants := make([]sendInstant, 0, len(opts.SendTimes))
	for _, raw := range opts.SendTimes {
		parsed, err := time.Parse("15:04", raw)
		if err != nil {
			return nil, fmt.Errorf("send time %q is not HH:MM: %w", raw, err)
		}
		instants = append(instants, sendInstant{period: raw, hour: parsed.Hour(), minute: parsed.Minute()})
	}

	return &Scheduler{
		store:    st,
		sender:   sender,
		instants: instants,
		opts:     opts,
		logger:   logging.WithComponent(logger, "digest"),
		now:      time.Now,
	}, nil
}

// Start launches the wake cycle until the context is cancelled or Stop is
// called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	go s.run(runCtx)
	return nil
}

// Stop ends the wake cycle and waits for the current check to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	for {
		s.checkPeriods(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.opts.PollInterval):
		}
	}
}

// checkPeriods evaluates every configured period against the current time and
// sends whichever are due.
func (s *Scheduler) checkPeriods(ctx context.Context) {
	now := s.now()
	for _, instant := range s.instants {
		if err := s.checkPeriod(ctx, instant, now); err != nil {
			s.logger.Error("digest period check failed",
				logging.String(logging.FieldPeriod, instant.period), logging.Error(err))
		}
	}
}

// checkPeriod sends the digest for one period if its instant has passed, is
// still inside the catch-up window, has no success for the day, and has
// attempts left.
func (s *Scheduler) checkPeriod(ctx context.Context, instant sendInstant, now time.Time) error {
	due := time.Date(now.Year(), now.Month(), now.Day(), instant.hour, instant.minute, 0, 0, now.Location())
	if now.Before(due) {
		return nil
	}
	if now.Sub(due) > s.opts.CatchUpWindow {
		return nil
	}

	last, found, err := s.store.LastSuccessfulDigest(ctx, instant.period)
	if err != nil {
		return err
	}
	if found && !last.Before(due) {
		return nil
	}

	attempts, err := s.store.DigestAttemptsOn(ctx, instant.period, due)
	if err != nil {
		return err
	}
	if attempts >= s.opts.RetryLimit {
		return nil
	}

	return s.sendDigest(ctx, instant.period, due, now, attempts)
}

// sendDigest builds and delivers one digest, logging the attempt either way.
func (s *Scheduler) sendDigest(ctx context.Context, period string, due, now time.Time, priorAttempts int) error {
	notification, err := s.buildDigest(ctx, period, due)
	if err != nil {
		return err
	}

	sendErr := s.sender.Send(ctx, notification)
	entry := store.DigestLogEntry{
		Period:     period,
		SendTime:   now,
		Success:    sendErr == nil,
		RetryCount: priorAttempts,
	}
	if sendErr != nil {
		entry.ErrorMessage = sendErr.Error()
	}
	if err := s.store.AppendDigestLog(ctx, entry); err != nil {
		return err
	}

	if sendErr != nil {
		s.logger.Warn("digest send failed",
			logging.String(logging.FieldPeriod, period),
			logging.Int(logging.FieldCount, priorAttempts+1),
			logging.Error(sendErr))
		return nil
	}
	s.logger.Info("digest sent", logging.String(logging.FieldPeriod, period))
	return nil
}

// TriggerTestSend sends the digest for a period immediately, bypassing the
// schedule. The log row carries a test marker so it never satisfies the real
// schedule.
func (s *Scheduler) TriggerTestSend(ctx context.Context, period string) error {
	var match *sendInstant
	for i := range s.instants {
		if s.instants[i].period == period {
			match = &s.instants[i]
			break
		}
	}
	if match == nil {
		return fmt.Errorf("period %q is not a configured send time", period)
	}

	now := s.now()
	due := time.Date(now.Year(), now.Month(), now.Day(), match.hour, match.minute, 0, 0, now.Location())
	notification, err := s.buildDigest(ctx, period, due)
	if err != nil {
		return err
	}
	notification.Title = "[test] " + notification.Title

	sendErr := s.sender.Send(ctx, notification)
	entry := store.DigestLogEntry{
		Period:   testPeriodPrefix + period,
		SendTime: now,
		Success:  sendErr == nil,
	}
	if sendErr != nil {
		entry.ErrorMessage = sendErr.Error()
	}
	if err := s.store.AppendDigestLog(ctx, entry); err != nil {
		return err
	}
	return sendErr
}

// buildDigest summarizes the day's cards up to the period instant.
func (s *Scheduler) buildDigest(ctx context.Context, period string, due time.Time) (notify.Notification, error) {
	dayStart := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, due.Location())
	cards, err := s.store.CardsBetween(ctx, dayStart, due)
	if err != nil {
		return notify.Notification{}, fmt.Errorf("load cards for digest: %w", err)
	}

	title := fmt.Sprintf("Activity digest (%s)", period)
	if len(cards) == 0 {
		return notify.Notification{
			Title: title,
			Body:  "No tracked activity yet today.",
			Tags:  []string{"bar_chart"},
		}, nil
	}

	var (
		totalSeconds    float64
		weightedScore   float64
		categorySeconds = make(map[string]float64)
	)
	for _, card := range cards {
		seconds := card.EndTime.Sub(card.StartTime).Seconds()
		totalSeconds += seconds
		weightedScore += float64(card.ProductivityScore) * seconds
		categorySeconds[card.Category] += seconds
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Tracked %s across %d activities.\n", formatMinutes(totalSeconds), len(cards))
	if totalSeconds > 0 {
		fmt.Fprintf(&body, "Average productivity: %.0f/100.\n", weightedScore/totalSeconds)
	}
	fmt.Fprintf(&body, "Top categories: %s.", topCategories(categorySeconds, 3))

	return notify.Notification{
		Title: title,
		Body:  body.String(),
		Tags:  []string{"bar_chart"},
	}, nil
}

func formatMinutes(seconds float64) string {
	minutes := int(seconds / 60)
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh%02dm", minutes/60, minutes%60)
}

func topCategories(categorySeconds map[string]float64, limit int) string {
	type entry struct {
		category string
		seconds  float64
	}
	entries := make([]entry, 0, len(categorySeconds))
	for category, seconds := range categorySeconds {
		entries = append(entries, entry{category, seconds})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].seconds != entries[j].seconds {
			return entries[i].seconds > entries[j].seconds
		}
		return entries[i].category < entries[j].category
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}

	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = fmt.Sprintf("%s (%s)", e.category, formatMinutes(e.seconds))
	}
	return strings.Join(parts, ", ")
}
