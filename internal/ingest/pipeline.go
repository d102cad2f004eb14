// Package ingest polls mentions, scores and stores them as notifications,
// and pushes the ones worth attention to connected clients.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"xnom/internal/jobs"
	"xnom/internal/judge"
	"xnom/internal/logging"
	"xnom/internal/metrics"
	"xnom/internal/model"
	"xnom/internal/push"
	"xnom/internal/settings"
	"xnom/internal/store"
	"xnom/internal/util"
)

const (
	cursorSinceID   = "ingest:mentions_since_id"
	cursorLastCheck = "ingest:last_check"

	// pushes are suppressed below this judge confidence
	minPushConfidence = 0.3
)

// MentionSource is the part of the platform client the pipeline needs.
type MentionSource interface {
	UserLookup
	GetMentions(ctx context.Context, sinceID string, limit int) ([]model.RawEvent, error)
}

// Store is the persistence the pipeline needs.
type Store interface {
	store.Notifications
	store.Cursors
}

type Options struct {
	Interval  time.Duration
	BatchSize int
}

// Pipeline turns platform mentions into stored, pushed notifications.
type Pipeline struct {
	client   MentionSource
	st       Store
	judge    judge.Judge
	push     push.Broadcaster
	settings settings.Source
	sched    *jobs.Scheduler
	opts     Options

	mu     sync.Mutex
	ticket *jobs.Ticket
}

func NewPipeline(client MentionSource, st Store, j judge.Judge, b push.Broadcaster, src settings.Source, sched *jobs.Scheduler, opts Options) *Pipeline {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if j == nil {
		j = judge.Disabled{}
	}
	if b == nil {
		b = push.Nop{}
	}
	if sched == nil {
		sched = jobs.NewScheduler(nil)
	}
	return &Pipeline{client: client, st: st, judge: j, push: b, settings: src, sched: sched, opts: opts}
}

// Start begins polling: one run right away, then every interval.
// Calling Start while active is a logged no-op.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ticket != nil && p.ticket.Active() {
		logging.Info("ingest_already_running", nil)
		return
	}
	logging.Info("ingest_start", map[string]any{"interval": p.opts.Interval.String()})
	p.ticket = p.sched.Every(ctx, "ingest", p.opts.Interval, func(ctx context.Context) {
		_ = p.RunOnce(ctx)
	}, jobs.WithInitialRun(0))
}

// Stop cancels future runs. A run in flight finishes.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ticket == nil {
		return
	}
	p.ticket.Cancel()
	p.ticket = nil
	logging.Info("ingest_stop", nil)
}

func (p *Pipeline) IsActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ticket != nil && p.ticket.Active()
}

// Wait blocks until an in-flight run returns.
func (p *Pipeline) Wait() {
	p.mu.Lock()
	t := p.ticket
	p.mu.Unlock()
	if t != nil {
		t.Wait()
	}
}

// RunOnce fetches one batch of mentions and processes every event. It
// returns the fetch error, if any; per-event failures are logged only.
func (p *Pipeline) RunOnce(ctx context.Context) error {
	start := time.Now()
	metrics.IngestRuns.Inc()
	defer metrics.ObserveIngestDuration(start)

	sinceID, err := p.st.LoadCursor(ctx, cursorSinceID)
	if err != nil {
		logging.Warn("ingest_cursor_error", map[string]any{"error": err})
		sinceID = ""
	}
	evs, err := p.client.GetMentions(ctx, sinceID, p.opts.BatchSize)
	if err != nil {
		return p.fail("Failed to check notifications", err)
	}
	set, err := p.settings.Get(ctx)
	if err != nil {
		return p.fail("Failed to load settings", err)
	}
	if err := fillAuthors(ctx, p.client, evs); err != nil {
		logging.Warn("ingest_author_lookup_error", map[string]any{"error": err})
	}

	failed := 0
	newest := sinceID
	for _, ev := range evs {
		if err := p.processEvent(ctx, ev, set.Notifications); err != nil {
			failed++
			metrics.IngestErrors.Inc()
			logging.Error("ingest_event_error", map[string]any{"id": ev.ID, "error": err})
			continue
		}
		if newerID(ev.ID, newest) {
			newest = ev.ID
		}
	}
	// a failed event is retried next run, so the cursor only moves on a clean batch
	if failed == 0 && newest != sinceID {
		if err := p.st.SaveCursor(ctx, cursorSinceID, newest); err != nil {
			logging.Warn("ingest_cursor_error", map[string]any{"error": err})
		}
	}
	now := p.sched.Clock().Now()
	if err := p.st.SaveCursor(ctx, cursorLastCheck, now.Format(time.RFC3339Nano)); err != nil {
		logging.Warn("ingest_cursor_error", map[string]any{"error": err})
	}
	p.push.Broadcast(push.NewEvent(push.TypeNotificationsChecked, map[string]any{"count": len(evs)}))
	logging.Info("ingest_once", map[string]any{"fetched": len(evs), "failed": failed, "duration_ms": time.Since(start).Milliseconds()})
	return nil
}

func (p *Pipeline) fail(msg string, err error) error {
	metrics.IngestErrors.Inc()
	logging.Error("ingest_fetch_error", map[string]any{"error": err})
	p.push.Broadcast(push.NewEvent(push.TypeError, map[string]any{"message": msg}))
	return fmt.Errorf("%s: %w", msg, err)
}

// processEvent dedups, scores, stores, optionally pushes and finally marks
// one event processed.
func (p *Pipeline) processEvent(ctx context.Context, ev model.RawEvent, toggles model.NotificationSettings) error {
	if ev.ID == "" {
		return errors.New("event without id")
	}
	if _, err := p.st.GetNotification(ctx, ev.ID); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("lookup: %w", err)
	}

	n := model.NotificationFromEvent(ev)
	inserted, err := p.st.InsertNotification(ctx, n)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if !inserted {
		return nil
	}
	metrics.NotificationsStored.WithLabelValues(string(n.Kind), string(n.Priority)).Inc()

	if ok, reason := p.shouldPush(ctx, n, toggles); ok {
		p.push.Broadcast(push.NewEvent(push.TypeNewNotification, n))
		logging.Info("notification_pushed", map[string]any{"id": n.ID, "type": n.Kind, "username": n.SourceUsername, "text": util.Truncate(n.Text, 50)})
	} else {
		metrics.PushesSuppressed.WithLabelValues(reason).Inc()
		logging.Debug("notification_suppressed", map[string]any{"id": n.ID, "reason": reason})
	}

	if err := p.st.MarkProcessed(ctx, n.ID); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// shouldPush applies the per-kind toggle and then the judge. The judge only
// suppresses on an answer it actually gave; errors let the push through.
func (p *Pipeline) shouldPush(ctx context.Context, n model.Notification, toggles model.NotificationSettings) (bool, string) {
	if !toggles.Enabled(n.Kind) {
		return false, "toggle_off"
	}
	if !p.judge.Available() {
		return true, ""
	}
	v, err := p.judge.ScoreEngagementPotential(ctx, n.Text, map[string]any{"type": n.Kind, "priority": n.Priority})
	if err != nil {
		logging.Warn("ingest_judge_error", map[string]any{"id": n.ID, "error": err})
		return true, ""
	}
	if v.Confidence < minPushConfidence {
		logging.Info("notification_filtered", map[string]any{"id": n.ID, "username": n.SourceUsername, "confidence": v.Confidence})
		return false, "ai_low_confidence"
	}
	return true, ""
}

// newerID compares numeric snowflake ids as strings.
func newerID(a, b string) bool {
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	return a > b
}
