// Package engage runs the auto-engagement loop: discover popular tweets,
// filter them, and like (or retweet, or reply to) the ones that pass,
// within an hourly budget.
package engage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

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

// Platform is the part of the X client the engine acts through.
type Platform interface {
	Liker
	SearchHighEngagement(ctx context.Context, threshold int) ([]model.RawEvent, error)
	Retweet(ctx context.Context, tweetID string) error
	Reply(ctx context.Context, tweetID, text string) (string, error)
}

// ErrDisabled is returned by Start when auto-engagement is switched off.
var ErrDisabled = errors.New("engage: auto-engagement is disabled in settings")

type Options struct {
	Interval     time.Duration
	InitialDelay time.Duration
	ResetEvery   time.Duration
}

// TickResult summarises one pass over the candidates.
type TickResult struct {
	Outcome    string `json:"outcome"`
	Candidates int    `json:"candidates"`
	Attempted  int    `json:"attempted"`
	Succeeded  int    `json:"succeeded"`
	Skipped    int    `json:"skipped"`
}

// ManualResult is what a manual like reports back.
type ManualResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type Engine struct {
	client   Platform
	st       store.Actions
	judge    judge.Judge
	push     push.Broadcaster
	settings settings.Source
	sched    *jobs.Scheduler
	opts     Options
	budget   HourlyBudget

	mu   sync.Mutex
	tick *jobs.Ticket

	resetMu sync.Mutex
	reset   *jobs.Ticket
}

func NewEngine(client Platform, st store.Actions, j judge.Judge, b push.Broadcaster, src settings.Source, sched *jobs.Scheduler, opts Options) *Engine {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 5 * time.Second
	}
	if opts.ResetEvery <= 0 {
		opts.ResetEvery = time.Hour
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
	return &Engine{client: client, st: st, judge: j, push: b, settings: src, sched: sched, opts: opts}
}

// Budget exposes the hourly counter.
func (e *Engine) Budget() *HourlyBudget { return &e.budget }

// Start arms the tick, and the hourly reset if nothing armed it yet. It
// refuses with ErrDisabled when the settings have auto-engagement off, and is
// a no-op when running.
func (e *Engine) Start(ctx context.Context) error {
	s, err := e.settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tick != nil && e.tick.Active() {
		logging.Info("engage_already_running", nil)
		return nil
	}
	if !s.Engagement.AutoEngageEnabled {
		logging.Info("engage_disabled", nil)
		return ErrDisabled
	}
	e.tick = e.sched.Every(ctx, "engage", e.opts.Interval, func(ctx context.Context) {
		_, _ = e.Tick(ctx)
	}, jobs.WithInitialRun(e.opts.InitialDelay))
	e.armReset()
	logging.Info("engage_start", map[string]any{"interval": e.opts.Interval.String(), "maxPerHour": s.Engagement.MaxActionsPerHour})
	return nil
}

// Stop cancels future ticks. A tick in flight runs to completion. The
// budget keeps resetting hourly since manual likes spend it too.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tick == nil {
		return
	}
	e.tick.Cancel()
	e.tick = nil
	logging.Info("engage_stop", nil)
}

// Close stops the loop and the budget reset timer.
func (e *Engine) Close() {
	e.Stop()
	e.resetMu.Lock()
	defer e.resetMu.Unlock()
	if e.reset != nil {
		e.reset.Cancel()
		e.reset = nil
	}
}

// armReset starts the hourly budget reset once for the engine's lifetime,
// from whichever comes first: Start or the first spend.
func (e *Engine) armReset() {
	e.resetMu.Lock()
	defer e.resetMu.Unlock()
	if e.reset != nil {
		return
	}
	e.reset = e.sched.Every(context.Background(), "budget_reset", e.opts.ResetEvery, func(context.Context) {
		prev := e.budget.Reset()
		logging.Info("engage_budget_reset", map[string]any{"previous": prev})
	})
}

func (e *Engine) IsActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick != nil && e.tick.Active()
}

// Wait blocks until an in-flight tick returns.
func (e *Engine) Wait() {
	e.mu.Lock()
	t := e.tick
	e.mu.Unlock()
	if t != nil {
		t.Wait()
	}
}

// Tick runs one discovery pass. Candidates are handled strictly in order.
func (e *Engine) Tick(ctx context.Context) (TickResult, error) {
	res, err := e.tick0(ctx)
	metrics.EngageTicks.WithLabelValues(res.Outcome).Inc()
	if err != nil {
		logging.Error("engage_tick_error", map[string]any{"error": err})
	} else {
		logging.Info("engage_tick", map[string]any{"outcome": res.Outcome, "candidates": res.Candidates, "attempted": res.Attempted, "succeeded": res.Succeeded})
	}
	return res, err
}

func (e *Engine) tick0(ctx context.Context) (TickResult, error) {
	s, err := e.settings.Get(ctx)
	if err != nil {
		return TickResult{Outcome: "error"}, fmt.Errorf("load settings: %w", err)
	}
	cfg := s.Engagement
	kind := cfg.Action
	if kind == "" {
		kind = model.ActionLike
	}
	if e.budget.Exhausted(cfg.MaxActionsPerHour) {
		logging.Info("engage_budget_exhausted", map[string]any{"used": e.budget.Used(), "max": cfg.MaxActionsPerHour})
		return TickResult{Outcome: "budget_exhausted"}, nil
	}
	cands, err := e.client.SearchHighEngagement(ctx, cfg.EngagementThreshold)
	if err != nil {
		return TickResult{Outcome: "error"}, fmt.Errorf("search: %w", err)
	}
	res := TickResult{Outcome: "ok", Candidates: len(cands)}
	if len(cands) == 0 {
		res.Outcome = "no_candidates"
		return res, nil
	}

	for _, ev := range cands {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		done, err := e.st.HasSuccessfulAction(ctx, ev.ID, kind)
		if err != nil {
			logging.Warn("engage_dedup_error", map[string]any{"tweet_id": ev.ID, "error": err})
			res.Skipped++
			continue
		}
		if done {
			res.Skipped++
			continue
		}
		if e.budget.Exhausted(cfg.MaxActionsPerHour) {
			res.Outcome = "budget_exhausted"
			break
		}
		if d := Eligible(ctx, ev, cfg, e.judge); !d.Eligible {
			logging.Debug("engage_ineligible", map[string]any{"tweet_id": ev.ID, "reason": d.Reason})
			res.Skipped++
			continue
		}

		res.Attempted++
		a := e.act(ctx, ev, kind)
		if a.Success {
			res.Succeeded++
		}
		if err := e.record(ctx, a); err != nil {
			logging.Error("engage_record_error", map[string]any{"tweet_id": ev.ID, "error": err})
		}
		e.push.Broadcast(push.NewEvent(push.TypeEngagementAction, map[string]any{
			"action":      a,
			"tweetAuthor": ev.Author.Username,
			"tweetText":   util.Truncate(ev.Text, 100),
		}))

		if cfg.InterActionDelayMs > 0 {
			if err := e.sched.Clock().Sleep(ctx, time.Duration(cfg.InterActionDelayMs)*time.Millisecond); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}

// act performs one engagement and returns the action to record.
func (e *Engine) act(ctx context.Context, ev model.RawEvent, kind model.ActionKind) model.EngagementAction {
	actor := ev.AuthorID
	if actor == "" {
		actor = "unknown"
	}
	a := model.EngagementAction{
		ID:            uuid.NewString(),
		Kind:          kind,
		TargetEventID: ev.ID,
		ActorID:       actor,
		Timestamp:     e.sched.Clock().Now(),
		RetryCount:    1,
	}
	var err error
	switch kind {
	case model.ActionLike:
		a.RetryCount, err = LikeWithRetry(ctx, e.client, e.sched.Clock(), ev.ID)
	case model.ActionRetweet:
		err = e.client.Retweet(ctx, ev.ID)
	case model.ActionReply:
		err = e.reply(ctx, ev)
	default:
		err = fmt.Errorf("unknown action %q", kind)
	}
	if err != nil {
		a.Error = err.Error()
		logging.Warn("engage_action_failed", map[string]any{"tweet_id": ev.ID, "action": kind, "error": err})
		return a
	}
	a.Success = true
	logging.Info("engage_action", map[string]any{"tweet_id": ev.ID, "action": kind, "username": ev.Author.Username})
	return a
}

func (e *Engine) reply(ctx context.Context, ev model.RawEvent) error {
	if !e.judge.Available() {
		return judge.ErrUnavailable
	}
	text, err := e.judge.GenerateReply(ctx, ev.Text, "")
	if err != nil {
		return fmt.Errorf("generate reply: %w", err)
	}
	if text == "" {
		return errors.New("generate reply: empty text")
	}
	// unmoderated text is never posted
	mod, err := e.judge.ModerateContent(ctx, text)
	if err != nil {
		return fmt.Errorf("moderate reply: %w", err)
	}
	if !mod.IsAppropriate {
		return fmt.Errorf("reply rejected by moderation (%s)", mod.Severity)
	}
	_, err = e.client.Reply(ctx, ev.ID, text)
	return err
}

// record persists a. Only successful likes spend budget.
func (e *Engine) record(ctx context.Context, a model.EngagementAction) error {
	if a.Success && a.Kind == model.ActionLike {
		e.armReset()
		e.budget.Spend()
	}
	metrics.IncAction(string(a.Kind), a.Success)
	return e.st.InsertAction(ctx, a)
}

// EngageManually likes one tweet outside the loop. A prior successful like
// short-circuits to success without calling the platform.
func (e *Engine) EngageManually(ctx context.Context, tweetID string) ManualResult {
	if tweetID == "" {
		return ManualResult{Error: "tweet id is required"}
	}
	done, err := e.st.HasSuccessfulAction(ctx, tweetID, model.ActionLike)
	if err != nil {
		logging.Error("manual_engage_error", map[string]any{"tweet_id": tweetID, "error": err})
		return ManualResult{Error: err.Error()}
	}
	if done {
		return ManualResult{Success: true}
	}

	a := model.EngagementAction{
		ID:            uuid.NewString(),
		Kind:          model.ActionLike,
		TargetEventID: tweetID,
		ActorID:       "manual",
		Timestamp:     e.sched.Clock().Now(),
	}
	attempts, likeErr := LikeWithRetry(ctx, e.client, e.sched.Clock(), tweetID)
	a.RetryCount = attempts
	a.Success = likeErr == nil
	if likeErr != nil {
		a.Error = likeErr.Error()
	}
	if err := e.record(ctx, a); err != nil {
		logging.Error("manual_engage_record_error", map[string]any{"tweet_id": tweetID, "error": err})
	}
	e.push.Broadcast(push.NewEvent(push.TypeManualEngagement, map[string]any{
		"action":  model.ActionLike,
		"tweetId": tweetID,
		"success": a.Success,
	}))
	if likeErr != nil {
		return ManualResult{Error: "Failed to like tweet"}
	}
	logging.Info("manual_engage", map[string]any{"tweet_id": tweetID, "attempts": attempts})
	return ManualResult{Success: true}
}
