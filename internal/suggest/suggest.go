// Package suggest drafts post ideas for a topic, rates them and slots them
// into upcoming posting windows.
package suggest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"xnom/internal/jobs"
	"xnom/internal/judge"
	"xnom/internal/logging"
	"xnom/internal/model"
	"xnom/internal/schedule"
	"xnom/internal/store"
	"xnom/internal/util"
)

const (
	maxIdeas     = 10
	maxPostRunes = 280
)

// Generator produces and stores post ideas.
type Generator struct {
	judge      judge.Judge
	st         store.Ideas
	clock      jobs.Clock
	quietHours []int
}

func NewGenerator(j judge.Judge, st store.Ideas, clock jobs.Clock, quietHours []int) *Generator {
	if j == nil {
		j = judge.Disabled{}
	}
	if clock == nil {
		clock = jobs.RealClock()
	}
	return &Generator{judge: j, st: st, clock: clock, quietHours: quietHours}
}

// Generate drafts count ideas about topic, rates and stores them. The judge
// drafts when it can; otherwise templates fill in.
func (g *Generator) Generate(ctx context.Context, topic string, count int) ([]model.PostIdea, error) {
	topic = util.NormalizeWhitespace(topic)
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	if count <= 0 {
		count = 5
	}
	if count > maxIdeas {
		count = maxIdeas
	}

	drafts, err := g.judge.GeneratePostIdeas(ctx, topic, count)
	if err != nil || len(drafts) == 0 {
		if err != nil && !errors.Is(err, judge.ErrUnavailable) {
			logging.Warn("ideas_judge_error", map[string]any{"topic": topic, "error": err})
		}
		drafts = HeuristicIdeas(topic, count)
	}
	if len(drafts) > count {
		drafts = drafts[:count]
	}

	now := g.clock.Now()
	slots := schedule.Slots(now, len(drafts), g.quietHours)
	out := make([]model.PostIdea, 0, len(drafts))
	for i, d := range drafts {
		content := util.Truncate(strings.TrimSpace(d.Content), maxPostRunes)
		if content == "" {
			continue
		}
		a := g.analyze(ctx, content)
		category := a.Category
		if category == "" || category == "general" {
			category = coalesce(d.Category, "general")
		}
		slot := slots[i]
		idea := model.PostIdea{
			ID:           uuid.NewString(),
			Content:      content,
			Score:        a.Score,
			Category:     category,
			AIAnalysis:   a.Analysis,
			Approved:     a.Approved,
			CreatedAt:    now,
			ScheduledFor: &slot,
		}
		if err := g.st.InsertIdea(ctx, idea); err != nil {
			return out, fmt.Errorf("store idea: %w", err)
		}
		out = append(out, idea)
	}
	logging.Info("ideas_generated", map[string]any{"topic": topic, "count": len(out), "provider": g.judge.Provider()})
	return out, nil
}

func (g *Generator) analyze(ctx context.Context, content string) judge.IdeaAnalysis {
	if !g.judge.Available() {
		return HeuristicAnalysis(content)
	}
	a, err := g.judge.AnalyzePostIdea(ctx, content)
	if err != nil {
		logging.Warn("ideas_analysis_error", map[string]any{"error": err})
		return HeuristicAnalysis(content)
	}
	return a
}

// List returns stored ideas, best score first.
func (g *Generator) List(ctx context.Context, approvedOnly bool, limit int) ([]model.PostIdea, error) {
	if limit <= 0 {
		limit = 50
	}
	return g.st.ListIdeas(ctx, approvedOnly, limit)
}

// Approve marks an idea ready to post and returns it.
func (g *Generator) Approve(ctx context.Context, id string) (model.PostIdea, error) {
	if err := g.st.ApproveIdea(ctx, id); err != nil {
		return model.PostIdea{}, err
	}
	return g.st.GetIdea(ctx, id)
}

// Poster publishes a standalone tweet.
type Poster interface {
	PostTweet(ctx context.Context, text string) (string, error)
}

// ErrNotApproved is returned by Publish for ideas still awaiting approval.
var ErrNotApproved = errors.New("suggest: idea is not approved")

// Publish posts an approved idea and returns the new tweet id. When a model
// is configured the text must pass moderation first.
func (g *Generator) Publish(ctx context.Context, p Poster, id string) (string, error) {
	idea, err := g.st.GetIdea(ctx, id)
	if err != nil {
		return "", err
	}
	if !idea.Approved {
		return "", ErrNotApproved
	}
	if g.judge.Available() {
		mod, err := g.judge.ModerateContent(ctx, idea.Content)
		if err != nil {
			return "", fmt.Errorf("moderate idea: %w", err)
		}
		if !mod.IsAppropriate {
			return "", fmt.Errorf("idea rejected by moderation (%s)", mod.Severity)
		}
	}
	tweetID, err := p.PostTweet(ctx, idea.Content)
	if err != nil {
		return "", fmt.Errorf("post idea: %w", err)
	}
	logging.Info("idea_published", map[string]any{"idea_id": id, "tweet_id": tweetID})
	return tweetID, nil
}

func coalesce(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
