// Package judgetest provides a scriptable Judge for tests.
package judgetest

import (
	"context"
	"sync"

	"xnom/internal/judge"
)

// Fake answers every ScoreEngagementPotential with Verdict/Err and records
// the texts it was asked about.
type Fake struct {
	Verdict  judge.Verdict
	Err      error
	Reply    string
	Ideas    []judge.IdeaDraft
	Analysis judge.IdeaAnalysis
	// Moderation overrides the default "appropriate" answer.
	Moderation *judge.Moderation
	Off        bool

	mu     sync.Mutex
	scored []string
}

var _ judge.Judge = (*Fake)(nil)

func (f *Fake) Available() bool  { return !f.Off }
func (f *Fake) Provider() string { return "fake" }

func (f *Fake) ScoreEngagementPotential(_ context.Context, text string, _ map[string]any) (judge.Verdict, error) {
	f.mu.Lock()
	f.scored = append(f.scored, text)
	f.mu.Unlock()
	if f.Err != nil {
		return judge.FallbackVerdict, f.Err
	}
	return f.Verdict, nil
}

// Scored returns the texts passed to ScoreEngagementPotential.
func (f *Fake) Scored() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.scored...)
}

func (f *Fake) GenerateReply(context.Context, string, string) (string, error) {
	if f.Err != nil {
		return "", f.Err
	}
	return f.Reply, nil
}

func (f *Fake) AnalyzePostIdea(context.Context, string) (judge.IdeaAnalysis, error) {
	if f.Err != nil {
		return judge.FallbackAnalysis, f.Err
	}
	return f.Analysis, nil
}

func (f *Fake) GeneratePostIdeas(context.Context, string, int) ([]judge.IdeaDraft, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Ideas, nil
}

func (f *Fake) ModerateContent(context.Context, string) (judge.Moderation, error) {
	if f.Err != nil {
		return judge.FallbackModeration, f.Err
	}
	if f.Moderation != nil {
		return *f.Moderation, nil
	}
	return judge.Moderation{IsAppropriate: true, Severity: "low"}, nil
}
