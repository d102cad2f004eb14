package suggest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xnom/internal/jobs"
	"xnom/internal/judge"
	"xnom/internal/judge/judgetest"
	"xnom/internal/store/sqlite"
)

var epoch = time.Date(2025, 3, 1, 22, 10, 0, 0, time.UTC)

func newGen(t *testing.T, j judge.Judge) (*Generator, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewGenerator(j, db, jobs.NewFakeClock(epoch), []int{0, 1, 2, 3, 4, 5}), db
}

func TestGenerateWithoutModelUsesTemplates(t *testing.T) {
	g, _ := newGen(t, nil)
	ctx := context.Background()
	ideas, err := g.Generate(ctx, "go concurrency", 3)
	require.NoError(t, err)
	require.Len(t, ideas, 3)
	assert.Contains(t, ideas[0].Content, "#GoConcurrency")
	assert.Equal(t, "question", ideas[0].Category)
	require.NotNil(t, ideas[0].ScheduledFor)
	assert.Equal(t, time.Date(2025, 3, 1, 23, 0, 0, 0, time.UTC), *ideas[0].ScheduledFor)
	assert.Equal(t, time.Date(2025, 3, 2, 6, 0, 0, 0, time.UTC), *ideas[1].ScheduledFor)

	listed, err := g.List(ctx, false, 0)
	require.NoError(t, err)
	assert.Len(t, listed, 3)
	for i := 1; i < len(listed); i++ {
		assert.GreaterOrEqual(t, listed[i-1].Score, listed[i].Score)
	}
}

func TestGenerateUsesJudgeDrafts(t *testing.T) {
	j := &judgetest.Fake{
		Ideas:    []judge.IdeaDraft{{Content: "Channels or mutexes?", Category: "question"}, {Content: "  ", Category: "empty"}},
		Analysis: judge.IdeaAnalysis{Score: 8.5, Category: "engagement", Analysis: "strong hook", Approved: true},
	}
	g, _ := newGen(t, j)
	ideas, err := g.Generate(context.Background(), "go", 5)
	require.NoError(t, err)
	require.Len(t, ideas, 1)
	assert.Equal(t, 8.5, ideas[0].Score)
	assert.Equal(t, "engagement", ideas[0].Category)
	assert.True(t, ideas[0].Approved)
}

func TestGenerateFallsBackOnJudgeError(t *testing.T) {
	g, _ := newGen(t, &judgetest.Fake{Err: errors.New("quota")})
	ideas, err := g.Generate(context.Background(), "rust", 2)
	require.NoError(t, err)
	assert.Len(t, ideas, 2)
}

func TestGenerateRejectsEmptyTopic(t *testing.T) {
	g, _ := newGen(t, nil)
	_, err := g.Generate(context.Background(), "   ", 2)
	assert.Error(t, err)
}

func TestApprove(t *testing.T) {
	g, _ := newGen(t, nil)
	ctx := context.Background()
	ideas, err := g.Generate(ctx, "testing", 2)
	require.NoError(t, err)

	got, err := g.Approve(ctx, ideas[1].ID)
	require.NoError(t, err)
	assert.True(t, got.Approved)

	approved, err := g.List(ctx, true, 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(approved))
	for _, a := range approved {
		ids = append(ids, a.ID)
	}
	assert.Contains(t, ids, ideas[1].ID)
}

func TestHeuristicAnalysis(t *testing.T) {
	a := HeuristicAnalysis("What's the one thing about testing you wish you'd learned sooner? #Testing")
	assert.Equal(t, 9.0, a.Score)
	assert.True(t, a.Approved)
	assert.Equal(t, "question", a.Category)

	b := HeuristicAnalysis("ok")
	assert.Equal(t, 4.0, b.Score)
	assert.False(t, b.Approved)
	assert.Len(t, b.Suggestions, 2)
}

type fakePoster struct{ posted []string }

func (p *fakePoster) PostTweet(_ context.Context, text string) (string, error) {
	p.posted = append(p.posted, text)
	return "t1", nil
}

func TestPublishRequiresApprovalAndModeration(t *testing.T) {
	g, db := newGen(t, nil)
	ctx := context.Background()
	ideas, err := g.Generate(ctx, "testing", 1)
	require.NoError(t, err)
	p := &fakePoster{}

	_, err = g.Publish(ctx, p, ideas[0].ID)
	assert.ErrorIs(t, err, ErrNotApproved)
	_, err = g.Approve(ctx, ideas[0].ID)
	require.NoError(t, err)

	strict := NewGenerator(&judgetest.Fake{Moderation: &judge.Moderation{IsAppropriate: false, Severity: "medium"}}, db, jobs.NewFakeClock(epoch), nil)
	_, err = strict.Publish(ctx, p, ideas[0].ID)
	assert.ErrorContains(t, err, "moderation")
	assert.Empty(t, p.posted)

	id, err := g.Publish(ctx, p, ideas[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "t1", id)
	assert.Equal(t, []string{ideas[0].Content}, p.posted)
}
