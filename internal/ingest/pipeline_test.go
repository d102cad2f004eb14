package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xnom/internal/config"
	"xnom/internal/jobs"
	"xnom/internal/judge"
	"xnom/internal/judge/judgetest"
	"xnom/internal/model"
	"xnom/internal/push"
	"xnom/internal/settings"
	"xnom/internal/store"
	"xnom/internal/store/sqlite"
)

type fakeMentions struct {
	mu      sync.Mutex
	pages   [][]model.RawEvent
	err     error
	sinceID []string
	users   map[string]model.User
}

func (f *fakeMentions) GetMentions(_ context.Context, sinceID string, _ int) ([]model.RawEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinceID = append(f.sinceID, sinceID)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.pages) == 0 {
		return nil, nil
	}
	p := f.pages[0]
	if len(f.pages) > 1 {
		f.pages = f.pages[1:]
	}
	return append([]model.RawEvent(nil), p...), nil
}

func (f *fakeMentions) GetUsersByIDs(_ context.Context, ids []string) ([]model.User, error) {
	var out []model.User
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

type staticSettings struct{ s model.Settings }

func (s staticSettings) Get(context.Context) (model.Settings, error) { return s.s, nil }

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	p    *Pipeline
	db   *sqlite.DB
	rec  *push.Recorder
	src  *fakeMentions
	clk  *jobs.FakeClock
	fake *judgetest.Fake
}

func newHarness(t *testing.T, j *judgetest.Fake, src settings.Source) *harness {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	if src == nil {
		src = settings.NewService(db, config.Default())
	}
	h := &harness{db: db, rec: &push.Recorder{}, src: &fakeMentions{}, clk: jobs.NewFakeClock(epoch), fake: j}
	var jj judge.Judge = judge.Disabled{}
	if j != nil {
		jj = j
	}
	h.p = NewPipeline(h.src, db, jj, h.rec, src, jobs.NewScheduler(h.clk), Options{Interval: 30 * time.Second})
	return h
}

func mention(id, user, text string) model.RawEvent {
	return model.RawEvent{ID: id, AuthorID: "u-" + user, Author: model.User{ID: "u-" + user, Username: user}, Text: text, CreatedAt: epoch}
}

func TestRunOnceStoresAndPushes(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.src.pages = [][]model.RawEvent{{mention("101", "ann", "hey @me"), mention("102", "bob", "@me urgent partnership")}}
	ctx := context.Background()

	require.NoError(t, h.p.RunOnce(ctx))

	pushed := h.rec.OfType(push.TypeNewNotification)
	require.Len(t, pushed, 2)
	got, err := h.db.GetNotification(ctx, "102")
	require.NoError(t, err)
	assert.True(t, got.Processed)
	assert.Equal(t, model.PriorityMedium, got.Priority)
	assert.Equal(t, model.KindMention, got.Kind)

	checked := h.rec.OfType(push.TypeNotificationsChecked)
	require.Len(t, checked, 1)
	assert.Equal(t, map[string]any{"count": 2}, checked[0].Data)
}

func TestRunOnceIsIdempotent(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.src.pages = [][]model.RawEvent{{mention("101", "ann", "hi")}}
	ctx := context.Background()
	require.NoError(t, h.p.RunOnce(ctx))
	require.NoError(t, h.p.RunOnce(ctx))

	assert.Len(t, h.rec.OfType(push.TypeNewNotification), 1)
	rows, err := h.db.ListNotifications(ctx, store.NotificationFilter{})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestCursorAdvancesToNewestID(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.src.pages = [][]model.RawEvent{{mention("99", "a", "x"), mention("105", "b", "y"), mention("100", "c", "z")}, {}}
	ctx := context.Background()
	require.NoError(t, h.p.RunOnce(ctx))
	require.NoError(t, h.p.RunOnce(ctx))
	assert.Equal(t, []string{"", "105"}, h.src.sinceID)
}

func TestToggleOffSuppressesPushButStores(t *testing.T) {
	set := config.Default().DefaultSettings()
	set.Notifications.Replies = false
	h := newHarness(t, nil, staticSettings{set})
	reply := mention("200", "ann", "agreed")
	reply.References = []model.Reference{{Type: "replied_to", ID: "1"}}
	h.src.pages = [][]model.RawEvent{{reply}}
	ctx := context.Background()

	require.NoError(t, h.p.RunOnce(ctx))
	assert.Empty(t, h.rec.OfType(push.TypeNewNotification))
	got, err := h.db.GetNotification(ctx, "200")
	require.NoError(t, err)
	assert.Equal(t, model.KindReply, got.Kind)
	assert.True(t, got.Processed)
}

func TestJudgeLowConfidenceSuppresses(t *testing.T) {
	j := &judgetest.Fake{Verdict: judge.Verdict{ShouldEngage: true, Confidence: 0.2}}
	h := newHarness(t, j, nil)
	h.src.pages = [][]model.RawEvent{{mention("300", "ann", "meh")}}
	require.NoError(t, h.p.RunOnce(context.Background()))
	assert.Empty(t, h.rec.OfType(push.TypeNewNotification))
	assert.Equal(t, []string{"meh"}, j.Scored())
}

func TestJudgeErrorFailsOpen(t *testing.T) {
	j := &judgetest.Fake{Err: errors.New("model down")}
	h := newHarness(t, j, nil)
	h.src.pages = [][]model.RawEvent{{mention("301", "ann", "hello")}}
	require.NoError(t, h.p.RunOnce(context.Background()))
	assert.Len(t, h.rec.OfType(push.TypeNewNotification), 1)
}

func TestJudgeConfidentPushes(t *testing.T) {
	j := &judgetest.Fake{Verdict: judge.Verdict{Confidence: 0.3}}
	h := newHarness(t, j, nil)
	h.src.pages = [][]model.RawEvent{{mention("302", "ann", "hello")}}
	require.NoError(t, h.p.RunOnce(context.Background()))
	assert.Len(t, h.rec.OfType(push.TypeNewNotification), 1)
}

func TestFetchErrorBroadcastsError(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.src.err = errors.New("429")
	err := h.p.RunOnce(context.Background())
	require.Error(t, err)
	evs := h.rec.OfType(push.TypeError)
	require.Len(t, evs, 1)
	assert.Equal(t, map[string]any{"message": "Failed to check notifications"}, evs[0].Data)
	assert.Empty(t, h.rec.OfType(push.TypeNotificationsChecked))
}

func TestMissingAuthorsAreLookedUp(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.src.users = map[string]model.User{"u9": {ID: "u9", Username: "carol", Verified: true}}
	h.src.pages = [][]model.RawEvent{{{ID: "400", AuthorID: "u9", Text: "important business", CreatedAt: epoch}}}
	ctx := context.Background()
	require.NoError(t, h.p.RunOnce(ctx))
	got, err := h.db.GetNotification(ctx, "400")
	require.NoError(t, err)
	assert.Equal(t, "carol", got.SourceUsername)
	assert.Equal(t, model.PriorityHigh, got.Priority)
}

func TestStartRunsImmediatelyAndStops(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.src.pages = [][]model.RawEvent{{mention("500", "ann", "hi")}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.p.Start(ctx)
	h.p.Start(ctx)
	assert.True(t, h.p.IsActive())
	h.clk.Advance(0)
	assert.Len(t, h.rec.OfType(push.TypeNotificationsChecked), 1)
	h.clk.Advance(30 * time.Second)
	assert.Len(t, h.rec.OfType(push.TypeNotificationsChecked), 2)

	h.p.Stop()
	assert.False(t, h.p.IsActive())
	h.clk.Advance(time.Minute)
	assert.Len(t, h.rec.OfType(push.TypeNotificationsChecked), 2)
}

func TestStatsAndMarkRead(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	s, err := h.p.Stats(ctx)
	require.NoError(t, err)
	assert.Nil(t, s.LastCheck)
	assert.Equal(t, 0, s.TotalToday)

	h.src.pages = [][]model.RawEvent{{mention("600", "ann", "a"), mention("601", "bob", "b")}}
	require.NoError(t, h.p.RunOnce(ctx))
	s, err = h.p.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, s.TotalToday)
	require.NotNil(t, s.LastCheck)
	assert.True(t, s.LastCheck.Equal(epoch))
	assert.False(t, s.IsMonitoring)

	require.NoError(t, h.p.MarkRead(ctx, "600"))
	assert.Len(t, h.rec.OfType(push.TypeNotificationRead), 1)
	assert.ErrorIs(t, h.p.MarkRead(ctx, "nope"), ErrNotFound)
}
