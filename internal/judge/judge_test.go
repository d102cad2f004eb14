package judge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xnom/internal/config"
)

// chatServer answers every chat completion with content and records requests.
func chatServer(t *testing.T, status int, content string, seen *[]oaRequest) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req oaRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if seen != nil {
			*seen = append(*seen, req)
		}
		w.WriteHeader(status)
		if status >= 400 {
			_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]string{"role": "assistant", "content": content}}},
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func testJudge(ts *httptest.Server) *llmJudge {
	o := newOpenAI("sk-test", "")
	o.endpoint = ts.URL
	o.http = ts.Client()
	return &llmJudge{backend: o}
}

func TestNewWithoutKeyIsDisabled(t *testing.T) {
	j, err := New(context.Background(), config.LLMConfig{Provider: "openai"})
	require.NoError(t, err)
	assert.False(t, j.Available())
	v, err := j.ScoreEngagementPotential(context.Background(), "x", nil)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, FallbackVerdict, v)

	_, err = New(context.Background(), config.LLMConfig{Provider: "mystery", APIKey: "k"})
	assert.Error(t, err)

	j, err = New(context.Background(), config.LLMConfig{Provider: "openai", APIKey: "k"})
	require.NoError(t, err)
	assert.True(t, j.Available())
	assert.Equal(t, "openai", j.Provider())
}

func TestScoreEngagementPotentialParsesVerdict(t *testing.T) {
	var seen []oaRequest
	ts := chatServer(t, 200, "```json\n{\"shouldEngage\": true, \"confidence\": 0.82, \"reasoning\": \"solid\"}\n```", &seen)
	v, err := testJudge(ts).ScoreEngagementPotential(context.Background(), "great thread", map[string]any{"likes": 10})
	require.NoError(t, err)
	assert.Equal(t, Verdict{ShouldEngage: true, Confidence: 0.82, Reasoning: "solid"}, v)

	require.Len(t, seen, 1)
	assert.Equal(t, "gpt-4o-mini", seen[0].Model)
	assert.Equal(t, "json_object", seen[0].ResponseFormat["type"])
	assert.Contains(t, seen[0].Messages[1].Content, `"great thread"`)
	assert.Contains(t, seen[0].Messages[1].Content, `{"likes":10}`)
}

func TestScoreEngagementPotentialDefaultsMissingFields(t *testing.T) {
	ts := chatServer(t, 200, `{"shouldEngage": true}`, nil)
	v, err := testJudge(ts).ScoreEngagementPotential(context.Background(), "t", nil)
	require.NoError(t, err)
	assert.True(t, v.ShouldEngage)
	assert.Equal(t, 0.5, v.Confidence)
}

func TestMalformedOutputIsAnError(t *testing.T) {
	ts := chatServer(t, 200, "sure, you should like it!", nil)
	v, err := testJudge(ts).ScoreEngagementPotential(context.Background(), "t", nil)
	assert.Error(t, err)
	assert.Equal(t, FallbackVerdict, v)
}

func TestHTTPFailureReturnsFallback(t *testing.T) {
	ts := chatServer(t, 429, "", nil)
	j := testJudge(ts)
	a, err := j.AnalyzePostIdea(context.Background(), "idea")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Equal(t, FallbackAnalysis, a)

	m, err := j.ModerateContent(context.Background(), "text")
	assert.Error(t, err)
	assert.False(t, m.IsAppropriate)
}

func TestGeneratePostIdeasAcceptsArrayOrWrapper(t *testing.T) {
	ts := chatServer(t, 200, `{"ideas":[{"content":"one","category":"tech"},{"content":""},{"content":"two"}]}`, nil)
	ideas, err := testJudge(ts).GeneratePostIdeas(context.Background(), "go", 5)
	require.NoError(t, err)
	require.Len(t, ideas, 2)
	assert.Equal(t, "tech", ideas[0].Category)

	ts = chatServer(t, 200, `[{"content":"a"},{"content":"b"},{"content":"c"}]`, nil)
	ideas, err = testJudge(ts).GeneratePostIdeas(context.Background(), "go", 2)
	require.NoError(t, err)
	assert.Len(t, ideas, 2)
}

func TestGenerateReplyTrimsQuotes(t *testing.T) {
	ts := chatServer(t, 200, "  \"Great point, thanks for sharing!\"  ", nil)
	r, err := testJudge(ts).GenerateReply(context.Background(), "tweet", "")
	require.NoError(t, err)
	assert.Equal(t, "Great point, thanks for sharing!", r)
}

func TestAnalyzePostIdeaDefaults(t *testing.T) {
	ts := chatServer(t, 200, `{"approved": true}`, nil)
	a, err := testJudge(ts).AnalyzePostIdea(context.Background(), "idea")
	require.NoError(t, err)
	assert.Equal(t, 5.0, a.Score)
	assert.Equal(t, "general", a.Category)
	assert.True(t, a.Approved)
}
