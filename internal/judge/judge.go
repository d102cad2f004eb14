// Package judge asks a language model whether content is worth engaging
// with, drafts replies and post ideas, and moderates text.
package judge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"xnom/internal/config"
)

// ErrUnavailable is returned by every call on a judge without a backend.
var ErrUnavailable = errors.New("judge: no AI provider configured")

// Verdict is the answer to "should we engage with this".
type Verdict struct {
	ShouldEngage bool    `json:"shouldEngage"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning"`
}

// IdeaAnalysis rates a drafted post on a 1–10 scale.
type IdeaAnalysis struct {
	Score       float64  `json:"score"`
	Category    string   `json:"category"`
	Analysis    string   `json:"analysis"`
	Suggestions []string `json:"suggestions"`
	Approved    bool     `json:"approved"`
}

// IdeaDraft is one generated post idea.
type IdeaDraft struct {
	Content             string   `json:"content"`
	Category            string   `json:"category"`
	Reasoning           string   `json:"reasoning"`
	Hashtags            []string `json:"hashtags"`
	EstimatedEngagement string   `json:"estimatedEngagement"`
}

// Moderation is a content policy check.
type Moderation struct {
	IsAppropriate bool     `json:"isAppropriate"`
	Issues        []string `json:"issues"`
	Severity      string   `json:"severity"`
}

// Judge is the AI surface the pipeline, engine and idea generator use.
// Methods that fail return a conservative fallback value alongside the error;
// callers decide whether to trust it.
type Judge interface {
	Available() bool
	Provider() string
	ScoreEngagementPotential(ctx context.Context, text string, extra map[string]any) (Verdict, error)
	GenerateReply(ctx context.Context, tweet, extra string) (string, error)
	AnalyzePostIdea(ctx context.Context, content string) (IdeaAnalysis, error)
	GeneratePostIdeas(ctx context.Context, topic string, count int) ([]IdeaDraft, error)
	ModerateContent(ctx context.Context, content string) (Moderation, error)
}

// Fallbacks returned with errors.
var (
	FallbackVerdict    = Verdict{ShouldEngage: false, Confidence: 0.1, Reasoning: "AI analysis failed - manual review recommended"}
	FallbackAnalysis   = IdeaAnalysis{Score: 5, Category: "general", Analysis: "AI analysis temporarily unavailable. Manual review recommended.", Suggestions: []string{"Review content for engagement potential", "Check for brand safety"}}
	FallbackModeration = Moderation{IsAppropriate: false, Issues: []string{"Unable to analyze content"}, Severity: "medium"}
)

// completer is one chat-style model backend.
type completer interface {
	name() string
	complete(ctx context.Context, req completion) (string, error)
}

type completion struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
	JSON        bool
}

// New builds the judge for cfg. Provider "none", or a missing key, yields a
// judge that reports itself unavailable.
func New(ctx context.Context, cfg config.LLMConfig) (Judge, error) {
	if cfg.APIKey == "" {
		return Disabled{}, nil
	}
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return &llmJudge{backend: newOpenAI(cfg.APIKey, cfg.Model)}, nil
	case "gemini":
		g, err := newGemini(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		return &llmJudge{backend: g}, nil
	case "", "none":
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// Disabled is the judge used when no provider is configured.
type Disabled struct{}

func (Disabled) Available() bool  { return false }
func (Disabled) Provider() string { return "none" }
func (Disabled) ScoreEngagementPotential(context.Context, string, map[string]any) (Verdict, error) {
	return FallbackVerdict, ErrUnavailable
}
func (Disabled) GenerateReply(context.Context, string, string) (string, error) {
	return "", ErrUnavailable
}
func (Disabled) AnalyzePostIdea(context.Context, string) (IdeaAnalysis, error) {
	return FallbackAnalysis, ErrUnavailable
}
func (Disabled) GeneratePostIdeas(context.Context, string, int) ([]IdeaDraft, error) {
	return nil, ErrUnavailable
}
func (Disabled) ModerateContent(context.Context, string) (Moderation, error) {
	return FallbackModeration, ErrUnavailable
}

type llmJudge struct {
	backend completer
}

func (j *llmJudge) Available() bool  { return true }
func (j *llmJudge) Provider() string { return j.backend.name() }

func (j *llmJudge) ScoreEngagementPotential(ctx context.Context, text string, extra map[string]any) (Verdict, error) {
	ctxJSON, _ := json.Marshal(extra)
	out, err := j.backend.complete(ctx, completion{
		System: "You are an AI assistant that helps with social media engagement decisions. Analyze content quality, engagement potential, and risks to provide smart engagement recommendations.",
		Prompt: fmt.Sprintf(`Analyze this X (Twitter) post to determine if it's worth engaging with (liking, retweeting, or replying):

Tweet: %q
Context: %s

Consider content quality and relevance, potential for meaningful conversation, alignment with professional goals, risk (controversial topics, spam), and engagement metrics if available.

Respond in JSON format:
{"shouldEngage": boolean, "confidence": number (0-1), "reasoning": "explanation", "engagementType": "like|retweet|reply|none", "riskLevel": "low|medium|high"}`, text, ctxJSON),
		Temperature: 0.2,
		MaxTokens:   500,
		JSON:        true,
	})
	if err != nil {
		return FallbackVerdict, err
	}
	var raw struct {
		ShouldEngage *bool    `json:"shouldEngage"`
		Confidence   *float64 `json:"confidence"`
		Reasoning    string   `json:"reasoning"`
	}
	if err := decodeJSON(out, &raw); err != nil {
		return FallbackVerdict, err
	}
	v := Verdict{Confidence: 0.5, Reasoning: raw.Reasoning}
	if raw.ShouldEngage != nil {
		v.ShouldEngage = *raw.ShouldEngage
	}
	if raw.Confidence != nil {
		v.Confidence = clamp01(*raw.Confidence)
	}
	if v.Reasoning == "" {
		v.Reasoning = "No reasoning provided"
	}
	return v, nil
}

func (j *llmJudge) GenerateReply(ctx context.Context, tweet, extra string) (string, error) {
	out, err := j.backend.complete(ctx, completion{
		System: "You are a helpful assistant that generates thoughtful, engaging replies to social media posts. Focus on adding value and fostering positive interaction.",
		Prompt: fmt.Sprintf(`Generate a thoughtful reply to this X (Twitter) post:

Original Tweet: %q
Context: %s

The reply should add value to the conversation, be professional but engaging, stay under 280 characters and avoid controversial topics unless directly relevant.
Just provide the reply text, no additional formatting.`, tweet, extra),
		Temperature: 0.6,
		MaxTokens:   100,
	})
	if err != nil {
		return "", err
	}
	reply := strings.Trim(strings.TrimSpace(out), `"`)
	if reply == "" {
		return "", errors.New("empty reply from model")
	}
	return reply, nil
}

func (j *llmJudge) AnalyzePostIdea(ctx context.Context, content string) (IdeaAnalysis, error) {
	out, err := j.backend.complete(ctx, completion{
		System: "You are an expert social media strategist and content analyst. Analyze X (Twitter) posts for engagement potential, quality, and effectiveness. Be constructive but honest in your analysis.",
		Prompt: fmt.Sprintf(`Analyze this X (Twitter) post idea and provide a detailed evaluation:

Post Content: %q

Evaluate engagement potential, content quality, relevance, brand safety and potential reach, each 1-10.

Respond in JSON format:
{"overallScore": number (1-10), "category": "one of: tech, business, personal, humor, news, opinion, educational", "analysis": "detailed analysis", "suggestions": ["improvements"], "approved": boolean}`, content),
		Temperature: 0.3,
		MaxTokens:   1000,
		JSON:        true,
	})
	if err != nil {
		return FallbackAnalysis, err
	}
	var raw struct {
		OverallScore float64  `json:"overallScore"`
		Category     string   `json:"category"`
		Analysis     string   `json:"analysis"`
		Suggestions  []string `json:"suggestions"`
		Approved     bool     `json:"approved"`
	}
	if err := decodeJSON(out, &raw); err != nil {
		return FallbackAnalysis, err
	}
	a := IdeaAnalysis{Score: raw.OverallScore, Category: raw.Category, Analysis: raw.Analysis, Suggestions: raw.Suggestions, Approved: raw.Approved}
	if a.Score == 0 {
		a.Score = 5
	}
	if a.Category == "" {
		a.Category = "general"
	}
	if a.Analysis == "" {
		a.Analysis = "Analysis not available"
	}
	return a, nil
}

func (j *llmJudge) GeneratePostIdeas(ctx context.Context, topic string, count int) ([]IdeaDraft, error) {
	if count <= 0 {
		count = 5
	}
	out, err := j.backend.complete(ctx, completion{
		System: "You are a creative social media strategist specializing in X (Twitter) content. Generate engaging, original post ideas that drive interaction and provide value to readers.",
		Prompt: fmt.Sprintf(`Generate %d high-quality X (Twitter) post ideas about %q.

Each post should be engaging, under 280 characters, relevant to current trends and likely to generate interaction.

Respond in JSON format as an object {"ideas": [{"content": "...", "category": "...", "reasoning": "...", "hashtags": ["..."], "estimatedEngagement": "low|medium|high"}]}`, count, topic),
		Temperature: 0.7,
		MaxTokens:   1500,
		JSON:        true,
	})
	if err != nil {
		return nil, err
	}
	// models answer either with the wrapper object or a bare array
	var wrapped struct {
		Ideas []IdeaDraft `json:"ideas"`
	}
	if err := decodeJSON(out, &wrapped); err == nil && len(wrapped.Ideas) > 0 {
		return trimDrafts(wrapped.Ideas, count), nil
	}
	var bare []IdeaDraft
	if err := decodeJSON(out, &bare); err != nil {
		return nil, err
	}
	return trimDrafts(bare, count), nil
}

func trimDrafts(in []IdeaDraft, count int) []IdeaDraft {
	out := in[:0]
	for _, d := range in {
		if strings.TrimSpace(d.Content) == "" {
			continue
		}
		out = append(out, d)
	}
	if len(out) > count {
		out = out[:count]
	}
	return out
}

func (j *llmJudge) ModerateContent(ctx context.Context, content string) (Moderation, error) {
	out, err := j.backend.complete(ctx, completion{
		System: "You are a content moderation AI. Analyze content for policy violations and inappropriate material according to social media platform guidelines.",
		Prompt: fmt.Sprintf(`Moderate this content for appropriateness on X (Twitter):

Content: %q

Check for hate speech or harassment, spam, misinformation, adult content, violence or threats, and copyright issues.

Respond in JSON format:
{"isAppropriate": boolean, "issues": ["identified issues"], "severity": "low|medium|high"}`, content),
		Temperature: 0.1,
		MaxTokens:   300,
		JSON:        true,
	})
	if err != nil {
		return FallbackModeration, err
	}
	var m Moderation
	if err := decodeJSON(out, &m); err != nil {
		return FallbackModeration, err
	}
	if m.Severity == "" {
		m.Severity = "medium"
	}
	return m, nil
}

// decodeJSON parses model output, tolerating markdown code fences.
func decodeJSON(s string, v any) error {
	s = cleanJSON(s)
	if s == "" {
		return errors.New("empty model output")
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("malformed model output: %w", err)
	}
	return nil
}

func cleanJSON(input string) string {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "```json")
	input = strings.TrimPrefix(input, "```")
	input = strings.TrimSuffix(input, "```")
	return strings.TrimSpace(input)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
