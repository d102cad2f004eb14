package suggest

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"xnom/internal/judge"
)

var ideaTemplates = []struct {
	category string
	format   string
}{
	{"question", "What's the one thing about %s you wish you'd learned sooner?"},
	{"tip", "Quick tip on %s: start small, measure, then iterate. What would you add?"},
	{"opinion", "Unpopular opinion: most advice about %s skips the trade-offs. Which ones matter to you?"},
	{"story", "A year ago I knew almost nothing about %s. Here's what changed my mind 🧵"},
	{"resource", "Bookmarking this: the best free resources on %s. Drop yours below 👇"},
	{"poll", "Where are you with %s right now? Just curious, exploring or shipping?"},
}

// HeuristicIdeas fills in drafts from fixed templates when no model is
// available.
func HeuristicIdeas(topic string, count int) []judge.IdeaDraft {
	tag := hashtag(topic)
	out := make([]judge.IdeaDraft, 0, count)
	for i := 0; i < count; i++ {
		t := ideaTemplates[i%len(ideaTemplates)]
		out = append(out, judge.IdeaDraft{
			Content:             fmt.Sprintf(t.format, topic) + " " + tag,
			Category:            t.category,
			Reasoning:           "template",
			Hashtags:            []string{tag},
			EstimatedEngagement: "medium",
		})
	}
	return out
}

// HeuristicAnalysis rates a post on the judge's 1–10 scale from its shape:
// a question, a hashtag, a hook and a sensible length each help.
func HeuristicAnalysis(content string) judge.IdeaAnalysis {
	score := 4.0
	var notes, tips []string
	n := utf8.RuneCountInString(content)
	switch {
	case n >= 70 && n <= 240:
		score += 2
		notes = append(notes, "good length")
	case n < 70:
		tips = append(tips, "add a concrete detail")
	default:
		tips = append(tips, "trim to leave room for quotes")
	}
	if strings.Contains(content, "?") {
		score += 2
		notes = append(notes, "invites replies")
	} else {
		tips = append(tips, "end with a question")
	}
	if strings.Contains(content, "#") {
		score++
		notes = append(notes, "has a hashtag")
	}
	if strings.ContainsAny(content, "🧵👇") || strings.HasPrefix(strings.ToLower(content), "unpopular opinion") {
		score++
		notes = append(notes, "has a hook")
	}
	if score > 10 {
		score = 10
	}
	category := "general"
	if strings.Contains(content, "?") {
		category = "question"
	}
	return judge.IdeaAnalysis{
		Score:       score,
		Category:    category,
		Analysis:    "Heuristic review: " + strings.Join(append([]string{fmt.Sprintf("%d chars", n)}, notes...), ", "),
		Suggestions: tips,
		Approved:    score >= 7,
	}
}

// hashtag turns "go concurrency" into "#GoConcurrency".
func hashtag(topic string) string {
	var b strings.Builder
	b.WriteByte('#')
	for _, w := range strings.Fields(topic) {
		r, size := utf8.DecodeRuneInString(w)
		b.WriteString(strings.ToUpper(string(r)))
		b.WriteString(strings.ToLower(w[size:]))
	}
	return b.String()
}
