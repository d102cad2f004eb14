package engage

import (
	"context"
	"time"

	"xnom/internal/judge"
	"xnom/internal/logging"
	"xnom/internal/model"
	"xnom/internal/util"
)

// minEngageConfidence is the judge confidence below which we do not act.
const minEngageConfidence = 0.6

// Decision is the outcome of the eligibility filter.
type Decision struct {
	Eligible bool
	Reason   string
}

// Eligible runs the short-circuiting filter: exclude keywords, target
// keywords, engagement threshold, then the judge. A judge error passes the
// gate; an explicit negative or low-confidence verdict does not.
func Eligible(ctx context.Context, ev model.RawEvent, s model.EngagementSettings, j judge.Judge) Decision {
	if kw, ok := util.FirstMatch(ev.Text, s.ExcludeKeywords); ok {
		return Decision{Reason: "exclude keyword: " + kw}
	}
	if len(s.TargetKeywords) > 0 && !util.ContainsAnyCaseInsensitive(ev.Text, s.TargetKeywords) {
		return Decision{Reason: "no target keyword"}
	}
	if ev.Engagement() < s.EngagementThreshold {
		return Decision{Reason: "below engagement threshold"}
	}
	if j == nil || !j.Available() {
		return Decision{Eligible: true}
	}
	v, err := j.ScoreEngagementPotential(ctx, ev.Text, map[string]any{
		"metrics": map[string]int{
			"like_count":    ev.LikeCount,
			"retweet_count": ev.RetweetCount,
			"reply_count":   ev.ReplyCount,
			"quote_count":   ev.QuoteCount,
		},
		"author":     ev.AuthorID,
		"created_at": ev.CreatedAt.Format(time.RFC3339),
	})
	if err != nil {
		logging.Warn("engage_judge_error", map[string]any{"id": ev.ID, "error": err})
		return Decision{Eligible: true, Reason: "judge unavailable"}
	}
	if !v.ShouldEngage || v.Confidence < minEngageConfidence {
		return Decision{Reason: "judge declined"}
	}
	return Decision{Eligible: true}
}
