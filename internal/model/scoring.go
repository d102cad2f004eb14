package model

import "xnom/internal/util"

var (
	// UrgentKeywords bump a notification by 20 points.
	UrgentKeywords = []string{"urgent", "important", "breaking", "emergency", "please help"}
	// BusinessKeywords bump a notification by 15 points.
	BusinessKeywords = []string{"collaboration", "partnership", "opportunity", "business", "project"}
)

// ClassifyKind decides whether a raw event is a reply or a mention.
func ClassifyKind(e RawEvent) NotificationKind {
	for _, ref := range e.References {
		if ref.Type == "replied_to" {
			return KindReply
		}
	}
	return KindMention
}

// PriorityScore is an additive heuristic:
// verified author, engagement band, urgent words, business words.
func PriorityScore(e RawEvent) int {
	score := 0
	if e.Author.Verified {
		score += 30
	}
	// only the first matching band counts
	switch eng := e.Engagement(); {
	case eng > 100:
		score += 25
	case eng > 20:
		score += 15
	case eng > 5:
		score += 10
	}
	if util.ContainsAnyCaseInsensitive(e.Text, UrgentKeywords) {
		score += 20
	}
	if util.ContainsAnyCaseInsensitive(e.Text, BusinessKeywords) {
		score += 15
	}
	return score
}

// PriorityFromScore maps a score onto a bucket.
func PriorityFromScore(score int) Priority {
	switch {
	case score >= 50:
		return PriorityHigh
	case score >= 25:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// NotificationFromEvent builds an unprocessed Notification for e.
func NotificationFromEvent(e RawEvent) Notification {
	username := e.Author.Username
	if username == "" {
		username = "unknown"
	}
	return Notification{
		ID:             e.ID,
		Kind:           ClassifyKind(e),
		SourceUserID:   e.AuthorID,
		SourceUsername: username,
		Text:           e.Text,
		Timestamp:      e.CreatedAt,
		LinkedEventID:  e.ID,
		Processed:      false,
		Priority:       PriorityFromScore(PriorityScore(e)),
	}
}
