package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPriorityScore(t *testing.T) {
	verified := User{Username: "v", Verified: true}
	cases := []struct {
		name  string
		ev    RawEvent
		score int
		want  Priority
	}{
		{"plain", RawEvent{Text: "hello"}, 0, PriorityLow},
		{"verified only", RawEvent{Author: verified, Text: "hi"}, 30, PriorityMedium},
		{"verified popular urgent", RawEvent{Author: verified, Text: "URGENT fix", LikeCount: 150}, 75, PriorityHigh},
		{"band edge 5", RawEvent{LikeCount: 5}, 0, PriorityLow},
		{"band edge 6", RawEvent{LikeCount: 3, ReplyCount: 3}, 10, PriorityLow},
		{"band 100 is mid", RawEvent{RetweetCount: 100}, 15, PriorityLow},
		{"quotes ignored", RawEvent{QuoteCount: 500}, 0, PriorityLow},
		{"urgent and business", RawEvent{Text: "important partnership"}, 35, PriorityMedium},
		{"exactly fifty", RawEvent{Author: verified, Text: "breaking"}, 50, PriorityHigh},
		{"twenty five", RawEvent{Text: "business", LikeCount: 8}, 25, PriorityMedium},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := PriorityScore(tc.ev)
			assert.Equal(t, tc.score, got)
			assert.Equal(t, tc.want, PriorityFromScore(got))
		})
	}
}

func TestNotificationFromEvent(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	n := NotificationFromEvent(RawEvent{
		ID: "9", AuthorID: "u1", Text: "thanks", CreatedAt: at,
		References: []Reference{{Type: "replied_to", ID: "8"}},
	})
	assert.Equal(t, KindReply, n.Kind)
	assert.Equal(t, "unknown", n.SourceUsername)
	assert.Equal(t, "9", n.LinkedEventID)
	assert.Equal(t, at, n.Timestamp)
	assert.False(t, n.Processed)
	assert.Equal(t, PriorityLow, n.Priority)

	assert.Equal(t, KindMention, ClassifyKind(RawEvent{References: []Reference{{Type: "quoted", ID: "1"}}}))
}
