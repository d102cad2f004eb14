package model

import "time"

// User represents a subset of X user fields used by the tool.
type User struct {
	ID              string
	Username        string
	Name            string
	Description     string
	CreatedAt       time.Time
	FollowersCount  int
	FollowingCount  int
	TweetCount      int
	ListedCount     int
	Verified        bool
	ProfileImageURL string
}

// Reference links a tweet to another one ("replied_to", "quoted", "retweeted").
type Reference struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// RawEvent is a tweet as returned by the platform, before we turn it into
// anything of our own. Author may be zero when the API did not expand it.
type RawEvent struct {
	ID           string
	AuthorID     string
	Author       User
	Text         string
	CreatedAt    time.Time
	LikeCount    int
	ReplyCount   int
	RetweetCount int
	QuoteCount   int
	Language     string
	References   []Reference
}

// Engagement is the sum of likes, retweets and replies.
// Quotes are not counted.
func (e RawEvent) Engagement() int {
	return e.LikeCount + e.RetweetCount + e.ReplyCount
}

// NotificationKind is the type of a stored notification.
type NotificationKind string

const (
	KindMention NotificationKind = "mention"
	KindReply   NotificationKind = "reply"
	KindLike    NotificationKind = "like"
	KindRetweet NotificationKind = "retweet"
	KindFollow  NotificationKind = "follow"
	KindDM      NotificationKind = "dm"
)

// Priority buckets a notification score.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Rank orders priorities, low < medium < high.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// Notification is a mention or reply we stored for the dashboard.
type Notification struct {
	ID             string           `json:"id"`
	Kind           NotificationKind `json:"type"`
	SourceUserID   string           `json:"userId"`
	SourceUsername string           `json:"username"`
	Text           string           `json:"text"`
	Timestamp      time.Time        `json:"timestamp"`
	LinkedEventID  string           `json:"tweetId,omitempty"`
	Processed      bool             `json:"processed"`
	Priority       Priority         `json:"priority"`
}

// ActionKind is an engagement we perform on someone else's tweet.
type ActionKind string

const (
	ActionLike    ActionKind = "like"
	ActionRetweet ActionKind = "retweet"
	ActionReply   ActionKind = "reply"
)

// EngagementAction is one attempt to engage with a tweet. Failed attempts
// are recorded too; rows are never updated.
type EngagementAction struct {
	ID            string     `json:"id"`
	Kind          ActionKind `json:"type"`
	TargetEventID string     `json:"tweetId"`
	ActorID       string     `json:"userId"`
	Timestamp     time.Time  `json:"timestamp"`
	Success       bool       `json:"success"`
	RetryCount    int        `json:"retryCount"`
	Error         string     `json:"error,omitempty"`
}

// EngagementSettings drive the auto-engagement loop.
type EngagementSettings struct {
	AutoEngageEnabled   bool       `json:"autoLikeEnabled" yaml:"enabled"`
	Action              ActionKind `json:"action" yaml:"action"`
	EngagementThreshold int        `json:"highEngagementThreshold" yaml:"threshold"`
	MaxActionsPerHour   int        `json:"maxLikesPerHour" yaml:"maxPerHour"`
	InterActionDelayMs  int        `json:"engagementDelay" yaml:"delayMs"`
	TargetKeywords      []string   `json:"targetKeywords" yaml:"targetKeywords"`
	ExcludeKeywords     []string   `json:"excludeKeywords" yaml:"excludeKeywords"`
}

// NotificationSettings toggles pushes per notification kind.
type NotificationSettings struct {
	Mentions bool `json:"mentions" yaml:"mentions"`
	Replies  bool `json:"replies" yaml:"replies"`
	Likes    bool `json:"likes" yaml:"likes"`
	Retweets bool `json:"retweets" yaml:"retweets"`
	Follows  bool `json:"follows" yaml:"follows"`
	DMs      bool `json:"dms" yaml:"dms"`
}

// Enabled reports whether pushes are on for kind. Unknown kinds are off.
func (s NotificationSettings) Enabled(kind NotificationKind) bool {
	switch kind {
	case KindMention:
		return s.Mentions
	case KindReply:
		return s.Replies
	case KindLike:
		return s.Likes
	case KindRetweet:
		return s.Retweets
	case KindFollow:
		return s.Follows
	case KindDM:
		return s.DMs
	}
	return false
}

// AIPreferences selects the model used for judging and drafting.
type AIPreferences struct {
	Provider        string  `json:"provider"`
	Model           string  `json:"model"`
	CreativityLevel float64 `json:"creativityLevel"`
}

// Settings is the per-account settings row.
type Settings struct {
	ID            string               `json:"id"`
	XUserID       string               `json:"xUserId"`
	Notifications NotificationSettings `json:"notificationSettings"`
	Engagement    EngagementSettings   `json:"engagementSettings"`
	AI            AIPreferences        `json:"aiPreferences"`
}

// PostIdea is a drafted tweet waiting for approval.
type PostIdea struct {
	ID           string     `json:"id"`
	Content      string     `json:"content"`
	Score        float64    `json:"score"`
	Category     string     `json:"category"`
	AIAnalysis   string     `json:"aiAnalysis"`
	Approved     bool       `json:"approved"`
	CreatedAt    time.Time  `json:"createdAt"`
	ScheduledFor *time.Time `json:"scheduledFor,omitempty"`
}

// Account is a local dashboard user linked to an X account.
type Account struct {
	ID              string     `json:"id"`
	XUserID         string     `json:"xUserId"`
	Username        string     `json:"username"`
	DisplayName     string     `json:"displayName"`
	ProfileImageURL string     `json:"profileImageUrl,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	LastLoginAt     *time.Time `json:"lastLoginAt,omitempty"`
}
