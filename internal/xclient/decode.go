package xclient

import (
	"time"

	"xnom/internal/model"
)

type rawUser struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Username        string    `json:"username"`
	CreatedAt       time.Time `json:"created_at"`
	Verified        bool      `json:"verified"`
	Description     string    `json:"description"`
	ProfileImageURL string    `json:"profile_image_url"`
	PublicMetrics   struct {
		FollowersCount int `json:"followers_count"`
		FollowingCount int `json:"following_count"`
		TweetCount     int `json:"tweet_count"`
		ListedCount    int `json:"listed_count"`
	} `json:"public_metrics"`
}

func (d rawUser) toModel() model.User {
	return model.User{
		ID:              d.ID,
		Username:        d.Username,
		Name:            d.Name,
		Description:     d.Description,
		CreatedAt:       d.CreatedAt,
		FollowersCount:  d.PublicMetrics.FollowersCount,
		FollowingCount:  d.PublicMetrics.FollowingCount,
		TweetCount:      d.PublicMetrics.TweetCount,
		ListedCount:     d.PublicMetrics.ListedCount,
		Verified:        d.Verified,
		ProfileImageURL: d.ProfileImageURL,
	}
}

type rawTweet struct {
	ID               string    `json:"id"`
	Text             string    `json:"text"`
	AuthorID         string    `json:"author_id"`
	CreatedAt        time.Time `json:"created_at"`
	Lang             string    `json:"lang"`
	ReferencedTweets []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets"`
	PublicMetrics struct {
		LikeCount    int `json:"like_count"`
		ReplyCount   int `json:"reply_count"`
		RetweetCount int `json:"retweet_count"`
		QuoteCount   int `json:"quote_count"`
	} `json:"public_metrics"`
}

// tweetPage is a v2 tweet listing with author expansion.
type tweetPage struct {
	Data     []rawTweet `json:"data"`
	Includes struct {
		Users []rawUser `json:"users"`
	} `json:"includes"`
	Meta struct {
		NewestID    string `json:"newest_id"`
		ResultCount int    `json:"result_count"`
	} `json:"meta"`
}

func (p tweetPage) events() []model.RawEvent {
	users := make(map[string]model.User, len(p.Includes.Users))
	for _, u := range p.Includes.Users {
		users[u.ID] = u.toModel()
	}
	out := make([]model.RawEvent, 0, len(p.Data))
	for _, d := range p.Data {
		ev := model.RawEvent{
			ID:           d.ID,
			AuthorID:     d.AuthorID,
			Author:       users[d.AuthorID],
			Text:         d.Text,
			CreatedAt:    d.CreatedAt,
			LikeCount:    d.PublicMetrics.LikeCount,
			ReplyCount:   d.PublicMetrics.ReplyCount,
			RetweetCount: d.PublicMetrics.RetweetCount,
			QuoteCount:   d.PublicMetrics.QuoteCount,
			Language:     d.Lang,
		}
		for _, r := range d.ReferencedTweets {
			ev.References = append(ev.References, model.Reference{Type: r.Type, ID: r.ID})
		}
		out = append(out, ev)
	}
	return out
}
