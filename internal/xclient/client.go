package xclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"xnom/internal/metrics"
	"xnom/internal/model"
)

// ErrAlreadyLiked is returned by LikeTweet when the platform reports the
// tweet is already liked by us. Callers treat it as success.
var ErrAlreadyLiked = errors.New("xclient: already liked")

// ErrNoUserToken is returned by write calls when no user-context token is set.
var ErrNoUserToken = errors.New("xclient: user token required")

// APIError is a non-2xx answer from the platform.
type APIError struct {
	Status int
	Detail string
	Reset  time.Time
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("x api status %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("x api status %d", e.Status)
}

// RateStatus is the last rate-limit window reported by the platform.
type RateStatus struct {
	Remaining int       `json:"remaining"`
	Reset     time.Time `json:"reset"`
	Known     bool      `json:"known"`
}

// XClient is the slice of the X API v2 the dashboard uses.
type XClient interface {
	GetMe(ctx context.Context) (model.User, error)
	GetMentions(ctx context.Context, sinceID string, limit int) ([]model.RawEvent, error)
	GetUsersByIDs(ctx context.Context, ids []string) ([]model.User, error)
	SearchRecentTweets(ctx context.Context, query string, limit int) ([]model.RawEvent, error)
	SearchHighEngagement(ctx context.Context, threshold int) ([]model.RawEvent, error)
	LikeTweet(ctx context.Context, tweetID string) error
	Retweet(ctx context.Context, tweetID string) error
	Reply(ctx context.Context, tweetID, text string) (string, error)
	PostTweet(ctx context.Context, text string) (string, error)
	RateLimit() RateStatus
}

// HTTPClient talks to X API v2 with bearer tokens. Reads use the user
// token when present and the app token otherwise; writes need the user token.
type HTTPClient struct {
	baseURL     string
	bearerToken string
	userToken   string
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	baseBackoff time.Duration

	mu   sync.Mutex
	me   *model.User
	rate RateStatus
}

var _ XClient = (*HTTPClient)(nil)

func NewHTTPClient(bearerToken, userToken string) *HTTPClient {
	return &HTTPClient{
		baseURL:     "https://api.twitter.com/2",
		bearerToken: bearerToken,
		userToken:   userToken,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		limiter:     newDefaultLimiter(),
		maxAttempts: getEnvInt("X_API_MAX_ATTEMPTS", 5),
		baseBackoff: time.Duration(getEnvInt("X_API_BASE_BACKOFF_MS", 500)) * time.Millisecond,
	}
}

const (
	tweetFields = "created_at,public_metrics,lang,author_id,referenced_tweets"
	userFields  = "public_metrics,created_at,verified,description,profile_image_url"
)

func (c *HTTPClient) auth(req *http.Request, write bool) error {
	tok := c.userToken
	if tok == "" {
		if write {
			return ErrNoUserToken
		}
		tok = c.bearerToken
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	req.Header.Set("Accept", "application/json")
	return nil
}

// do sends one logical request through the limiter and retry loop and
// decodes a 2xx JSON body into out (when non-nil).
func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.auth(req, method != http.MethodGet); err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	resp, err := c.doWithRetry(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return c.apiError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *HTTPClient) apiError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Detail string `json:"detail"`
		Title  string `json:"title"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	_ = json.Unmarshal(b, &payload)
	detail := payload.Detail
	if detail == "" && len(payload.Errors) > 0 {
		detail = payload.Errors[0].Message
	}
	if detail == "" {
		detail = payload.Title
	}
	return &APIError{Status: resp.StatusCode, Detail: detail, Reset: parseReset(resp.Header)}
}

// GetMe returns the authenticated user. The result is cached.
func (c *HTTPClient) GetMe(ctx context.Context) (model.User, error) {
	c.mu.Lock()
	if c.me != nil {
		u := *c.me
		c.mu.Unlock()
		return u, nil
	}
	c.mu.Unlock()
	var raw struct {
		Data rawUser `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/users/me?user.fields="+userFields, nil, &raw); err != nil {
		return model.User{}, err
	}
	u := raw.Data.toModel()
	c.mu.Lock()
	c.me = &u
	c.mu.Unlock()
	return u, nil
}

// GetMentions returns recent tweets mentioning the authenticated user,
// newest first, with authors expanded. sinceID may be empty.
func (c *HTTPClient) GetMentions(ctx context.Context, sinceID string, limit int) ([]model.RawEvent, error) {
	me, err := c.GetMe(ctx)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("max_results", strconv.Itoa(clamp(limit, 5, 100)))
	q.Set("tweet.fields", tweetFields)
	q.Set("expansions", "author_id")
	q.Set("user.fields", userFields)
	if sinceID != "" {
		q.Set("since_id", sinceID)
	}
	var page tweetPage
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(me.ID)+"/mentions?"+q.Encode(), nil, &page); err != nil {
		return nil, err
	}
	return page.events(), nil
}

// GetUsersByIDs fetches user objects for given ids in one request.
func (c *HTTPClient) GetUsersByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	// API allows up to 100 ids per call
	if len(ids) > 100 {
		ids = ids[:100]
	}
	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("user.fields", userFields)
	var raw struct {
		Data []rawUser `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/users?"+q.Encode(), nil, &raw); err != nil {
		return nil, err
	}
	out := make([]model.User, 0, len(raw.Data))
	for _, d := range raw.Data {
		out = append(out, d.toModel())
	}
	return out, nil
}

// SearchRecentTweets searches the last seven days.
func (c *HTTPClient) SearchRecentTweets(ctx context.Context, query string, limit int) ([]model.RawEvent, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("max_results", strconv.Itoa(clamp(limit, 10, 100)))
	q.Set("tweet.fields", tweetFields)
	q.Set("expansions", "author_id")
	q.Set("user.fields", userFields)
	var page tweetPage
	if err := c.do(ctx, http.MethodGet, "/tweets/search/recent?"+q.Encode(), nil, &page); err != nil {
		return nil, err
	}
	return page.events(), nil
}

// HighEngagementQueries are the searches behind SearchHighEngagement.
func HighEngagementQueries(threshold int) []string {
	return []string{
		fmt.Sprintf("has:links min_faves:%d -is:retweet", threshold),
		fmt.Sprintf("has:mentions min_retweets:%d -is:retweet", threshold/2),
		fmt.Sprintf("min_replies:%d -is:retweet", threshold/4),
	}
}

// SearchHighEngagement runs a few engagement-filtered searches and merges
// them, most engaged first. A failing query is skipped unless all fail.
func (c *HTTPClient) SearchHighEngagement(ctx context.Context, threshold int) ([]model.RawEvent, error) {
	seen := map[string]bool{}
	var out []model.RawEvent
	var firstErr error
	failed := 0
	queries := HighEngagementQueries(threshold)
	for _, q := range queries {
		evs, err := c.SearchRecentTweets(ctx, q, 20)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failed++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, e := range evs {
			if seen[e.ID] {
				continue
			}
			seen[e.ID] = true
			out = append(out, e)
		}
	}
	if failed == len(queries) {
		return nil, firstErr
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Engagement() > out[j].Engagement() })
	return out, nil
}

// LikeTweet likes tweetID as the authenticated user.
func (c *HTTPClient) LikeTweet(ctx context.Context, tweetID string) error {
	me, err := c.GetMe(ctx)
	if err != nil {
		return err
	}
	var raw struct {
		Data struct {
			Liked bool `json:"liked"`
		} `json:"data"`
	}
	err = c.do(ctx, http.MethodPost, "/users/"+url.PathEscape(me.ID)+"/likes", map[string]string{"tweet_id": tweetID}, &raw)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusForbidden && strings.Contains(strings.ToLower(apiErr.Detail), "already") {
		return ErrAlreadyLiked
	}
	if err != nil {
		return err
	}
	if !raw.Data.Liked {
		return errors.New("like not acknowledged")
	}
	return nil
}

// Retweet retweets tweetID as the authenticated user.
func (c *HTTPClient) Retweet(ctx context.Context, tweetID string) error {
	me, err := c.GetMe(ctx)
	if err != nil {
		return err
	}
	var raw struct {
		Data struct {
			Retweeted bool `json:"retweeted"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/users/"+url.PathEscape(me.ID)+"/retweets", map[string]string{"tweet_id": tweetID}, &raw); err != nil {
		return err
	}
	if !raw.Data.Retweeted {
		return errors.New("retweet not acknowledged")
	}
	return nil
}

// Reply posts text as a reply to tweetID and returns the new tweet id.
func (c *HTTPClient) Reply(ctx context.Context, tweetID, text string) (string, error) {
	body := map[string]any{"text": text, "reply": map[string]string{"in_reply_to_tweet_id": tweetID}}
	return c.createTweet(ctx, body)
}

// PostTweet posts a standalone tweet and returns its id.
func (c *HTTPClient) PostTweet(ctx context.Context, text string) (string, error) {
	return c.createTweet(ctx, map[string]any{"text": text})
}

func (c *HTTPClient) createTweet(ctx context.Context, body map[string]any) (string, error) {
	var raw struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/tweets", body, &raw); err != nil {
		return "", err
	}
	return raw.Data.ID, nil
}

// RateLimit reports the most recent rate-limit headers seen.
func (c *HTTPClient) RateLimit() RateStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

func (c *HTTPClient) recordRate(h http.Header) {
	rem := h.Get("x-rate-limit-remaining")
	if rem == "" {
		return
	}
	n, err := strconv.Atoi(rem)
	if err != nil {
		return
	}
	c.mu.Lock()
	c.rate = RateStatus{Remaining: n, Reset: parseReset(h), Known: true}
	c.mu.Unlock()
}

func parseReset(h http.Header) time.Time {
	if v := h.Get("x-rate-limit-reset"); v != "" {
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Unix(secs, 0).UTC()
		}
	}
	return time.Time{}
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// doWithRetry retries reads on 429, 5xx and transport errors. Writes are
// sent once; callers own any retry policy for them.
func (c *HTTPClient) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	maxAttempts := c.maxAttempts
	if req.Method != http.MethodGet {
		maxAttempts = 1
	}
	backoff := c.baseBackoff
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		r := req.Clone(ctx)
		if req.GetBody != nil {
			b, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			r.Body = b
		}
		if attempt > 1 {
			metrics.IncAPIRetry(req.URL.Path)
		}
		resp, err := c.httpClient.Do(r)
		if err == nil {
			c.recordRate(resp.Header)
			if attempt < maxAttempts && (resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599)) {
				ra := resp.Header.Get("Retry-After")
				_ = resp.Body.Close()
				wait := backoff
				if ra != "" {
					if secs, err := strconv.Atoi(ra); err == nil {
						wait = time.Duration(secs) * time.Second
					} else if t, err := http.ParseTime(ra); err == nil {
						if d := time.Until(t); d > 0 {
							wait = d
						}
					}
				}
				// jitter +/-20%
				jitter := time.Duration(float64(wait) * 0.2)
				if jitter > 0 {
					wait = wait - jitter + time.Duration(time.Now().UnixNano()%int64(2*jitter))
				}
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				backoff *= 2
				continue
			}
			return resp, nil
		}
		lastErr = err
		if attempt == maxAttempts {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", maxAttempts, lastErr)
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil && i > 0 {
		return i
	}
	return def
}
