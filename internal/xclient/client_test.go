package xclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// helper to create client pointed at a test server
func newTestClient(ts *httptest.Server) *HTTPClient {
	c := NewHTTPClient("app", "user")
	c.maxAttempts = 3
	c.baseBackoff = 10 * time.Millisecond
	c.httpClient = ts.Client()
	c.baseURL = ts.URL
	c.SetRateLimit(1000, 100)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func meHandler(w http.ResponseWriter) {
	writeJSON(w, 200, map[string]any{"data": map[string]any{"id": "42", "username": "me"}})
}

func TestDoWithRetryHandles429(t *testing.T) {
	attempts := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer ts.Close()

	c := newTestClient(ts)
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/test", nil)
	resp, err := c.doWithRetry(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.GreaterOrEqual(t, attempts, 2)
}

func TestWritesAreSentOnceOn5xx(t *testing.T) {
	var posts, gets int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/users/me" {
			meHandler(w)
			return
		}
		if r.Method == http.MethodPost {
			atomic.AddInt32(&posts, 1)
		} else {
			atomic.AddInt32(&gets, 1)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()
	c := newTestClient(ts)
	c.maxAttempts = 5
	ctx := context.Background()

	writes := map[string]func() error{
		"reply":   func() error { _, err := c.Reply(ctx, "7", "thanks!"); return err },
		"retweet": func() error { return c.Retweet(ctx, "7") },
		"like":    func() error { return c.LikeTweet(ctx, "7") },
		"post":    func() error { _, err := c.PostTweet(ctx, "hello"); return err },
	}
	for name, write := range writes {
		atomic.StoreInt32(&posts, 0)
		err := write()
		require.Error(t, err, name)
		var apiErr *APIError
		if assert.ErrorAs(t, err, &apiErr, name) {
			assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status, name)
		}
		assert.Equal(t, int32(1), atomic.LoadInt32(&posts), name)
	}
	assert.Zero(t, atomic.LoadInt32(&gets))
}

func TestReadsAreRetriedOn5xx(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/test", nil)
	resp, err := newTestClient(ts).doWithRetry(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGetMentionsExpandsAuthorsAndReferences(t *testing.T) {
	var meCalls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/users/me":
			meCalls.Add(1)
			meHandler(w)
		case r.URL.Path == "/users/42/mentions":
			assert.Equal(t, "Bearer user", r.Header.Get("Authorization"))
			assert.Equal(t, "100", r.URL.Query().Get("since_id"))
			assert.Equal(t, "author_id", r.URL.Query().Get("expansions"))
			w.Header().Set("x-rate-limit-remaining", "7")
			w.Header().Set("x-rate-limit-reset", "1700000000")
			writeJSON(w, 200, map[string]any{
				"data": []map[string]any{
					{"id": "101", "text": "@me hi", "author_id": "7", "created_at": "2025-01-01T00:00:00Z",
						"public_metrics":    map[string]int{"like_count": 3, "retweet_count": 2, "reply_count": 1},
						"referenced_tweets": []map[string]string{{"type": "replied_to", "id": "99"}}},
					{"id": "102", "text": "yo", "author_id": "8"},
				},
				"includes": map[string]any{"users": []map[string]any{{"id": "7", "username": "alice", "verified": true}}},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer ts.Close()

	c := newTestClient(ts)
	evs, err := c.GetMentions(context.Background(), "100", 20)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, "alice", evs[0].Author.Username)
	assert.True(t, evs[0].Author.Verified)
	assert.Equal(t, 6, evs[0].Engagement())
	assert.Equal(t, "replied_to", evs[0].References[0].Type)
	assert.Empty(t, evs[1].Author.Username)

	_, err = c.GetMentions(context.Background(), "100", 20)
	require.NoError(t, err)
	assert.Equal(t, int32(1), meCalls.Load(), "GetMe is cached")

	rl := c.RateLimit()
	assert.True(t, rl.Known)
	assert.Equal(t, 7, rl.Remaining)
	assert.Equal(t, int64(1700000000), rl.Reset.Unix())
}

func TestSearchHighEngagementMergesAndSorts(t *testing.T) {
	var queries []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("query")
		queries = append(queries, q)
		tweet := func(id string, likes int) map[string]any {
			return map[string]any{"id": id, "text": id, "public_metrics": map[string]int{"like_count": likes}}
		}
		switch {
		case strings.Contains(q, "min_faves"):
			writeJSON(w, 200, map[string]any{"data": []any{tweet("a", 150), tweet("b", 500)}})
		case strings.Contains(q, "min_retweets"):
			writeJSON(w, 200, map[string]any{"data": []any{tweet("b", 500), tweet("c", 900)}})
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer ts.Close()

	evs, err := newTestClient(ts).SearchHighEngagement(context.Background(), 100)
	require.NoError(t, err)
	ids := []string{}
	for _, e := range evs {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"c", "b", "a"}, ids)
	assert.Equal(t, HighEngagementQueries(100), queries)
	assert.Contains(t, queries[1], "min_retweets:50")
	assert.Contains(t, queries[2], "min_replies:25")
}

func TestSearchHighEngagementAllFail(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 401, map[string]any{"detail": "Unauthorized"})
	}))
	defer ts.Close()
	_, err := newTestClient(ts).SearchHighEngagement(context.Background(), 100)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.Status)
}

func TestLikeTweet(t *testing.T) {
	mode := "ok"
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/users/me" {
			meHandler(w)
			return
		}
		assert.Equal(t, "/users/42/likes", r.URL.Path)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "555", body["tweet_id"])
		switch mode {
		case "ok":
			writeJSON(w, 200, map[string]any{"data": map[string]bool{"liked": true}})
		case "already":
			writeJSON(w, 403, map[string]any{"detail": "You have already liked this Tweet."})
		default:
			writeJSON(w, 403, map[string]any{"detail": "Forbidden"})
		}
	}))
	defer ts.Close()
	c := newTestClient(ts)

	require.NoError(t, c.LikeTweet(context.Background(), "555"))
	mode = "already"
	assert.ErrorIs(t, c.LikeTweet(context.Background(), "555"), ErrAlreadyLiked)
	mode = "forbidden"
	err := c.LikeTweet(context.Background(), "555")
	assert.False(t, errors.Is(err, ErrAlreadyLiked))
	var apiErr *APIError
	assert.ErrorAs(t, err, &apiErr)
}

func TestWritesNeedUserToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected, got %s", r.URL.Path)
	}))
	defer ts.Close()
	c := newTestClient(ts)
	c.userToken = ""
	_, err := c.PostTweet(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNoUserToken)
}

func TestReplyAndRetweet(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/me":
			meHandler(w)
		case "/users/42/retweets":
			writeJSON(w, 200, map[string]any{"data": map[string]bool{"retweeted": true}})
		case "/tweets":
			var body struct {
				Text  string `json:"text"`
				Reply struct {
					InReplyTo string `json:"in_reply_to_tweet_id"`
				} `json:"reply"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "7", body.Reply.InReplyTo)
			writeJSON(w, 201, map[string]any{"data": map[string]string{"id": "8", "text": body.Text}})
		}
	}))
	defer ts.Close()
	c := newTestClient(ts)
	require.NoError(t, c.Retweet(context.Background(), "7"))
	id, err := c.Reply(context.Background(), "7", "thanks!")
	require.NoError(t, err)
	assert.Equal(t, "8", id)
}
