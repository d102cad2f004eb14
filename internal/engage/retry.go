package engage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"xnom/internal/jobs"
	"xnom/internal/logging"
	"xnom/internal/metrics"
	"xnom/internal/xclient"
)

const (
	likeAttempts    = 3
	likeBaseBackoff = time.Second
	likeMaxBackoff  = 5 * time.Second
)

// Liker is the single platform call LikeWithRetry needs.
type Liker interface {
	LikeTweet(ctx context.Context, tweetID string) error
}

// likeBackoff is the wait before retry r (r >= 1).
func likeBackoff(r int) time.Duration {
	d := likeBaseBackoff << (r - 1)
	if d > likeMaxBackoff || d <= 0 {
		return likeMaxBackoff
	}
	return d
}

// LikeWithRetry likes a tweet with up to three attempts. An "already liked"
// answer counts as success. It returns the number of attempts made and the
// last error when every attempt failed.
func LikeWithRetry(ctx context.Context, l Liker, clock jobs.Clock, tweetID string) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= likeAttempts; attempt++ {
		if attempt > 1 {
			if err := clock.Sleep(ctx, likeBackoff(attempt-1)); err != nil {
				return attempt - 1, fmt.Errorf("like %s: %w", tweetID, err)
			}
		}
		metrics.LikeAttempts.Inc()
		err := l.LikeTweet(ctx, tweetID)
		if err == nil || errors.Is(err, xclient.ErrAlreadyLiked) {
			return attempt, nil
		}
		lastErr = err
		logging.Warn("like_attempt_failed", map[string]any{"tweet_id": tweetID, "attempt": attempt, "error": err})
	}
	return likeAttempts, fmt.Errorf("like %s failed after %d attempts: %w", tweetID, likeAttempts, lastErr)
}
