// Package store defines the persistence surface shared by the sqlite and
// postgres backends.
package store

import (
	"context"
	"errors"
	"time"

	"xnom/internal/model"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("store: not found")

// NotificationFilter narrows ListNotifications. Zero values mean no filter;
// Limit <= 0 means the backend default of 50.
type NotificationFilter struct {
	Kind     model.NotificationKind
	Priority model.Priority
	Limit    int
	Offset   int
}

// EffectiveLimit returns Limit or the default.
func (f NotificationFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return 50
	}
	return f.Limit
}

// KindPriorityCount is one row of a notification breakdown.
type KindPriorityCount struct {
	Kind     model.NotificationKind `json:"type"`
	Priority model.Priority         `json:"priority"`
	Count    int                    `json:"count"`
}

type Notifications interface {
	GetNotification(ctx context.Context, id string) (model.Notification, error)
	// InsertNotification stores n unless a row with the same id exists.
	// It reports whether a row was written.
	InsertNotification(ctx context.Context, n model.Notification) (bool, error)
	MarkProcessed(ctx context.Context, id string) error
	ListNotifications(ctx context.Context, f NotificationFilter) ([]model.Notification, error)
	CountNotificationsSince(ctx context.Context, since time.Time) ([]KindPriorityCount, error)
}

type Actions interface {
	InsertAction(ctx context.Context, a model.EngagementAction) error
	// HasSuccessfulAction reports whether a successful action of kind
	// exists for the target tweet.
	HasSuccessfulAction(ctx context.Context, targetID string, kind model.ActionKind) (bool, error)
	ActionsSince(ctx context.Context, since time.Time) ([]model.EngagementAction, error)
	RecentActions(ctx context.Context, limit int) ([]model.EngagementAction, error)
}

type Settings interface {
	GetSettings(ctx context.Context, id string) (model.Settings, error)
	PutSettings(ctx context.Context, s model.Settings) error
}

type Ideas interface {
	InsertIdea(ctx context.Context, p model.PostIdea) error
	GetIdea(ctx context.Context, id string) (model.PostIdea, error)
	ListIdeas(ctx context.Context, approvedOnly bool, limit int) ([]model.PostIdea, error)
	ApproveIdea(ctx context.Context, id string) error
}

type Accounts interface {
	// UpsertAccount inserts or refreshes the account keyed by XUserID and
	// returns the stored row.
	UpsertAccount(ctx context.Context, a model.Account) (model.Account, error)
	GetAccount(ctx context.Context, id string) (model.Account, error)
}

type Cursors interface {
	SaveCursor(ctx context.Context, key, value string) error
	// LoadCursor returns "" when the key was never saved.
	LoadCursor(ctx context.Context, key string) (string, error)
}

// Store is everything the application persists.
type Store interface {
	Notifications
	Actions
	Settings
	Ideas
	Accounts
	Cursors
	Ping(ctx context.Context) error
	Close() error
}
