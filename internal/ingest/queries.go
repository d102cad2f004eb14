package ingest

import (
	"context"
	"errors"
	"time"

	"xnom/internal/logging"
	"xnom/internal/model"
	"xnom/internal/push"
	"xnom/internal/store"
)

// Stats summarises the last 24 hours of stored notifications.
type Stats struct {
	TotalToday   int                       `json:"totalToday"`
	Breakdown    []store.KindPriorityCount `json:"breakdown"`
	IsMonitoring bool                      `json:"isMonitoring"`
	LastCheck    *time.Time                `json:"lastCheck"`
}

// ErrNotFound is returned by MarkRead for unknown ids.
var ErrNotFound = store.ErrNotFound

func (p *Pipeline) List(ctx context.Context, f store.NotificationFilter) ([]model.Notification, error) {
	return p.st.ListNotifications(ctx, f)
}

func (p *Pipeline) Stats(ctx context.Context) (Stats, error) {
	now := p.sched.Clock().Now()
	rows, err := p.st.CountNotificationsSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return Stats{}, err
	}
	out := Stats{Breakdown: rows, IsMonitoring: p.IsActive()}
	for _, r := range rows {
		out.TotalToday += r.Count
	}
	if out.Breakdown == nil {
		out.Breakdown = []store.KindPriorityCount{}
	}
	out.LastCheck = p.lastCheck(ctx)
	return out, nil
}

func (p *Pipeline) lastCheck(ctx context.Context) *time.Time {
	raw, err := p.st.LoadCursor(ctx, cursorLastCheck)
	if err != nil || raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		logging.Warn("ingest_last_check_parse", map[string]any{"value": raw, "error": err})
		return nil
	}
	return &t
}

// MarkRead flags a notification processed and tells connected clients.
func (p *Pipeline) MarkRead(ctx context.Context, id string) error {
	if _, err := p.st.GetNotification(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if err := p.st.MarkProcessed(ctx, id); err != nil {
		return err
	}
	p.push.Broadcast(push.NewEvent(push.TypeNotificationRead, map[string]any{"notificationId": id}))
	return nil
}
