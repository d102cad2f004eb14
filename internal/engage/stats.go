package engage

import (
	"context"
	"time"

	"xnom/internal/analytics"
	"xnom/internal/model"
)

const recentActionsLimit = 10

// Stats is the engagement dashboard summary for a window of hours.
type Stats struct {
	WindowHours            int                                       `json:"windowHours"`
	ByKind                 map[model.ActionKind]analytics.KindCounts `json:"stats"`
	Hourly                 []analytics.HourBucket                    `json:"hourly"`
	RecentActions          []model.EngagementAction                  `json:"recentActions"`
	CurrentHourActions     int                                       `json:"currentHourLikes"`
	IsAutoEngagementActive bool                                      `json:"isAutoEngagementActive"`
	Settings               model.EngagementSettings                  `json:"settings"`
}

// Stats aggregates actions recorded in the last windowHours (24 if <= 0).
func (e *Engine) Stats(ctx context.Context, windowHours int) (Stats, error) {
	if windowHours <= 0 {
		windowHours = 24
	}
	since := e.sched.Clock().Now().Add(-time.Duration(windowHours) * time.Hour)
	actions, err := e.st.ActionsSince(ctx, since)
	if err != nil {
		return Stats{}, err
	}
	s, err := e.settings.Get(ctx)
	if err != nil {
		return Stats{}, err
	}
	recent := make([]model.EngagementAction, 0, recentActionsLimit)
	for i := len(actions) - 1; i >= 0 && len(recent) < recentActionsLimit; i-- {
		recent = append(recent, actions[i])
	}
	return Stats{
		WindowHours:            windowHours,
		ByKind:                 analytics.ByKind(actions),
		Hourly:                 analytics.HourlySeries(actions),
		RecentActions:          recent,
		CurrentHourActions:     e.budget.Used(),
		IsAutoEngagementActive: e.IsActive(),
		Settings:               s.Engagement,
	}, nil
}
