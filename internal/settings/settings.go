// Package settings serves the per-account settings row, falling back to
// config defaults until the user saves their own.
package settings

import (
	"context"
	"errors"
	"sync"

	"xnom/internal/config"
	"xnom/internal/logging"
	"xnom/internal/model"
	"xnom/internal/store"
)

// Source is what the pipeline and engine read settings through.
type Source interface {
	Get(ctx context.Context) (model.Settings, error)
}

// Service reads and writes the single settings row.
type Service struct {
	st store.Settings

	mu       sync.RWMutex
	defaults model.Settings
}

var _ Source = (*Service)(nil)

func NewService(st store.Settings, cfg config.Config) *Service {
	return &Service{st: st, defaults: cfg.DefaultSettings()}
}

// Get returns the stored row, or the defaults when none was saved.
func (s *Service) Get(ctx context.Context) (model.Settings, error) {
	s.mu.RLock()
	def := s.defaults
	s.mu.RUnlock()
	got, err := s.st.GetSettings(ctx, def.ID)
	if errors.Is(err, store.ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return model.Settings{}, err
	}
	return got, nil
}

// Replace stores s as the settings row.
func (s *Service) Replace(ctx context.Context, next model.Settings) (model.Settings, error) {
	s.mu.RLock()
	next.ID = s.defaults.ID
	if next.XUserID == "" {
		next.XUserID = s.defaults.XUserID
	}
	s.mu.RUnlock()
	if next.Engagement.Action == "" {
		next.Engagement.Action = model.ActionLike
	}
	if err := s.st.PutSettings(ctx, next); err != nil {
		return model.Settings{}, err
	}
	return next, nil
}

func (s *Service) update(ctx context.Context, apply func(*model.Settings)) (model.Settings, error) {
	cur, err := s.Get(ctx)
	if err != nil {
		return model.Settings{}, err
	}
	apply(&cur)
	return s.Replace(ctx, cur)
}

func (s *Service) UpdateNotifications(ctx context.Context, n model.NotificationSettings) (model.Settings, error) {
	return s.update(ctx, func(cur *model.Settings) { cur.Notifications = n })
}

func (s *Service) UpdateEngagement(ctx context.Context, e model.EngagementSettings) (model.Settings, error) {
	return s.update(ctx, func(cur *model.Settings) { cur.Engagement = e })
}

func (s *Service) UpdateAI(ctx context.Context, a model.AIPreferences) (model.Settings, error) {
	return s.update(ctx, func(cur *model.Settings) { cur.AI = a })
}

// ApplyConfig re-applies the notification and engagement sections of a
// reloaded config file to the defaults and to the stored row.
func (s *Service) ApplyConfig(ctx context.Context, cfg config.Config) error {
	def := cfg.DefaultSettings()
	s.mu.Lock()
	s.defaults = def
	s.mu.Unlock()
	_, err := s.update(ctx, func(cur *model.Settings) {
		cur.Notifications = def.Notifications
		cur.Engagement = def.Engagement
	})
	if err == nil {
		logging.Info("settings_reapplied", map[string]any{"maxPerHour": def.Engagement.MaxActionsPerHour, "enabled": def.Engagement.AutoEngageEnabled})
	}
	return err
}
