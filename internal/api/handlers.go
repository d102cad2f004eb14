package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"xnom/internal/auth"
	"xnom/internal/engage"
	"xnom/internal/logging"
	"xnom/internal/model"
	"xnom/internal/store"
)

func (s *Server) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/notifications", s.listNotifications)
	mux.HandleFunc("GET /api/notifications/stats", s.notificationStats)
	mux.HandleFunc("POST /api/notifications/{id}/read", s.markRead)
	mux.HandleFunc("POST /api/notifications/monitoring/start", s.startMonitoring)
	mux.HandleFunc("POST /api/notifications/monitoring/stop", s.stopMonitoring)
	mux.HandleFunc("GET /api/notifications/monitoring/status", s.monitoringStatus)

	mux.HandleFunc("GET /api/engagement/stats", s.engagementStats)
	mux.HandleFunc("POST /api/engagement/like/{id}", s.like)
	mux.HandleFunc("POST /api/engagement/auto/start", s.startEngagement)
	mux.HandleFunc("POST /api/engagement/auto/stop", s.stopEngagement)
	mux.HandleFunc("GET /api/engagement/auto/status", s.engagementStatus)

	mux.HandleFunc("GET /api/settings", s.getSettings)
	mux.HandleFunc("PUT /api/settings", s.putSettings)
	mux.HandleFunc("PUT /api/settings/{section}", s.putSettingsSection)

	mux.HandleFunc("GET /api/ideas", s.listIdeas)
	mux.HandleFunc("POST /api/ideas/generate", s.generateIdeas)
	mux.HandleFunc("POST /api/ideas/{id}/approve", s.approveIdea)

	mux.HandleFunc("GET /api/auth/verify", s.verify)
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	return dec.Decode(v)
}

// notifications

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.NotificationFilter{
		Kind:     model.NotificationKind(q.Get("type")),
		Priority: model.Priority(q.Get("priority")),
		Limit:    queryInt(r, "limit", 50),
		Offset:   queryInt(r, "offset", 0),
	}
	rows, err := s.deps.Pipeline.List(r.Context(), f)
	if err != nil {
		logging.Error("api_list_notifications", map[string]any{"error": err})
		fail(w, http.StatusInternalServerError, "Failed to fetch notifications")
		return
	}
	if rows == nil {
		rows = []model.Notification{}
	}
	ok(w, rows, "")
}

func (s *Server) notificationStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Pipeline.Stats(r.Context())
	if err != nil {
		logging.Error("api_notification_stats", map[string]any{"error": err})
		fail(w, http.StatusInternalServerError, "Failed to fetch notification stats")
		return
	}
	ok(w, st, "")
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.deps.Pipeline.MarkRead(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fail(w, http.StatusNotFound, "Notification not found")
			return
		}
		fail(w, http.StatusInternalServerError, "Failed to mark notification as read")
		return
	}
	ok(w, nil, "Notification marked as read")
}

func (s *Server) startMonitoring(w http.ResponseWriter, r *http.Request) {
	s.deps.Pipeline.Start(s.baseCtx())
	ok(w, map[string]bool{"isMonitoring": true}, "Notification monitoring started")
}

func (s *Server) stopMonitoring(w http.ResponseWriter, r *http.Request) {
	s.deps.Pipeline.Stop()
	ok(w, map[string]bool{"isMonitoring": false}, "Notification monitoring stopped")
}

func (s *Server) monitoringStatus(w http.ResponseWriter, r *http.Request) {
	ok(w, map[string]bool{"isMonitoring": s.deps.Pipeline.IsActive()}, "")
}

// engagement

func (s *Server) engagementStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Engine.Stats(r.Context(), queryInt(r, "hours", 24))
	if err != nil {
		logging.Error("api_engagement_stats", map[string]any{"error": err})
		fail(w, http.StatusInternalServerError, "Failed to fetch engagement stats")
		return
	}
	ok(w, st, "")
}

func (s *Server) like(w http.ResponseWriter, r *http.Request) {
	res := s.deps.Engine.EngageManually(r.Context(), r.PathValue("id"))
	if !res.Success {
		writeJSON(w, http.StatusBadGateway, envelope{Error: res.Error})
		return
	}
	ok(w, res, "Tweet liked")
}

func (s *Server) startEngagement(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Engine.Start(s.baseCtx()); err != nil {
		if errors.Is(err, engage.ErrDisabled) {
			fail(w, http.StatusBadRequest, "Auto-engagement is disabled in settings")
			return
		}
		fail(w, http.StatusInternalServerError, "Failed to start auto-engagement")
		return
	}
	ok(w, map[string]bool{"isActive": true}, "Auto-engagement started")
}

func (s *Server) stopEngagement(w http.ResponseWriter, r *http.Request) {
	s.deps.Engine.Stop()
	ok(w, map[string]bool{"isActive": false}, "Auto-engagement stopped")
}

func (s *Server) engagementStatus(w http.ResponseWriter, r *http.Request) {
	ok(w, map[string]any{
		"isActive":         s.deps.Engine.IsActive(),
		"currentHourLikes": s.deps.Engine.Budget().Used(),
	}, "")
}

// settings

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	set, err := s.deps.Settings.Get(r.Context())
	if err != nil {
		fail(w, http.StatusInternalServerError, "Failed to fetch settings")
		return
	}
	ok(w, set, "")
}

func (s *Server) putSettings(w http.ResponseWriter, r *http.Request) {
	var in model.Settings
	if err := decode(r, &in); err != nil {
		fail(w, http.StatusBadRequest, "Invalid settings payload")
		return
	}
	out, err := s.deps.Settings.Replace(r.Context(), in)
	if err != nil {
		fail(w, http.StatusInternalServerError, "Failed to save settings")
		return
	}
	ok(w, out, "Settings updated")
}

func (s *Server) putSettingsSection(w http.ResponseWriter, r *http.Request) {
	var (
		out model.Settings
		err error
	)
	ctx := r.Context()
	switch r.PathValue("section") {
	case "notifications":
		var in model.NotificationSettings
		if err = decode(r, &in); err == nil {
			out, err = s.deps.Settings.UpdateNotifications(ctx, in)
		}
	case "engagement":
		var in model.EngagementSettings
		if err = decode(r, &in); err == nil {
			out, err = s.deps.Settings.UpdateEngagement(ctx, in)
		}
	case "ai":
		var in model.AIPreferences
		if err = decode(r, &in); err == nil {
			out, err = s.deps.Settings.UpdateAI(ctx, in)
		}
	default:
		fail(w, http.StatusNotFound, "Unknown settings section")
		return
	}
	if err != nil {
		var syn *json.SyntaxError
		var typ *json.UnmarshalTypeError
		if errors.As(err, &syn) || errors.As(err, &typ) || errors.Is(err, io.EOF) {
			fail(w, http.StatusBadRequest, "Invalid settings payload")
			return
		}
		fail(w, http.StatusInternalServerError, "Failed to save settings")
		return
	}
	ok(w, out, "Settings updated")
}

// ideas

func (s *Server) listIdeas(w http.ResponseWriter, r *http.Request) {
	approved := r.URL.Query().Get("approved") == "true"
	ideas, err := s.deps.Ideas.List(r.Context(), approved, queryInt(r, "limit", 50))
	if err != nil {
		fail(w, http.StatusInternalServerError, "Failed to fetch post ideas")
		return
	}
	if ideas == nil {
		ideas = []model.PostIdea{}
	}
	ok(w, ideas, "")
}

func (s *Server) generateIdeas(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Topic string `json:"topic"`
		Count int    `json:"count"`
	}
	if err := decode(r, &in); err != nil || in.Topic == "" {
		fail(w, http.StatusBadRequest, "Topic is required")
		return
	}
	ideas, err := s.deps.Ideas.Generate(r.Context(), in.Topic, in.Count)
	if err != nil {
		logging.Error("api_generate_ideas", map[string]any{"error": err})
		fail(w, http.StatusInternalServerError, "Failed to generate post ideas")
		return
	}
	ok(w, ideas, "Post ideas generated")
}

func (s *Server) approveIdea(w http.ResponseWriter, r *http.Request) {
	idea, err := s.deps.Ideas.Approve(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fail(w, http.StatusNotFound, "Post idea not found")
			return
		}
		fail(w, http.StatusInternalServerError, "Failed to approve post idea")
		return
	}
	ok(w, idea, "Post idea approved")
}

// auth

func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	c, found := auth.FromContext(r.Context())
	if !found {
		fail(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	ok(w, map[string]string{"userId": c.UserID, "username": c.Username, "xUserId": c.XUserID}, "Token is valid")
}

// health

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	db := "connected"
	if s.deps.Store != nil {
		if err := s.deps.Store.Ping(r.Context()); err != nil {
			db = "error"
			status = "degraded"
		}
	}
	out := map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"services": map[string]any{
			"database": db,
			"ai":       map[string]any{"available": s.deps.Judge.Available(), "provider": s.deps.Judge.Provider()},
		},
	}
	if s.deps.Rate != nil {
		out["rateLimit"] = s.deps.Rate.RateLimit()
	}
	if s.deps.Pipeline != nil {
		out["monitoring"] = s.deps.Pipeline.IsActive()
	}
	if s.deps.Engine != nil {
		out["autoEngagement"] = s.deps.Engine.IsActive()
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, out)
}
