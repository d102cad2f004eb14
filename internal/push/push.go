// Package push fans dashboard events out to connected clients and sinks.
package push

import (
	"time"

	"xnom/internal/logging"
)

// Event types sent to clients.
const (
	TypeNewNotification      = "new_notification"
	TypeNotificationsChecked = "notifications_checked"
	TypeNotificationRead     = "notification_read"
	TypeEngagementAction     = "engagement_action"
	TypeManualEngagement     = "manual_engagement"
	TypeError                = "error"
	TypeConnection           = "connection"
	TypePong                 = "pong"
	TypeSubscribed           = "subscribed"
)

// Event is the envelope every pushed message uses.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

func NewEvent(typ string, data any) Event {
	return Event{Type: typ, Timestamp: time.Now().UTC(), Data: data}
}

// Broadcaster delivers an event to everyone listening. Delivery is best
// effort: it never returns an error to the producer.
type Broadcaster interface {
	Broadcast(ev Event)
}

// Multi sends each event to every member.
type Multi []Broadcaster

func (m Multi) Broadcast(ev Event) {
	for _, b := range m {
		if b != nil {
			b.Broadcast(ev)
		}
	}
}

// LogSink writes events to the structured log. One-shot CLI commands use it
// in place of a live hub.
type LogSink struct{}

func (LogSink) Broadcast(ev Event) {
	logging.Info("push_event", map[string]any{"type": ev.Type, "data": ev.Data})
}

// Nop drops every event.
type Nop struct{}

func (Nop) Broadcast(Event) {}
