package push

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"xnom/internal/logging"
	"xnom/internal/model"
)

// sender is the part of tgbotapi.BotAPI the sink needs.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink forwards new notifications at or above a priority to a chat.
// Every other event type is ignored.
type TelegramSink struct {
	bot         sender
	chatID      int64
	minPriority model.Priority
}

func NewTelegramSink(token, chatIDStr string, minPriority model.Priority) (*TelegramSink, error) {
	chatID, err := strconv.ParseInt(chatIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat id: %w", err)
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return newTelegramSink(bot, chatID, minPriority), nil
}

func newTelegramSink(bot sender, chatID int64, minPriority model.Priority) *TelegramSink {
	if minPriority == "" {
		minPriority = model.PriorityHigh
	}
	return &TelegramSink{bot: bot, chatID: chatID, minPriority: minPriority}
}

func (s *TelegramSink) Broadcast(ev Event) {
	if ev.Type != TypeNewNotification {
		return
	}
	n, ok := ev.Data.(model.Notification)
	if !ok {
		return
	}
	if n.Priority.Rank() < s.minPriority.Rank() {
		return
	}
	msg := tgbotapi.NewMessage(s.chatID, formatNotification(n))
	msg.ParseMode = "Markdown"
	msg.DisableWebPagePreview = true
	if _, err := s.bot.Send(msg); err != nil {
		logging.Warn("telegram_send_error", map[string]any{"notification": n.ID, "error": err})
	}
}

func formatNotification(n model.Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*[%s %s]* @%s\n\n%s", strings.ToUpper(string(n.Priority)), n.Kind, escapeMarkdown(n.SourceUsername), escapeMarkdown(n.Text))
	if n.LinkedEventID != "" {
		fmt.Fprintf(&b, "\n\nhttps://x.com/i/web/status/%s", n.LinkedEventID)
	}
	return b.String()
}

func escapeMarkdown(s string) string {
	r := strings.NewReplacer("_", "\\_", "*", "\\*", "[", "\\[", "`", "\\`")
	return r.Replace(s)
}
