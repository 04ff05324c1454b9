package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	"plantcare/internal/localnotify"
	"plantcare/internal/reminder"
	logx "plantcare/pkg/logx"
)

// LogSink writes fired reminders to the log.
type LogSink struct {
	Log logx.Logger
}

func (LogSink) Name() string { return "log" }

func (s LogSink) Send(_ context.Context, n localnotify.Scheduled) error {
	s.Log.Info("reminder",
		logx.String("title", n.Title),
		logx.String("body", n.Body),
		logx.String("task", n.Payload[reminder.KeyTask]),
		logx.Time("at", n.At),
	)
	return nil
}

// TelegramConfig configures TelegramSink.
type TelegramConfig struct {
	Token  string
	ChatID int64
}

// TelegramSink sends reminders as Telegram messages.
type TelegramSink struct {
	bot  *tele.Bot
	chat *tele.Chat
}

// NewTelegramSink builds an offline bot; no request is made until Send.
func NewTelegramSink(cfg TelegramConfig) (*TelegramSink, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is required")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	return &TelegramSink{bot: b, chat: &tele.Chat{ID: cfg.ChatID}}, nil
}

func (*TelegramSink) Name() string { return "telegram" }

func (s *TelegramSink) Send(ctx context.Context, n localnotify.Scheduled) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.bot.Send(s.chat, FormatMessage(n), &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
	})
	return err
}

// FormatMessage renders a reminder as a short HTML message.
func FormatMessage(n localnotify.Scheduled) string {
	return fmt.Sprintf("🌱 <b>%s</b>\n%s", escapeHTML(n.Title), escapeHTML(n.Body))
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeHTML(s string) string { return htmlEscaper.Replace(s) }
