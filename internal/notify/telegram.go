package notify

import (
	"context"
	"fmt"
	"html"

	tb "gopkg.in/tucnak/telebot.v2"
)

// Messenger is the part of *tb.Bot used to deliver messages.
type Messenger interface {
	Send(to tb.Recipient, what interface{}, options ...interface{}) (*tb.Message, error)
}

// TelegramSender posts operator notifications to a single Telegram chat
// through the bot.
type TelegramSender struct {
	messenger Messenger
	chat      *tb.Chat
}

// NewTelegramSender creates a TelegramSender for the given chat id.
func NewTelegramSender(messenger Messenger, chatID int64) *TelegramSender {
	return &TelegramSender{messenger: messenger, chat: &tb.Chat{ID: chatID}}
}

// Send posts the message with the title in bold.
func (t *TelegramSender) Send(_ context.Context, title, message string) error {
	text := fmt.Sprintf("<b>%s</b>\n%s", html.EscapeString(title), html.EscapeString(message))
	if _, err := t.messenger.Send(t.chat, text, &tb.SendOptions{ParseMode: tb.ModeHTML}); err != nil {
		return fmt.Errorf("telegram: send to chat %d: %w", t.chat.ID, err)
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
