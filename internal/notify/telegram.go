package notify

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	appLog "officeplanner/internal/log"
)

// telegramSender is the part of tgbotapi.BotAPI this package uses.
type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts notifications into one chat.
type Telegram struct {
	api    telegramSender
	chatID int64
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	if token == "" {
		return nil, errors.New("telegram: token is empty")
	}
	if chatID == 0 {
		return nil, errors.New("telegram: chat id is empty")
	}
	if err := tgbotapi.SetLogger(appLog.Std{}); err != nil {
		return nil, fmt.Errorf("telegram: set logger: %w", err)
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot api: %w", err)
	}
	appLog.Info("telegram notifier ready", "bot", api.Self.UserName, "chat_id", chatID)
	return &Telegram{api: api, chatID: chatID}, nil
}

func (t *Telegram) Notify(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := tgbotapi.NewMessage(t.chatID, formatText(msg))
	m.DisableWebPagePreview = true
	if _, err := t.api.Send(m); err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	return nil
}

func formatText(msg Message) string {
	if msg.Body == "" {
		return msg.Title
	}
	return msg.Title + "\n\n" + msg.Body
}
