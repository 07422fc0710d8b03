package notify

import (
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/quillworks/voxpilot/internal/config"
)

// TelegramSender is the slice of the bot API the sink needs (allows mocking
// in tests).
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink forwards warning- and error-level notifications to an
// operator chat, so an unattended daemon still gets noticed when the
// backend goes away.
type TelegramSink struct {
	bot    TelegramSender
	chatID int64
}

func NewTelegramSink(cfg config.TelegramConfig) (*TelegramSink, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	if cfg.ChatID == 0 {
		return nil, fmt.Errorf("telegram chat id is required")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	log.Printf("[notify] telegram alerts authorized as @%s", bot.Self.UserName)
	return &TelegramSink{bot: bot, chatID: cfg.ChatID}, nil
}

// NewTelegramSinkWithSender wires a custom sender (for testing).
func NewTelegramSinkWithSender(sender TelegramSender, chatID int64) *TelegramSink {
	return &TelegramSink{bot: sender, chatID: chatID}
}

func (t *TelegramSink) Notify(level Level, message string) {
	if level == LevelInfo {
		return
	}
	msg := tgbotapi.NewMessage(t.chatID, fmt.Sprintf("[voxpilot %s] %s", level, message))
	if _, err := t.bot.Send(msg); err != nil {
		log.Printf("[notify] telegram send failed: %v", err)
	}
}
