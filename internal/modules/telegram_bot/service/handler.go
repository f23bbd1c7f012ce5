package service

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil || !msg.IsCommand() {
		return
	}
	chatID := msg.Chat.ID
	// only the configured operator chat is served
	if chatID != t.chatID {
		t.log.Warn("telegram command from unknown chat", zap.Int64("chat_id", chatID))
		return
	}

	src := t.statusSource()
	switch msg.Command() {
	case "start", "help":
		t.sendTo(ctx, chatID, helpText)
	case "status":
		if src == nil {
			t.sendTo(ctx, chatID, "Agent is starting")
			return
		}
		t.sendTo(ctx, chatID, src.StatusText())
	case "positions":
		if src == nil {
			t.sendTo(ctx, chatID, "Agent is starting")
			return
		}
		t.sendTo(ctx, chatID, src.PositionsText())
	default:
		t.sendTo(ctx, chatID, "Unknown command, try /help")
	}
}
