package service

import (
	"context"
	"fmt"
	"sync"

	"trade_agent/internal/modules/config"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type botAPI interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
	GetUpdatesChan(config tgbot.UpdateConfig) tgbot.UpdatesChannel
	StopReceivingUpdates()
}

// StatusSource renders the operator views served by /status and /positions.
type StatusSource interface {
	StatusText() string
	PositionsText() string
}

// Telegram sends operator alerts to one chat. Without a token it only logs.
type Telegram struct {
	bot    botAPI
	chatID int64
	log    *zap.Logger

	mu     sync.RWMutex
	status StatusSource
	done   chan struct{}
}

func NewTelegram(cfg *config.Config, log *zap.Logger) (*Telegram, error) {
	t := &Telegram{chatID: cfg.Telegram.ChatID, log: log}
	if cfg.Telegram.Token == "" {
		log.Warn("telegram token is empty, alerts go to the log only")
		return t, nil
	}
	b, err := tgbot.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	t.bot = b
	return t, nil
}

func (t *Telegram) SetStatusSource(s StatusSource) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}

func (t *Telegram) statusSource() StatusSource {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Send delivers msg to the operator chat. Failures are logged, never returned:
// alerts must not stall the trading loops.
func (t *Telegram) Send(ctx context.Context, msg string) {
	t.sendTo(ctx, t.chatID, msg)
}

func (t *Telegram) SendService(ctx context.Context, format string, args ...any) {
	t.Send(ctx, fmt.Sprintf(format, args...))
}

func (t *Telegram) sendTo(_ context.Context, chatID int64, msg string) {
	if t.bot == nil || chatID == 0 {
		t.log.Info("alert", zap.String("text", msg))
		return
	}
	m := tgbot.NewMessage(chatID, msg)
	m.ParseMode = tgbot.ModeMarkdown
	if _, err := t.bot.Send(m); err != nil {
		t.log.Error("telegram send failed", zap.Error(err), zap.String("text", msg))
	}
}

// Start consumes bot updates until Stop.
func (t *Telegram) Start(ctx context.Context) {
	if t.bot == nil {
		return
	}
	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)
	t.done = make(chan struct{})
	go func() {
		defer close(t.done)
		for update := range updates {
			t.handleUpdate(ctx, update)
		}
	}()
}

func (t *Telegram) Stop() {
	if t.bot == nil || t.done == nil {
		return
	}
	t.bot.StopReceivingUpdates()
	<-t.done
}
