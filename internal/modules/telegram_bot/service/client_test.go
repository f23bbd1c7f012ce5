package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"trade_agent/internal/models"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeBot struct {
	sent []tgbot.MessageConfig
	err  error
}

func (f *fakeBot) Send(c tgbot.Chattable) (tgbot.Message, error) {
	if m, ok := c.(tgbot.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbot.Message{}, f.err
}

func (f *fakeBot) GetUpdatesChan(tgbot.UpdateConfig) tgbot.UpdatesChannel {
	return make(chan tgbot.Update)
}

func (f *fakeBot) StopReceivingUpdates() {}

type staticStatus struct{}

func (staticStatus) StatusText() string    { return "status ok" }
func (staticStatus) PositionsText() string { return "no positions" }

func command(chatID int64, cmd string) tgbot.Update {
	return tgbot.Update{Message: &tgbot.Message{
		Chat:     &tgbot.Chat{ID: chatID},
		Text:     "/" + cmd,
		Entities: []tgbot.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd) + 1}},
	}}
}

func TestSendWithoutTokenLogs(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	tg := &Telegram{log: zap.New(core)}
	tg.Send(context.Background(), "hello")
	if logs.FilterMessage("alert").Len() != 1 {
		t.Fatal("alert not logged")
	}
}

func TestSendFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	bot := &fakeBot{err: errors.New("429")}
	tg := &Telegram{bot: bot, chatID: 7, log: zap.New(core)}
	tg.SendService(context.Background(), "x=%d", 1)
	if len(bot.sent) != 1 || bot.sent[0].Text != "x=1" {
		t.Fatalf("sent %+v", bot.sent)
	}
	if logs.FilterMessage("telegram send failed").Len() != 1 {
		t.Fatal("failure not logged")
	}
}

func TestCommands(t *testing.T) {
	bot := &fakeBot{}
	tg := &Telegram{bot: bot, chatID: 7, log: zap.NewNop()}
	ctx := context.Background()

	tg.handleUpdate(ctx, command(7, "status"))
	if len(bot.sent) != 1 || !strings.Contains(bot.sent[0].Text, "starting") {
		t.Fatalf("status before source: %+v", bot.sent)
	}

	tg.SetStatusSource(staticStatus{})
	tg.handleUpdate(ctx, command(7, "status"))
	tg.handleUpdate(ctx, command(7, "positions"))
	if bot.sent[1].Text != "status ok" || bot.sent[2].Text != "no positions" {
		t.Fatalf("replies %+v", bot.sent)
	}

	tg.handleUpdate(ctx, command(99, "status"))
	if len(bot.sent) != 3 {
		t.Fatal("answered a foreign chat")
	}
}

func TestFormatClosed(t *testing.T) {
	open := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	p := models.Position{
		InstID: "AAA", Direction: models.DirLong, Entry: 100, ExitPrice: 110,
		ExitReason: models.ExitTarget, PnL: 19.5, Fees: 0.5,
		OpenedAt: open, ClosedAt: open.Add(90 * time.Minute),
	}
	s := FormatClosed(p)
	for _, want := range []string{"✅", "AAA LONG", "`target`", "`19.50`", "1h30m0s"} {
		if !strings.Contains(s, want) {
			t.Errorf("missing %q in %s", want, s)
		}
	}
	if !strings.Contains(FormatPositions(nil), "No open positions") {
		t.Error("empty positions text")
	}
}
