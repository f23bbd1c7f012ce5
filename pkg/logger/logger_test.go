package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFormatHelpersCarryServiceField(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	InfoLogger = zap.New(core)
	old := SetServiceName("agent-test")
	defer SetServiceName(old)

	Info("opened %s qty=%.1f", "BTC-USDT", 2.0)
	Warn("skipped %d", 3)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[0].Message != "opened BTC-USDT qty=2.0" {
		t.Fatalf("msg: %q", entries[0].Message)
	}
	if got := entries[0].ContextMap()["service"]; got != "agent-test" {
		t.Fatalf("service field: %v", got)
	}
	if entries[1].Level != zap.WarnLevel {
		t.Fatalf("level: %v", entries[1].Level)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("loud", true); err == nil {
		t.Fatal("expected error")
	}
}
