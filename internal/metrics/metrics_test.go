package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerExposesCounters(t *testing.T) {
	TicksTotal.WithLabelValues("BTC-USDT").Inc()
	OpenPositions.Set(2)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	if !strings.Contains(out, `agent_ticks_total{instrument="BTC-USDT"}`) {
		t.Fatalf("ticks counter missing:\n%s", out)
	}
	if !strings.Contains(out, "agent_open_positions 2") {
		t.Fatal("open positions gauge missing")
	}
}
