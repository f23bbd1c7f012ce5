package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"trade_agent/internal/helper"
	"trade_agent/internal/models"

	"github.com/bytedance/sonic"
)

// HistoryProvider returns sealed bars oldest first.
type HistoryProvider interface {
	Candles(ctx context.Context, instID, interval string, limit int) ([]models.Candle, error)
}

// NopHistory is used when no endpoint is configured; series start empty.
type NopHistory struct{}

func (NopHistory) Candles(context.Context, string, string, int) ([]models.Candle, error) {
	return nil, nil
}

// HTTPHistory reads {base}/api/v1/candles. Rows are
// [ts_ms, open, high, low, close, volume] as strings, newest first.
type HTTPHistory struct {
	baseURL string
	http    *http.Client
}

func NewHTTPHistory(baseURL string, timeout time.Duration) *HTTPHistory {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPHistory{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (h *HTTPHistory) Candles(ctx context.Context, instID, interval string, limit int) ([]models.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	tf, err := helper.ParseTF(interval)
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/api/v1/candles?instrument=%s&interval=%s&limit=%d",
		h.baseURL, url.QueryEscape(instID), url.QueryEscape(interval), limit,
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(b))
	}

	var r struct {
		Code string     `json:"code"`
		Msg  string     `json:"msg"`
		Data [][]string `json:"data"`
	}
	if err := sonic.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode candles: %w", err)
	}
	if r.Code != "0" {
		return nil, fmt.Errorf("candles error: code=%s msg=%s", r.Code, r.Msg)
	}

	out := make([]models.Candle, 0, len(r.Data))
	for i := len(r.Data) - 1; i >= 0; i-- {
		row := r.Data[i]
		if len(row) < 5 {
			continue
		}
		tsMs, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		open, _ := strconv.ParseFloat(row[1], 64)
		high, _ := strconv.ParseFloat(row[2], 64)
		low, _ := strconv.ParseFloat(row[3], 64)
		closep, _ := strconv.ParseFloat(row[4], 64)
		if closep <= 0 {
			continue
		}
		var vol float64
		if len(row) > 5 {
			vol, _ = strconv.ParseFloat(row[5], 64)
		}
		start := time.UnixMilli(tsMs).UTC()
		out = append(out, models.Candle{
			InstID: instID,
			Start:  start,
			End:    start.Add(tf),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closep,
			Volume: vol,
		})
	}
	return out, nil
}
