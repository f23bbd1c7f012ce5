package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"trade_agent/internal/modules/config"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

const (
	ordersPath = "/api/v1/orders"

	headerKey       = "X-ACCESS-KEY"
	headerSign      = "X-ACCESS-SIGN"
	headerTimestamp = "X-ACCESS-TIMESTAMP"
)

// HTTPVenue talks to a REST order venue. Requests are signed with
// base64(HMAC-SHA256(secret, ts + method + path + body)).
type HTTPVenue struct {
	baseURL string
	apiKey  string
	secret  string
	http    *http.Client
	now     func() time.Time
}

func NewHTTPVenue(cfg config.ExecutionConfig) (*HTTPVenue, error) {
	if _, err := url.Parse(cfg.VenueURL); err != nil || cfg.VenueURL == "" {
		return nil, fmt.Errorf("venue url %q: invalid", cfg.VenueURL)
	}
	return &HTTPVenue{
		baseURL: strings.TrimRight(cfg.VenueURL, "/"),
		apiKey:  cfg.APIKey,
		secret:  cfg.APISecret,
		http:    &http.Client{Timeout: 10 * time.Second},
		now:     time.Now,
	}, nil
}

type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (v *HTTPVenue) sign(ts, method, path, body string) string {
	mac := hmac.New(sha256.New, []byte(v.secret))
	mac.Write([]byte(ts + method + path + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (v *HTTPVenue) do(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = sonic.Marshal(body); err != nil {
			return errors.Wrap(err, "marshal")
		}
	}

	ts := v.now().UTC().Format("2006-01-02T15:04:05.000Z")
	req, err := http.NewRequestWithContext(ctx, method, v.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set(headerKey, v.apiKey)
	req.Header.Set(headerSign, v.sign(ts, method, path, string(payload)))
	req.Header.Set(headerTimestamp, ts)
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return errors.Errorf("%s %s http %d: %s", method, path, resp.StatusCode, string(data))
	}

	var env envelope
	if err := sonic.Unmarshal(data, &env); err != nil {
		return errors.Wrapf(err, "decode body=%s", string(data))
	}
	if env.Code != "0" {
		return errors.Wrapf(ErrOrderRejected, "code=%s msg=%s", env.Code, env.Msg)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(env.Data, out); err != nil {
		return errors.Wrapf(err, "decode data=%s", string(env.Data))
	}
	return nil
}

func (v *HTTPVenue) PlaceOrder(ctx context.Context, o Order) (string, error) {
	var r struct {
		OrderID string `json:"order_id"`
	}
	if err := v.do(ctx, http.MethodPost, ordersPath, o, &r); err != nil {
		return "", errors.Wrap(err, "PlaceOrder")
	}
	if r.OrderID == "" {
		return "", errors.New("PlaceOrder: empty order_id")
	}
	return r.OrderID, nil
}

func (v *HTTPVenue) CancelOrder(ctx context.Context, instID, venueID string) error {
	path := ordersPath + "/" + url.PathEscape(venueID) + "?instrument=" + url.QueryEscape(instID)
	return errors.Wrap(v.do(ctx, http.MethodDelete, path, nil, nil), "CancelOrder")
}

func (v *HTTPVenue) OrderStatus(ctx context.Context, instID, venueID string) (OrderStatus, error) {
	path := ordersPath + "/" + url.PathEscape(venueID) + "?instrument=" + url.QueryEscape(instID)
	var st OrderStatus
	if err := v.do(ctx, http.MethodGet, path, nil, &st); err != nil {
		return OrderStatus{}, errors.Wrap(err, "OrderStatus")
	}
	if st.VenueID == "" {
		st.VenueID = venueID
	}
	return st, nil
}
