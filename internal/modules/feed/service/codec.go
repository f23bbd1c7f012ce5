package service

import (
	"time"

	"trade_agent/internal/models"

	"github.com/bytedance/sonic"
)

const (
	frameTick       = "tick"
	frameTicks      = "ticks"
	framePong       = "pong"
	frameSubscribed = "subscribed"
	frameError      = "error"
)

type tickFrame struct {
	Instrument string  `json:"instrument"`
	Price      float64 `json:"price"`
	Volume     float64 `json:"volume"`
	Bid        float64 `json:"bid"`
	Ask        float64 `json:"ask"`
	Ts         int64   `json:"ts"` // unix ms
}

type frame struct {
	Type string `json:"type"`
	tickFrame
	Data    []tickFrame `json:"data"`
	Message string      `json:"message"`
}

type subscribeReq struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

func encodeSubscribe(instIDs []string) ([]byte, error) {
	return sonic.Marshal(subscribeReq{Op: "subscribe", Args: instIDs})
}

// decodeFrame returns the frame type and any ticks it carries. Malformed ticks are dropped.
func decodeFrame(msg []byte) (string, []models.Tick, string, error) {
	var f frame
	if err := sonic.Unmarshal(msg, &f); err != nil {
		return "", nil, "", err
	}
	switch f.Type {
	case frameTick:
		if t, ok := f.tickFrame.toTick(); ok {
			return f.Type, []models.Tick{t}, "", nil
		}
		return f.Type, nil, "", nil
	case frameTicks:
		out := make([]models.Tick, 0, len(f.Data))
		for _, tf := range f.Data {
			if t, ok := tf.toTick(); ok {
				out = append(out, t)
			}
		}
		return f.Type, out, "", nil
	default:
		return f.Type, nil, f.Message, nil
	}
}

func (f tickFrame) toTick() (models.Tick, bool) {
	if f.Instrument == "" || f.Price <= 0 || f.Volume < 0 || f.Ts <= 0 {
		return models.Tick{}, false
	}
	return models.Tick{
		InstID: f.Instrument,
		Price:  f.Price,
		Volume: f.Volume,
		Bid:    f.Bid,
		Ask:    f.Ask,
		Ts:     time.UnixMilli(f.Ts).UTC(),
	}, true
}
