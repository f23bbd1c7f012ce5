package service

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"trade_agent/internal/modules/config"
	market "trade_agent/internal/modules/market/service"

	"go.uber.org/zap"
)

type Warmuper struct {
	history HistoryProvider
	store   *market.Store
	cfg     *config.Config
	log     *zap.Logger

	// bounds parallel requests to the provider
	sem chan struct{}
}

func NewWarmuper(history HistoryProvider, store *market.Store, cfg *config.Config, log *zap.Logger) *Warmuper {
	n := cfg.Bootstrap.Concurrency
	if n <= 0 {
		n = 1
	}
	return &Warmuper{
		history: history,
		store:   store,
		cfg:     cfg,
		log:     log,
		sem:     make(chan struct{}, n),
	}
}

// Run warms up the configured universe and benchmark within the bootstrap timeout.
func (w *Warmuper) Run(ctx context.Context) int {
	if w.cfg.Bootstrap.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.Bootstrap.Timeout)
		defer cancel()
	}
	instruments := append([]string(nil), w.cfg.Feed.Instruments...)
	if b := w.cfg.Feed.Benchmark; b != "" && !slices.Contains(instruments, b) {
		instruments = append(instruments, b)
	}
	return w.Warmup(ctx, instruments)
}

// Warmup seeds both timeframes for every instrument. A failing or empty
// provider only leaves the series shorter; it returns the number of bars seeded.
func (w *Warmuper) Warmup(ctx context.Context, instruments []string) int {
	if len(instruments) == 0 {
		return 0
	}
	w.log.Info("warmup start",
		zap.Int("instruments", len(instruments)),
		zap.String("interval", w.cfg.Candles.Interval),
		zap.Int("bars", w.cfg.Bootstrap.Bars),
	)

	var cnt atomic.Int64
	var wg sync.WaitGroup
	for _, inst := range instruments {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case w.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-w.sem }()

			cnt.Add(int64(w.seed(ctx, inst, w.cfg.Candles.Interval, w.store.Primary)))
			if w.store.Higher != nil && w.cfg.Candles.HigherInterval != "" {
				cnt.Add(int64(w.seed(ctx, inst, w.cfg.Candles.HigherInterval, w.store.Higher)))
			}
		}()
	}
	wg.Wait()

	w.log.Info("warmup done", zap.Int64("bars", cnt.Load()))
	return int(cnt.Load())
}

func (w *Warmuper) seed(ctx context.Context, inst, interval string, agg *market.Aggregator) int {
	bars, err := w.history.Candles(ctx, inst, interval, w.cfg.Bootstrap.Bars)
	if err != nil {
		w.log.Warn("warmup failed, series starts short",
			zap.String("inst", inst),
			zap.String("interval", interval),
			zap.Error(err),
		)
		return 0
	}
	return agg.Seed(inst, bars)
}
