package config

import (
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "trade_agent")
	v.SetDefault("service.log_level", "info")
	v.SetDefault("service.log_json", true)

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_id", intFromEnv("TELEGRAM_CHAT_ID", 0))
	v.SetDefault("db_dsn", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("tracing.enabled", boolFromEnv("TRACING_ENABLED", false))
	v.SetDefault("tracing.host", "localhost")
	v.SetDefault("tracing.port", 6831)
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("health.addr", ":8080")

	v.SetDefault("feed.url", "")
	v.SetDefault("feed.instruments", []string{})
	v.SetDefault("feed.benchmark", "")
	v.SetDefault("feed.dial_timeout", durationFromEnv("FEED_DIAL_TIMEOUT", "10s"))
	v.SetDefault("feed.ping_every", "20s")
	v.SetDefault("feed.liveness_timeout", "60s")
	v.SetDefault("feed.backoff_base", "2s")
	v.SetDefault("feed.backoff_cap", "60s")
	v.SetDefault("feed.max_attempts", 10)

	v.SetDefault("candles.interval", "1m")
	v.SetDefault("candles.higher_interval", "15m")
	v.SetDefault("candles.max_bars", 1000)

	// 50 bars: enough for EMA(50)/ADX(14) to settle; more delays the first trade after a cold start.
	v.SetDefault("strategy.min_bars", 50)
	v.SetDefault("strategy.ema_fast", 9)
	v.SetDefault("strategy.ema_slow", 21)
	v.SetDefault("strategy.rsi_period", 14)
	v.SetDefault("strategy.bb_period", 20)
	v.SetDefault("strategy.bb_stddev", 2.0)
	v.SetDefault("strategy.atr_period", 14)
	v.SetDefault("strategy.adx_period", 14)
	v.SetDefault("strategy.donchian_period", 20)
	v.SetDefault("strategy.pivot_window", 3)
	v.SetDefault("strategy.level_tolerance", 0.004)
	v.SetDefault("strategy.min_rr", 1.5)
	v.SetDefault("strategy.min_stop_atr", 0.5)
	v.SetDefault("strategy.min_confidence", 0.5)

	v.SetDefault("validation.disabled", []string{})
	v.SetDefault("validation.fail_safe", false)
	v.SetDefault("validation.trend_ema", 50)
	v.SetDefault("validation.rel_strength_lookback", 20)
	v.SetDefault("validation.abnormal_move_atr", 4.0)
	v.SetDefault("validation.min_atr_pct", 0.0005)
	v.SetDefault("validation.max_atr_pct", 0.05)
	v.SetDefault("validation.min_adx", 15.0)
	v.SetDefault("validation.sentiment_low", 10.0)
	v.SetDefault("validation.sentiment_high", 90.0)
	v.SetDefault("validation.avoid_open_minutes", 15)
	v.SetDefault("validation.avoid_close_minutes", 30)
	v.SetDefault("validation.max_slippage_stop_frac", 0.25)
	v.SetDefault("validation.max_spread_pct", 0.002)
	v.SetDefault("validation.min_rel_volume", 0.5)
	v.SetDefault("validation.min_fee_coverage", 3.0)

	v.SetDefault("screening.disabled", []string{})
	v.SetDefault("screening.fail_safe", true)
	v.SetDefault("screening.var_limit_pct", 5.0)
	v.SetDefault("screening.var_z", 1.65)
	v.SetDefault("screening.var_lookback", 50)
	v.SetDefault("screening.trend_ema", 50)
	v.SetDefault("screening.squeeze_lookback", 100)
	v.SetDefault("screening.squeeze_percentile", 0.2)
	v.SetDefault("screening.sr_tolerance_pct", 0.003)
	v.SetDefault("screening.breadth_min_size", 3)
	v.SetDefault("screening.min_score", 55.0)

	v.SetDefault("risk.starting_equity", floatFromEnv("STARTING_EQUITY", 10000))
	v.SetDefault("risk.risk_fraction", 0.01)
	v.SetDefault("risk.max_position_fraction", 0.2)
	v.SetDefault("risk.max_positions", intFromEnv("MAX_OPEN_POSITIONS", 5))
	v.SetDefault("risk.max_exposure_fraction", 1.0)
	v.SetDefault("risk.daily_loss_fraction", 0.03)
	v.SetDefault("risk.vol_target_atr_pct", 0.01)
	v.SetDefault("risk.lot_step", 0.0)
	v.SetDefault("risk.cooldown_per_symbol", durationFromEnv("COOLDOWN_PER_SYMBOL", "60s"))

	v.SetDefault("trailing.enabled", true)
	v.SetDefault("trailing.be_trigger_r", 0.6)
	v.SetDefault("trailing.be_offset_r", 0.0)
	v.SetDefault("trailing.lock_trigger_r", 0.9)
	v.SetDefault("trailing.lock_offset_r", 0.3)
	v.SetDefault("trailing.trail_trigger_r", 1.5)
	v.SetDefault("trailing.trail_dist_r", 1.0)

	v.SetDefault("execution.mode", getenvDefault("EXECUTION_MODE", ModePaper))
	v.SetDefault("execution.fee_pct", 0.001)
	v.SetDefault("execution.slippage_pct", 0.0005)
	v.SetDefault("execution.order_timeout", "10s")
	v.SetDefault("execution.poll_every", "250ms")
	v.SetDefault("execution.venue_url", "")
	v.SetDefault("execution.api_key", "")
	v.SetDefault("execution.api_secret", "")

	v.SetDefault("session.timezone", "UTC")
	v.SetDefault("session.open", "")
	v.SetDefault("session.close", "")
	v.SetDefault("session.force_exit", "")

	v.SetDefault("scheduler.scan_every", "5s")
	v.SetDefault("scheduler.monitor_every", "250ms")
	v.SetDefault("scheduler.seal_every", "1s")

	v.SetDefault("events.backend", "log")
	v.SetDefault("events.buffer", 1024)
	v.SetDefault("events.table", "trade_events")
	v.SetDefault("events.notify_channel", "trade_events")
	v.SetDefault("events.stream", "trade_events")
	v.SetDefault("events.write_timeout", "3s")

	v.SetDefault("bootstrap.url", "")
	v.SetDefault("bootstrap.bars", 200)
	v.SetDefault("bootstrap.concurrency", 8)
	v.SetDefault("bootstrap.timeout", "30s")
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func boolFromEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if v == "1" || v == "true" || v == "TRUE" {
			return true
		}
		if v == "0" || v == "false" || v == "FALSE" {
			return false
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
