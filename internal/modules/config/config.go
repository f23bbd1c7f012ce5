package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	configDirENV      = "CONFIG_DIR"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
	redisAddrENV      = "REDIS_ADDR"
	venueKeyENV       = "VENUE_API_KEY"
	venueSecretENV    = "VENUE_API_SECRET"
)

const (
	ModePaper = "paper"
	ModeLive  = "live"
)

type ServiceConfig struct {
	Name     string `yaml:"name" mapstructure:"name"`
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
	LogJSON  bool   `yaml:"log_json" mapstructure:"log_json"`
}

type TelegramConfig struct {
	Token  string `yaml:"token" mapstructure:"token"`
	ChatID int64  `yaml:"chat_id" mapstructure:"chat_id"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Host       string  `yaml:"host" mapstructure:"host"`
	Port       int     `yaml:"port" mapstructure:"port"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

type HealthConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

type FeedConfig struct {
	URL         string   `yaml:"url" mapstructure:"url"`
	Instruments []string `yaml:"instruments" mapstructure:"instruments"`
	// Benchmark is the index instrument used for regime checks; it is subscribed too.
	Benchmark       string        `yaml:"benchmark" mapstructure:"benchmark"`
	DialTimeout     time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	PingEvery       time.Duration `yaml:"ping_every" mapstructure:"ping_every"`
	LivenessTimeout time.Duration `yaml:"liveness_timeout" mapstructure:"liveness_timeout"`
	BackoffBase     time.Duration `yaml:"backoff_base" mapstructure:"backoff_base"`
	BackoffCap      time.Duration `yaml:"backoff_cap" mapstructure:"backoff_cap"`
	MaxAttempts     int           `yaml:"max_attempts" mapstructure:"max_attempts"`
}

type CandlesConfig struct {
	Interval       string `yaml:"interval" mapstructure:"interval"`
	HigherInterval string `yaml:"higher_interval" mapstructure:"higher_interval"`
	MaxBars        int    `yaml:"max_bars" mapstructure:"max_bars"`
}

type StrategyConfig struct {
	MinBars        int     `yaml:"min_bars" mapstructure:"min_bars"`
	EMAFast        int     `yaml:"ema_fast" mapstructure:"ema_fast"`
	EMASlow        int     `yaml:"ema_slow" mapstructure:"ema_slow"`
	RSIPeriod      int     `yaml:"rsi_period" mapstructure:"rsi_period"`
	BBPeriod       int     `yaml:"bb_period" mapstructure:"bb_period"`
	BBStdDev       float64 `yaml:"bb_stddev" mapstructure:"bb_stddev"`
	ATRPeriod      int     `yaml:"atr_period" mapstructure:"atr_period"`
	ADXPeriod      int     `yaml:"adx_period" mapstructure:"adx_period"`
	DonchianPeriod int     `yaml:"donchian_period" mapstructure:"donchian_period"`
	PivotWindow    int     `yaml:"pivot_window" mapstructure:"pivot_window"`
	LevelTolerance float64 `yaml:"level_tolerance" mapstructure:"level_tolerance"`
	MinRR          float64 `yaml:"min_rr" mapstructure:"min_rr"`
	MinStopATR     float64 `yaml:"min_stop_atr" mapstructure:"min_stop_atr"`
	MinConfidence  float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
}

type ValidationConfig struct {
	Disabled []string `yaml:"disabled" mapstructure:"disabled"`
	FailSafe bool     `yaml:"fail_safe" mapstructure:"fail_safe"`

	TrendEMA            int     `yaml:"trend_ema" mapstructure:"trend_ema"`
	RelStrengthLookback int     `yaml:"rel_strength_lookback" mapstructure:"rel_strength_lookback"`
	AbnormalMoveATR     float64 `yaml:"abnormal_move_atr" mapstructure:"abnormal_move_atr"`
	MinATRPct           float64 `yaml:"min_atr_pct" mapstructure:"min_atr_pct"`
	MaxATRPct           float64 `yaml:"max_atr_pct" mapstructure:"max_atr_pct"`
	MinADX              float64 `yaml:"min_adx" mapstructure:"min_adx"`
	SentimentLow        float64 `yaml:"sentiment_low" mapstructure:"sentiment_low"`
	SentimentHigh       float64 `yaml:"sentiment_high" mapstructure:"sentiment_high"`
	AvoidOpenMinutes    int     `yaml:"avoid_open_minutes" mapstructure:"avoid_open_minutes"`
	AvoidCloseMinutes   int     `yaml:"avoid_close_minutes" mapstructure:"avoid_close_minutes"`
	MaxSlippageStopFrac float64 `yaml:"max_slippage_stop_frac" mapstructure:"max_slippage_stop_frac"`
	MaxSpreadPct        float64 `yaml:"max_spread_pct" mapstructure:"max_spread_pct"`
	MinRelVolume        float64 `yaml:"min_rel_volume" mapstructure:"min_rel_volume"`
	MinFeeCoverage      float64 `yaml:"min_fee_coverage" mapstructure:"min_fee_coverage"`
}

type ScreeningConfig struct {
	Disabled          []string `yaml:"disabled" mapstructure:"disabled"`
	FailSafe          bool     `yaml:"fail_safe" mapstructure:"fail_safe"`
	VaRLimitPct       float64  `yaml:"var_limit_pct" mapstructure:"var_limit_pct"`
	VaRZ              float64  `yaml:"var_z" mapstructure:"var_z"`
	VaRLookback       int      `yaml:"var_lookback" mapstructure:"var_lookback"`
	TrendEMA          int      `yaml:"trend_ema" mapstructure:"trend_ema"`
	SqueezeLookback   int      `yaml:"squeeze_lookback" mapstructure:"squeeze_lookback"`
	SqueezePercentile float64  `yaml:"squeeze_percentile" mapstructure:"squeeze_percentile"`
	SRTolerancePct    float64  `yaml:"sr_tolerance_pct" mapstructure:"sr_tolerance_pct"`
	BreadthMinSize    int      `yaml:"breadth_min_size" mapstructure:"breadth_min_size"`
	MinScore          float64  `yaml:"min_score" mapstructure:"min_score"`
}

type RiskConfig struct {
	StartingEquity      float64       `yaml:"starting_equity" mapstructure:"starting_equity"`
	RiskFraction        float64       `yaml:"risk_fraction" mapstructure:"risk_fraction"`
	MaxPositionFraction float64       `yaml:"max_position_fraction" mapstructure:"max_position_fraction"`
	MaxPositions        int           `yaml:"max_positions" mapstructure:"max_positions"`
	MaxExposureFraction float64       `yaml:"max_exposure_fraction" mapstructure:"max_exposure_fraction"`
	DailyLossFraction   float64       `yaml:"daily_loss_fraction" mapstructure:"daily_loss_fraction"`
	VolTargetATRPct     float64       `yaml:"vol_target_atr_pct" mapstructure:"vol_target_atr_pct"`
	LotStep             float64       `yaml:"lot_step" mapstructure:"lot_step"`
	CooldownPerSymbol   time.Duration `yaml:"cooldown_per_symbol" mapstructure:"cooldown_per_symbol"`
}

type TrailingConfig struct {
	Enabled      bool    `yaml:"enabled" mapstructure:"enabled"`
	BETriggerR   float64 `yaml:"be_trigger_r" mapstructure:"be_trigger_r"`
	BEOffsetR    float64 `yaml:"be_offset_r" mapstructure:"be_offset_r"`
	LockTriggerR float64 `yaml:"lock_trigger_r" mapstructure:"lock_trigger_r"`
	LockOffsetR  float64 `yaml:"lock_offset_r" mapstructure:"lock_offset_r"`
	TrailTrigger float64 `yaml:"trail_trigger_r" mapstructure:"trail_trigger_r"`
	TrailDistR   float64 `yaml:"trail_dist_r" mapstructure:"trail_dist_r"`
}

type ExecutionConfig struct {
	Mode         string        `yaml:"mode" mapstructure:"mode"`
	FeePct       float64       `yaml:"fee_pct" mapstructure:"fee_pct"`
	SlippagePct  float64       `yaml:"slippage_pct" mapstructure:"slippage_pct"`
	OrderTimeout time.Duration `yaml:"order_timeout" mapstructure:"order_timeout"`
	PollEvery    time.Duration `yaml:"poll_every" mapstructure:"poll_every"`
	// venue REST endpoint, live mode only
	VenueURL  string `yaml:"venue_url" mapstructure:"venue_url"`
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
	APISecret string `yaml:"api_secret" mapstructure:"api_secret"`
}

type SessionConfig struct {
	Timezone  string `yaml:"timezone" mapstructure:"timezone"`
	Open      string `yaml:"open" mapstructure:"open"`
	Close     string `yaml:"close" mapstructure:"close"`
	ForceExit string `yaml:"force_exit" mapstructure:"force_exit"`
}

type SchedulerConfig struct {
	ScanEvery    time.Duration `yaml:"scan_every" mapstructure:"scan_every"`
	MonitorEvery time.Duration `yaml:"monitor_every" mapstructure:"monitor_every"`
	SealEvery    time.Duration `yaml:"seal_every" mapstructure:"seal_every"`
}

type EventsConfig struct {
	// Backend is one of pg, redis, log.
	Backend       string        `yaml:"backend" mapstructure:"backend"`
	Buffer        int           `yaml:"buffer" mapstructure:"buffer"`
	Table         string        `yaml:"table" mapstructure:"table"`
	NotifyChannel string        `yaml:"notify_channel" mapstructure:"notify_channel"`
	Stream        string        `yaml:"stream" mapstructure:"stream"`
	WriteTimeout  time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

type BootstrapConfig struct {
	// URL of the historical bars endpoint; empty disables bootstrap.
	URL         string        `yaml:"url" mapstructure:"url"`
	Bars        int           `yaml:"bars" mapstructure:"bars"`
	Concurrency int           `yaml:"concurrency" mapstructure:"concurrency"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// Config ...
type Config struct {
	Service    ServiceConfig    `yaml:"service" mapstructure:"service"`
	Telegram   TelegramConfig   `yaml:"telegram" mapstructure:"telegram"`
	DB         string           `yaml:"db_dsn" mapstructure:"db_dsn"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Tracing    TracingConfig    `yaml:"tracing" mapstructure:"tracing"`
	Health     HealthConfig     `yaml:"health" mapstructure:"health"`
	Feed       FeedConfig       `yaml:"feed" mapstructure:"feed"`
	Candles    CandlesConfig    `yaml:"candles" mapstructure:"candles"`
	Strategy   StrategyConfig   `yaml:"strategy" mapstructure:"strategy"`
	Validation ValidationConfig `yaml:"validation" mapstructure:"validation"`
	Screening  ScreeningConfig  `yaml:"screening" mapstructure:"screening"`
	Risk       RiskConfig       `yaml:"risk" mapstructure:"risk"`
	Trailing   TrailingConfig   `yaml:"trailing" mapstructure:"trailing"`
	Execution  ExecutionConfig  `yaml:"execution" mapstructure:"execution"`
	Session    SessionConfig    `yaml:"session" mapstructure:"session"`
	Scheduler  SchedulerConfig  `yaml:"scheduler" mapstructure:"scheduler"`
	Events     EventsConfig     `yaml:"events" mapstructure:"events"`
	Bootstrap  BootstrapConfig  `yaml:"bootstrap" mapstructure:"bootstrap"`
}

func NewConfig() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	configFileName := getenvDefault(configFilePathENV, "values_local.yaml")
	dir := getenvDefault(configDirENV, "configs")

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(dir + "/" + configFileName)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", configFileName, err)
		}
	}

	return load(v)
}

// FromViper decodes an already populated viper instance; defaults are applied first.
func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	return load(v)
}

// Defaults returns the built-in defaults for the given universe without reading
// files or the environment. Used by tools and tests.
func Defaults(instruments ...string) *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	config.Feed.Instruments = instruments
	return &config
}

func load(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if token := os.Getenv(tokenTelegramENV); token != "" {
		config.Telegram.Token = token
	}
	if dsn := os.Getenv(databaseDSN); dsn != "" {
		config.DB = dsn
	}
	if addr := os.Getenv(redisAddrENV); addr != "" {
		config.Redis.Addr = addr
	}
	if key := os.Getenv(venueKeyENV); key != "" {
		config.Execution.APIKey = key
	}
	if secret := os.Getenv(venueSecretENV); secret != "" {
		config.Execution.APISecret = secret
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Dump renders the effective config as yaml with secrets masked.
func (c Config) Dump() string {
	c.Telegram.Token = mask(c.Telegram.Token)
	c.DB = mask(c.DB)
	c.Redis.Password = mask(c.Redis.Password)
	c.Execution.APIKey = mask(c.Execution.APIKey)
	c.Execution.APISecret = mask(c.Execution.APISecret)
	out, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("<config dump failed: %v>", err)
	}
	return string(out)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

func (c *Config) Validate() error {
	var errs []error
	if len(c.Feed.Instruments) == 0 {
		errs = append(errs, errors.New("feed.instruments is empty"))
	}
	if c.Feed.MaxAttempts <= 0 {
		errs = append(errs, errors.New("feed.max_attempts must be > 0"))
	}
	if c.Scheduler.MonitorEvery <= 0 || c.Scheduler.MonitorEvery > 500*time.Millisecond {
		errs = append(errs, fmt.Errorf("scheduler.monitor_every %s must be in (0, 500ms]", c.Scheduler.MonitorEvery))
	}
	if c.Scheduler.ScanEvery <= 0 || c.Scheduler.SealEvery <= 0 {
		errs = append(errs, errors.New("scheduler.scan_every and seal_every must be > 0"))
	}
	for name, f := range map[string]float64{
		"risk.risk_fraction":         c.Risk.RiskFraction,
		"risk.max_position_fraction": c.Risk.MaxPositionFraction,
		"risk.daily_loss_fraction":   c.Risk.DailyLossFraction,
	} {
		if f <= 0 || f > 1 {
			errs = append(errs, fmt.Errorf("%s=%v must be in (0,1]", name, f))
		}
	}
	if c.Risk.MaxPositions <= 0 {
		errs = append(errs, errors.New("risk.max_positions must be > 0"))
	}
	if c.Screening.VaRLimitPct <= 0 {
		errs = append(errs, errors.New("screening.var_limit_pct must be > 0"))
	}
	if c.Execution.Mode != ModePaper && c.Execution.Mode != ModeLive {
		errs = append(errs, fmt.Errorf("execution.mode %q must be paper or live", c.Execution.Mode))
	}
	if c.Execution.Mode == ModeLive && c.Execution.VenueURL == "" {
		errs = append(errs, errors.New("execution.venue_url is required in live mode"))
	}
	switch c.Events.Backend {
	case "pg", "redis", "log":
	default:
		errs = append(errs, fmt.Errorf("events.backend %q must be pg, redis or log", c.Events.Backend))
	}
	if c.Strategy.MinBars < 2 {
		errs = append(errs, errors.New("strategy.min_bars must be >= 2"))
	}
	return errors.Join(errs...)
}
