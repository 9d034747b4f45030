package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the service configuration, read from config/config.yaml with
// PUMP_-prefixed environment overrides (PUMP_SERVER_PORT and so on).
type Config struct {
	ServerPort int

	LogFile  string
	LogLevel string

	LevelDBPath string

	// Game policy
	Threshold      int64
	FeeBps         int64
	HardCapRatio   float64
	PopBasePct     float64
	PopMaxPct      float64
	WinnerBaseBps  int64
	WinnerSlopeBps int64
	SecondBps      int64
	ThirdBps       int64
	DevAddress     string
	BurnAddress    string

	// Queue
	MaxRetries   int
	RetryDelay   time.Duration
	Concurrency  int
	PollInterval time.Duration
	BatchPause   time.Duration

	// Validation
	MaxRequestsPerMinute int

	// Execution backend
	BackendMode    string // "chain" or "sim"
	BackendURL     string
	BackendTimeout time.Duration
}

// Load reads the config file at path and applies defaults and env
// overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("PUMP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	return &Config{
		ServerPort: v.GetInt("server.port"),

		LogFile:  v.GetString("log.app_log_file"),
		LogLevel: v.GetString("log.level"),

		LevelDBPath: v.GetString("leveldb.path"),

		Threshold:      v.GetInt64("game.threshold"),
		FeeBps:         v.GetInt64("game.fee_bps"),
		HardCapRatio:   v.GetFloat64("game.hard_cap_ratio"),
		PopBasePct:     v.GetFloat64("game.pop_base_pct"),
		PopMaxPct:      v.GetFloat64("game.pop_max_pct"),
		WinnerBaseBps:  v.GetInt64("game.winner_base_bps"),
		WinnerSlopeBps: v.GetInt64("game.winner_slope_bps"),
		SecondBps:      v.GetInt64("game.second_bps"),
		ThirdBps:       v.GetInt64("game.third_bps"),
		DevAddress:     v.GetString("game.dev_address"),
		BurnAddress:    v.GetString("game.burn_address"),

		MaxRetries:   v.GetInt("queue.max_retries"),
		RetryDelay:   time.Duration(v.GetInt("queue.retry_delay_ms")) * time.Millisecond,
		Concurrency:  v.GetInt("queue.concurrency"),
		PollInterval: time.Duration(v.GetInt("queue.poll_interval_ms")) * time.Millisecond,
		BatchPause:   time.Duration(v.GetInt("queue.batch_pause_ms")) * time.Millisecond,

		MaxRequestsPerMinute: v.GetInt("validation.max_requests_per_minute"),

		BackendMode:    v.GetString("backend.mode"),
		BackendURL:     v.GetString("backend.endpoint"),
		BackendTimeout: time.Duration(v.GetInt("backend.timeout_ms")) * time.Millisecond,
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.app_log_file", "app.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("leveldb.path", "data/pumpdb")

	v.SetDefault("game.threshold", 1_000_000)
	v.SetDefault("game.fee_bps", 200)
	v.SetDefault("game.hard_cap_ratio", 1.0)
	v.SetDefault("game.pop_base_pct", 0.05)
	v.SetDefault("game.pop_max_pct", 0.35)
	v.SetDefault("game.winner_base_bps", 6000)
	v.SetDefault("game.winner_slope_bps", 2000)
	v.SetDefault("game.second_bps", 1000)
	v.SetDefault("game.third_bps", 500)
	v.SetDefault("game.dev_address", "0x0000000000000000000000000000000000001001")
	v.SetDefault("game.burn_address", "0x000000000000000000000000000000000000dEaD")

	v.SetDefault("queue.max_retries", 3)
	v.SetDefault("queue.retry_delay_ms", 2000)
	v.SetDefault("queue.concurrency", 5)
	v.SetDefault("queue.poll_interval_ms", 2000)
	v.SetDefault("queue.batch_pause_ms", 200)

	v.SetDefault("validation.max_requests_per_minute", 30)

	v.SetDefault("backend.mode", "sim")
	v.SetDefault("backend.endpoint", "http://localhost:9090/relay")
	v.SetDefault("backend.timeout_ms", 10000)
}
