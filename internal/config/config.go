package config

import (
	"bytes"
	_ "embed"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	Log        LogConfig      `mapstructure:"log"`
	HTTP       HTTPConfig     `mapstructure:"http"`
	MySQL      DatabaseConfig `mapstructure:"mysql"`
	ClickHouse DatabaseConfig `mapstructure:"clickhouse"`
	Redis      RedisConfig    `mapstructure:"redis"`
	Kafka      KafkaConfig    `mapstructure:"kafka"`
	Billing    BillingConfig  `mapstructure:"billing"`
	Relay      RelayConfig    `mapstructure:"relay"`
	CDRSink    CDRSinkConfig  `mapstructure:"cdr_sink"`
}

// ---- Leaf structs ----

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KafkaConfig struct {
	Brokers        []string `mapstructure:"brokers"`
	GroupID        string   `mapstructure:"group_id"`
	MinBytes       int      `mapstructure:"min_bytes"`
	MaxBytes       int      `mapstructure:"max_bytes"`
	CommitInterval int      `mapstructure:"commit_interval_ms"`
}

// BillingConfig tunes the monthly aggregator and its scheduler.
type BillingConfig struct {
	// Markup is the fixed invoice markup factor (1.2 = 20%).
	Markup float64 `mapstructure:"markup"`
	// RunAt is the daily tick time-of-day, "HH:MM", UTC.
	RunAt string `mapstructure:"run_at"`
	// LockTTL is the Redis advisory lock lease for one run.
	LockTTL time.Duration `mapstructure:"lock_ttl"`
	// LockKey is the Redis key guarding against overlapping runs.
	LockKey string `mapstructure:"lock_key"`
}

type RelayConfig struct {
	BatchSize int           `mapstructure:"batch_size"`
	Interval  time.Duration `mapstructure:"interval"`
}

type CDRSinkConfig struct {
	Workers   int           `mapstructure:"workers"`
	BatchSize int           `mapstructure:"batch_size"`
	BatchWait time.Duration `mapstructure:"batch_wait"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies
// env overrides (CALLBILL_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (CALLBILL_*)
	v.SetEnvPrefix("CALLBILL")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
