package config

import (
	"bytes"
	_ "embed"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	Log           LogConfig          `mapstructure:"log"`
	HTTP          HTTPConfig         `mapstructure:"http"`
	MySQL         DatabaseConfig     `mapstructure:"mysql"`
	ClickHouse    DatabaseConfig     `mapstructure:"clickhouse"`
	Redis         RedisConfig        `mapstructure:"redis"`
	Kafka         KafkaConfig        `mapstructure:"kafka"`
	RateLimit     RateLimitConfig    `mapstructure:"rate_limit"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Relay         RelayConfig        `mapstructure:"relay"`
	Correlator    CorrelatorConfig   `mapstructure:"correlator"`
	Definitions   DefinitionsConfig  `mapstructure:"definitions"`
}

// ---- Leaf structs ----

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type HTTPConfig struct {
	Addr    string            `mapstructure:"addr"`
	APIKeys map[string]string `mapstructure:"api_keys"` // client name -> key
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
	DeliveredTopic string   `mapstructure:"delivered_topic"`
	WaitingTopic   string   `mapstructure:"waiting_topic"`
	MinBytes       int      `mapstructure:"min_bytes"`
	MaxBytes       int      `mapstructure:"max_bytes"`
	CommitInterval int      `mapstructure:"commit_interval_ms"`
}

type RateLimitConfig struct {
	RPS   int `mapstructure:"rps"`
	Burst int `mapstructure:"burst"`
}

type NotificationConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type BreakerConfig struct {
	FailThreshold int `mapstructure:"fail_threshold" yaml:"fail_threshold"`
	OpenForMs     int `mapstructure:"open_for_ms"    yaml:"open_for_ms"`
}

type RelayConfig struct {
	BatchSize    int           `mapstructure:"batch_size"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Breaker      BreakerConfig `mapstructure:"breaker"`
}

type CorrelatorConfig struct {
	Workers int `mapstructure:"workers"`
}

type DefinitionsConfig struct {
	Path string `mapstructure:"path"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env
// overrides (MSGCATCH_*, nested keys joined by "_", e.g. MSGCATCH_MYSQL_DSN).
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

	v.SetEnvPrefix("MSGCATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
