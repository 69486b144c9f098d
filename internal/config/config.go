package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"

	BlobFS   = "fs"
	BlobNATS = "nats"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	Store        StoreConfig        `mapstructure:"store"`
	Blob         BlobConfig         `mapstructure:"blob"`
	Codec        CodecConfig        `mapstructure:"codec"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	Backpressure BackpressureConfig `mapstructure:"backpressure"`
}

type StoreConfig struct {
	Backend     string `mapstructure:"backend"`
	RedisURL    string `mapstructure:"redis_url"`
	RedisPrefix string `mapstructure:"redis_prefix"`
	DatabaseURL string `mapstructure:"database_url"`
	SQLitePath  string `mapstructure:"sqlite_path"`
}

type BlobConfig struct {
	Backend        string `mapstructure:"backend"`
	Dir            string `mapstructure:"dir"`
	NatsURL        string `mapstructure:"nats_url"`
	Bucket         string `mapstructure:"bucket"`
	PublicPrefix   string `mapstructure:"public_prefix"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
}

type CodecConfig struct {
	Scheme string `mapstructure:"scheme"`
	Secret string `mapstructure:"secret"`
}

// RateLimitConfig caps sends per member: Messages per Interval.
type RateLimitConfig struct {
	Messages int           `mapstructure:"messages"`
	Interval time.Duration `mapstructure:"interval"`
}

type BackpressureConfig struct {
	MaxDrops int `mapstructure:"max_drops"`
}

// Load reads config/config.<CONFIG_ENV>.yaml, then CHAT_* environment
// variables, then command-line flags. A .env file, when present, is loaded
// into the environment first.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	flags := pflag.NewFlagSet("roomchat", pflag.ContinueOnError)
	flags.String("config-env", "", "config file suffix (config/config.<env>.yaml)")
	flags.Int("port", 0, "HTTP listen port")
	flags.String("mode", "", "gin mode: debug, release or test")
	flags.String("log-level", "", "zerolog level")
	flags.String("store", "", "store backend: memory, redis, postgres or sqlite")
	flags.String("blob", "", "blob backend: fs or nats")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")

	env, _ := flags.GetString("config-env")
	if env == "" {
		env = os.Getenv("CONFIG_ENV")
	}
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	setDefaults(v)

	v.SetEnvPrefix("CHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, flag := range map[string]string{
		"port":          "port",
		"mode":          "mode",
		"log_level":     "log-level",
		"store.backend": "store",
		"blob.backend":  "blob",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("store", cfg.Store.Backend).
		Str("blob", cfg.Blob.Backend).
		Str("codec", cfg.Codec.Scheme).
		Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "")
	v.SetDefault("log_level", "info")

	v.SetDefault("store.backend", StoreMemory)
	v.SetDefault("store.redis_url", "redis://localhost:6379/0")
	v.SetDefault("store.redis_prefix", "chat:")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "./data/chat.db")

	v.SetDefault("blob.backend", BlobFS)
	v.SetDefault("blob.dir", "./data/uploads")
	v.SetDefault("blob.nats_url", "nats://localhost:4222")
	v.SetDefault("blob.bucket", "roomchat-files")
	v.SetDefault("blob.public_prefix", "/files")
	v.SetDefault("blob.max_upload_bytes", 10<<20)

	v.SetDefault("codec.scheme", "legacy")
	v.SetDefault("codec.secret", "")

	v.SetDefault("rate_limit.messages", 10)
	v.SetDefault("rate_limit.interval", "5s")

	v.SetDefault("backpressure.max_drops", 8)
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case StoreMemory, StoreRedis, StoreSQLite:
	case StorePostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("store.database_url is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	switch c.Blob.Backend {
	case BlobFS, BlobNATS:
	default:
		errs = append(errs, fmt.Errorf("unknown blob backend %q", c.Blob.Backend))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Port))
	}
	if c.RateLimit.Messages <= 0 || c.RateLimit.Interval <= 0 {
		errs = append(errs, errors.New("rate_limit.messages and rate_limit.interval must be positive"))
	}
	return errors.Join(errs...)
}
