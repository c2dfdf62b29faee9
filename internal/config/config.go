package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	PublicURL string
	UseSSL    bool
	Region    string
}

type QueueConfig struct {
	Stream            string
	Group             string
	Consumer          string
	DeadLetterStream  string
	MaxLen            int64
	MaxAttempts       int
	BackoffBase       time.Duration
	BlockTimeout      time.Duration
	VisibilityTimeout time.Duration
	ClaimInterval     time.Duration
}

type VariantConfig struct {
	ThumbnailSize    int
	ThumbnailQuality int
	MediumBound      int
	MediumQuality    int
}

type SecurityConfig struct {
	JWTAccessSecret string
}

type SweeperConfig struct {
	Enabled          bool
	Schedule         string
	PendingThreshold time.Duration
	BatchSize        int
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Queue            QueueConfig
	Variants         VariantConfig
	Security         SecurityConfig
	Sweeper          SweeperConfig
	AllowCORSOrigins []string
}

type WorkerConfig struct {
	Environment string
	Redis       RedisConfig
	Postgres    PostgresConfig
	Storage     StorageConfig
	Queue       QueueConfig
	Variants    VariantConfig
	Logging     LoggingConfig
}

type LoggingConfig struct {
	Level string
}

func Load() (*AppConfig, error) {
	v := newViper("config", "SNAPFEED")
	setSharedDefaults(v)

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("sweeper.enabled", true)
	v.SetDefault("sweeper.schedule", "0 */5 * * * *")
	v.SetDefault("sweeper.pendingthreshold", "15m")
	v.SetDefault("sweeper.batchsize", 100)

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg AppConfig
	if err := unmarshal(v, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func LoadWorker() (*WorkerConfig, error) {
	v := newViper("worker", "SNAPFEED_WORKER")
	setSharedDefaults(v)

	v.SetDefault("logging.level", "info")

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg WorkerConfig
	if err := unmarshal(v, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newViper(name, envPrefix string) *viper.Viper {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	return v
}

func setSharedDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.bucket", "snapfeed-media")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("queue.stream", "media:derive")
	v.SetDefault("queue.group", "derive-workers")
	v.SetDefault("queue.consumer", "worker-1")
	v.SetDefault("queue.deadletterstream", "media:derive:dead")
	v.SetDefault("queue.maxlen", 10000)
	v.SetDefault("queue.maxattempts", 5)
	v.SetDefault("queue.backoffbase", "2s")
	v.SetDefault("queue.blocktimeout", "5s")
	v.SetDefault("queue.visibilitytimeout", "2m")
	v.SetDefault("queue.claiminterval", "10s")

	v.SetDefault("variants.thumbnailsize", 200)
	v.SetDefault("variants.thumbnailquality", 80)
	v.SetDefault("variants.mediumbound", 800)
	v.SetDefault("variants.mediumquality", 85)
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("load config file: %w", err)
		}
	}
	return nil
}

func unmarshal(v *viper.Viper, out any) error {
	if err := v.Unmarshal(out, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}
