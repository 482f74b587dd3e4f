package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

type TokenStoreConfig struct {
	Backend    string // file | redis | memory
	Path       string
	AccessKey  string
	RefreshKey string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type GatewayConfig struct {
	Host             string
	Port             int
	LoginPath        string
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	AllowCORSOrigins []string
}

type StubConfig struct {
	Host           string
	Port           int
	JWTSecret      string
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	MaxSessions    int
	SessionBackend string // memory | redis
	SweepSchedule  string
}

type AppConfig struct {
	Environment string
	API         APIConfig
	TokenStore  TokenStoreConfig
	Redis       RedisConfig
	Gateway     GatewayConfig
	Stub        StubConfig
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("RDPORTAL")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("api.baseurl", "http://127.0.0.1:8080/api/v1")
	v.SetDefault("api.timeout", "30s")

	v.SetDefault("tokenstore.backend", "file")
	v.SetDefault("tokenstore.path", "")
	v.SetDefault("tokenstore.accesskey", "access_token")
	v.SetDefault("tokenstore.refreshkey", "refresh_token")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("gateway.host", "127.0.0.1")
	v.SetDefault("gateway.port", 5173)
	v.SetDefault("gateway.loginpath", "/login")
	v.SetDefault("gateway.readtimeout", "10s")
	v.SetDefault("gateway.writetimeout", "15s")
	v.SetDefault("gateway.idletimeout", "60s")

	v.SetDefault("stub.host", "127.0.0.1")
	v.SetDefault("stub.port", 8080)
	v.SetDefault("stub.jwtsecret", "dev-only-secret")
	v.SetDefault("stub.accessttl", "15m")
	v.SetDefault("stub.refreshttl", "720h") // 30 days
	v.SetDefault("stub.maxsessions", 10)
	v.SetDefault("stub.sessionbackend", "memory")
	v.SetDefault("stub.sweepschedule", "0 */10 * * * *")
}
