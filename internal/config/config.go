package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode string `mapstructure:"mode"`
	Port int    `mapstructure:"port"`

	Identity    string `mapstructure:"identity"`
	DisplayName string `mapstructure:"display_name"`

	TokenEndpoint string `mapstructure:"token_endpoint"`
	AllowInsecure bool   `mapstructure:"allow_insecure"`
	BeaconURL     string `mapstructure:"beacon_url"`

	StoreBackend  string `mapstructure:"store_backend"`
	SQLitePath    string `mapstructure:"sqlite_path"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`

	HeartbeatInterval  time.Duration `mapstructure:"heartbeat_interval"`
	StalenessThreshold time.Duration `mapstructure:"staleness_threshold"`
	LivenessCache      time.Duration `mapstructure:"liveness_cache"`

	Secret string `mapstructure:"secret"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8090)
	v.SetDefault("token_endpoint", "http://localhost:7880/token")
	v.SetDefault("allow_insecure", false)
	v.SetDefault("store_backend", "sqlite")
	v.SetDefault("sqlite_path", "./presence.db")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_prefix", "presence:")
	v.SetDefault("heartbeat_interval", "15s")
	v.SetDefault("staleness_threshold", "30s")
	v.SetDefault("liveness_cache", "0s")
	v.SetDefault("secret", "dev-secret")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Store: %s\n", cfg.Mode, cfg.Port, cfg.StoreBackend)
	return &cfg, nil
}
