package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode         string        `mapstructure:"mode"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	HistoryLimit int           `mapstructure:"history_limit"`
	InviteExpiry time.Duration `mapstructure:"invite_expiry"`
	DeletePolicy string        `mapstructure:"delete_policy"`
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
	v.SetDefault("port", 8080)
	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("history_limit", 200)
	v.SetDefault("invite_expiry", "24h")
	v.SetDefault("delete_policy", "force")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
