package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN             string `env:"DATABASE_DSN,required=true"`
	RedisURL                string `env:"REDIS_URL,required=true"`
	APIPort                 int    `env:"API_PORT,default=8080"`
	LogLevel                string `env:"LOG_LEVEL,default=info"`
	DeliveryTimeoutSec      int    `env:"DELIVERY_TIMEOUT_SEC,default=10"`
	MaxResponseBodyBytes    int    `env:"MAX_RESPONSE_BODY_BYTES,default=4096"`
	DisableThreshold        int    `env:"DISABLE_THRESHOLD,default=10"`
	DisableWindowHours      int    `env:"DISABLE_WINDOW_HOURS,default=24"`
	DeliveryRateLimitPerSec int    `env:"DELIVERY_RATE_LIMIT_PER_SEC,default=0"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
