package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	Transport string `env:"TRANSPORT" envDefault:"redis" validate:"oneof=redis relay"`

	RedisHost string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort uint16 `env:"REDIS_PORT" envDefault:"6379"   validate:"min=1000,max=65535"`

	RelayURL        string `env:"RELAY_URL"         envDefault:"ws://localhost:8086/ws"`
	RelayListenPort uint16 `env:"RELAY_LISTEN_PORT" envDefault:"8086" validate:"min=1000,max=65535"`

	TopicPrefix string `env:"TOPIC_PREFIX" envDefault:"tombala"`

	DisplayName string `env:"DISPLAY_NAME" envDefault:"player"`
	SheetCount  int    `env:"SHEET_COUNT"  envDefault:"1" validate:"min=1,max=6"`

	BetPrice        int `env:"BET_PRICE"         envDefault:"10000" validate:"min=0"`
	DrawIntervalSec int `env:"DRAW_INTERVAL_SEC" envDefault:"5"     validate:"min=1,max=60"`
	JoinTimeoutSec  int `env:"JOIN_TIMEOUT_SEC"  envDefault:"15"    validate:"min=5,max=60"`
}

func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	err := godotenv.Load(".env")
	if err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}

	cfg := &Config{}
	// Parse config from environment variables
	if err = env.Parse(cfg); err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, err
	}

	// Validate the config
	validate := validator.New()
	err = validate.Struct(cfg)
	if err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}
