package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Session stores
const (
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

type Config struct {
	LogLevel      string        `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	HTTPAddr      string        `yaml:"http-addr" env:"HTTP_ADDR" env-default:":8080"`
	Store         string        `yaml:"store" env:"STORE" env-default:"redis"`
	Redis         Redis         `yaml:"redis"`
	SessionTTL    time.Duration `yaml:"session-ttl" env:"SESSION_TTL" env-default:"24h"`
	OpponentDelay time.Duration `yaml:"opponent-delay" env:"OPPONENT_DELAY" env-default:"500ms"`
	JWTSecret     string        `yaml:"jwt-secret" env:"JWT_SECRET"`
	Seed          uint64        `yaml:"seed" env:"SEED" env-default:"0"`
	Otel          Otel          `yaml:"otel"`
}

type Redis struct {
	Addr string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
}

type Otel struct {
	// An empty endpoint writes traces to stdout instead of exporting them.
	Endpoint    string `yaml:"endpoint" env:"OTEL_ENDPOINT"`
	ServiceName string `yaml:"service-name" env:"OTEL_SERVICE_NAME" env-default:"tictactoe-solo"`
}

// Load reads path, if it exists, and then the environment.
func Load(path string) (*Config, error) {
	config := &Config{}

	var err error
	if path != "" && fileExists(path) {
		err = cleanenv.ReadConfig(path, config)
	} else {
		err = cleanenv.ReadEnv(config)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to load config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config, err := Load(path)
	if err != nil {
		panic(err)
	}
	return config
}

func (c *Config) Validate() error {
	var errs []error
	if c.Store != StoreRedis && c.Store != StoreMemory {
		errs = append(errs, fmt.Errorf("store must be %q or %q, got %q", StoreRedis, StoreMemory, c.Store))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("session-ttl must be positive"))
	}
	if c.OpponentDelay < 0 {
		errs = append(errs, fmt.Errorf("opponent-delay must not be negative"))
	}
	return errors.Join(errs...)
}

// SlogLevel parses LogLevel ("debug", "info", "warn", "error").
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log-level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
