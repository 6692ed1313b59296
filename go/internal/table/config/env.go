package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ServerConfig is the process configuration read from the environment
type ServerConfig struct {
	Port               string        `env:"PORT" envDefault:"8081"`
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat          string        `env:"LOG_FORMAT" envDefault:"console"`
	RulesPath          string        `env:"RULES_PATH"`
	NATSURL            string        `env:"NATS_URL"`
	NATSStream         string        `env:"NATS_STREAM" envDefault:"TABLE_EVENTS"`
	NATSSubjectPrefix  string        `env:"NATS_SUBJECT_PREFIX" envDefault:"table.events"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// MirrorEnabled reports whether table events should be mirrored to NATS
func (c ServerConfig) MirrorEnabled() bool {
	return c.NATSURL != ""
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// ParseEnvFrom loads configuration from the given variables instead of the process environment
func ParseEnvFrom(target any, environment map[string]string) error {
	if err := env.ParseWithOptions(target, env.Options{Environment: environment}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadDotEnv loads the given .env files into the process environment.
// Missing files are not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// LoadServer reads the optional .env file and then the environment
func LoadServer() (ServerConfig, error) {
	if err := LoadDotEnv(); err != nil {
		return ServerConfig{}, err
	}
	var cfg ServerConfig
	if err := ParseEnv(&cfg); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}
