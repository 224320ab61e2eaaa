package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes every environment variable, e.g. TINY_PORT
const EnvPrefix = "TINY"

// Config holds all application configuration.
type Config struct {
	Host            string        `envconfig:"HOST"`
	Port            int           `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
	MaxHeaderBytes  int           `envconfig:"MAX_HEADER_BYTES" default:"8192"`
	MaxBodyBytes    int64         `envconfig:"MAX_BODY_BYTES" default:"1048576"`
	MaxConns        int           `envconfig:"MAX_CONNS" default:"1024"`
	Compression     bool          `envconfig:"COMPRESSION" default:"false"`
	ReusePort       bool          `envconfig:"REUSE_PORT" default:"false"`
	Env             string        `envconfig:"ENV" default:"development"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads TINY_* environment variables, then applies command-line flags
// from args on top. args excludes the program name.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	fs := pflag.NewFlagSet("tiny-server", pflag.ContinueOnError)
	fs.StringVar(&cfg.Host, "host", cfg.Host, "Interface to listen on")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	fs.DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "Time allowed to read a request")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "Time allowed to write a response")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "Grace period for in-flight requests on shutdown")
	fs.IntVar(&cfg.MaxHeaderBytes, "max-header-bytes", cfg.MaxHeaderBytes, "Maximum size of a request head line")
	fs.Int64Var(&cfg.MaxBodyBytes, "max-body-bytes", cfg.MaxBodyBytes, "Maximum request body size")
	fs.IntVar(&cfg.MaxConns, "max-conns", cfg.MaxConns, "Maximum connections served at once")
	fs.BoolVar(&cfg.Compression, "compression", cfg.Compression, "Gzip response bodies for clients that accept it")
	fs.BoolVar(&cfg.ReusePort, "reuse-port", cfg.ReusePort, "Set SO_REUSEPORT on the listener")
	fs.StringVar(&cfg.Env, "env", cfg.Env, "Environment (development/production)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug/info/warn/error)")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges and enumerations
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	if c.ShutdownTimeout < 0 {
		return errors.New("shutdown timeout must not be negative")
	}
	if c.MaxHeaderBytes < 64 {
		return fmt.Errorf("max header bytes %d too small", c.MaxHeaderBytes)
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New("max body bytes must be positive")
	}
	if c.MaxConns <= 0 {
		return errors.New("max conns must be positive")
	}
	switch c.Env {
	case "development", "production":
	default:
		return fmt.Errorf("unknown env %q", c.Env)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	return nil
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// IsProduction reports whether Env is production
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// NewLogger builds a zap logger matching Env and LogLevel
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}

	zc := zap.NewDevelopmentConfig()
	if c.IsProduction() {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
