package env

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

const (
	DefaultReconnectDelay = 5 * time.Second
	DefaultLogLevel       = "info"
	DefaultLogEncoding    = "json"
	DefaultHTTPAddr       = "127.0.0.1:7362"
)

var ErrMissingSocketPath = errors.New("No daemon socket configured, set SOCKRPC_SOCKET_PATH or --socket")

type Config struct {
	SocketPath     string        `toml:"socketPath" env:"SOCKRPC_SOCKET_PATH"`
	ReconnectDelay time.Duration `toml:"reconnectDelay" env:"SOCKRPC_RECONNECT_DELAY"`
	LogLevel       string        `toml:"logLevel" env:"SOCKRPC_LOG_LEVEL"`
	LogEncoding    string        `toml:"logEncoding" env:"SOCKRPC_LOG_ENCODING"`
	HTTPAddr       string        `toml:"httpAddr" env:"SOCKRPC_HTTP_ADDR"`
	DebugHTTP      bool          `toml:"debugHTTP" env:"SOCKRPC_DEBUG_HTTP"`
}

func DefaultConfig() Config {
	return Config{
		ReconnectDelay: DefaultReconnectDelay,
		LogLevel:       DefaultLogLevel,
		LogEncoding:    DefaultLogEncoding,
		HTTPAddr:       DefaultHTTPAddr,
	}
}

// LoadConfig builds the configuration from the defaults, the TOML file at
// path when path is not empty, `.env.local` and finally the environment.
// Later sources override earlier ones.
func LoadConfig(ctx context.Context, path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		if _, err := toml.DecodeFile(path, &config); err != nil {
			return nil, fmt.Errorf("Failed to read config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(".env.local"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("Failed to load .env.local: %w", err)
	}

	// envconfig leaves non-zero fields alone, so the environment is read into
	// an empty Config and merged on top
	overrides := Config{}
	if err := envconfig.Process(ctx, &overrides); err != nil {
		return nil, err
	}

	config.merge(overrides)

	return &config, nil
}

// RequireSocketPath returns ErrMissingSocketPath when no socket is configured.
func (c *Config) RequireSocketPath() error {
	if c.SocketPath == "" {
		return ErrMissingSocketPath
	}

	return nil
}

func (c *Config) merge(o Config) {
	if o.SocketPath != "" {
		c.SocketPath = o.SocketPath
	}
	if o.ReconnectDelay > 0 {
		c.ReconnectDelay = o.ReconnectDelay
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.LogEncoding != "" {
		c.LogEncoding = o.LogEncoding
	}
	if o.HTTPAddr != "" {
		c.HTTPAddr = o.HTTPAddr
	}
	if o.DebugHTTP {
		c.DebugHTTP = true
	}
}
