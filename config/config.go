package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DBPath        string `yaml:"db_path"`
	StorageKey    string `yaml:"storage_key"`
	Network       string `yaml:"network"`
	Address       string `yaml:"address"`
	WSAddress     string `yaml:"ws_address"`
	WSPath        string `yaml:"ws_path"`
	ControlSocket string `yaml:"control_socket"`
	ReadTimeout   int    `yaml:"read_timeout"`  // seconds
	WriteTimeout  int    `yaml:"write_timeout"` // seconds
	TypingTimeout int    `yaml:"typing_timeout_ms"`
	BcryptCost    int    `yaml:"bcrypt_cost"`
	GeminiAPIKey  string `yaml:"gemini_api_key"`
	GeminiModel   string `yaml:"gemini_model"`
	LogLevel      string `yaml:"log_level"`
}

func Default() *Config {
	return &Config{
		DBPath:        "whatschat.db",
		StorageKey:    "whatschat_db_v3",
		Network:       "tcp",
		Address:       "127.0.0.1:3215",
		WSPath:        "/whatschat_realtime",
		ControlSocket: "/tmp/whatschat.sock",
		ReadTimeout:   120,
		WriteTimeout:  30,
		TypingTimeout: 2000,
		BcryptCost:    10,
		GeminiModel:   "gemini-2.5-flash",
		LogLevel:      "info",
	}
}

// Load returns the defaults, overlaid by the YAML file at path (if path is
// not empty) and then by WHATSCHAT_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString("WHATSCHAT_DB_PATH", &c.DBPath)
	setString("WHATSCHAT_STORAGE_KEY", &c.StorageKey)
	setString("WHATSCHAT_NETWORK", &c.Network)
	setString("WHATSCHAT_ADDRESS", &c.Address)
	setString("WHATSCHAT_WS_ADDRESS", &c.WSAddress)
	setString("WHATSCHAT_WS_PATH", &c.WSPath)
	setString("WHATSCHAT_CONTROL_SOCKET", &c.ControlSocket)
	setInt("WHATSCHAT_READ_TIMEOUT", &c.ReadTimeout)
	setInt("WHATSCHAT_WRITE_TIMEOUT", &c.WriteTimeout)
	setInt("WHATSCHAT_TYPING_TIMEOUT_MS", &c.TypingTimeout)
	setInt("WHATSCHAT_BCRYPT_COST", &c.BcryptCost)
	setString("WHATSCHAT_GEMINI_MODEL", &c.GeminiModel)
	setString("WHATSCHAT_LOG_LEVEL", &c.LogLevel)

	// The bare key names used by the Gemini tooling are honoured too.
	setString("GEMINI_API_KEY", &c.GeminiAPIKey)
	setString("API_KEY", &c.GeminiAPIKey)
	setString("WHATSCHAT_GEMINI_API_KEY", &c.GeminiAPIKey)
}

func (c *Config) ReadTimeoutDuration() time.Duration {
	return time.Duration(c.ReadTimeout) * time.Second
}

func (c *Config) WriteTimeoutDuration() time.Duration {
	return time.Duration(c.WriteTimeout) * time.Second
}

func (c *Config) TypingQuietPeriod() time.Duration {
	return time.Duration(c.TypingTimeout) * time.Millisecond
}

// NewLogger builds a production zap logger at the configured level.
func (c *Config) NewLogger() (*zap.Logger, error) {
	return NewLogger(c.LogLevel)
}

func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("config: log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = lvl
	zc.Encoding = "console"
	zc.EncoderConfig.TimeKey = "ts"
	return zc.Build()
}
