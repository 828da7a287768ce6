// Package config loads the chat server and terminal client settings from the
// environment.
package config

import (
	"errors"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port      string
	JWTSecret string
	LoginURL  string
	LogLevel  slog.Level

	Backend  BackendConfig
	Realtime RealtimeConfig
	Chat     ChatConfig
	Client   ClientConfig
}

type BackendConfig struct {
	URL       string
	SocketURL string
	Timeout   time.Duration
}

type RealtimeConfig struct {
	MaxRetries uint64
	RetryDelay time.Duration
}

type ChatConfig struct {
	GroupThreshold time.Duration
	SessionTTL     time.Duration
	SendPerMinute  int
	HTTPPerMinute  int
}

// ClientConfig is only read by the terminal client.
type ClientConfig struct {
	Token   string
	LogFile string
}

// Load reads .env (if present) and the process environment. Missing optional
// values fall back to defaults.
func Load() (*Config, error) {
	cfg := read()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadClient is Load for the terminal client: it needs CHAT_TOKEN in place
// of JWT_SECRET, and live updates are skipped when BACKEND_SOCKET_URL is
// unset.
func LoadClient() (*Config, error) {
	cfg := read()
	if err := cfg.validateClient(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func read() *Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("failed to load .env file: %+v", err)
	}

	return &Config{
		Port:      getEnv("PORT", "8080"),
		JWTSecret: os.Getenv("JWT_SECRET"),
		LoginURL:  getEnv("LOGIN_URL", "/account/login"),
		LogLevel:  parseLevel(os.Getenv("LOG_LEVEL")),
		Backend: BackendConfig{
			URL:       strings.TrimRight(os.Getenv("BACKEND_URL"), "/"),
			SocketURL: os.Getenv("BACKEND_SOCKET_URL"),
			Timeout:   getEnvAsDuration("BACKEND_TIMEOUT", 10*time.Second),
		},
		Realtime: RealtimeConfig{
			MaxRetries: uint64(getEnvAsInt("REALTIME_MAX_RETRIES", 5)),
			RetryDelay: getEnvAsDuration("REALTIME_RETRY_DELAY", 2*time.Second),
		},
		Chat: ChatConfig{
			GroupThreshold: getEnvAsDuration("CHAT_GROUP_THRESHOLD", 60*time.Second),
			SessionTTL:     getEnvAsDuration("CHAT_SESSION_TTL", 30*time.Minute),
			SendPerMinute:  getEnvAsInt("SEND_RATE_PER_MIN", 30),
			HTTPPerMinute:  getEnvAsInt("HTTP_RATE_PER_MIN", 300),
		},
		Client: ClientConfig{
			Token:   os.Getenv("CHAT_TOKEN"),
			LogFile: os.Getenv("CHAT_TUI_LOG"),
		},
	}
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is not set")
	}
	if c.Backend.URL == "" {
		return errors.New("BACKEND_URL environment variable is not set")
	}
	if c.Backend.SocketURL == "" {
		return errors.New("BACKEND_SOCKET_URL environment variable is not set")
	}
	if c.Chat.SendPerMinute <= 0 || c.Chat.HTTPPerMinute <= 0 {
		return errors.New("rate limits must be positive")
	}
	return nil
}

func (c *Config) validateClient() error {
	if c.Client.Token == "" {
		return errors.New("CHAT_TOKEN environment variable is not set")
	}
	if c.Backend.URL == "" {
		return errors.New("BACKEND_URL environment variable is not set")
	}
	if c.Chat.SendPerMinute <= 0 {
		return errors.New("rate limits must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
