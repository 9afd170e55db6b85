package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds all configuration for the telegram bridge.
type Config struct {
	Telegram TelegramConfig `toml:"telegram"`
	Gateway  GatewayConfig  `toml:"gateway"`
	Security SecurityConfig `toml:"security"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Log      LogConfig      `toml:"log"`
}

// TelegramConfig configures the Bot API client. Timeouts are in seconds.
type TelegramConfig struct {
	Token        string `toml:"token"`
	Endpoint     string `toml:"endpoint"`
	PollTimeout  int    `toml:"poll_timeout"`
	ReadTimeout  int    `toml:"read_timeout"`
	WriteTimeout int    `toml:"write_timeout"`
}

type GatewayConfig struct {
	URL          string `toml:"url"`
	Token        string `toml:"token"`
	SessionKey   string `toml:"session_key"`
	SessionsJSON string `toml:"sessions_json"`
}

// SecurityConfig controls who may talk to the agent. Roles map a role name to
// Telegram user ids or @usernames.
type SecurityConfig struct {
	Mode             string              `toml:"mode"`
	Roles            map[string][]string `toml:"roles"`
	DefaultRole      string              `toml:"default_role"`
	DenyMessage      string              `toml:"deny_message"`
	RateLimit        int                 `toml:"rate_limit"`
	RateWindow       int                 `toml:"rate_window"`
	SessionIsolation bool                `toml:"session_isolation"`
}

type MetricsConfig struct {
	Addr string `toml:"addr"`
}

type LogConfig struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
}

// ErrMissingToken is returned by Validate when no bot token is configured.
var ErrMissingToken = errors.New("telegram bot token is not set (TELEGRAM_BOT_TOKEN or [telegram] token)")

func defaults() Config {
	home := os.Getenv("HOME")
	return Config{
		Telegram: TelegramConfig{
			Endpoint:     "https://api.telegram.org",
			PollTimeout:  30,
			ReadTimeout:  5,
			WriteTimeout: 5,
		},
		Gateway: GatewayConfig{
			URL:          "ws://127.0.0.1:18789",
			SessionKey:   "main",
			SessionsJSON: filepath.Join(home, ".openclaw", "agents", "main", "sessions", "sessions.json"),
		},
		Security: SecurityConfig{
			Mode:        "allowlist",
			DefaultRole: "member",
			DenyMessage: "Sorry, this bot is private.",
			RateLimit:   10,
			RateWindow:  60,
		},
		Metrics: MetricsConfig{
			Addr: ":9464",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the TOML config file (if it exists) and
// applies environment variable overrides. Env vars always win.
//
// Config file resolution: TELEGRAM_BRIDGE_CONFIG env var → ~/.config/telegram-bot/config.toml → skip.
func Load() (*Config, error) {
	cfg := defaults()

	path := configPath()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, err
			}
		}
	}

	applyEnv(&cfg)
	return &cfg, nil
}

func configPath() string {
	if p := os.Getenv("TELEGRAM_BRIDGE_CONFIG"); p != "" {
		return expandHome(p)
	}
	home := os.Getenv("HOME")
	if home == "" {
		return ""
	}
	return filepath.Join(home, ".config", "telegram-bot", "config.toml")
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_API_ENDPOINT"); v != "" {
		cfg.Telegram.Endpoint = v
	}
	if v := os.Getenv("TELEGRAM_POLL_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Telegram.PollTimeout = n
		}
	}

	if v := os.Getenv("OPENCLAW_GATEWAY_URL"); v != "" {
		cfg.Gateway.URL = v
	}
	if v := os.Getenv("OPENCLAW_TOKEN"); v != "" {
		cfg.Gateway.Token = v
	}
	if v := os.Getenv("OPENCLAW_SESSION_KEY"); v != "" {
		cfg.Gateway.SessionKey = v
	}
	if v := os.Getenv("OPENCLAW_SESSIONS_JSON"); v != "" {
		cfg.Gateway.SessionsJSON = v
	}

	if v := os.Getenv("TELEGRAM_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("TELEGRAM_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("TELEGRAM_LOG_JSON"); v != "" {
		cfg.Log.JSON = v == "true"
	}
}

// Validate checks that required fields are set and resets out-of-range values
// to their defaults.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return ErrMissingToken
	}

	d := defaults()
	// The Bot API caps long polls well below an hour; 0 would turn long
	// polling into busy polling.
	if c.Telegram.PollTimeout < 1 || c.Telegram.PollTimeout > 600 {
		c.Telegram.PollTimeout = d.Telegram.PollTimeout
	}
	if c.Telegram.ReadTimeout < 1 {
		c.Telegram.ReadTimeout = d.Telegram.ReadTimeout
	}
	if c.Telegram.WriteTimeout < 1 {
		c.Telegram.WriteTimeout = d.Telegram.WriteTimeout
	}
	if c.Telegram.Endpoint == "" {
		c.Telegram.Endpoint = d.Telegram.Endpoint
	}

	mode := strings.ToLower(c.Security.Mode)
	switch mode {
	case "allowlist", "open":
		c.Security.Mode = mode
	default:
		c.Security.Mode = "allowlist"
	}
	if c.Security.RateLimit < 1 {
		c.Security.RateLimit = d.Security.RateLimit
	}
	if c.Security.RateWindow < 1 {
		c.Security.RateWindow = d.Security.RateWindow
	}

	return nil
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home := os.Getenv("HOME"); home != "" {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
