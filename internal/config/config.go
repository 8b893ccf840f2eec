// Package config handles application configuration from environment variables
// and an optional YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendJSON   = "json"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	StoreBackend     string
	DatabasePath     string
	DataPath         string
	LogLevel         string
	AllowedUsers     []int64
	AdminUsers       []int64

	PollInterval    time.Duration
	PollConcurrency int
	HTTPTimeout     time.Duration

	BilibiliSESSDATA string
	RSSHubURL        string

	RenderURL        string
	RenderDir        string
	RenderImages     bool
	RenderAttempts   int
	RenderRetryDelay time.Duration
	RenderTimeout    time.Duration

	MetricsAddr string
	BotName     string
}

// source resolves a key from the environment first, then from the config
// file. An empty environment variable counts as unset.
type source map[string]string

func (s source) get(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	if v, ok := s[key]; ok && v != "" {
		return v
	}
	return def
}

// Load reads configuration from environment variables. When CONFIG_FILE is
// set, its keys (same names as the variables, any case) fill in whatever the
// environment leaves unset.
func Load() (*Config, error) {
	src, err := loadFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}

	token := src.get("TELEGRAM_BOT_TOKEN", "")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	cfg := &Config{
		TelegramBotToken: token,
		StoreBackend:     strings.ToLower(src.get("STORE_BACKEND", BackendSQLite)),
		DatabasePath:     src.get("DATABASE_PATH", "./data/bot.db"),
		DataPath:         src.get("DATA_PATH", "./data/subscriptions.json"),
		LogLevel:         src.get("LOG_LEVEL", "info"),
		BilibiliSESSDATA: src.get("BILIBILI_SESSDATA", ""),
		RSSHubURL:        strings.TrimRight(src.get("RSSHUB_URL", ""), "/"),
		RenderURL:        src.get("RENDER_URL", ""),
		RenderDir:        src.get("RENDER_DIR", "./data/render"),
		MetricsAddr:      src.get("METRICS_ADDR", ""),
		BotName:          src.get("BOT_NAME", "BiliBot"),
	}

	switch cfg.StoreBackend {
	case BackendSQLite, BackendJSON:
	default:
		return nil, fmt.Errorf("invalid STORE_BACKEND %q, use: %s, %s", cfg.StoreBackend, BackendSQLite, BackendJSON)
	}

	if cfg.AllowedUsers, err = parseUserIDs("ALLOWED_USERS", src.get("ALLOWED_USERS", "")); err != nil {
		return nil, err
	}
	if cfg.AdminUsers, err = parseUserIDs("ADMIN_USERS", src.get("ADMIN_USERS", "")); err != nil {
		return nil, err
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"POLL_INTERVAL", "20m", &cfg.PollInterval},
		{"HTTP_TIMEOUT", "15s", &cfg.HTTPTimeout},
		{"RENDER_RETRY_DELAY", "2s", &cfg.RenderRetryDelay},
		{"RENDER_TIMEOUT", "60s", &cfg.RenderTimeout},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(src.get(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		if v < 0 || (v == 0 && d.key == "POLL_INTERVAL") {
			return nil, fmt.Errorf("invalid %s: must be positive", d.key)
		}
		*d.dst = v
	}

	if cfg.PollConcurrency, err = parsePositive("POLL_CONCURRENCY", src.get("POLL_CONCURRENCY", "1")); err != nil {
		return nil, err
	}
	if cfg.RenderAttempts, err = parsePositive("RENDER_ATTEMPTS", src.get("RENDER_ATTEMPTS", "3")); err != nil {
		return nil, err
	}

	if cfg.RenderImages, err = strconv.ParseBool(src.get("RENDER_IMAGES", "true")); err != nil {
		return nil, fmt.Errorf("invalid RENDER_IMAGES: %w", err)
	}

	return cfg, nil
}

func loadFile(path string) (source, error) {
	src := source{}
	if path == "" {
		return src, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	for k, v := range raw {
		key := strings.ToUpper(k)
		switch val := v.(type) {
		case nil:
		case []any:
			parts := make([]string, 0, len(val))
			for _, p := range val {
				parts = append(parts, fmt.Sprint(p))
			}
			src[key] = strings.Join(parts, ",")
		default:
			src[key] = fmt.Sprint(val)
		}
	}
	return src, nil
}

func parseUserIDs(key, raw string) ([]int64, error) {
	var ids []int64
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		uid, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID %q in %s: %w", s, key, err)
		}
		ids = append(ids, uid)
	}
	return ids, nil
}

func parsePositive(key, raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", key, raw)
	}
	return n, nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
// Admins are always allowed.
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return c.IsAdmin(userID)
}

// IsAdmin reports whether a user may run the global commands. An empty
// admin list means nobody can.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminUsers {
		if id == userID {
			return true
		}
	}
	return false
}
