package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"swaft/internal/avatar"
)

type Config struct {
	Addr      string
	DSN       string
	RedisAddr string

	JWTSecret     string
	SessionTTL    time.Duration
	SecureCookies bool

	OAuthClientID     string
	OAuthClientSecret string
	OAuthRedirectURL  string

	ImageDomains  []string
	DefaultAvatar string

	// AllowedOrigins are extra browser origins allowed to open /ws.
	AllowedOrigins []string

	// ChatMountDelay gates auto-scroll after the chat widget opens.
	ChatMountDelay time.Duration
}

// Load reads the configuration from the environment (Docker style).
func Load() (*Config, error) {
	cfg := &Config{
		Addr:              ":8080",
		DSN:               os.Getenv("DB_DSN"),
		RedisAddr:         getenv("REDIS_ADDR", "localhost:6379"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		SessionTTL:        24 * time.Hour,
		OAuthClientID:     os.Getenv("OAUTH_CLIENT_ID"),
		OAuthClientSecret: os.Getenv("OAUTH_CLIENT_SECRET"),
		OAuthRedirectURL:  getenv("OAUTH_REDIRECT_URL", "http://localhost:8080/auth/discord/callback"),
		ImageDomains:      avatar.DefaultDomains,
		DefaultAvatar:     getenv("DEFAULT_AVATAR", avatar.DefaultURL),
		ChatMountDelay:    100 * time.Millisecond,
	}

	if v := os.Getenv("IMAGE_DOMAINS"); v != "" {
		cfg.ImageDomains = splitList(v)
	}
	cfg.AllowedOrigins = splitList(os.Getenv("ALLOWED_ORIGINS"))

	var err error
	if cfg.SessionTTL, err = durationEnv("SESSION_TTL", cfg.SessionTTL); err != nil {
		return nil, err
	}
	if cfg.ChatMountDelay, err = durationEnv("CHAT_MOUNT_DELAY", cfg.ChatMountDelay); err != nil {
		return nil, err
	}
	if v := os.Getenv("COOKIE_SECURE"); v != "" {
		if cfg.SecureCookies, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("COOKIE_SECURE: %w", err)
		}
	}
	return cfg, nil
}

// Validate reports the first missing or unusable setting.
func (c *Config) Validate() error {
	switch {
	case c.DSN == "":
		return errors.New("DB_DSN is not set")
	case c.JWTSecret == "":
		return errors.New("JWT_SECRET is not set")
	case c.RedisAddr == "":
		return errors.New("REDIS_ADDR is empty")
	case c.OAuthClientID == "" || c.OAuthClientSecret == "":
		return errors.New("OAUTH_CLIENT_ID and OAUTH_CLIENT_SECRET must be set")
	case c.SessionTTL <= 0:
		return errors.New("SESSION_TTL must be positive")
	case c.ChatMountDelay < 0:
		return errors.New("CHAT_MOUNT_DELAY cannot be negative")
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
