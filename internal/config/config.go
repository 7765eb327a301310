package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	AuthModeSession = "session"
	AuthModeBasic   = "basic"
)

var (
	ErrMissingDatabaseDSN = errors.New("DB_DSN is required")
	ErrMissingAdminUser   = errors.New("ADMIN_USER is required")
	ErrMissingBotSecret   = errors.New("BOT_SECRET is required")
	ErrInvalidAuthMode    = errors.New("AUTH_MODE must be 'session' or 'basic'")
)

type Config struct {
	ListenAddr string
	AuthMode   string

	Admin AdminConfig
	Bot   BotConfig
	DB    DBConfig
	Probe ProbeConfig
	Log   LogConfig

	// SecretBoxKeyB64, when set, enables at-rest encryption of stored
	// API keys. 32 bytes after base64 decode.
	SecretBoxKeyB64 string
}

type AdminConfig struct {
	User       string
	Password   string
	SessionTTL time.Duration
}

type BotConfig struct {
	Secret string

	// SeedKeys maps provider name to key value, taken from
	// SEED_KEY_<NAME> variables. Used only on first run.
	SeedKeys map[string]string
}

type DBConfig struct {
	Driver       string
	DSN          string
	AutoMigrate  bool
	LogRetention int
}

type ProbeConfig struct {
	Timeout time.Duration
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr: mustEnv("LISTEN_ADDR", ":8080"),
		AuthMode:   strings.ToLower(mustEnv("AUTH_MODE", AuthModeSession)),
		Admin: AdminConfig{
			User:       mustEnv("ADMIN_USER", "admin"),
			Password:   mustEnv("ADMIN_PASSWORD", "admin123"),
			SessionTTL: mustDuration("SESSION_TTL", 24*time.Hour),
		},
		Bot: BotConfig{
			Secret:   mustEnv("BOT_SECRET", "bot_secret_key"),
			SeedKeys: seedKeysFromEnv(),
		},
		DB: DBConfig{
			Driver:       strings.ToLower(mustEnv("DB_DRIVER", "sqlite")),
			DSN:          mustEnv("DB_DSN", "data/panel.db"),
			AutoMigrate:  mustBool("AUTO_MIGRATE", true),
			LogRetention: mustInt("LOG_RETENTION", 500),
		},
		Probe: ProbeConfig{
			Timeout: mustDuration("PROBE_TIMEOUT", 15*time.Second),
		},
		Log: LogConfig{
			Level: strings.ToLower(mustEnv("LOG_LEVEL", "info")),
		},
		SecretBoxKeyB64: mustEnv("SECRET_BOX_KEY_B64", ""),
	}

	if cfg.DB.DSN == "" {
		return nil, ErrMissingDatabaseDSN
	}
	if cfg.Admin.User == "" {
		return nil, ErrMissingAdminUser
	}
	if cfg.Bot.Secret == "" {
		return nil, ErrMissingBotSecret
	}
	if cfg.AuthMode != AuthModeSession && cfg.AuthMode != AuthModeBasic {
		return nil, ErrInvalidAuthMode
	}
	if cfg.Admin.SessionTTL <= 0 {
		return nil, fmt.Errorf("SESSION_TTL must be positive")
	}
	if cfg.DB.LogRetention <= 0 {
		return nil, fmt.Errorf("LOG_RETENTION must be positive")
	}

	return cfg, nil
}

// seedKeysFromEnv collects SEED_KEY_<NAME>=value pairs. The name part is
// lowercased and becomes both the key name and the provider.
func seedKeysFromEnv() map[string]string {
	out := map[string]string{}
	for _, e := range os.Environ() {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) != 2 {
			continue
		}
		k, v := parts[0], parts[1]
		if !strings.HasPrefix(k, "SEED_KEY_") {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(k, "SEED_KEY_"))
		if name == "" || strings.TrimSpace(v) == "" {
			continue
		}
		out[name] = strings.TrimSpace(v)
	}
	return out
}

func mustEnv(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func mustInt(key string, def int) int {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func mustBool(key string, def bool) bool {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func mustDuration(key string, def time.Duration) time.Duration {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
