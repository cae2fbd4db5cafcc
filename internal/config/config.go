package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds file- and environment-driven configuration.
// Environment variables override values from the YAML file.
type Config struct {
	API struct {
		BaseURL string `yaml:"base_url"` // env CASETIMER_API_URL, default http://localhost:8080
		Token   string `yaml:"token"`    // env CASETIMER_API_TOKEN
	} `yaml:"api"`
	MySQL struct {
		DSN             string        `yaml:"dsn"`               // env MYSQL_DSN, e.g. user:pass@tcp(host:3306)/db?parseTime=true&multiStatements=true
		MaxOpenConns    int           `yaml:"max_open_conns"`    // env MYSQL_MAX_OPEN_CONNS, default 10
		MaxIdleConns    int           `yaml:"max_idle_conns"`    // env MYSQL_MAX_IDLE_CONNS, default 5
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"` // env MYSQL_CONN_MAX_LIFETIME, default 30m
	} `yaml:"mysql"`
	Server struct {
		Addr       string   `yaml:"addr"`        // env HTTP_ADDR, default :8080
		AuthTokens []string `yaml:"auth_tokens"` // env CASETIMER_AUTH_TOKENS (comma separated); empty disables auth
	} `yaml:"server"`
	Timer struct {
		TickInterval time.Duration `yaml:"tick_interval"` // default 1s
		ActorID      string        `yaml:"actor_id"`      // env CASETIMER_ACTOR_ID
		ActorName    string        `yaml:"actor_name"`    // env CASETIMER_ACTOR_NAME
	} `yaml:"timer"`
	Log struct {
		Level string `yaml:"level"` // env LOG_LEVEL: debug, info, warn, error
	} `yaml:"log"`
}

// Load reads the optional YAML file at path (or $CASETIMER_CONFIG when path is
// empty), expands ${VAR} placeholders in it, and applies environment overrides.
func Load(path string) (Config, error) {
	var cfg Config

	if path == "" {
		path = os.Getenv("CASETIMER_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(expandEnv(string(data))), &cfg); err != nil {
			return cfg, fmt.Errorf("error parsing config: %w", err)
		}
	}

	override(&cfg.API.BaseURL, "CASETIMER_API_URL")
	override(&cfg.API.Token, "CASETIMER_API_TOKEN")
	override(&cfg.MySQL.DSN, "MYSQL_DSN")
	override(&cfg.Server.Addr, "HTTP_ADDR")
	override(&cfg.Timer.ActorID, "CASETIMER_ACTOR_ID")
	override(&cfg.Timer.ActorName, "CASETIMER_ACTOR_NAME")
	override(&cfg.Log.Level, "LOG_LEVEL")
	if v := os.Getenv("CASETIMER_AUTH_TOKENS"); v != "" {
		cfg.Server.AuthTokens = splitList(v)
	}
	if err := overrideDuration(&cfg.Timer.TickInterval, "CASETIMER_TICK_INTERVAL"); err != nil {
		return cfg, err
	}
	if err := overrideInt(&cfg.MySQL.MaxOpenConns, "MYSQL_MAX_OPEN_CONNS"); err != nil {
		return cfg, err
	}
	if err := overrideInt(&cfg.MySQL.MaxIdleConns, "MYSQL_MAX_IDLE_CONNS"); err != nil {
		return cfg, err
	}
	if err := overrideDuration(&cfg.MySQL.ConnMaxLifetime, "MYSQL_CONN_MAX_LIFETIME"); err != nil {
		return cfg, err
	}

	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = "http://localhost:8080"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Timer.TickInterval <= 0 {
		cfg.Timer.TickInterval = time.Second
	}
	if cfg.MySQL.MaxOpenConns <= 0 {
		cfg.MySQL.MaxOpenConns = 10
	}
	if cfg.MySQL.MaxIdleConns <= 0 {
		cfg.MySQL.MaxIdleConns = 5
	}
	if cfg.MySQL.ConnMaxLifetime <= 0 {
		cfg.MySQL.ConnMaxLifetime = 30 * time.Minute
	}
	if _, err := parseLevel(cfg.Log.Level); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LogLevel returns the configured slog level, info by default.
func (c Config) LogLevel() slog.Level {
	l, _ := parseLevel(c.Log.Level)
	return l
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} with the variable's value. Unset variables are left as is.
func expandEnv(s string) string {
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		if v, ok := os.LookupEnv(m[2 : len(m)-1]); ok {
			return v
		}
		return m
	})
}

func override(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func overrideInt(dst *int, env string) error {
	if v := os.Getenv(env); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s value: %w", env, err)
		}
		*dst = n
	}
	return nil
}

func overrideDuration(dst *time.Duration, env string) error {
	if v := os.Getenv(env); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s value: %w", env, err)
		}
		*dst = d
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
