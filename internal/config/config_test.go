package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"CASETIMER_CONFIG", "CASETIMER_API_URL", "CASETIMER_API_TOKEN", "MYSQL_DSN", "HTTP_ADDR",
		"CASETIMER_AUTH_TOKENS", "CASETIMER_TICK_INTERVAL", "CASETIMER_ACTOR_ID", "CASETIMER_ACTOR_NAME", "LOG_LEVEL",
		"MYSQL_MAX_OPEN_CONNS", "MYSQL_MAX_IDLE_CONNS", "MYSQL_CONN_MAX_LIFETIME",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.BaseURL != "http://localhost:8080" || cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Timer.TickInterval != time.Second {
		t.Fatalf("tick interval = %v", cfg.Timer.TickInterval)
	}
	if cfg.LogLevel() != slog.LevelInfo {
		t.Fatalf("log level = %v", cfg.LogLevel())
	}
	if cfg.MySQL.MaxOpenConns != 10 || cfg.MySQL.MaxIdleConns != 5 || cfg.MySQL.ConnMaxLifetime != 30*time.Minute {
		t.Fatalf("mysql pool = %+v", cfg.MySQL)
	}
}

func TestLoadMySQLPool(t *testing.T) {
	clearEnv(t)
	t.Setenv("MYSQL_MAX_OPEN_CONNS", "20")
	t.Setenv("MYSQL_CONN_MAX_LIFETIME", "5m")

	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
mysql:
  max_open_conns: 3
  max_idle_conns: 2
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MySQL.MaxOpenConns != 20 || cfg.MySQL.MaxIdleConns != 2 || cfg.MySQL.ConnMaxLifetime != 5*time.Minute {
		t.Fatalf("mysql pool = %+v", cfg.MySQL)
	}

	t.Setenv("MYSQL_MAX_IDLE_CONNS", "many")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for invalid MYSQL_MAX_IDLE_CONNS")
	}
}

func TestLoadFileWithPlaceholdersAndOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_DB_PASSWORD", "s3cret")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("CASETIMER_AUTH_TOKENS", "a, b ,,c")

	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
api:
  base_url: https://cases.example.com
  token: tok
mysql:
  dsn: app:${TEST_DB_PASSWORD}@tcp(db:3306)/cases?parseTime=true
server:
  addr: ":7070"
timer:
  tick_interval: 250ms
  actor_name: Dana
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MySQL.DSN != "app:s3cret@tcp(db:3306)/cases?parseTime=true" {
		t.Errorf("dsn = %q", cfg.MySQL.DSN)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q, env should win", cfg.Server.Addr)
	}
	if len(cfg.Server.AuthTokens) != 3 || cfg.Server.AuthTokens[1] != "b" {
		t.Errorf("auth tokens = %q", cfg.Server.AuthTokens)
	}
	if cfg.Timer.TickInterval != 250*time.Millisecond || cfg.Timer.ActorName != "Dana" {
		t.Errorf("timer = %+v", cfg.Timer)
	}
	if cfg.API.BaseURL != "https://cases.example.com" || cfg.API.Token != "tok" {
		t.Errorf("api = %+v", cfg.API)
	}
	if cfg.LogLevel() != slog.LevelDebug {
		t.Errorf("log level = %v", cfg.LogLevel())
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "loud")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for invalid log level")
	}
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("CASETIMER_TICK_INTERVAL", "soon")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for invalid tick interval")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
