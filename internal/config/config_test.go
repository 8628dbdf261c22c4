package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CHAT_PORT", "CHAT_ENV", "CHAT_CACHE_CAPACITY", "CHAT_IDLE_TIMEOUT",
		"CHAT_SWEEP_INTERVAL", "CHAT_MAX_MESSAGE_LENGTH", "CHAT_RATE_LIMIT_MESSAGES",
		"CHAT_RATE_LIMIT_WINDOW", "CHAT_ENABLE_RATE_LIMIT", "CHAT_ENABLE_MONGO",
		"CHAT_MONGO_URI", "CHAT_MONGO_DATABASE", "CHAT_ADMIN_USERS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port: got %q, want 8080", cfg.Port)
	}
	if cfg.Env != "dev" {
		t.Errorf("Env: got %q, want dev", cfg.Env)
	}
	if cfg.CacheCapacity != 30 {
		t.Errorf("CacheCapacity: got %d, want 30", cfg.CacheCapacity)
	}
	if cfg.IdleTimeout != 15*time.Minute {
		t.Errorf("IdleTimeout: got %v, want 15m", cfg.IdleTimeout)
	}
	if !cfg.EnableRateLimit {
		t.Error("EnableRateLimit: got false, want true")
	}
	if cfg.EnableMongo {
		t.Error("EnableMongo: got true, want false")
	}
	if len(cfg.AdminUsers) != 0 {
		t.Errorf("AdminUsers: got %v, want empty", cfg.AdminUsers)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHAT_PORT", "9999")
	t.Setenv("CHAT_ENV", "prod")
	t.Setenv("CHAT_CACHE_CAPACITY", "100")
	t.Setenv("CHAT_IDLE_TIMEOUT", "1h")
	t.Setenv("CHAT_ENABLE_RATE_LIMIT", "false")
	t.Setenv("CHAT_ENABLE_MONGO", "true")
	t.Setenv("CHAT_MONGO_URI", "mongodb://db:27017")

	cfg := Load()
	if cfg.Port != "9999" || cfg.Env != "prod" {
		t.Errorf("got port %q env %q", cfg.Port, cfg.Env)
	}
	if cfg.CacheCapacity != 100 {
		t.Errorf("CacheCapacity: got %d, want 100", cfg.CacheCapacity)
	}
	if cfg.IdleTimeout != time.Hour {
		t.Errorf("IdleTimeout: got %v, want 1h", cfg.IdleTimeout)
	}
	if cfg.EnableRateLimit {
		t.Error("EnableRateLimit override ignored")
	}
	if !cfg.EnableMongo || cfg.MongoURI != "mongodb://db:27017" {
		t.Errorf("mongo settings: %v %q", cfg.EnableMongo, cfg.MongoURI)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHAT_CACHE_CAPACITY", "lots")
	t.Setenv("CHAT_IDLE_TIMEOUT", "soon")
	t.Setenv("CHAT_ENABLE_MONGO", "yep")

	cfg := Load()
	if cfg.CacheCapacity != 30 {
		t.Errorf("CacheCapacity: got %d, want default 30", cfg.CacheCapacity)
	}
	if cfg.IdleTimeout != 15*time.Minute {
		t.Errorf("IdleTimeout: got %v, want default 15m", cfg.IdleTimeout)
	}
	if cfg.EnableMongo {
		t.Error("malformed bool flipped EnableMongo")
	}
}

func TestAdminUsersParsing(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHAT_ADMIN_USERS", " root, admin ,,ops ")

	cfg := Load()
	want := []string{"root", "admin", "ops"}
	if len(cfg.AdminUsers) != len(want) {
		t.Fatalf("AdminUsers: got %v, want %v", cfg.AdminUsers, want)
	}
	for i, name := range want {
		if cfg.AdminUsers[i] != name {
			t.Errorf("AdminUsers[%d]: got %q, want %q", i, cfg.AdminUsers[i], name)
		}
	}
}
