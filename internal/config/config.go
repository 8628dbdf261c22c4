package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig holds server configuration, loaded from CHAT_* environment
// variables with sensible defaults.
type ServerConfig struct {
	Port              string
	Env               string
	CacheCapacity     int
	IdleTimeout       time.Duration
	SweepInterval     time.Duration
	MaxMessageLength  int
	RateLimitMessages int
	RateLimitWindow   time.Duration
	EnableRateLimit   bool
	EnableMongo       bool
	MongoURI          string
	MongoDatabase     string
	AdminUsers        []string
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getint(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func getbool(key string, def bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func getduration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

// Load reads configuration from the environment.
func Load() *ServerConfig {
	cfg := &ServerConfig{
		Port:              getenv("CHAT_PORT", "8080"),
		Env:               getenv("CHAT_ENV", "dev"),
		CacheCapacity:     getint("CHAT_CACHE_CAPACITY", 30),
		IdleTimeout:       getduration("CHAT_IDLE_TIMEOUT", 15*time.Minute),
		SweepInterval:     getduration("CHAT_SWEEP_INTERVAL", time.Minute),
		MaxMessageLength:  getint("CHAT_MAX_MESSAGE_LENGTH", 1000),
		RateLimitMessages: getint("CHAT_RATE_LIMIT_MESSAGES", 10),
		RateLimitWindow:   getduration("CHAT_RATE_LIMIT_WINDOW", time.Minute),
		EnableRateLimit:   getbool("CHAT_ENABLE_RATE_LIMIT", true),
		EnableMongo:       getbool("CHAT_ENABLE_MONGO", false),
		MongoURI:          getenv("CHAT_MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:     getenv("CHAT_MONGO_DATABASE", "chat_core"),
	}
	if admins := os.Getenv("CHAT_ADMIN_USERS"); admins != "" {
		for _, name := range strings.Split(admins, ",") {
			if name = strings.TrimSpace(name); name != "" {
				cfg.AdminUsers = append(cfg.AdminUsers, name)
			}
		}
	}
	return cfg
}
