package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App struct {
		ENV string
	}

	Log struct {
		Level     string
		Format    string
		Component string
		Source    bool
	}

	DB struct {
		Driver     string
		DSN        string
		Host       string
		Port       string
		User       string
		Password   string
		Name       string
		SQLitePath string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	HTTP struct {
		Host string
		Port string
	}

	GRPC struct {
		Host string
		Port string
	}

	Auth struct {
		JWTSecret string
	}

	Quota struct {
		FreeDailyLimit int
	}

	Plan struct {
		NearFullRatio float64
	}

	Realtime struct {
		SendBuffer          int
		TypingRatePerSec    float64
		TypingRequiresMatch bool
	}

	Jobs struct {
		StreakWarningCron string
	}

	Lock struct {
		Backend string
		TTL     time.Duration
	}
}

// New builds the config from the process environment. A .env file in the
// working directory is loaded first when present; real env vars win.
func New() *Config {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.App.ENV = getEnvDefault("APP_ENV", "development")

	// Logger
	cfg.Log.Level = getEnvDefault("LOG_LEVEL", "info")
	cfg.Log.Format = getEnvDefault("LOG_FORMAT", "text")
	cfg.Log.Component = getEnvDefault("LOG_COMPONENT", "engine")
	cfg.Log.Source = isTruthy(os.Getenv("LOG_SOURCE"))

	// Database
	cfg.DB.Driver = strings.ToLower(getEnvDefault("DB_DRIVER", "mysql"))
	cfg.DB.SQLitePath = getEnvDefault("SQLITE_PATH", "campusmatch.db")
	cfg.DB.DSN = os.Getenv("MYSQL_DSN")
	if cfg.DB.DSN == "" {
		cfg.DB.Host = getEnvDefault("DB_HOST", "localhost")
		cfg.DB.Port = getEnvDefault("DB_PORT", "3306")
		cfg.DB.User = getEnvDefault("DB_USER", "root")
		cfg.DB.Password = getEnvDefault("DB_PASSWORD", "root")
		cfg.DB.Name = getEnvDefault("DB_NAME", "campusmatch")

		cfg.DB.DSN = fmt.Sprintf(
			"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
			cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name,
		)
	}

	// Redis
	cfg.Redis.Addr = getEnvDefault("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnvDefault("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	// Transports
	cfg.HTTP.Host = getEnvDefault("HTTP_HOST", "0.0.0.0")
	cfg.HTTP.Port = getEnvDefault("HTTP_PORT", "8080")
	cfg.GRPC.Host = getEnvDefault("GRPC_HOST", "127.0.0.1")
	cfg.GRPC.Port = getEnvDefault("GRPC_PORT", "50051")

	cfg.Auth.JWTSecret = getEnvDefault("JWT_SECRET", "dev-secret-change-me")

	// Engine policy
	cfg.Quota.FreeDailyLimit = getEnvInt("FREE_DAILY_SWIPES", 20)
	cfg.Plan.NearFullRatio = getEnvFloat("PLAN_NEAR_FULL_RATIO", 0.8)

	cfg.Realtime.SendBuffer = getEnvInt("REALTIME_SEND_BUFFER", 64)
	cfg.Realtime.TypingRatePerSec = getEnvFloat("TYPING_RATE_PER_SEC", 5)
	cfg.Realtime.TypingRequiresMatch = isTruthy(getEnvDefault("TYPING_REQUIRES_MATCH", "true"))

	cfg.Jobs.StreakWarningCron = getEnvDefault("STREAK_WARNING_CRON", "0 18 * * *")

	cfg.Lock.Backend = strings.ToLower(getEnvDefault("LOCK_BACKEND", "local"))
	cfg.Lock.TTL = getEnvDuration("LOCK_TTL", 5*time.Second)

	return cfg
}

func getEnvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	if n, err := strconv.Atoi(getEnvDefault(k, "")); err == nil {
		return n
	}
	return def
}

func getEnvFloat(k string, def float64) float64 {
	if f, err := strconv.ParseFloat(getEnvDefault(k, ""), 64); err == nil {
		return f
	}
	return def
}

func getEnvDuration(k string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(getEnvDefault(k, "")); err == nil {
		return d
	}
	return def
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
