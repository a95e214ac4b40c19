package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/zombar/aletheia/internal/classifier"
	"github.com/zombar/aletheia/internal/drift"
	"github.com/zombar/aletheia/internal/lexicon"
)

// serverConfig is read from the environment first, then flags
type serverConfig struct {
	Port        string
	DBPath      string
	RedisAddr   string
	Concurrency int
	LexiconPath string
	MinLength   int
	MaxLength   int
	HistorySize int
	RateLimit   float64
	RateBurst   int
	LogLevel    string
	LogFormat   string
}

func loadConfig(args []string) (serverConfig, error) {
	var cfg serverConfig

	fs := flag.NewFlagSet("aletheia-server", flag.ContinueOnError)
	fs.StringVar(&cfg.Port, "port", getEnv("PORT", "8080"), "Server port (env: PORT)")
	fs.StringVar(&cfg.DBPath, "db", getEnv("DB_PATH", "aletheia.db"), "SQLite path or PostgreSQL URL (env: DB_PATH)")
	fs.StringVar(&cfg.RedisAddr, "redis", getEnv("REDIS_ADDR", ""), "Redis address for the batch queue, empty disables it (env: REDIS_ADDR)")
	fs.IntVar(&cfg.Concurrency, "workers", getEnvInt("WORKER_CONCURRENCY", 4), "Queue worker concurrency (env: WORKER_CONCURRENCY)")
	fs.StringVar(&cfg.LexiconPath, "lexicon", getEnv("LEXICON_PATH", ""), "YAML category table, empty uses the built-in one (env: LEXICON_PATH)")
	fs.IntVar(&cfg.MinLength, "min-length", getEnvInt("MIN_TEXT_LENGTH", classifier.DefaultMinLength), "Minimum text length in characters (env: MIN_TEXT_LENGTH)")
	fs.IntVar(&cfg.MaxLength, "max-length", getEnvInt("MAX_TEXT_LENGTH", classifier.DefaultMaxLength), "Maximum text length in characters (env: MAX_TEXT_LENGTH)")
	fs.IntVar(&cfg.HistorySize, "history", getEnvInt("HISTORY_SIZE", drift.DefaultConfig().HistorySize), "Drift snapshots kept per subject (env: HISTORY_SIZE)")
	fs.Float64Var(&cfg.RateLimit, "rate-limit", getEnvFloat("RATE_LIMIT_RPS", 10), "Requests per second per client, 0 disables (env: RATE_LIMIT_RPS)")
	fs.IntVar(&cfg.RateBurst, "rate-burst", getEnvInt("RATE_LIMIT_BURST", 20), "Burst size per client (env: RATE_LIMIT_BURST)")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "debug, info, warn or error (env: LOG_LEVEL)")
	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "json"), "json or text (env: LOG_FORMAT)")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if cfg.MinLength < 0 || cfg.MaxLength < 0 {
		return cfg, fmt.Errorf("text length bounds must not be negative")
	}
	if cfg.MaxLength > 0 && cfg.MinLength > cfg.MaxLength {
		return cfg, fmt.Errorf("min length %d exceeds max length %d", cfg.MinLength, cfg.MaxLength)
	}
	if cfg.HistorySize < 1 {
		return cfg, fmt.Errorf("history size must be at least 1, got %d", cfg.HistorySize)
	}
	return cfg, nil
}

// loadTable reads the category table from path, or the built-in one
func loadTable(path string) (*lexicon.Table, error) {
	if path == "" {
		return lexicon.Default()
	}
	return lexicon.LoadFile(path)
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
