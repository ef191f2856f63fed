package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr       string
	RequestTimeout time.Duration
	LogLevel       string
	LogFormat      string
	UserAgent      string

	WebshareEndpoint string
	WebshareUsername string
	WebsharePassword string
	SearchLimit      int
	SearchCategory   string

	PyloadURL      string
	PyloadUsername string
	PyloadPassword string

	PreferredLanguage string
	MinQuality        string
	MaxSizeBytes      int64
	TopCandidates     int

	MongoURI      string
	MongoDatabase string
	RedisURL      string

	CacheTTL         time.Duration
	CacheDisabled    bool
	PendingTTL       time.Duration
	HistoryRetention time.Duration
	SweepInterval    time.Duration
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		RequestTimeout: time.Duration(getEnvInt("SEARCH_TIMEOUT_SECONDS", 15)) * time.Second,
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:      strings.ToLower(getEnv("LOG_FORMAT", "text")),
		UserAgent:      getEnv("HTTP_USER_AGENT", "webshare-arr-connector/1.0"),

		WebshareEndpoint: getEnv("WEBSHARE_ENDPOINT", "https://webshare.cz/api"),
		WebshareUsername: strings.TrimSpace(os.Getenv("WEBSHARE_USERNAME")),
		WebsharePassword: strings.TrimSpace(os.Getenv("WEBSHARE_PASSWORD")),
		SearchLimit:      getEnvInt("WEBSHARE_SEARCH_LIMIT", 50),
		SearchCategory:   getEnv("WEBSHARE_SEARCH_CATEGORY", "video"),

		PyloadURL:      getEnv("PYLOAD_URL", "http://localhost:8000"),
		PyloadUsername: strings.TrimSpace(os.Getenv("PYLOAD_USERNAME")),
		PyloadPassword: strings.TrimSpace(os.Getenv("PYLOAD_PASSWORD")),

		PreferredLanguage: strings.ToLower(getEnv("PREFERRED_LANGUAGE", "cs")),
		MinQuality:        strings.ToLower(getEnv("RANK_MIN_QUALITY", "720p")),
		MaxSizeBytes:      getEnvInt64("RANK_MAX_SIZE_BYTES", 50<<30),
		TopCandidates:     getEnvInt("RANK_TOP_CANDIDATES", 5),

		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGO_DB", "webshare_arr"),
		RedisURL:      getEnv("REDIS_URL", ""),

		CacheTTL:         time.Duration(getEnvInt("SEARCH_CACHE_TTL_HOURS", 168)) * time.Hour,
		CacheDisabled:    getEnvBool("SEARCH_CACHE_DISABLED", false),
		PendingTTL:       time.Duration(getEnvInt("PENDING_TTL_HOURS", 168)) * time.Hour,
		HistoryRetention: time.Duration(getEnvInt("HISTORY_RETENTION_DAYS", 30)) * 24 * time.Hour,
		SweepInterval:    time.Duration(getEnvInt("SWEEP_INTERVAL_MINUTES", 60)) * time.Minute,
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvInt64(key string, fallback int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
