package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// init loads .env files for local development. Variables already present in
// the process environment take precedence.
func init() {
	for _, name := range []string{".env", ".env.local"} {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", name, err)
		}
	}
}

type Config struct {
	ServerAddr string
	LogLevel   string
	LogFormat  string
	JWTSecret  string
	// CORSAllowedOrigins lists browser origins the API answers. Empty allows all.
	CORSAllowedOrigins []string

	MySQLEnabled bool
	DBHost       string
	DBPort       string
	DBUser       string
	DBPass       string
	DBName       string

	RedisEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	RabbitMQEnabled  bool
	RabbitMQURL      string
	RabbitMQHost     string
	RabbitMQPort     string
	RabbitMQUser     string
	RabbitMQPass     string
	RabbitMQVhost    string
	RabbitMQPrefetch int
	// RabbitMQPrefix names the item retry exchanges and queues.
	RabbitMQPrefix string

	NATSURL        string
	TracingEnabled bool

	// content source gateway
	SourceBaseURL   string
	SourceCookie    string
	SourceUserAgent string
	SourceReferer   string
	SourceProxy     string
	SourceTimeout   time.Duration
	SourceRate      float64
	SourceBurst     int

	EnumPageSize    int
	EnumRetryDelays []time.Duration

	DownloadDir             string
	DownloadItemConcurrency int
	DownloadMaxActiveJobs   int
	DownloadMediaTimeout    time.Duration
	DownloadMaxBytes        int64
	DownloadKeepLocal       bool

	OperationRetention     time.Duration
	OperationSweepInterval time.Duration
	ProfileCacheTTL        time.Duration

	LiveMaxDuration  time.Duration
	LivePollInterval time.Duration
	LiveLockTTL      time.Duration
	LiveSegmentDir   string

	RetryWorkerConcurrency int
	RetryRate              float64
	RetryBurst             int
	RetryMax               int
	RetryDelays            []time.Duration

	Storage StorageConfig
}

var AppConfig Config

// getEnv returns the environment value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvBool(key string, defaultValue bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if value == "" {
		return defaultValue
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvDurationList(key string, defaultValue []time.Duration) []time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	parts := strings.Split(raw, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		parsed, err := time.ParseDuration(part)
		if err != nil {
			return defaultValue
		}
		out = append(out, parsed)
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// Load reads the configuration from the environment.
func Load() Config {
	rabbitHost := getEnv("RABBITMQ_HOST", "localhost")
	rabbitPort := getEnv("RABBITMQ_PORT", "5672")
	rabbitUser := getEnv("RABBITMQ_USER", "guest")
	rabbitPass := getEnv("RABBITMQ_PASSWORD", "guest")
	rabbitVhost := getEnv("RABBITMQ_VHOST", "/")
	rabbitURL := getEnv("RABBITMQ_URL", "")
	if rabbitURL == "" {
		rabbitURL = fmt.Sprintf(
			"amqp://%s:%s@%s:%s/%s",
			url.PathEscape(rabbitUser),
			url.PathEscape(rabbitPass),
			rabbitHost,
			rabbitPort,
			url.PathEscape(rabbitVhost),
		)
	}
	return Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8000"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFormat:  getEnv("LOG_FORMAT", "json"),
		JWTSecret:  getEnv("JWT_SECRET", ""),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),

		MySQLEnabled: getEnvBool("MYSQL_ENABLED", false),
		DBHost:       getEnv("DB_HOST", "localhost"),
		DBPort:       getEnv("DB_PORT", "3306"),
		DBUser:       getEnv("DB_USER", "root"),
		DBPass:       getEnv("DB_PASS", "root"),
		DBName:       getEnv("DB_NAME", "dyvine"),

		RedisEnabled:  getEnvBool("REDIS_ENABLED", false),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RabbitMQEnabled:  getEnvBool("RABBITMQ_ENABLED", false),
		RabbitMQURL:      rabbitURL,
		RabbitMQHost:     rabbitHost,
		RabbitMQPort:     rabbitPort,
		RabbitMQUser:     rabbitUser,
		RabbitMQPass:     rabbitPass,
		RabbitMQVhost:    rabbitVhost,
		RabbitMQPrefetch: getEnvInt("RABBITMQ_PREFETCH", 8),
		RabbitMQPrefix:   getEnv("RABBITMQ_PREFIX", "dyvine.item"),

		NATSURL:        getEnv("NATS_URL", ""),
		TracingEnabled: getEnvBool("TRACING_ENABLED", false),

		SourceBaseURL:   getEnv("SOURCE_BASE_URL", "http://localhost:8080"),
		SourceCookie:    getEnv("SOURCE_COOKIE", ""),
		SourceUserAgent: getEnv("SOURCE_USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
		SourceReferer:   getEnv("SOURCE_REFERER", "https://www.douyin.com/"),
		SourceProxy:     getEnv("SOURCE_PROXY", ""),
		SourceTimeout:   getEnvDuration("SOURCE_TIMEOUT", 15*time.Second),
		SourceRate:      getEnvFloat("SOURCE_RATE", 5),
		SourceBurst:     getEnvInt("SOURCE_BURST", 5),

		EnumPageSize:    getEnvInt("ENUM_PAGE_SIZE", 20),
		EnumRetryDelays: getEnvDurationList("ENUM_RETRY_DELAYS", []time.Duration{500 * time.Millisecond, 2 * time.Second, 5 * time.Second}),

		DownloadDir:             getEnv("DOWNLOAD_DIR", "downloads"),
		DownloadItemConcurrency: getEnvInt("DOWNLOAD_ITEM_CONCURRENCY", 4),
		DownloadMaxActiveJobs:   getEnvInt("DOWNLOAD_MAX_ACTIVE_JOBS", 2),
		DownloadMediaTimeout:    getEnvDuration("DOWNLOAD_MEDIA_TIMEOUT", 5*time.Minute),
		DownloadMaxBytes:        getEnvInt64("DOWNLOAD_MAX_BYTES", 0),
		DownloadKeepLocal:       getEnvBool("DOWNLOAD_KEEP_LOCAL", true),

		OperationRetention:     getEnvDuration("OPERATION_RETENTION", 24*time.Hour),
		OperationSweepInterval: getEnvDuration("OPERATION_SWEEP_INTERVAL", 10*time.Minute),
		ProfileCacheTTL:        getEnvDuration("PROFILE_CACHE_TTL", 5*time.Minute),

		LiveMaxDuration:  getEnvDuration("LIVE_MAX_DURATION", 4*time.Hour),
		LivePollInterval: getEnvDuration("LIVE_POLL_INTERVAL", 2*time.Second),
		LiveLockTTL:      getEnvDuration("LIVE_LOCK_TTL", 5*time.Hour),
		LiveSegmentDir:   getEnv("LIVE_SEGMENT_DIR", ""),

		RetryWorkerConcurrency: getEnvInt("RETRY_WORKER_CONCURRENCY", 4),
		RetryRate:              getEnvFloat("RETRY_RATE", 2),
		RetryBurst:             getEnvInt("RETRY_BURST", 4),
		RetryMax:               getEnvInt("RETRY_MAX", 5),
		RetryDelays: getEnvDurationList(
			"RETRY_DELAYS",
			[]time.Duration{10 * time.Second, 30 * time.Second, 2 * time.Minute, 10 * time.Minute, 30 * time.Minute},
		),

		Storage: loadStorageConfig(),
	}
}

// InitConfig loads configuration into AppConfig.
func InitConfig() {
	AppConfig = Load()
}
