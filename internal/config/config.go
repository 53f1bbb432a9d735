package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ReqHTTPAddr     string
	ObsHTTPAddr     string
	GRPCAddr        string
	ServiceName     string
	LogLevel        string
	LogFile         string
	TracingEnabled  bool
	JaegerURL       string
	KafkaEnabled    bool
	KafkaBrokers    []string
	KafkaTopics     []string
	KafkaGroup      string
	PresenceEnabled bool
	RedisAddr       string
	PresenceTTL     time.Duration

	StreamQueueSize   int
	HeartbeatInterval time.Duration

	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// Load reads the environment. A .env file in the working directory fills in
// variables that are not already set.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ReqHTTPAddr:       fixPort(getEnv("HTTP_PORT", ":8083")),
		ObsHTTPAddr:       fixPort(getEnv("HTTP_ADDR", ":8093")),
		GRPCAddr:          fixPort(getEnv("GRPC_ADDR", ":50057")),
		ServiceName:       getEnv("SERVICE_NAME", "notifier"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFile:           getEnv("LOG_FILE", ""),
		TracingEnabled:    getEnvBool("TRACING_ENABLED", false),
		JaegerURL:         getEnv("JAEGER_URL", "http://localhost:14268/api/traces"),
		KafkaEnabled:      getEnvBool("KAFKA_ENABLED", false),
		KafkaBrokers:      splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopics:       splitList(getEnv("KAFKA_TOPICS", "notification-events")),
		KafkaGroup:        getEnv("KAFKA_GROUP", "notifier-group"),
		PresenceEnabled:   getEnvBool("PRESENCE_ENABLED", false),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		PresenceTTL:       getEnvDuration("PRESENCE_TTL", 2*time.Minute),
		StreamQueueSize:   getEnvInt("STREAM_QUEUE_SIZE", 64),
		HeartbeatInterval: getEnvNonNegDuration("HEARTBEAT_INTERVAL", 25*time.Second),
		RateLimitRequests: getEnvNonNegInt("RATE_LIMIT_REQUESTS", 600),
		RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
	}
}

func fixPort(port string) string {
	if port != "" && !strings.Contains(port, ":") {
		return ":" + port
	}
	return port
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "true"
}

func getEnvInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// getEnvNonNegInt is getEnvInt for keys where 0 means disabled.
func getEnvNonNegInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// getEnvNonNegDuration is getEnvDuration for keys where 0 means disabled.
func getEnvNonNegDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
