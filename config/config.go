package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreBackendMemory = "memory"
	StoreBackendSQLite = "sqlite"
	StoreBackendRedis  = "redis"

	TransportWebSocket = "websocket"
	TransportRedis     = "redis"
)

type Config struct {
	Env          string
	API          APIConfig
	Realtime     RealtimeConfig
	Store        StoreConfig
	Redis        RedisConfig
	Cache        CacheConfig
	History      HistoryConfig
	Notification NotificationConfig
	Suggestion   SuggestionConfig
	Kafka        KafkaConfig
	Server       ServerConfig
	Agent        AgentConfig
	Log          LogConfig
}

type APIConfig struct {
	BaseURL     string
	Timeout     time.Duration
	AccessToken string
}

type RealtimeConfig struct {
	Transport      string
	WSBaseURL      string
	ConnectTimeout time.Duration
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	MaxRetries     int
	Buffer         int
}

type StoreConfig struct {
	Backend    string
	SQLitePath string
	Namespace  string
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	MaxRetries   int
	PoolSize     int
	MinIdleConns int
}

type CacheConfig struct {
	DefaultMaxAge time.Duration
	FetchTimeout  time.Duration
}

type HistoryConfig struct {
	Limit         int
	VisitLogLimit int
}

type NotificationConfig struct {
	Permission       string
	AutoGrant        bool
	PushEndpointBase string
}

type SuggestionConfig struct {
	ConfigPath string
}

type KafkaConfig struct {
	Brokers              []string
	ProducerRetryMax     int
	ProducerRequiredAcks int
	Enabled              bool
}

type ServerConfig struct {
	MetricsAddr    string
	GRpcHealthPort int
}

type AgentConfig struct {
	QueueID    string
	SourceCode string
}

type LogConfig struct {
	Level    string
	Mode     string
	Encoding string
}

func Load() (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg := &Config{
		Env: getEnv("ENV", "development"),
		API: APIConfig{
			BaseURL:     getEnv("API_BASE_URL", "http://localhost:8080"),
			Timeout:     getEnvAsDuration("API_TIMEOUT", 10*time.Second),
			AccessToken: getEnv("API_ACCESS_TOKEN", ""),
		},
		Realtime: RealtimeConfig{
			Transport:      getEnv("REALTIME_TRANSPORT", TransportWebSocket),
			WSBaseURL:      getEnv("WS_BASE_URL", "ws://localhost:8080/ws"),
			ConnectTimeout: getEnvAsDuration("REALTIME_CONNECT_TIMEOUT", 10*time.Second),
			BackoffBase:    getEnvAsDuration("REALTIME_BACKOFF_BASE", 500*time.Millisecond),
			BackoffMax:     getEnvAsDuration("REALTIME_BACKOFF_MAX", 30*time.Second),
			MaxRetries:     getEnvAsInt("REALTIME_MAX_RETRIES", 10),
			Buffer:         getEnvAsInt("REALTIME_BUFFER", 64),
		},
		Store: StoreConfig{
			Backend:    getEnv("STORE_BACKEND", StoreBackendSQLite),
			SQLitePath: getEnv("SQLITE_PATH", "queuesync.db"),
			Namespace:  getEnv("STORE_NAMESPACE", "queuesync"),
		},
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", "localhost:6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			MaxRetries:   getEnvAsInt("REDIS_MAX_RETRIES", 3),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 2),
		},
		Cache: CacheConfig{
			DefaultMaxAge: getEnvAsDuration("CACHE_DEFAULT_MAX_AGE", 30*time.Second),
			FetchTimeout:  getEnvAsDuration("CACHE_FETCH_TIMEOUT", 10*time.Second),
		},
		History: HistoryConfig{
			Limit:         getEnvAsInt("HISTORY_LIMIT", 10),
			VisitLogLimit: getEnvAsInt("VISIT_LOG_LIMIT", 500),
		},
		Notification: NotificationConfig{
			Permission:       getEnv("NOTIFICATIONS_PERMISSION", "default"),
			AutoGrant:        getEnvAsBool("NOTIFICATIONS_AUTO_GRANT", false),
			PushEndpointBase: getEnv("PUSH_ENDPOINT_BASE", "http://localhost:8080/push"),
		},
		Suggestion: SuggestionConfig{
			ConfigPath: getEnv("SUGGESTION_CONFIG_PATH", ""),
		},
		Kafka: KafkaConfig{
			Brokers:              getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			ProducerRetryMax:     getEnvAsInt("KAFKA_PRODUCER_RETRY_MAX", 3),
			ProducerRequiredAcks: getEnvAsInt("KAFKA_PRODUCER_REQUIRED_ACKS", 1),
			Enabled:              getEnvAsBool("KAFKA_ENABLED", false),
		},
		Server: ServerConfig{
			MetricsAddr:    getEnv("METRICS_ADDR", ":9090"),
			GRpcHealthPort: getEnvAsInt("GRPC_HEALTH_PORT", 50057),
		},
		Agent: AgentConfig{
			QueueID:    getEnv("QUEUE_ID", ""),
			SourceCode: getEnv("QUEUE_SOURCE_CODE", ""),
		},
		Log: LogConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Mode:     getEnv("LOG_MODE", "development"),
			Encoding: getEnv("LOG_ENCODING", "console"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return fmt.Errorf("api base url is required")
	}

	switch c.Realtime.Transport {
	case TransportWebSocket:
		if strings.TrimSpace(c.Realtime.WSBaseURL) == "" {
			return fmt.Errorf("websocket base url is required")
		}
	case TransportRedis:
	default:
		return fmt.Errorf("invalid realtime transport: %q", c.Realtime.Transport)
	}

	if c.Realtime.MaxRetries <= 0 {
		return fmt.Errorf("invalid realtime max retries: %d", c.Realtime.MaxRetries)
	}

	if c.Realtime.BackoffBase <= 0 || c.Realtime.BackoffMax < c.Realtime.BackoffBase {
		return fmt.Errorf("invalid realtime backoff: base=%s max=%s", c.Realtime.BackoffBase, c.Realtime.BackoffMax)
	}

	switch c.Store.Backend {
	case StoreBackendMemory:
	case StoreBackendSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required")
		}
	case StoreBackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis address is required")
		}
	default:
		return fmt.Errorf("invalid store backend: %q", c.Store.Backend)
	}

	if (c.Store.Backend == StoreBackendRedis || c.Realtime.Transport == TransportRedis) && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	if c.History.Limit <= 0 {
		return fmt.Errorf("invalid history limit: %d", c.History.Limit)
	}

	if c.History.VisitLogLimit <= 0 {
		return fmt.Errorf("invalid visit log limit: %d", c.History.VisitLogLimit)
	}

	if c.Server.GRpcHealthPort <= 0 || c.Server.GRpcHealthPort > 65535 {
		return fmt.Errorf("invalid grpc health port: %d", c.Server.GRpcHealthPort)
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required when kafka is enabled")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	// Split by comma
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}

	return result
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
