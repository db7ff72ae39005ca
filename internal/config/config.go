package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	defaultEnv                = "development"
	defaultHTTPHost           = "0.0.0.0"
	defaultHTTPPort           = 8080
	defaultVendor             = "dhan"
	defaultDhanFeedURL        = "wss://api-feed.dhan.co"
	defaultDhanQuoteURL       = "https://api.dhan.co/v2/marketfeed/quote"
	defaultAllowedConnections = 1
	defaultHeartbeatSeconds   = 30
	defaultRedisAddr          = "localhost:6379"
	defaultRedisDB            = 0
	defaultCacheTTLSeconds    = 30
	defaultTicksExchange      = "exchange.ticks"
	defaultBatchSize          = 50
	defaultBatchTimeoutMS     = 200
	defaultTradeTimeout       = 5
	defaultMatchingQueueSize  = 1024
)

// Config keeps the runtime configuration for the gateway.
type Config struct {
	Env          string
	Vendor       string
	HTTP         HTTPConfig
	Dhan         DhanConfig
	Redis        RedisConfig
	Cache        CacheConfig
	RabbitMQ     RabbitMQConfig
	TradeService TradeServiceConfig
	Matching     MatchingConfig
}

// HTTPConfig holds management API server settings.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr renders the listen address in host:port form.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// DhanConfig stores the Dhan vendor settings.
type DhanConfig struct {
	Active             bool
	FeedURL            string
	QuoteURL           string
	APICredentials     []string
	AllowedConnections int
	EncryptionKey      string
	HeartbeatSeconds   int
}

// RedisConfig stores Redis connection parameters.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// CacheConfig stores quote cache behavior.
type CacheConfig struct {
	TTLSeconds int
}

// RabbitMQConfig stores tick broadcast settings. An empty URL disables the
// broadcast publisher.
type RabbitMQConfig struct {
	URL            string
	TicksExchange  string
	BatchSize      int
	BatchTimeoutMS int
}

// TradeServiceConfig stores the downstream trade service endpoint.
type TradeServiceConfig struct {
	BaseURL        string
	TimeoutSeconds int
}

// MatchingConfig stores matching engine tuning.
type MatchingConfig struct {
	QueueSize int
}

// Load builds Config from environment variables.
func Load() (*Config, error) {
	port, err := getInt("HTTP_PORT", defaultHTTPPort)
	if err != nil {
		return nil, fmt.Errorf("parse HTTP_PORT: %w", err)
	}

	rawCreds := os.Getenv("DHAN_API_CREDENTIALS")
	if rawCreds == "" {
		return nil, errors.New("DHAN_API_CREDENTIALS is required")
	}
	encryptionKey := os.Getenv("CREDENTIAL_ENCRYPTION_KEY")
	if encryptionKey == "" {
		return nil, errors.New("CREDENTIAL_ENCRYPTION_KEY is required")
	}
	tradeBaseURL := os.Getenv("TRADE_SERVICE_URL")
	if tradeBaseURL == "" {
		return nil, errors.New("TRADE_SERVICE_URL is required")
	}

	allowedConnections, err := getInt("DHAN_ALLOWED_CONNECTIONS", defaultAllowedConnections)
	if err != nil {
		return nil, fmt.Errorf("parse DHAN_ALLOWED_CONNECTIONS: %w", err)
	}
	heartbeatSeconds, err := getInt("DHAN_HEARTBEAT_SECONDS", defaultHeartbeatSeconds)
	if err != nil {
		return nil, fmt.Errorf("parse DHAN_HEARTBEAT_SECONDS: %w", err)
	}
	redisDB, err := getInt("REDIS_DB", defaultRedisDB)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_DB: %w", err)
	}
	cacheTTL, err := getInt("CACHE_TTL_SECONDS", defaultCacheTTLSeconds)
	if err != nil {
		return nil, fmt.Errorf("parse CACHE_TTL_SECONDS: %w", err)
	}
	tradeTimeout, err := getInt("TRADE_SERVICE_TIMEOUT_SECONDS", defaultTradeTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse TRADE_SERVICE_TIMEOUT_SECONDS: %w", err)
	}
	queueSize, err := getInt("MATCHING_QUEUE_SIZE", defaultMatchingQueueSize)
	if err != nil {
		return nil, fmt.Errorf("parse MATCHING_QUEUE_SIZE: %w", err)
	}
	batchSize, err := getInt("RABBITMQ_BATCH_SIZE", defaultBatchSize)
	if err != nil {
		return nil, fmt.Errorf("parse RABBITMQ_BATCH_SIZE: %w", err)
	}
	batchTimeout, err := getInt("RABBITMQ_BATCH_TIMEOUT_MS", defaultBatchTimeoutMS)
	if err != nil {
		return nil, fmt.Errorf("parse RABBITMQ_BATCH_TIMEOUT_MS: %w", err)
	}

	return &Config{
		Env:    getString("APP_ENV", defaultEnv),
		Vendor: getString("EXCHANGE_VENDOR", defaultVendor),
		HTTP:   HTTPConfig{Host: getString("HTTP_HOST", defaultHTTPHost), Port: port},
		Dhan: DhanConfig{
			Active:             getBool("DHAN_ACTIVE", true),
			FeedURL:            getString("DHAN_FEED_URL", defaultDhanFeedURL),
			QuoteURL:           getString("DHAN_QUOTE_URL", defaultDhanQuoteURL),
			APICredentials:     splitList(rawCreds),
			AllowedConnections: allowedConnections,
			EncryptionKey:      encryptionKey,
			HeartbeatSeconds:   heartbeatSeconds,
		},
		Redis: RedisConfig{
			Addr:     getString("REDIS_ADDR", defaultRedisAddr),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Cache: CacheConfig{
			TTLSeconds: cacheTTL,
		},
		RabbitMQ: RabbitMQConfig{
			URL:            os.Getenv("RABBITMQ_URL"),
			TicksExchange:  getString("RABBITMQ_TICKS_EXCHANGE", defaultTicksExchange),
			BatchSize:      batchSize,
			BatchTimeoutMS: batchTimeout,
		},
		TradeService: TradeServiceConfig{
			BaseURL:        tradeBaseURL,
			TimeoutSeconds: tradeTimeout,
		},
		Matching: MatchingConfig{
			QueueSize: queueSize,
		},
	}, nil
}

func getString(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func getInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("convert %s value %q to int: %w", key, value, err)
	}
	return parsed, nil
}

func getBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
