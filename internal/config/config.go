package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	NewRelic  NewRelicConfig
	Auth      AuthConfig
	JWT       JWTConfig
	Pricing   PricingConfig
	Matching  MatchingConfig
	Routing   RoutingConfig
	WebSocket WebSocketConfig
	Presence  PresenceConfig
	Kafka     KafkaConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port            string
	Env             string
	Host            string
	ShutdownTimeout time.Duration
}

// StoreConfig selects where trips, drivers and last-seen timestamps live.
type StoreConfig struct {
	Backend string // postgres or memory
}

type DatabaseConfig struct {
	Host           string
	Port           int
	Name           string
	User           string
	Password       string
	SSLMode        string
	MaxConnections int
	MaxIdleConns   int
	MaxLifetime    time.Duration
}

type RedisConfig struct {
	Host        string
	Port        string
	Password    string
	DB          int
	MaxRetries  int
	PoolSize    int
	MinIdleConn int
	DialTimeout time.Duration
	ReadTimeout time.Duration
	Enabled     bool
}

type NewRelicConfig struct {
	LicenseKey string
	AppName    string
	Enabled    bool
	LogLevel   string
}

// AuthConfig picks the bearer token verifier.
type AuthConfig struct {
	Provider          string // jwt or firebase
	FirebaseProjectID string
	CredentialsFile   string
}

type JWTConfig struct {
	Secret string
	Expiry time.Duration
}

type Rate struct {
	Base         float64
	PerKilometer float64
}

type PricingConfig struct {
	Motorbike Rate
	FourSeat  Rate
	SevenSeat Rate
}

type MatchingConfig struct {
	MaxRadiusKM   float64
	MaxCandidates int
}

type RoutingConfig struct {
	GoogleMapsAPIKey string
	Timeout          time.Duration
	Retries          int
	AverageSpeedKMH  float64
}

type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	Workers         int
	QueueSize       int
	SendBuffer      int
}

type PresenceConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
	Channel       string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type LogConfig struct {
	Level  string
	Format string
	Output string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Env:             getEnv("SERVER_ENV", "development"),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ShutdownTimeout: parseDuration(getEnv("SERVER_SHUTDOWN_TIMEOUT", "10s"), 10*time.Second),
		},
		Store: StoreConfig{
			Backend: strings.ToLower(getEnv("STORE_BACKEND", "postgres")),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnvAsInt("DB_PORT", 5432),
			Name:           getEnv("DB_NAME", "ridematch"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", "postgres"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MaxConnections: getEnvAsInt("DB_MAX_CONNECTIONS", 100),
			MaxIdleConns:   getEnvAsInt("DB_MAX_IDLE_CONNECTIONS", 10),
			MaxLifetime:    time.Duration(getEnvAsInt("DB_MAX_LIFETIME_MINUTES", 30)) * time.Minute,
		},
		Redis: RedisConfig{
			Host:        getEnv("REDIS_HOST", "localhost"),
			Port:        getEnv("REDIS_PORT", "6379"),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getEnvAsInt("REDIS_DB", 0),
			MaxRetries:  getEnvAsInt("REDIS_MAX_RETRIES", 3),
			PoolSize:    getEnvAsInt("REDIS_POOL_SIZE", 100),
			MinIdleConn: 10,
			DialTimeout: 5 * time.Second,
			ReadTimeout: 3 * time.Second,
			Enabled:     getEnvAsBool("REDIS_ENABLED", true),
		},
		NewRelic: NewRelicConfig{
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			AppName:    getEnv("NEW_RELIC_APP_NAME", "RideMatch"),
			Enabled:    getEnvAsBool("NEW_RELIC_ENABLED", true),
			LogLevel:   getEnv("NEW_RELIC_LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			Provider:          strings.ToLower(getEnv("AUTH_PROVIDER", "jwt")),
			FirebaseProjectID: getEnv("FIREBASE_PROJECT_ID", ""),
			CredentialsFile:   getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "your_jwt_secret_key_here"),
			Expiry: parseDuration(getEnv("JWT_EXPIRY", "24h"), 24*time.Hour),
		},
		Pricing: PricingConfig{
			Motorbike: Rate{
				Base:         getEnvAsFloat64("BASE_FARE_MOTORBIKE", 1.00),
				PerKilometer: getEnvAsFloat64("PER_KM_RATE_MOTORBIKE", 0.50),
			},
			FourSeat: Rate{
				Base:         getEnvAsFloat64("BASE_FARE_4_SEAT", 2.00),
				PerKilometer: getEnvAsFloat64("PER_KM_RATE_4_SEAT", 1.00),
			},
			SevenSeat: Rate{
				Base:         getEnvAsFloat64("BASE_FARE_7_SEAT", 3.00),
				PerKilometer: getEnvAsFloat64("PER_KM_RATE_7_SEAT", 1.50),
			},
		},
		Matching: MatchingConfig{
			MaxRadiusKM:   getEnvAsFloat64("MAX_MATCHING_RADIUS_KM", 5.0),
			MaxCandidates: getEnvAsInt("MAX_DRIVER_CANDIDATES", 10),
		},
		Routing: RoutingConfig{
			GoogleMapsAPIKey: getEnv("GOOGLE_MAPS_API_KEY", ""),
			Timeout:          parseDuration(getEnv("ROUTING_TIMEOUT", "3s"), 3*time.Second),
			Retries:          getEnvAsInt("ROUTING_RETRIES", 1),
			AverageSpeedKMH:  getEnvAsFloat64("ROUTING_AVERAGE_SPEED_KMH", 30),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getEnvAsInt("WS_READ_BUFFER_SIZE", 1024),
			WriteBufferSize: getEnvAsInt("WS_WRITE_BUFFER_SIZE", 1024),
			Workers:         getEnvAsInt("WS_FANOUT_WORKERS", 8),
			QueueSize:       getEnvAsInt("WS_FANOUT_QUEUE_SIZE", 1024),
			SendBuffer:      getEnvAsInt("WS_SEND_BUFFER", 256),
		},
		Presence: PresenceConfig{
			TTL:           time.Duration(getEnvAsInt("PRESENCE_TTL_SECONDS", 90)) * time.Second,
			SweepInterval: time.Duration(getEnvAsInt("PRESENCE_SWEEP_INTERVAL_SECONDS", 30)) * time.Second,
			Channel:       getEnv("PRESENCE_CHANNEL", "ridematch:fanout"),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsList("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_TRIP_TOPIC", "trip-events"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}
	switch c.Store.Backend {
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("DB_HOST is required")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("DB_NAME is required")
		}
	case "memory":
	default:
		return fmt.Errorf("STORE_BACKEND must be postgres or memory, got %q", c.Store.Backend)
	}
	if c.Redis.Enabled && c.Redis.Host == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	switch c.Auth.Provider {
	case "jwt":
		if c.JWT.Secret == "your_jwt_secret_key_here" && c.Server.Env == "production" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
	case "firebase":
		if c.Auth.FirebaseProjectID == "" {
			return fmt.Errorf("FIREBASE_PROJECT_ID is required when AUTH_PROVIDER=firebase")
		}
	default:
		return fmt.Errorf("AUTH_PROVIDER must be jwt or firebase, got %q", c.Auth.Provider)
	}
	if c.Routing.Timeout <= 0 {
		return fmt.Errorf("ROUTING_TIMEOUT must be positive")
	}
	if c.Routing.Retries < 0 || c.Routing.Retries > 1 {
		return fmt.Errorf("ROUTING_RETRIES must be 0 or 1, got %d", c.Routing.Retries)
	}
	if err := c.Pricing.validate(); err != nil {
		return err
	}
	if c.Presence.TTL <= 0 || c.Presence.SweepInterval <= 0 {
		return fmt.Errorf("presence TTL and sweep interval must be positive")
	}
	return nil
}

func (p PricingConfig) validate() error {
	tiers := []struct {
		suffix string
		rate   Rate
	}{
		{"MOTORBIKE", p.Motorbike},
		{"4_SEAT", p.FourSeat},
		{"7_SEAT", p.SevenSeat},
	}
	for _, tier := range tiers {
		if tier.rate.Base <= 0 {
			return fmt.Errorf("BASE_FARE_%s must be positive, got %v", tier.suffix, tier.rate.Base)
		}
		if tier.rate.PerKilometer < 0 {
			return fmt.Errorf("PER_KM_RATE_%s must not be negative, got %v", tier.suffix, tier.rate.PerKilometer)
		}
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, skipping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	return defaultValue
}
