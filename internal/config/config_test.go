package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "jwt", cfg.Auth.Provider)
	assert.Equal(t, 2.00, cfg.Pricing.FourSeat.Base)
	assert.Equal(t, 1.00, cfg.Pricing.FourSeat.PerKilometer)
	assert.Equal(t, 3*time.Second, cfg.Routing.Timeout)
	assert.Equal(t, 1, cfg.Routing.Retries)
	assert.Equal(t, "trip-events", cfg.Kafka.Topic)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("STORE_BACKEND", "MEMORY")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("ROUTING_TIMEOUT", "750ms")
	t.Setenv("PRESENCE_TTL_SECONDS", "45")
	t.Setenv("PER_KM_RATE_MOTORBIKE", "0.75")
	t.Setenv("REDIS_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 750*time.Millisecond, cfg.Routing.Timeout)
	assert.Equal(t, 45*time.Second, cfg.Presence.TTL)
	assert.Equal(t, 0.75, cfg.Pricing.Motorbike.PerKilometer)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoad_AcceptsFreeKilometers(t *testing.T) {
	t.Setenv("PER_KM_RATE_4_SEAT", "0")
	t.Setenv("ROUTING_RETRIES", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.Pricing.FourSeat.PerKilometer)
	assert.Equal(t, 0, cfg.Routing.Retries)
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-port")
	t.Setenv("ROUTING_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 3*time.Second, cfg.Routing.Timeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown store", map[string]string{"STORE_BACKEND": "mongo"}, "STORE_BACKEND"},
		{"unknown auth", map[string]string{"AUTH_PROVIDER": "saml"}, "AUTH_PROVIDER"},
		{"firebase without project", map[string]string{"AUTH_PROVIDER": "firebase"}, "FIREBASE_PROJECT_ID"},
		{"default secret in production", map[string]string{"SERVER_ENV": "production"}, "JWT_SECRET"},
		{"negative retries", map[string]string{"ROUTING_RETRIES": "-1"}, "ROUTING_RETRIES"},
		{"more than one retry", map[string]string{"ROUTING_RETRIES": "3"}, "ROUTING_RETRIES"},
		{"zero base fare", map[string]string{"BASE_FARE_4_SEAT": "0"}, "BASE_FARE_4_SEAT"},
		{"negative base fare", map[string]string{"BASE_FARE_MOTORBIKE": "-2"}, "BASE_FARE_MOTORBIKE"},
		{"negative per km rate", map[string]string{"PER_KM_RATE_7_SEAT": "-1"}, "PER_KM_RATE_7_SEAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
