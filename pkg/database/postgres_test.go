package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_DSN(t *testing.T) {
	cfg := Config{Host: "db", Port: 5432, User: "ride", Password: "secret", DBName: "ridematch", SSLMode: "disable"}

	assert.Equal(t, "host=db port=5432 user=ride password=secret dbname=ridematch sslmode=disable", cfg.DSN())
	assert.Equal(t, "postgres", cfg.DriverName())

	cfg.Instrumented = true
	assert.Equal(t, "nrpostgres", cfg.DriverName())
}
