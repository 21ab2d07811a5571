package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(env string) *Config {
	return &Config{
		Env:              env,
		DBSSLMode:        "require",
		JWTSecret:        "secure-secret-at-least-32-chars-long",
		DBPassword:       "secure-password",
		Port:             "8080",
		BypassRole:       "super_admin",
		RedisURL:         "redis://localhost:6379",
		UserDirectoryURL: "https://directory.internal",
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		env         string
		expectError bool
	}{
		{"production baseline", func(*Config) {}, "production", false},
		{"production default secret", func(c *Config) { c.JWTSecret = "your-secret-key-change-in-production" }, "production", true},
		{"production short secret", func(c *Config) { c.JWTSecret = "short" }, "prod", true},
		{"production weak db password", func(c *Config) { c.DBPassword = "password" }, "production", true},
		{"production without user directory", func(c *Config) { c.UserDirectoryURL = "" }, "production", true},
		{"production with dev root bootstrap", func(c *Config) { c.DevBootstrapRoot = true }, "production", true},
		{"production with ssl disabled only warns", func(c *Config) { c.DBSSLMode = "disable" }, "production", false},
		{"development tolerates short secret", func(c *Config) { c.JWTSecret = "short" }, "development", false},
		{"missing port", func(c *Config) { c.Port = "" }, "development", true},
		{"missing bypass role", func(c *Config) { c.BypassRole = "" }, "test", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig(tt.env)
			tt.mutate(c)

			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Durations(t *testing.T) {
	c := &Config{}
	assert.Equal(t, 5*time.Minute, c.UserDirectoryTTL())
	assert.Equal(t, 15*time.Second, c.NotificationTimeout())

	c.UserDirectoryTTLMinutes = 2
	c.NotificationTimeoutSec = 3
	assert.Equal(t, 2*time.Minute, c.UserDirectoryTTL())
	assert.Equal(t, 3*time.Second, c.NotificationTimeout())
}

func TestLoadConfig_Normalization(t *testing.T) {
	defer viper.Reset()

	t.Setenv("APP_ENV", "development")
	t.Setenv("DB_SSLMODE", "  DISABLE  ")
	t.Setenv("DB_SCHEMA_MODE", " SQL ")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "disable", c.DBSSLMode)
	assert.Equal(t, "sql", c.DBSchemaMode)
	assert.Equal(t, "super_admin", c.BypassRole)
	assert.Equal(t, 5, c.UserDirectoryTTLMinutes)
}
