package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", " s3cret ")
	t.Setenv("GOOGLE_CLIENT_ID", "client")

	cfg := LoadConfig()
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 10, cfg.Auth.BcryptCost)
	assert.Equal(t, StoreBackendPostgres, cfg.StoreBackend)
	assert.Equal(t, MQBackendNone, cfg.MQ.Backend)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("TOKEN_TTL", "2h")
	t.Setenv("BCRYPT_COST", "12")
	t.Setenv("STORE_BACKEND", "Mongo")
	t.Setenv("MQ_BACKEND", "rabbitmq")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("DB_USE_SSL", "yes")

	cfg := LoadConfig()
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 12, cfg.Auth.BcryptCost)
	assert.Equal(t, StoreBackendMongo, cfg.StoreBackend)
	assert.Equal(t, MQBackendRabbitMQ, cfg.MQ.Backend)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.True(t, cfg.Database.UseSSL)
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("TOKEN_TTL", "a week")
	t.Setenv("SERVER_PORT", "http")

	cfg := LoadConfig()
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 8080, cfg.ServerPort)
}

func TestValidate(t *testing.T) {
	valid := Config{
		StoreBackend: StoreBackendPostgres,
		Auth:         AuthConfig{JWTSecret: "s", TokenTTL: time.Hour, GoogleClientID: "c"},
	}
	require.NoError(t, valid.Validate())

	cases := map[string]func(c *Config){
		"missing secret":    func(c *Config) { c.Auth.JWTSecret = "" },
		"zero ttl":          func(c *Config) { c.Auth.TokenTTL = 0 },
		"missing client id": func(c *Config) { c.Auth.GoogleClientID = "" },
		"unknown store":     func(c *Config) { c.StoreBackend = "sqlite" },
		"unknown broker":    func(c *Config) { c.MQ.Backend = "kafka" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestSMTPEnabled(t *testing.T) {
	assert.False(t, SMTPConfig{}.Enabled())
	assert.False(t, SMTPConfig{Host: "smtp.example.com"}.Enabled())
	assert.True(t, SMTPConfig{Host: "smtp.example.com", From: "no-reply@example.com"}.Enabled())
}
