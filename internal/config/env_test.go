package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/memora_test")

	cfg := LoadConfig()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "gemini-1.5-flash", cfg.GenModel)
	assert.Equal(t, "default", cfg.DefaultTenant)
	assert.False(t, cfg.PermissiveAuth, "permissive auth must be off unless asked for")
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/memora_test")
	t.Setenv("PORT", "9090")
	t.Setenv("DEFAULT_TENANT", "acme")
	t.Setenv("PERMISSIVE_AUTH", "true")

	cfg := LoadConfig()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "acme", cfg.DefaultTenant)
	assert.True(t, cfg.PermissiveAuth)
}

func TestGetEnvBoolGarbageFallsBack(t *testing.T) {
	t.Setenv("PERMISSIVE_AUTH", "yes please")

	assert.False(t, getEnvBool("PERMISSIVE_AUTH", false))
	assert.True(t, getEnvBool("PERMISSIVE_AUTH", true))
}
