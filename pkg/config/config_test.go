package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadConfig_DefaultValues проверяет загрузку значений по умолчанию
func TestLoadConfig_DefaultValues(t *testing.T) {
	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if config.Server.Port != 8080 {
		t.Errorf("Expected server port to be 8080, got %d", config.Server.Port)
	}
	if config.Environment != "dev" {
		t.Errorf("Expected environment to be \"dev\", got %s", config.Environment)
	}
	assert.Equal(t, "auth_token", config.Cookie.Name)
	assert.Equal(t, 7*24*time.Hour, Duration(config.Cookie.MaxAge, 0))
	assert.Equal(t, 300*time.Millisecond, Duration(config.Store.OpTimeout, 0))
	assert.Equal(t, 2, config.Gateway.LoopLimit)
	assert.Len(t, config.Gateway.Namespaces, 3)
	assert.False(t, config.SecureCookies())
}

// TestLoadConfig_FileOverride проверяет переопределение значений из файла конфигурации
func TestLoadConfig_FileOverride(t *testing.T) {
	tempFile := filepath.Join(t.TempDir(), "config.yaml")
	configContent := `server:
  host: "127.0.0.1"
  port: 9090
environment: "staging"
token:
  secret: "file-secret"
store:
  op_timeout: "150ms"
gateway:
  loop_limit: 3
  loop_cookie_ttl: "60s"
  namespaces:
    - name: "admin"
      prefixes: ["/console"]
      login_path: "/console/login"
      unauthorized_path: "/denied"
      required_role: "admin"
`
	require.NoError(t, os.WriteFile(tempFile, []byte(configContent), 0644))

	config, err := LoadConfig(tempFile)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", config.Server.Host)
	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, "staging", config.Environment)
	assert.Equal(t, "file-secret", config.Token.Secret)
	assert.Equal(t, 150*time.Millisecond, Duration(config.Store.OpTimeout, 0))
	assert.Equal(t, 3, config.Gateway.LoopLimit)
	require.Len(t, config.Gateway.Namespaces, 1)
	assert.Equal(t, "/console/login", config.Gateway.Namespaces[0].LoginPath)
}

// TestLoadConfig_EnvOverride проверяет переопределение значений переменными окружения
func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("AUTH_TOKEN_SECRET", "env-secret")
	t.Setenv("AUTH_COOKIE_MAX_AGE", "23h")
	t.Setenv("DATABASE_ENABLED", "true")

	config, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 7070, config.Server.Port)
	assert.False(t, config.Redis.Enabled)
	assert.Equal(t, "env-secret", config.Token.Secret)
	assert.Equal(t, 23*time.Hour, Duration(config.Cookie.MaxAge, 0))
	assert.True(t, config.Database.Enabled)
}

// TestLoadConfig_InvalidEnv проверяет ошибки разбора переменных окружения
func TestLoadConfig_InvalidEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-number")

	_, err := LoadConfig("")
	assert.Error(t, err)
}

// TestValidateConfig проверяет правила валидации
func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown environment", func(c *Config) { c.Environment = "qa" }},
		{"empty secret", func(c *Config) { c.Token.Secret = "" }},
		{"short secret in prod", func(c *Config) { c.Environment = "prod"; c.Token.Secret = "short" }},
		{"bad op timeout", func(c *Config) { c.Store.OpTimeout = "fast" }},
		{"zero loop limit", func(c *Config) { c.Gateway.LoopLimit = 0 }},
		{"relative login path", func(c *Config) { c.Gateway.Namespaces[0].LoginPath = "login" }},
		{"duplicate namespace", func(c *Config) {
			c.Gateway.Namespaces = append(c.Gateway.Namespaces, c.Gateway.Namespaces[0])
		}},
		{"redis without addr", func(c *Config) { c.Redis.Addr = "" }},
		{"rabbitmq without url", func(c *Config) { c.RabbitMQ.Enabled = true; c.RabbitMQ.URL = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			assert.Error(t, validateConfig(c))
		})
	}

	assert.NoError(t, validateConfig(Default()))
}

// TestConfig_Save проверяет сохранение и повторную загрузку конфигурации
func TestConfig_Save(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "nested", "config.yaml")

	c := Default()
	c.Server.Port = 8181
	require.NoError(t, c.Save(filename))

	loaded, err := LoadConfig(filename)
	require.NoError(t, err)
	assert.Equal(t, 8181, loaded.Server.Port)
}
