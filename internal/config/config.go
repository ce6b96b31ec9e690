// Package config загружает настройки storysync из переменных окружения и docker secrets.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Поддерживаемые значения CACHE_BACKEND.
const (
	CacheBackendSQLite = "sqlite"
	CacheBackendRedis  = "redis"
	CacheBackendMemory = "memory"
)

// Имена файлов секретов внутри SECRETS_DIR.
const (
	GatewayTokenSecret  = "gateway_token"
	RedisPasswordSecret = "redis_password"
)

// Config содержит конфигурацию процесса storysync.
type Config struct {
	Port        string `envconfig:"STORYSYNC_PORT" default:"8095"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`

	GatewayBaseURL string        `envconfig:"GATEWAY_BASE_URL" required:"true"`
	GatewayTimeout time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"10s"`

	CacheBackend    string `envconfig:"CACHE_BACKEND" default:"sqlite"`
	CacheSQLitePath string `envconfig:"CACHE_SQLITE_PATH" default:"storysync_cache.db"`
	RedisAddr       string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisDB         int    `envconfig:"REDIS_DB" default:"0"`

	// Пустой CONNECTIVITY_PROBE_URL - проверять GATEWAY_BASE_URL.
	ConnectivityProbeURL     string        `envconfig:"CONNECTIVITY_PROBE_URL"`
	ConnectivityInterval     time.Duration `envconfig:"CONNECTIVITY_INTERVAL" default:"15s"`
	ConnectivityProbeTimeout time.Duration `envconfig:"CONNECTIVITY_PROBE_TIMEOUT" default:"3s"`

	GenerationPollInterval      time.Duration `envconfig:"GENERATION_POLL_INTERVAL" default:"2s"`
	GenerationPollTimeout       time.Duration `envconfig:"GENERATION_POLL_TIMEOUT" default:"5m"`
	GenerationSubmitMaxAttempts int           `envconfig:"GENERATION_SUBMIT_MAX_ATTEMPTS" default:"5"`
	GenerationSubmitBaseDelay   time.Duration `envconfig:"GENERATION_SUBMIT_BASE_DELAY" default:"500ms"`
	GenerationSubmitMaxDelay    time.Duration `envconfig:"GENERATION_SUBMIT_MAX_DELAY" default:"10s"`

	// Необязательные внешние сервисы: пустое значение отключает компонент.
	HistoryDatabaseURL       string `envconfig:"HISTORY_DATABASE_URL"`
	RabbitMQURL              string `envconfig:"RABBITMQ_URL"`
	GenerationEventsExchange string `envconfig:"GENERATION_EVENTS_EXCHANGE" default:"storysync.generation.events"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`

	SecretsDir string `envconfig:"SECRETS_DIR" default:"/run/secrets"`

	// Секреты без envconfig тега.
	RedisPassword string `ignored:"true"`
}

// LoadConfig читает окружение и необязательные секреты.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	password, err := cfg.ReadSecret(RedisPasswordSecret)
	switch {
	case err == nil:
		cfg.RedisPassword = password
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет значения, которые envconfig не может проверить сам.
func (c *Config) Validate() error {
	switch strings.ToLower(c.CacheBackend) {
	case CacheBackendSQLite, CacheBackendRedis, CacheBackendMemory:
		c.CacheBackend = strings.ToLower(c.CacheBackend)
	default:
		return fmt.Errorf("unsupported CACHE_BACKEND %q (expected sqlite, redis or memory)", c.CacheBackend)
	}
	if c.CacheBackend == CacheBackendSQLite && strings.TrimSpace(c.CacheSQLitePath) == "" {
		return errors.New("CACHE_SQLITE_PATH is required for the sqlite cache backend")
	}
	if c.GenerationSubmitMaxAttempts < 1 {
		return fmt.Errorf("GENERATION_SUBMIT_MAX_ATTEMPTS must be positive, got %d", c.GenerationSubmitMaxAttempts)
	}
	return nil
}

// SecretPath возвращает путь к файлу секрета name.
func (c *Config) SecretPath(name string) string {
	return filepath.Join(c.SecretsDir, name)
}

// ReadSecret читает секрет из SECRETS_DIR. Отсутствующий файл возвращает ошибку,
// удовлетворяющую errors.Is(err, os.ErrNotExist).
func (c *Config) ReadSecret(name string) (string, error) {
	path := c.SecretPath(name)
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", path, err)
	}
	secret := strings.TrimSpace(string(raw))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", path)
	}
	return secret, nil
}

// ProbeURL возвращает адрес проверки связи.
func (c *Config) ProbeURL() string {
	if c.ConnectivityProbeURL != "" {
		return c.ConnectivityProbeURL
	}
	return c.GatewayBaseURL
}

// MaskedHistoryURL возвращает HISTORY_DATABASE_URL с замаскированным паролем для логов.
func (c *Config) MaskedHistoryURL() string {
	return maskPassword(c.HistoryDatabaseURL)
}

func maskPassword(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	if at < 0 {
		return dsn
	}
	userInfo := dsn[:at]
	if scheme := strings.Index(userInfo, "://"); scheme >= 0 {
		userInfo = userInfo[scheme+3:]
	}
	colon := strings.Index(userInfo, ":")
	if colon < 0 {
		return dsn
	}
	prefix := dsn[:at-len(userInfo)]
	return prefix + userInfo[:colon+1] + "********" + dsn[at:]
}
