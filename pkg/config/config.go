package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Credential store drivers.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type Config struct {
	Env string

	API         APIConfig
	Token       TokenConfig
	Credentials CredentialConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Gateway     GatewayConfig
	AdminData   AdminDataConfig
	Log         LogConfig
}

// APIConfig points the client at the remote school API.
type APIConfig struct {
	BaseURL        string        `validate:"required,url"`
	AuthPath       string        `validate:"required,startswith=/"`
	RefreshPath    string        `validate:"required,startswith=/"`
	Timeout        time.Duration `validate:"gt=0"`
	RefreshTimeout time.Duration `validate:"gt=0"`
}

// TokenConfig tunes local access-token inspection.
type TokenConfig struct {
	ExpirySkew  time.Duration `validate:"gte=0"`
	RolesClaims []string      `validate:"min=1,dive,required"`
}

// CredentialConfig selects where the session credentials are persisted.
type CredentialConfig struct {
	Driver    string `validate:"oneof=memory file redis postgres"`
	Namespace string `validate:"required"`
	FilePath  string
	Secret    string
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// GatewayConfig configures the local session gateway listener.
type GatewayConfig struct {
	Port           int `validate:"gt=0,lte=65535"`
	AllowedOrigins []string
	EnableMetrics  bool
	EnableDocs     bool
}

// AdminDataConfig governs the admin data loader cache.
type AdminDataConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")

	cfg.API = APIConfig{
		BaseURL:        strings.TrimRight(v.GetString("API_BASE_URL"), "/"),
		AuthPath:       v.GetString("API_AUTH_PATH"),
		RefreshPath:    v.GetString("API_REFRESH_PATH"),
		Timeout:        parseDuration(v.GetString("API_TIMEOUT"), 15*time.Second),
		RefreshTimeout: parseDuration(v.GetString("REFRESH_TIMEOUT"), 10*time.Second),
	}

	cfg.Token = TokenConfig{
		ExpirySkew:  parseDuration(v.GetString("TOKEN_EXPIRY_SKEW"), 30*time.Second),
		RolesClaims: splitAndTrim(v.GetString("TOKEN_ROLES_CLAIMS")),
	}

	cfg.Credentials = CredentialConfig{
		Driver:    strings.ToLower(v.GetString("CREDENTIAL_STORE")),
		Namespace: v.GetString("CREDENTIAL_NAMESPACE"),
		FilePath:  v.GetString("CREDENTIAL_FILE"),
		Secret:    v.GetString("CREDENTIAL_SECRET"),
	}

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Gateway = GatewayConfig{
		Port:           v.GetInt("GATEWAY_PORT"),
		AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS")),
		EnableMetrics:  v.GetBool("ENABLE_METRICS"),
		EnableDocs:     v.GetBool("ENABLE_DOCS"),
	}

	cfg.AdminData = AdminDataConfig{
		CacheEnabled: v.GetBool("ENABLE_ADMIN_DATA_CACHE"),
		CacheTTL:     parseDuration(v.GetString("ADMIN_DATA_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the struct tags and driver specific requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Credentials.Driver == StoreFile {
		if c.Credentials.FilePath == "" {
			return errors.New("CREDENTIAL_FILE is required for the file credential store")
		}
		if c.Credentials.Secret == "" {
			return errors.New("CREDENTIAL_SECRET is required for the file credential store")
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)

	v.SetDefault("API_BASE_URL", "https://edu-spring.runasp.net")
	v.SetDefault("API_AUTH_PATH", "/api/auth")
	v.SetDefault("API_REFRESH_PATH", "/api/auth/refresh")
	v.SetDefault("API_TIMEOUT", "15s")
	v.SetDefault("REFRESH_TIMEOUT", "10s")

	v.SetDefault("TOKEN_EXPIRY_SKEW", "30s")
	v.SetDefault("TOKEN_ROLES_CLAIMS", "roles")

	v.SetDefault("CREDENTIAL_STORE", StoreFile)
	v.SetDefault("CREDENTIAL_NAMESPACE", "default")
	v.SetDefault("CREDENTIAL_FILE", "./.sma-session/credentials.json")
	v.SetDefault("CREDENTIAL_SECRET", "dev_credential_secret")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "sma_mobile_sessions")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 5)
	v.SetDefault("DB_MAX_IDLE_CONNS", 2)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("GATEWAY_PORT", 8090)
	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("ENABLE_METRICS", true)
	v.SetDefault("ENABLE_DOCS", false)

	v.SetDefault("ENABLE_ADMIN_DATA_CACHE", false)
	v.SetDefault("ADMIN_DATA_CACHE_TTL", "5m")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
