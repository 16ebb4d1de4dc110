package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Bulletins BulletinsConfig
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
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// BulletinsConfig configures report-card rendering, batch generation and housekeeping.
type BulletinsConfig struct {
	StorageDir        string
	DefaultFolder     string
	Format            string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	ResultTTL         time.Duration
	CleanupSchedule   string
	WorkerConcurrency int
	WorkerRetries     int
	RetryDelay        time.Duration
	StatsCacheEnabled bool
	StatsCacheTTL     time.Duration
	SchoolName        string
	HeadmasterName    string
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

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
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	concurrency := v.GetInt("BULLETINS_WORKER_CONCURRENCY")
	if concurrency <= 0 {
		concurrency = 1
	}
	retries := v.GetInt("BULLETINS_WORKER_RETRIES")
	if retries < 0 {
		retries = 0
	}

	cfg.Bulletins = BulletinsConfig{
		StorageDir:        v.GetString("BULLETINS_STORAGE_DIR"),
		DefaultFolder:     v.GetString("BULLETINS_DEFAULT_FOLDER"),
		Format:            strings.ToLower(v.GetString("BULLETINS_FORMAT")),
		SignedURLSecret:   v.GetString("BULLETINS_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("BULLETINS_SIGNED_URL_TTL"), 24*time.Hour),
		ResultTTL:         parseDuration(v.GetString("BULLETINS_RESULT_TTL"), 7*24*time.Hour),
		CleanupSchedule:   v.GetString("BULLETINS_CLEANUP_SCHEDULE"),
		WorkerConcurrency: concurrency,
		WorkerRetries:     retries,
		RetryDelay:        parseDuration(v.GetString("BULLETINS_RETRY_DELAY"), 500*time.Millisecond),
		StatsCacheEnabled: v.GetBool("BULLETINS_ENABLE_STATS_CACHE"),
		StatsCacheTTL:     parseDuration(v.GetString("BULLETINS_STATS_CACHE_TTL"), 10*time.Minute),
		SchoolName:        v.GetString("BULLETINS_SCHOOL_NAME"),
		HeadmasterName:    v.GetString("BULLETINS_HEADMASTER_NAME"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "school_bulletins")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("BULLETINS_STORAGE_DIR", "./exports")
	v.SetDefault("BULLETINS_DEFAULT_FOLDER", "bulletins")
	v.SetDefault("BULLETINS_FORMAT", "pdf")
	v.SetDefault("BULLETINS_SIGNED_URL_SECRET", "dev_bulletins_secret")
	v.SetDefault("BULLETINS_SIGNED_URL_TTL", "24h")
	v.SetDefault("BULLETINS_RESULT_TTL", "168h")
	v.SetDefault("BULLETINS_CLEANUP_SCHEDULE", "@hourly")
	v.SetDefault("BULLETINS_WORKER_CONCURRENCY", 1)
	v.SetDefault("BULLETINS_WORKER_RETRIES", 0)
	v.SetDefault("BULLETINS_RETRY_DELAY", "500ms")
	v.SetDefault("BULLETINS_ENABLE_STATS_CACHE", false)
	v.SetDefault("BULLETINS_STATS_CACHE_TTL", "10m")
	v.SetDefault("BULLETINS_SCHOOL_NAME", "")
	v.SetDefault("BULLETINS_HEADMASTER_NAME", "")
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
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
