package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Record store drivers.
const (
	StoreMemory    = "memory"
	StoreFirestore = "firestore"
	StoreMongo     = "mongo"
	StorePostgres  = "postgres"
)

// Auth providers.
const (
	AuthFirebase = "firebase"
	AuthJWT      = "jwt"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Store    StoreConfig
	Firebase FirebaseConfig
	Mongo    MongoConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Cache    CacheConfig
	Auth     AuthConfig
	CORS     CORSConfig
	Log      LogConfig
	Metrics  MetricsConfig
	Live     LiveConfig
	Export   ExportConfig
}

// StoreConfig selects the backend holding student records.
type StoreConfig struct {
	Driver     string
	Collection string
}

type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

type MongoConfig struct {
	URI      string
	Database string
}

type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	Name          string
	SSLMode       string
	MaxOpenConns  int
	MaxIdleConns  int
	NotifyChannel string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// CacheConfig governs the point-read cache in front of the record store.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// AuthConfig chooses how bearer tokens are verified.
type AuthConfig struct {
	Provider  string
	JWTSecret string
	JWTIssuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

type MetricsConfig struct {
	Enabled bool
}

// LiveConfig tunes websocket directory sessions.
type LiveConfig struct {
	WriteTimeout time.Duration
}

// ExportConfig controls background exports and their signed download links.
type ExportConfig struct {
	Dir             string
	URLSecret       string
	ResultTTL       time.Duration
	CleanupInterval time.Duration
	Workers         int
	QueueSize       int
	MaxRetries      int
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
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Store = StoreConfig{
		Driver:     strings.ToLower(v.GetString("STORE_DRIVER")),
		Collection: v.GetString("STUDENTS_COLLECTION"),
	}

	cfg.Firebase = FirebaseConfig{
		ProjectID:       v.GetString("FIREBASE_PROJECT_ID"),
		CredentialsFile: v.GetString("FIREBASE_CREDENTIALS_FILE"),
	}

	cfg.Mongo = MongoConfig{
		URI:      v.GetString("MONGO_URI"),
		Database: v.GetString("MONGO_DB_NAME"),
	}

	cfg.Database = DatabaseConfig{
		Host:          v.GetString("DB_HOST"),
		Port:          v.GetInt("DB_PORT"),
		User:          v.GetString("DB_USER"),
		Password:      v.GetString("DB_PASSWORD"),
		Name:          v.GetString("DB_NAME"),
		SSLMode:       v.GetString("DB_SSL_MODE"),
		MaxOpenConns:  v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:  v.GetInt("DB_MAX_IDLE_CONNS"),
		NotifyChannel: v.GetString("DB_NOTIFY_CHANNEL"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_STUDENT_CACHE"),
		TTL:     parseDuration(v.GetString("STUDENT_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Auth = AuthConfig{
		Provider:  strings.ToLower(v.GetString("AUTH_PROVIDER")),
		JWTSecret: v.GetString("JWT_SECRET"),
		JWTIssuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Metrics = MetricsConfig{Enabled: v.GetBool("ENABLE_METRICS")}

	cfg.Live = LiveConfig{
		WriteTimeout: parseDuration(v.GetString("LIVE_WRITE_TIMEOUT"), 10*time.Second),
	}

	cfg.Export = ExportConfig{
		Dir:             v.GetString("EXPORTS_DIR"),
		URLSecret:       v.GetString("EXPORT_URL_SECRET"),
		ResultTTL:       parseDuration(v.GetString("EXPORT_RESULT_TTL"), 24*time.Hour),
		CleanupInterval: parseDuration(v.GetString("EXPORT_CLEANUP_INTERVAL"), time.Hour),
		Workers:         v.GetInt("EXPORT_WORKERS"),
		QueueSize:       v.GetInt("EXPORT_QUEUE_SIZE"),
		MaxRetries:      v.GetInt("EXPORT_MAX_RETRIES"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("STORE_DRIVER", StoreMemory)
	v.SetDefault("STUDENTS_COLLECTION", "students")

	v.SetDefault("FIREBASE_PROJECT_ID", "")
	v.SetDefault("FIREBASE_CREDENTIALS_FILE", "")

	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DB_NAME", "isdm")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "isdm")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_NOTIFY_CHANNEL", "students_changed")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("ENABLE_STUDENT_CACHE", false)
	v.SetDefault("STUDENT_CACHE_TTL", "5m")

	v.SetDefault("AUTH_PROVIDER", AuthJWT)
	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "isdm-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_METRICS", true)
	v.SetDefault("LIVE_WRITE_TIMEOUT", "10s")

	v.SetDefault("EXPORTS_DIR", "./storage/exports")
	v.SetDefault("EXPORT_URL_SECRET", "dev_export_secret")
	v.SetDefault("EXPORT_RESULT_TTL", "24h")
	v.SetDefault("EXPORT_CLEANUP_INTERVAL", "1h")
	v.SetDefault("EXPORT_WORKERS", 2)
	v.SetDefault("EXPORT_QUEUE_SIZE", 32)
	v.SetDefault("EXPORT_MAX_RETRIES", 3)
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
