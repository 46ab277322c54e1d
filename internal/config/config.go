package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix           = "DASHBOARD"
	defaultHTTPAddress  = "0.0.0.0:8080"
	defaultDatabasePath = "dashboard.db"
	defaultLogLevel     = "info"
	defaultLogFormat    = "json"
	defaultCookieName   = "app_session"
	defaultIssuer       = "tauth"
	defaultStoreBackend = StoreBackendSQLite
	defaultRedisAddress = "127.0.0.1:6379"
	defaultRedisPrefix  = "dashboard"
	defaultWriteTimeout = 10 * time.Second
	defaultViewBuffer   = 16
	defaultHeartbeat    = 25 * time.Second
	defaultIdleTimeout  = 30 * time.Minute
)

// Document store backends.
const (
	StoreBackendMemory    = "memory"
	StoreBackendSQLite    = "sqlite"
	StoreBackendRedis     = "redis"
	StoreBackendFirestore = "firestore"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress     string
	AllowedOrigins  []string
	Heartbeat       time.Duration
	TAuthSigningKey string
	TAuthCookieName string
	TAuthIssuer     string
	DatabasePath    string
	LogLevel        string
	LogFormat       string
	StoreBackend    string
	Redis           RedisConfig
	Firestore       FirestoreConfig
	WriteTimeout    time.Duration
	ViewBuffer      int
	IdleTimeout     time.Duration
}

// RedisConfig locates the shared Redis instance for the redis backend.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
	Channel  string
}

// FirestoreConfig locates the Firestore project for the firestore backend.
type FirestoreConfig struct {
	ProjectID       string
	CredentialsFile string
}

// LoadDotEnv populates the process environment from the given files, or ./.env when none are
// given. Variables already set win, and missing files are ignored.
func LoadDotEnv(paths ...string) error {
	err := godotenv.Load(paths...)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load env file: %w", err)
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.heartbeat_interval", defaultHeartbeat)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("tauth.cookie_name", defaultCookieName)
	configViper.SetDefault("tauth.issuer", defaultIssuer)
	configViper.SetDefault("store.backend", defaultStoreBackend)
	configViper.SetDefault("redis.address", defaultRedisAddress)
	configViper.SetDefault("redis.db", 0)
	configViper.SetDefault("redis.prefix", defaultRedisPrefix)
	configViper.SetDefault("sync.write_timeout", defaultWriteTimeout)
	configViper.SetDefault("sync.view_buffer", defaultViewBuffer)
	configViper.SetDefault("sync.idle_timeout", defaultIdleTimeout)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := read(configViper)
	if err := cfg.validateAuth(); err != nil {
		return AppConfig{}, err
	}
	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// LoadWithoutAuth parses configuration for commands that never verify or mint session
// tokens, so the signing secret is not required.
func LoadWithoutAuth(configViper *viper.Viper) (AppConfig, error) {
	cfg := read(configViper)
	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func read(configViper *viper.Viper) AppConfig {
	return AppConfig{
		HTTPAddress:     configViper.GetString("http.address"),
		AllowedOrigins:  configViper.GetStringSlice("http.allowed_origins"),
		Heartbeat:       configViper.GetDuration("http.heartbeat_interval"),
		TAuthSigningKey: configViper.GetString("tauth.signing_secret"),
		TAuthCookieName: configViper.GetString("tauth.cookie_name"),
		TAuthIssuer:     configViper.GetString("tauth.issuer"),
		DatabasePath:    configViper.GetString("database.path"),
		LogLevel:        configViper.GetString("log.level"),
		LogFormat:       configViper.GetString("log.format"),
		StoreBackend:    strings.ToLower(strings.TrimSpace(configViper.GetString("store.backend"))),
		Redis: RedisConfig{
			Address:  configViper.GetString("redis.address"),
			Password: configViper.GetString("redis.password"),
			DB:       configViper.GetInt("redis.db"),
			Prefix:   configViper.GetString("redis.prefix"),
			Channel:  configViper.GetString("redis.channel"),
		},
		Firestore: FirestoreConfig{
			ProjectID:       configViper.GetString("firestore.project_id"),
			CredentialsFile: configViper.GetString("firestore.credentials_file"),
		},
		WriteTimeout: configViper.GetDuration("sync.write_timeout"),
		ViewBuffer:   configViper.GetInt("sync.view_buffer"),
		IdleTimeout:  configViper.GetDuration("sync.idle_timeout"),
	}
}

func (c AppConfig) validateAuth() error {
	if strings.TrimSpace(c.TAuthSigningKey) == "" {
		return fmt.Errorf("tauth.signing_secret is required")
	}
	return nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.TAuthCookieName) == "" {
		return fmt.Errorf("tauth.cookie_name is required")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("sync.write_timeout must be positive")
	}
	if c.Heartbeat <= 0 {
		return fmt.Errorf("http.heartbeat_interval must be positive")
	}
	if c.ViewBuffer <= 0 {
		return fmt.Errorf("sync.view_buffer must be positive")
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("log.format %q is not one of json, console", c.LogFormat)
	}
	switch c.StoreBackend {
	case StoreBackendMemory, StoreBackendSQLite:
	case StoreBackendRedis:
		if strings.TrimSpace(c.Redis.Address) == "" {
			return fmt.Errorf("redis.address is required for the redis backend")
		}
	case StoreBackendFirestore:
		if strings.TrimSpace(c.Firestore.ProjectID) == "" {
			return fmt.Errorf("firestore.project_id is required for the firestore backend")
		}
	default:
		return fmt.Errorf("store.backend %q is not one of memory, sqlite, redis, firestore", c.StoreBackend)
	}
	return nil
}
