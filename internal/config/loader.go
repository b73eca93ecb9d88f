package config

import (
	"fmt"
	"time"

	"github.com/rpattn/dashlens/internal/db"
	"github.com/spf13/viper"
)

// ServerConfig holds everything the service needs outside the database
// connection itself.
type ServerConfig struct {
	Addr           string
	Namespace      string
	StorageDriver  string
	DebounceWindow time.Duration
	CORSOrigins    []string
	CatalogPath    string
	ExportDir      string
	Upstream       UpstreamConfig
}

// UpstreamConfig points at the aggregation backend every data request is
// proxied to.
type UpstreamConfig struct {
	BaseURL     string
	Timeout     time.Duration
	Concurrency int
	CacheTTL    time.Duration
}

// DefaultServerConfig returns the default service configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:           ":8080",
		Namespace:      "dashlens",
		StorageDriver:  "memory",
		DebounceWindow: 300 * time.Millisecond,
		CORSOrigins:    []string{"http://localhost:3000"},
		Upstream: UpstreamConfig{
			BaseURL:     "http://localhost:9000",
			Timeout:     30 * time.Second,
			Concurrency: 4,
			CacheTTL:    5 * time.Minute,
		},
	}
}

// LoadServerConfig reads config.yaml from configPath, falling back to
// defaults plus environment overrides (DASHLENS_SERVER_ADDR and friends).
func LoadServerConfig(configPath string) (ServerConfig, error) {
	cfg := DefaultServerConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("DASHLENS")

	v.BindEnv("server.addr")
	v.BindEnv("server.namespace")
	v.BindEnv("server.cors_origins")
	v.BindEnv("storage.driver")
	v.BindEnv("store.debounce_window")
	v.BindEnv("catalog.path")
	v.BindEnv("export.dir")
	v.BindEnv("upstream.base_url")
	v.BindEnv("upstream.timeout")
	v.BindEnv("upstream.concurrency")
	v.BindEnv("upstream.cache_ttl")

	if err := v.ReadInConfig(); err != nil {
		// Config file not found? Just log it, use defaults + env
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	if v.IsSet("server.addr") {
		cfg.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.namespace") {
		cfg.Namespace = v.GetString("server.namespace")
	}
	if v.IsSet("server.cors_origins") {
		cfg.CORSOrigins = v.GetStringSlice("server.cors_origins")
	}
	if v.IsSet("storage.driver") {
		cfg.StorageDriver = v.GetString("storage.driver")
	}
	if v.IsSet("store.debounce_window") {
		cfg.DebounceWindow = v.GetDuration("store.debounce_window")
	}
	if v.IsSet("catalog.path") {
		cfg.CatalogPath = v.GetString("catalog.path")
	}
	if v.IsSet("export.dir") {
		cfg.ExportDir = v.GetString("export.dir")
	}
	if v.IsSet("upstream.base_url") {
		cfg.Upstream.BaseURL = v.GetString("upstream.base_url")
	}
	if v.IsSet("upstream.timeout") {
		cfg.Upstream.Timeout = v.GetDuration("upstream.timeout")
	}
	if v.IsSet("upstream.concurrency") {
		cfg.Upstream.Concurrency = v.GetInt("upstream.concurrency")
	}
	if v.IsSet("upstream.cache_ttl") {
		cfg.Upstream.CacheTTL = v.GetDuration("upstream.cache_ttl")
	}

	if cfg.StorageDriver != "memory" && cfg.StorageDriver != "postgres" {
		return cfg, fmt.Errorf("unsupported storage driver: %q", cfg.StorageDriver)
	}

	return cfg, nil
}

func LoadDBConfig(configPath string) (db.Config, error) {
	// Start with default
	cfg := db.DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()     // allow environment overrides
	v.SetEnvPrefix("DB") // map env vars like DB_HOST, DB_PORT

	// Optional: Map nested keys to flat env vars
	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")

	if err := v.ReadInConfig(); err != nil {
		// Config file not found? Just log it, use defaults + env
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	// Override defaults if values exist
	if v.IsSet("database.host") {
		cfg.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.SSLMode = v.GetString("database.sslmode")
	}

	return cfg, nil
}
