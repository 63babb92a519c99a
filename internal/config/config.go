package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/vjranagit/sensorquery/pkg/search"
	"github.com/vjranagit/sensorquery/pkg/storage"
)

// Search backend kinds
const (
	BackendElasticsearch = "elasticsearch"
	BackendMongo         = "mongo"
	BackendEmbedded      = "embedded"
)

// Config holds the application configuration
type Config struct {
	Server  ServerConfig  `json:"server"`
	Backend BackendConfig `json:"backend"`
	Log     LogConfig     `json:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	ListenAddr string        `json:"listen_addr"`
	Timeout    time.Duration `json:"timeout"`
}

// BackendConfig selects and configures the search backend
type BackendConfig struct {
	Kind string `json:"kind"`

	ElasticHost     string `json:"elastic_host"`
	ElasticPort     int    `json:"elastic_port"`
	ElasticUsername string `json:"elastic_username"`
	ElasticPassword string `json:"-"`

	MongoURI        string `json:"mongo_uri"`
	MongoDatabase   string `json:"mongo_database"`
	MongoCollection string `json:"mongo_collection"`

	StoragePath      string `json:"storage_path"`
	CompressionLevel int    `json:"compression_level"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Load returns the configuration read from the environment
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: getEnv("LISTEN_ADDR", ":8000"),
			Timeout:    time.Duration(getEnvInt("SERVER_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Backend: BackendConfig{
			Kind:             getEnv("SEARCH_BACKEND", BackendElasticsearch),
			ElasticHost:      getEnv("ES_HOST", "localhost"),
			ElasticPort:      getEnvInt("ES_PORT", 9200),
			ElasticUsername:  getEnv("ES_USERNAME", ""),
			ElasticPassword:  getEnv("ES_PASSWORD", ""),
			MongoURI:         getEnv("MONGO_URI", "mongodb://localhost:27017"),
			MongoDatabase:    getEnv("MONGO_DATABASE", "telemetry"),
			MongoCollection:  getEnv("MONGO_COLLECTION", "measurements"),
			StoragePath:      getEnv("STORAGE_PATH", "./data"),
			CompressionLevel: getEnvInt("COMPRESSION_LEVEL", 3),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}
}

// ElasticAddress returns the base URL of the Elasticsearch cluster
func (c *BackendConfig) ElasticAddress() string {
	return "http://" + net.JoinHostPort(c.ElasticHost, strconv.Itoa(c.ElasticPort))
}

// ToElasticConfig converts to search.ElasticConfig
func (c *BackendConfig) ToElasticConfig() search.ElasticConfig {
	return search.ElasticConfig{
		Addresses: []string{c.ElasticAddress()},
		Username:  c.ElasticUsername,
		Password:  c.ElasticPassword,
	}
}

// ToStorageConfig converts to storage.Config
func (c *BackendConfig) ToStorageConfig() *storage.Config {
	return &storage.Config{
		Path:             c.StoragePath,
		CompressionLevel: c.CompressionLevel,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server listen address is required")
	}

	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server timeout must be positive")
	}

	switch c.Backend.Kind {
	case BackendElasticsearch:
		if c.Backend.ElasticHost == "" {
			return fmt.Errorf("elasticsearch host is required")
		}
		if c.Backend.ElasticPort < 1 || c.Backend.ElasticPort > 65535 {
			return fmt.Errorf("elasticsearch port must be between 1 and 65535")
		}
	case BackendMongo:
		if c.Backend.MongoURI == "" {
			return fmt.Errorf("mongo uri is required")
		}
		if c.Backend.MongoDatabase == "" || c.Backend.MongoCollection == "" {
			return fmt.Errorf("mongo database and collection are required")
		}
	case BackendEmbedded:
		if c.Backend.StoragePath == "" {
			return fmt.Errorf("storage path is required")
		}
		if c.Backend.CompressionLevel < 1 || c.Backend.CompressionLevel > 4 {
			return fmt.Errorf("compression level must be between 1 and 4")
		}
	default:
		return fmt.Errorf("unknown search backend %q", c.Backend.Kind)
	}

	return nil
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
