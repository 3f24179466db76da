package config

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Config holds all configuration for the application
type Config struct {
	// Storage
	DBPath string

	// Server settings
	ServerHost string
	ServerPort int
	APIKey     string

	// Ingestion settings
	FeedURLs      []string
	FetchLimit    int
	FetchInterval time.Duration
	FetchTimeout  time.Duration

	// Read-path settings
	ImageTimeout    time.Duration
	PreferredSource string

	// Log settings
	LogLevel zerolog.Level
}

// DefaultConfig returns an initial configuration from environment
// variables, falling back to hardcoded defaults.
func DefaultConfig() *Config {
	logLevel, _ := zerolog.ParseLevel(DefaultLogLevel)

	return &Config{
		DBPath:          GetEnvString("NEWSRIVER_DB_PATH", DefaultDBPath),
		ServerHost:      GetEnvString("NEWSRIVER_HOST", DefaultServerHost),
		ServerPort:      GetEnvInt("NEWSRIVER_PORT", DefaultServerPort),
		APIKey:          GetEnvString("NEWSRIVER_API_KEY", ""),
		FeedURLs:        GetEnvStringList("NEWSRIVER_FEED_URLS", DefaultFeedURLs),
		FetchLimit:      GetEnvInt("NEWSRIVER_FETCH_LIMIT", DefaultFetchLimit),
		FetchInterval:   GetEnvDuration("NEWSRIVER_FETCH_INTERVAL", time.Duration(DefaultFetchInterval)*time.Second),
		FetchTimeout:    GetEnvDuration("NEWSRIVER_FETCH_TIMEOUT", time.Duration(DefaultFetchTimeoutSec)*time.Second),
		ImageTimeout:    GetEnvDuration("NEWSRIVER_IMAGE_TIMEOUT", time.Duration(DefaultImageTimeoutSec)*time.Second),
		PreferredSource: GetEnvString("NEWSRIVER_PREFERRED_SOURCE", DefaultPreferredSource),
		LogLevel:        GetEnvLogLevel("NEWSRIVER_LOG_LEVEL", logLevel),
	}
}

// ListenAddr returns the formatted listen address for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}
