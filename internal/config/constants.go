package config

// Constants defining default values for application configuration
const (
	DefaultDBPath = "./newsriver.db"

	// DefaultFeedURLs seeds the ingestion sources when NEWSRIVER_FEED_URLS
	// is unset. Comma-separated.
	DefaultFeedURLs = "https://sspai.com/feed"

	DefaultServerPort = 8088
	DefaultServerHost = "" // Empty string means all interfaces

	DefaultFetchLimit      = 1000 // Per-source entry cap per cycle
	DefaultFetchInterval   = 300  // Seconds between ingestion cycles
	DefaultFetchTimeoutSec = 20   // Per-source fetch/parse bound
	DefaultImageTimeoutSec = 4    // Remote image page fetch bound

	// DefaultPreferredSource ranks matching rows ahead of all others.
	// Matched as a substring against both link and source name.
	DefaultPreferredSource = "sspai"

	DefaultPageLimit = 30
	MaxPageLimit     = 100

	DefaultLogLevel = "debug"
)
