package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// LoadFromEnv loads configuration from environment variables
// Parameters:
// - configDir: Directory containing config files (or empty for default)
// - configFilePath: Path to .env file (or empty for default)
// - isInitializing: Whether this is being called during explicit initialization (e.g., from init command)
func LoadFromEnv(configDir string, configFilePath string, isInitializing bool) (*Config, error) {
	// Load empty configuration
	cfg := New()

	// If configDir is empty, use the default
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".driftq")

		// Create directory if it doesn't exist, but only do minimal setup if not initializing
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}

	}

	cfg.configDir = configDir

	// Default database path is in the config directory
	cfg.Database.Path = filepath.Join(configDir, "driftq.db")

	// Default log path is in the config directory
	defaultLogPath := filepath.Join(configDir, "driftq.log")

	// Use provided config file path or default
	if configFilePath == "" {
		configFilePath = filepath.Join(configDir, ".env")
	}

	// Check if ENV_FILE_PATH is set to load from a custom .env file
	envFilePath := getEnvString("ENV_FILE_PATH", "")
	if envFilePath != "" {
		// User specified a custom env file path
		err := godotenv.Load(envFilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load env file from %s: %w", envFilePath, err)
		}
	} else {
		// Try to load from config directory first
		err := godotenv.Load(configFilePath)
		if err != nil {
			// Then try current directory as fallback
			_ = godotenv.Load() // Ignore errors if file doesn't exist
		}
	}

	// Client Configuration
	cfg.Client = ClientConfig{
		Name: getEnvString("DRIFTQ_CLIENT_NAME", ""),
	}

	// Queue Configuration
	cfg.Queue = QueueConfig{
		Namespace:  getEnvString("DRIFTQ_QUEUE_NAMESPACE", "default"),
		MaxRetries: getEnvInt("DRIFTQ_QUEUE_MAX_RETRIES", 3),
	}

	// Sync Configuration
	cfg.Sync = SyncConfig{
		RequestTimeout:    getEnvDuration("DRIFTQ_SYNC_REQUEST_TIMEOUT", 30*time.Second),
		RequestsPerSecond: getEnvFloat("DRIFTQ_SYNC_REQUESTS_PER_SECOND", 10),
		BurstLimit:        getEnvInt("DRIFTQ_SYNC_BURST_LIMIT", 5),
		PaceRetries:       getEnvBool("DRIFTQ_SYNC_PACE_RETRIES", false),
		InitialBackoff:    getEnvDuration("DRIFTQ_SYNC_INITIAL_BACKOFF", 500*time.Millisecond),
		MaxBackoff:        getEnvDuration("DRIFTQ_SYNC_MAX_BACKOFF", 30*time.Second),
	}

	// Remote Configuration
	cfg.Remote = RemoteConfig{
		Enabled: getEnvBool("DRIFTQ_REMOTE_ENABLED", false),
		URL:     getEnvString("DRIFTQ_REMOTE_URL", ""),
		Token:   getEnvString("DRIFTQ_REMOTE_TOKEN", ""),
		Timeout: getEnvDuration("DRIFTQ_REMOTE_TIMEOUT", 30*time.Second),
	}

	// Connectivity Configuration
	cfg.Connectivity = ConnectivityConfig{
		ProbeInterval: getEnvDuration("DRIFTQ_CONNECTIVITY_PROBE_INTERVAL", 15*time.Second),
		ProbeTimeout:  getEnvDuration("DRIFTQ_CONNECTIVITY_PROBE_TIMEOUT", 5*time.Second),
		ProbeRetries:  getEnvUint64("DRIFTQ_CONNECTIVITY_PROBE_RETRIES", 2),
		AssumeOnline:  getEnvBool("DRIFTQ_CONNECTIVITY_ASSUME_ONLINE", false),
	}

	// Database Configuration
	cfg.Database = DatabaseConfig{
		Path:            getEnvString("DRIFTQ_DB_PATH", cfg.Database.Path),
		BusyTimeout:     getEnvInt("DRIFTQ_DB_BUSY_TIMEOUT", 5000),
		JournalMode:     getEnvString("DRIFTQ_DB_JOURNAL_MODE", "WAL"),
		SynchronousMode: getEnvString("DRIFTQ_DB_SYNCHRONOUS_MODE", "NORMAL"),
		CacheSize:       getEnvInt("DRIFTQ_DB_CACHE_SIZE", -64000), // ~64MB
		ForeignKeys:     getEnvBool("DRIFTQ_DB_FOREIGN_KEYS", true),
		ConnMaxLife:     getEnvDuration("DRIFTQ_DB_CONN_MAX_LIFE", 5*time.Minute),
		QueryTimeout:    getEnvDuration("DRIFTQ_DB_QUERY_TIMEOUT", 30*time.Second),
	}

	// Logging Configuration
	cfg.Logging = LoggingConfig{
		Level:      getEnvString("DRIFTQ_LOG_LEVEL", "info"),
		Format:     getEnvString("DRIFTQ_LOG_FORMAT", "text"),
		Output:     getEnvString("DRIFTQ_LOG_OUTPUT", defaultLogPath),
		AddSource:  getEnvBool("DRIFTQ_LOG_ADD_SOURCE", true),
		TimeFormat: getEnvString("DRIFTQ_LOG_TIME_FORMAT", time.RFC3339),
		MaxSizeMB:  getEnvInt("DRIFTQ_LOG_MAX_SIZE_MB", 10),
		MaxBackups: getEnvInt("DRIFTQ_LOG_MAX_BACKUPS", 3),
		MaxAgeDays: getEnvInt("DRIFTQ_LOG_MAX_AGE_DAYS", 28),
	}

	// Validate the configuration
	return cfg, cfg.Validate()
}
