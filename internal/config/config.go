package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	// Global configuration instance
	globalConfig *Config
	configMutex  sync.RWMutex
)

// Get returns the global configuration instance
// If the configuration has not been initialized, it will return an error
func Get() (*Config, error) {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if globalConfig == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}

	return globalConfig, nil
}

// Set sets the global configuration instance
func Set(cfg *Config) {
	configMutex.Lock()
	defer configMutex.Unlock()

	globalConfig = cfg
}

// Config represents the complete application configuration
type Config struct {
	Client       ClientConfig
	Queue        QueueConfig
	Sync         SyncConfig
	Remote       RemoteConfig
	Connectivity ConnectivityConfig
	Database     DatabaseConfig
	Logging      LoggingConfig
	configDir    string // Internal: Directory where config was loaded from
}

// ClientConfig identifies this client installation
type ClientConfig struct {
	Name string // Human-readable client name (generated on init when empty)
}

// QueueConfig controls queue persistence and retry behavior
type QueueConfig struct {
	Namespace  string // Namespace for the persisted queue key
	MaxRetries int    // Transient failures tolerated per mutation before it is terminal
}

// SyncConfig controls replay runs against the remote backend
type SyncConfig struct {
	RequestTimeout    time.Duration // Per-request timeout during a run
	RequestsPerSecond float64       // Rate limit for backend submissions
	BurstLimit        int           // Burst allowance for the rate limiter
	PaceRetries       bool          // Whether to honor per-item backoff delays within a run
	InitialBackoff    time.Duration // First retry delay when pacing is enabled
	MaxBackoff        time.Duration // Upper bound for retry delays
}

// RemoteConfig describes the backend this client replays mutations against
type RemoteConfig struct {
	Enabled bool          // Whether a remote backend is linked
	URL     string        // Backend base URL
	Token   string        // Authentication token
	Timeout time.Duration // Request timeout
}

// ConnectivityConfig controls the connectivity monitor
type ConnectivityConfig struct {
	ProbeInterval time.Duration // How often to probe the backend health endpoint
	ProbeTimeout  time.Duration // Timeout for a single probe
	ProbeRetries  uint64        // Probe attempts before declaring offline
	AssumeOnline  bool          // Initial connectivity state before the first probe
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Path            string        // Path to the SQLite database file
	JournalMode     string        // Journal mode (WAL recommended)
	SynchronousMode string        // Synchronous mode
	BusyTimeout     int           // Busy timeout in milliseconds
	CacheSize       int           // Cache size in KiB
	ForeignKeys     bool          // Whether to enforce foreign key constraints
	ConnMaxLife     time.Duration // Maximum connection lifetime
	QueryTimeout    time.Duration // Query timeout
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string // debug, info, warn, error
	Format     string // text or json
	Output     string // stdout, stderr, or file path
	AddSource  bool   // Include source code position in logs
	TimeFormat string // Time format for logs (empty uses RFC3339)
	MaxSizeMB  int    // Rotate file output after this many megabytes
	MaxBackups int    // Keep at most this many rotated files
	MaxAgeDays int    // Delete rotated files older than this many days
}

// New returns a new empty Config
func New() *Config {
	return &Config{
		Client:       ClientConfig{},
		Queue:        QueueConfig{},
		Sync:         SyncConfig{},
		Remote:       RemoteConfig{},
		Connectivity: ConnectivityConfig{},
		Database:     DatabaseConfig{},
		Logging:      LoggingConfig{},
	}
}

// ConfigDir returns the directory the configuration was loaded from
func (c *Config) ConfigDir() string {
	return c.configDir
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.validateQueue(); err != nil {
		return fmt.Errorf("queue config: %w", err)
	}

	if err := c.validateSync(); err != nil {
		return fmt.Errorf("sync config: %w", err)
	}

	if err := c.validateRemote(); err != nil {
		return fmt.Errorf("remote config: %w", err)
	}

	if err := c.validateConnectivity(); err != nil {
		return fmt.Errorf("connectivity config: %w", err)
	}

	if err := c.validateDatabase(); err != nil {
		return fmt.Errorf("database config: %w", err)
	}

	if err := c.validateLogging(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// ParseLogLevel parses a log level string to a slog.Level
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "none":
		// Set to a very high level that won't be triggered
		return slog.Level(9999)
	default:
		return slog.LevelInfo
	}
}

func (c *Config) validateQueue() error {
	if c.Queue.Namespace == "" {
		return fmt.Errorf("namespace cannot be empty")
	}

	if strings.ContainsAny(c.Queue.Namespace, " :") {
		return fmt.Errorf("namespace must not contain spaces or colons")
	}

	if c.Queue.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be positive")
	}

	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}

	if c.Sync.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests_per_second must be positive")
	}

	if c.Sync.BurstLimit <= 0 {
		return fmt.Errorf("burst_limit must be positive")
	}

	if c.Sync.PaceRetries {
		if c.Sync.InitialBackoff <= 0 {
			return fmt.Errorf("initial_backoff must be positive when retry pacing is enabled")
		}

		if c.Sync.MaxBackoff < c.Sync.InitialBackoff {
			return fmt.Errorf("max_backoff must be at least initial_backoff")
		}
	}

	return nil
}

func (c *Config) validateRemote() error {
	// An unlinked remote is a valid state, skip further checks
	if !c.Remote.Enabled {
		return nil
	}

	if c.Remote.URL == "" {
		return fmt.Errorf("url cannot be empty when a remote is linked")
	}

	if !strings.HasPrefix(c.Remote.URL, "http://") && !strings.HasPrefix(c.Remote.URL, "https://") {
		return fmt.Errorf("url must start with http:// or https://")
	}

	if c.Remote.Timeout == 0 {
		c.Remote.Timeout = 30 * time.Second
	}

	return nil
}

func (c *Config) validateConnectivity() error {
	if c.Connectivity.ProbeInterval <= 0 {
		return fmt.Errorf("probe_interval must be positive")
	}

	if c.Connectivity.ProbeTimeout <= 0 {
		return fmt.Errorf("probe_timeout must be positive")
	}

	if c.Connectivity.ProbeTimeout >= c.Connectivity.ProbeInterval {
		return fmt.Errorf("probe_timeout must be shorter than probe_interval")
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}

	// Create the directory if it doesn't exist
	dir := filepath.Dir(c.Database.Path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory for database: %w", err)
		}
	}

	// Check if directory is writable
	if err := checkDirectoryWritable(dir); err != nil {
		return fmt.Errorf("database directory: %w", err)
	}

	if c.Database.BusyTimeout <= 0 {
		return fmt.Errorf("busy timeout must be positive")
	}

	if c.Database.ConnMaxLife <= 0 {
		return fmt.Errorf("connection max life must be positive")
	}

	if c.Database.QueryTimeout <= 0 {
		return fmt.Errorf("query timeout must be positive")
	}

	return nil
}

func (c *Config) validateLogging() error {
	// Validate logging level
	level := strings.ToLower(c.Logging.Level)
	if level != "debug" && level != "info" && level != "warn" && level != "error" && level != "none" {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	// Validate format
	format := strings.ToLower(c.Logging.Format)
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// getEnvString returns a string from the environment variable
func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns an int from the environment variable
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvUint64 returns a uint64 from the environment variable
func getEnvUint64(key string, defaultValue uint64) uint64 {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.ParseUint(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool returns a bool from the environment variable
func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration returns a time.Duration from the environment variable
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvFloat returns a float64 from the environment variable
func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getTimeFormat converts a named time format to its actual format string
func getTimeFormat(name string) string {
	switch name {
	case "RFC3339":
		return time.RFC3339
	case "RFC3339Nano":
		return time.RFC3339Nano
	case "RFC822":
		return time.RFC822
	case "RFC822Z":
		return time.RFC822Z
	case "RFC850":
		return time.RFC850
	case "RFC1123":
		return time.RFC1123
	case "RFC1123Z":
		return time.RFC1123Z
	case "Kitchen":
		return time.Kitchen
	case "Stamp":
		return time.Stamp
	case "StampMilli":
		return time.StampMilli
	case "StampMicro":
		return time.StampMicro
	case "StampNano":
		return time.StampNano
	case "DateTime":
		return "2006-01-02 15:04:05"
	case "DateTimeMS":
		return "2006-01-02 15:04:05.000"
	case "Date":
		return "2006-01-02"
	case "Time":
		return "15:04:05"
	default:
		return name
	}
}

// checkDirectoryWritable tests if a directory is writable
func checkDirectoryWritable(dir string) error {
	// Create a temporary file to test write permissions
	testFile := filepath.Join(dir, fmt.Sprintf("test_write_%d", time.Now().UnixNano()))
	f, err := os.Create(testFile)
	if err != nil {
		return fmt.Errorf("directory not writable: %w", err)
	}

	// Clean up
	f.Close()
	os.Remove(testFile)

	return nil
}
