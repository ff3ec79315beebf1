package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvFloat(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue float64
		expected     float64
	}{
		{
			name:         "env not set, return default",
			envValue:     "",
			defaultValue: 0.2,
			expected:     0.2,
		},
		{
			name:         "env set to 0.1, return 0.1",
			envValue:     "0.1",
			defaultValue: 0.2,
			expected:     0.1,
		},
		{
			name:         "env set to invalid value, return default",
			envValue:     "invalid",
			defaultValue: 0.2,
			expected:     0.2,
		},
		{
			name:         "env set to precise value, maintain precision",
			envValue:     "0.123456789",
			defaultValue: 0.2,
			expected:     0.123456789,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup environment variable for the test
			key := "TEST_FLOAT_VALUE"
			if tt.envValue != "" {
				os.Setenv(key, tt.envValue)
				defer os.Unsetenv(key)
			} else {
				os.Unsetenv(key)
			}

			// Call the function
			result := getEnvFloat(key, tt.defaultValue)

			// Verify the result
			assert.Equal(t, tt.expected, result, "getEnvFloat should return the expected value with correct precision")
		})
	}
}

func TestGetEnvString(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue string
		expected     string
	}{
		{
			name:         "env not set, return default",
			envValue:     "",
			defaultValue: "default",
			expected:     "default",
		},
		{
			name:         "env set, return env value",
			envValue:     "custom",
			defaultValue: "default",
			expected:     "custom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_STRING_VALUE"
			if tt.envValue != "" {
				os.Setenv(key, tt.envValue)
				defer os.Unsetenv(key)
			} else {
				os.Unsetenv(key)
			}

			result := getEnvString(key, tt.defaultValue)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue int
		expected     int
	}{
		{
			name:         "env not set, return default",
			envValue:     "",
			defaultValue: 100,
			expected:     100,
		},
		{
			name:         "env set to valid int, return int value",
			envValue:     "200",
			defaultValue: 100,
			expected:     200,
		},
		{
			name:         "env set to invalid int, return default",
			envValue:     "not_an_int",
			defaultValue: 100,
			expected:     100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_INT_VALUE"
			if tt.envValue != "" {
				os.Setenv(key, tt.envValue)
				defer os.Unsetenv(key)
			} else {
				os.Unsetenv(key)
			}

			result := getEnvInt(key, tt.defaultValue)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue bool
		expected     bool
	}{
		{
			name:         "env not set, return default",
			envValue:     "",
			defaultValue: true,
			expected:     true,
		},
		{
			name:         "env set to true, return true",
			envValue:     "true",
			defaultValue: false,
			expected:     true,
		},
		{
			name:         "env set to false, return false",
			envValue:     "false",
			defaultValue: true,
			expected:     false,
		},
		{
			name:         "env set to invalid bool, return default",
			envValue:     "not_a_bool",
			defaultValue: true,
			expected:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_BOOL_VALUE"
			if tt.envValue != "" {
				os.Setenv(key, tt.envValue)
				defer os.Unsetenv(key)
			} else {
				os.Unsetenv(key)
			}

			result := getEnvBool(key, tt.defaultValue)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue time.Duration
		expected     time.Duration
	}{
		{
			name:         "env not set, return default",
			envValue:     "",
			defaultValue: 1 * time.Second,
			expected:     1 * time.Second,
		},
		{
			name:         "env set to valid duration, return duration value",
			envValue:     "5s",
			defaultValue: 1 * time.Second,
			expected:     5 * time.Second,
		},
		{
			name:         "env set to invalid duration, return default",
			envValue:     "not_a_duration",
			defaultValue: 1 * time.Second,
			expected:     1 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_DURATION_VALUE"
			if tt.envValue != "" {
				os.Setenv(key, tt.envValue)
				defer os.Unsetenv(key)
			} else {
				os.Unsetenv(key)
			}

			result := getEnvDuration(key, tt.defaultValue)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestNew(t *testing.T) {
	// New should return a bare-bones config with minimal fields set
	cfg := New()

	// Database path should not be set in New() - it's set in LoadFromEnv()
	assert.Empty(t, cfg.Database.Path, "Database path should be empty")

	// All other fields should be at zero values
	assert.Empty(t, cfg.Queue.Namespace)
	assert.Zero(t, cfg.Queue.MaxRetries)
	assert.Zero(t, cfg.Sync.RequestTimeout)
	assert.False(t, cfg.Remote.Enabled)
	assert.Empty(t, cfg.Logging.Level)
}

func TestLoadFromEnv(t *testing.T) {
	// Reset any environment variables that might affect the test
	vars := []string{
		"DRIFTQ_QUEUE_NAMESPACE", "DRIFTQ_QUEUE_MAX_RETRIES",
		"DRIFTQ_SYNC_REQUEST_TIMEOUT", "DRIFTQ_SYNC_PACE_RETRIES",
		"DRIFTQ_REMOTE_ENABLED", "DRIFTQ_REMOTE_URL",
		"DRIFTQ_CONNECTIVITY_PROBE_INTERVAL", "DRIFTQ_LOG_LEVEL",
	}

	for _, v := range vars {
		os.Unsetenv(v)
	}

	// Load config with defaults into a temporary config dir
	configDir := t.TempDir()
	cfg, err := LoadFromEnv(configDir, filepath.Join(configDir, ".env"), false)
	assert.NoError(t, err)

	// Verify default values are set correctly
	assert.Equal(t, "default", cfg.Queue.Namespace)
	assert.Equal(t, 3, cfg.Queue.MaxRetries)

	assert.Equal(t, 30*time.Second, cfg.Sync.RequestTimeout)
	assert.Equal(t, float64(10), cfg.Sync.RequestsPerSecond)
	assert.Equal(t, 5, cfg.Sync.BurstLimit)
	assert.False(t, cfg.Sync.PaceRetries)

	assert.False(t, cfg.Remote.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Remote.Timeout)

	assert.Equal(t, 15*time.Second, cfg.Connectivity.ProbeInterval)
	assert.Equal(t, 5*time.Second, cfg.Connectivity.ProbeTimeout)
	assert.False(t, cfg.Connectivity.AssumeOnline)

	// Other config fields
	assert.Equal(t, filepath.Join(configDir, "driftq.db"), cfg.Database.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, configDir, cfg.ConfigDir())
}

func TestLoadFromEnvOverrides(t *testing.T) {
	configDir := t.TempDir()

	os.Setenv("DRIFTQ_QUEUE_NAMESPACE", "notes")
	os.Setenv("DRIFTQ_QUEUE_MAX_RETRIES", "5")
	os.Setenv("DRIFTQ_CONNECTIVITY_ASSUME_ONLINE", "true")
	defer func() {
		os.Unsetenv("DRIFTQ_QUEUE_NAMESPACE")
		os.Unsetenv("DRIFTQ_QUEUE_MAX_RETRIES")
		os.Unsetenv("DRIFTQ_CONNECTIVITY_ASSUME_ONLINE")
	}()

	cfg, err := LoadFromEnv(configDir, filepath.Join(configDir, ".env"), false)
	assert.NoError(t, err)

	assert.Equal(t, "notes", cfg.Queue.Namespace)
	assert.Equal(t, 5, cfg.Queue.MaxRetries)
	assert.True(t, cfg.Connectivity.AssumeOnline)
}

func TestSetGet(t *testing.T) {
	// Clear the global config first
	Set(nil)

	// Get should return error when not initialized
	_, err := Get()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not initialized")

	// Set a config
	testCfg := New()
	testCfg.Queue.MaxRetries = 7 // Change a value
	Set(testCfg)

	// Get should work now
	cfg, err := Get()
	assert.NoError(t, err)
	assert.NotNil(t, cfg)

	// Verify the changed value
	assert.Equal(t, 7, cfg.Queue.MaxRetries)
}

// validConfig returns a config that passes Validate, for tests that break
// one section at a time
func validConfig(t *testing.T) *Config {
	t.Helper()

	cfg := New()
	cfg.Queue.Namespace = "default"
	cfg.Queue.MaxRetries = 3
	cfg.Sync.RequestTimeout = 30 * time.Second
	cfg.Sync.RequestsPerSecond = 10
	cfg.Sync.BurstLimit = 5
	cfg.Connectivity.ProbeInterval = 15 * time.Second
	cfg.Connectivity.ProbeTimeout = 5 * time.Second
	cfg.Database.Path = filepath.Join(t.TempDir(), "test.db")
	cfg.Database.BusyTimeout = 5000
	cfg.Database.ConnMaxLife = 5 * time.Minute
	cfg.Database.QueryTimeout = 30 * time.Second
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	return cfg
}

func TestValidate(t *testing.T) {
	// A fully populated config should pass validation
	cfg := validConfig(t)
	assert.NoError(t, cfg.Validate())

	// Invalid queue config
	invalidQueue := validConfig(t)
	invalidQueue.Queue.Namespace = ""
	err := invalidQueue.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "queue config")

	invalidRetries := validConfig(t)
	invalidRetries.Queue.MaxRetries = 0
	err = invalidRetries.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max_retries")

	// Namespaces feed the persisted queue key, reject separator characters
	invalidNamespace := validConfig(t)
	invalidNamespace.Queue.Namespace = "my queue"
	err = invalidNamespace.Validate()
	assert.Error(t, err)

	// Invalid sync config
	invalidSync := validConfig(t)
	invalidSync.Sync.RequestsPerSecond = 0
	err = invalidSync.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "sync config")

	// Pacing enabled requires backoff bounds
	invalidPacing := validConfig(t)
	invalidPacing.Sync.PaceRetries = true
	invalidPacing.Sync.InitialBackoff = 0
	err = invalidPacing.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "initial_backoff")

	// Linked remote requires a URL
	invalidRemote := validConfig(t)
	invalidRemote.Remote.Enabled = true
	invalidRemote.Remote.URL = ""
	err = invalidRemote.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "remote config")

	// Unlinked remote passes without a URL
	unlinkedRemote := validConfig(t)
	unlinkedRemote.Remote.Enabled = false
	unlinkedRemote.Remote.URL = ""
	assert.NoError(t, unlinkedRemote.Validate())

	// Invalid connectivity config
	invalidConnectivity := validConfig(t)
	invalidConnectivity.Connectivity.ProbeTimeout = 20 * time.Second
	err = invalidConnectivity.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "connectivity config")

	// Invalid logging config
	invalidLogging := validConfig(t)
	invalidLogging.Logging.Level = "invalid"
	err = invalidLogging.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "logging config")
}

func TestParseLoglevel(t *testing.T) {
	tests := []struct {
		level  string
		expect slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"none", slog.Level(9999)},
		{"invalid", slog.LevelInfo}, // Default to info for invalid levels
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level := ParseLogLevel(tt.level)
			assert.Equal(t, tt.expect, level)
		})
	}
}

func TestCheckDirectoryWritable(t *testing.T) {
	// Create a temporary directory
	tempDir := t.TempDir()

	// Should be writable
	err := checkDirectoryWritable(tempDir)
	assert.NoError(t, err)

	// Test with non-existent directory
	err = checkDirectoryWritable("/path/that/does/not/exist")
	assert.Error(t, err)
}

func TestTokenObfuscation(t *testing.T) {
	tokens := []string{
		"simple-token",
		"tok_3n.w1th-$ymbols",
		"üñïçödé-token",
	}

	for _, token := range tokens {
		t.Run(token, func(t *testing.T) {
			obfuscated, err := obfuscateToken(token)
			assert.NoError(t, err)
			assert.NotEqual(t, token, obfuscated)
			assert.Contains(t, obfuscated, "OBFS:")

			plain, err := deobfuscateToken(obfuscated)
			assert.NoError(t, err)
			assert.Equal(t, token, plain)
		})
	}

	// Values without the marker pass through untouched
	plain, err := deobfuscateToken("raw-value")
	assert.NoError(t, err)
	assert.Equal(t, "raw-value", plain)

	// Corrupted payloads surface an error
	_, err = deobfuscateToken("OBFS:not-base64!!!")
	assert.Error(t, err)
}
