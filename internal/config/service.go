package config

import (
	"context"
	"database/sql"

	"github.com/tildaslashalef/driftq/internal/loggy"
	"github.com/tildaslashalef/driftq/internal/ulid"
)

// SettingsService provides operations for managing application settings
type SettingsService struct {
	repo   SettingsRepository
	config *Config
	logger *loggy.Logger
}

// NewSettingsService creates a new settings service
func NewSettingsService(db *sql.DB, config *Config, logger *loggy.Logger) *SettingsService {
	repo := NewSQLSettingsRepository(db, logger)

	return &SettingsService{
		repo:   repo,
		config: config,
		logger: logger,
	}
}

// GetSetting retrieves a setting by key
func (s *SettingsService) GetSetting(ctx context.Context, key string) (string, error) {
	return s.repo.GetSetting(ctx, key)
}

// GetSettings retrieves multiple settings by prefix
func (s *SettingsService) GetSettings(ctx context.Context, prefix string) (map[string]string, error) {
	return s.repo.GetSettings(ctx, prefix)
}

// SetSetting sets a setting value
func (s *SettingsService) SetSetting(ctx context.Context, key, value string) error {
	return s.repo.SetSetting(ctx, key, value)
}

// DeleteSetting deletes a setting
func (s *SettingsService) DeleteSetting(ctx context.Context, key string) error {
	return s.repo.DeleteSetting(ctx, key)
}

// GetRepository returns the underlying repository
func (s *SettingsService) GetRepository() SettingsRepository {
	return s.repo
}

// LoadRemoteSettings loads remote settings from the database into the Config
func (s *SettingsService) LoadRemoteSettings(ctx context.Context) error {
	return LoadRemoteSettings(ctx, s.config, s.repo)
}

// SaveRemoteSettings saves remote settings from the Config to the database
func (s *SettingsService) SaveRemoteSettings(ctx context.Context) error {
	return SaveRemoteSettings(ctx, s.config, s.repo)
}

// SetToken sets the remote token with proper obfuscation
func (s *SettingsService) SetToken(ctx context.Context, token string) error {
	// Store the token in config
	s.config.Remote.Token = token

	// Save to database with automatic obfuscation
	return s.repo.SetSetting(ctx, "remote.token", token)
}

// SetRemoteURL sets the remote backend URL
func (s *SettingsService) SetRemoteURL(ctx context.Context, url string) error {
	// Store the URL in config
	s.config.Remote.URL = url

	// Save to database
	return s.repo.SetSetting(ctx, "remote.url", url)
}

// SetRemoteEnabled sets whether a remote backend is linked
func (s *SettingsService) SetRemoteEnabled(ctx context.Context, enabled bool) error {
	// Store the flag in config
	s.config.Remote.Enabled = enabled

	// Convert to string for storage
	enabledStr := "false"
	if enabled {
		enabledStr = "true"
	}

	// Save to database
	return s.repo.SetSetting(ctx, "remote.enabled", enabledStr)
}

// ClientID returns the persisted client identifier, generating and storing
// one on first use
func (s *SettingsService) ClientID(ctx context.Context) (string, error) {
	id, err := s.repo.GetSetting(ctx, "client.id")
	if err != nil {
		return "", err
	}

	if id != "" {
		return id, nil
	}

	id = ulid.ClientID()
	if err := s.repo.SetSetting(ctx, "client.id", id); err != nil {
		return "", err
	}

	s.logger.Info("Generated new client identity", "client_id", id)
	return id, nil
}

// ClientName returns the persisted client name, falling back to the
// configured name
func (s *SettingsService) ClientName(ctx context.Context) (string, error) {
	name, err := s.repo.GetSetting(ctx, "client.name")
	if err != nil {
		return "", err
	}

	if name != "" {
		return name, nil
	}

	return s.config.Client.Name, nil
}

// SetClientName persists the client name
func (s *SettingsService) SetClientName(ctx context.Context, name string) error {
	s.config.Client.Name = name
	return s.repo.SetSetting(ctx, "client.name", name)
}
