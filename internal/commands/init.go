package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/tildaslashalef/driftq/internal/config"
	"github.com/tildaslashalef/driftq/internal/database"
	"github.com/tildaslashalef/driftq/internal/loggy"
	"github.com/tildaslashalef/driftq/internal/utils"
	"github.com/urfave/cli/v2"
)

// InitCommand returns the CLI command for initializing driftq
func InitCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Initialize or update the driftq environment",
		Description: "Sets up the driftq environment including the configuration directory " +
			"and database with necessary tables. Use this command for first-time setup " +
			"or to update your database schema after upgrading driftq to a new version.",
		Action: func(c *cli.Context) error {
			utils.PrintHeading("Initializing driftq")

			homeDir, err := os.UserHomeDir()
			if err != nil {
				utils.PrintError(fmt.Sprintf("Failed to get user home directory: %s", err))
				return fmt.Errorf("failed to get user home directory: %w", err)
			}

			// Set up config directory (typically ~/.driftq)
			configDir := filepath.Join(homeDir, ".driftq")
			utils.PrintInfo("Configuration directory: " + color.YellowString("%s", configDir))

			if err := os.MkdirAll(configDir, 0755); err != nil {
				utils.PrintError(fmt.Sprintf("Failed to create config directory: %s", err))
				return fmt.Errorf("failed to create config directory: %w", err)
			}

			// Extract the default environment file (with backup if needed)
			utils.PrintInfo("Extracting default configuration file")
			configFilePath := filepath.Join(configDir, ".env")

			if err := config.SetupConfigDirectory(configDir, true); err != nil {
				utils.PrintWarning(fmt.Sprintf("Failed to set up configuration files: %s", err))
				// Continue anyway as this is not critical
			}

			cfg, err := config.LoadFromEnv(configDir, configFilePath, true)
			if err != nil {
				utils.PrintError(fmt.Sprintf("Failed to load configuration: %s", err))
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			utils.PrintInfo("Initializing database...")
			if err := database.InitDB(cfg); err != nil {
				utils.PrintError(fmt.Sprintf("Failed to initialize database: %s", err))
				return fmt.Errorf("failed to initialize database: %w", err)
			}

			utils.PrintInfo("Applying database migrations...")
			migrationsApplied, err := database.RunMigrations()
			if err != nil {
				utils.PrintError(fmt.Sprintf("Failed to apply migrations: %s", err))
				return fmt.Errorf("failed to apply migrations: %w", err)
			}

			// Establish the client identity this installation will stamp
			// on audit entries and submit headers
			clientName, err := ensureClientIdentity(c, cfg)
			if err != nil {
				utils.PrintWarning(fmt.Sprintf("Failed to set up client identity: %s", err))
			} else {
				utils.PrintInfo("Client name: " + color.YellowString("%s", clientName))
			}

			utils.PrintSuccess("✓ driftq initialized successfully!")

			if migrationsApplied > 0 {
				utils.PrintSuccess(fmt.Sprintf("Applied %d new migration(s)", migrationsApplied))
			} else {
				utils.PrintInfo("Database schema is already up-to-date")
			}

			utils.PrintInfo("Configuration file: " + color.YellowString("%s", configFilePath))
			utils.PrintInfo("Database location: " + color.YellowString("%s", cfg.Database.Path))
			utils.PrintInfo("Log file location: " + color.YellowString("%s", cfg.Logging.Output))
			fmt.Println("")
			utils.PrintInfo("You can now use " + color.CyanString("driftq") + " to queue changes while offline.")

			return nil
		},
	}
}

// ensureClientIdentity generates and persists the client ID and a friendly
// client name on first init
func ensureClientIdentity(c *cli.Context, cfg *config.Config) (string, error) {
	db, err := database.DB()
	if err != nil {
		return "", err
	}

	settings := config.NewSettingsService(db, cfg, loggy.GetGlobalLogger())

	if _, err := settings.ClientID(c.Context); err != nil {
		return "", err
	}

	name, err := settings.ClientName(c.Context)
	if err != nil {
		return "", err
	}

	if name == "" {
		name = utils.GenerateClientName()
		if err := settings.SetClientName(c.Context, name); err != nil {
			return "", err
		}
	}

	return name, nil
}
