package commands

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/driftq/internal/app"
	"github.com/tildaslashalef/driftq/internal/loggy"
	"github.com/tildaslashalef/driftq/internal/utils"
)

// RemoteCommand returns the CLI command for managing the backend link
func RemoteCommand() *cli.Command {
	return &cli.Command{
		Name:  "remote",
		Usage: "Manage the backend this client replays mutations against",
		Subcommands: []*cli.Command{
			{
				Name:        "link",
				Usage:       "Link to a backend",
				Description: "Connect this client to a backend so queued mutations can be replayed",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "token",
						Usage:    "Personal access token for the backend",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "url",
						Usage: "Backend base URL",
					},
					&cli.StringFlag{
						Name:  "name",
						Usage: "A name for this client (e.g. 'Crew Laptop')",
					},
				},
				Action: remoteLinkAction,
			},
			{
				Name:        "unlink",
				Usage:       "Unlink from the backend",
				Description: "Remove the backend connection; queued mutations stay put",
				Action:      remoteUnlinkAction,
			},
			{
				Name:        "status",
				Usage:       "Check the backend connection",
				Description: "Verify the stored token against the backend",
				Action:      remoteStatusAction,
			},
			{
				Name:        "config",
				Usage:       "Show or change remote settings",
				Description: "Modify stored remote settings, or display them when no flag is given",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "url",
						Usage: "Backend base URL",
					},
					&cli.StringFlag{
						Name:  "token",
						Usage: "Personal access token",
					},
					&cli.StringFlag{
						Name:  "name",
						Usage: "Client name",
					},
					&cli.BoolFlag{
						Name:  "enabled",
						Usage: "Enable or disable the remote link",
					},
				},
				Action: remoteConfigAction,
			},
		},
	}
}

func remoteLinkAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}
	ctx := c.Context

	token := c.String("token")
	if token == "" {
		return fmt.Errorf("token is required")
	}

	if c.IsSet("url") {
		if err := application.Settings.SetRemoteURL(ctx, c.String("url")); err != nil {
			return fmt.Errorf("setting remote url: %w", err)
		}
		application.Backend.SetBaseURL(c.String("url"))
	}

	if application.Config.Remote.URL == "" {
		return fmt.Errorf("no backend URL configured, pass --url or set DRIFTQ_REMOTE_URL")
	}

	clientName := c.String("name")
	if clientName == "" {
		clientName, err = application.Settings.ClientName(ctx)
		if err != nil || clientName == "" {
			clientName = utils.GenerateClientName()
		}
	}

	if err := application.Settings.SetToken(ctx, token); err != nil {
		return fmt.Errorf("setting token: %w", err)
	}
	application.Backend.SetToken(token)

	if err := application.Settings.SetClientName(ctx, clientName); err != nil {
		loggy.Warn("Failed to save client name to settings", "error", err)
	}

	if err := application.Settings.SetRemoteEnabled(ctx, true); err != nil {
		loggy.Warn("Failed to save enabled status to settings", "error", err)
	}

	valid, err := application.Backend.VerifyToken(ctx)
	if err != nil {
		return fmt.Errorf("verifying token: %w", err)
	}
	if !valid {
		return fmt.Errorf("invalid token")
	}

	utils.PrintSuccess("Successfully linked to " + application.Config.Remote.URL + " as " + clientName)
	return nil
}

func remoteUnlinkAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}
	ctx := c.Context

	if err := application.Settings.SetToken(ctx, ""); err != nil {
		return fmt.Errorf("removing token: %w", err)
	}
	application.Backend.SetToken("")

	if err := application.Settings.SetRemoteEnabled(ctx, false); err != nil {
		loggy.Warn("Failed to save enabled status to settings", "error", err)
	}

	utils.PrintSuccess("Successfully unlinked from the backend")
	return nil
}

func remoteStatusAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	if !application.Config.Remote.Enabled || application.Config.Remote.URL == "" {
		utils.PrintError("Not linked to a backend")
		return nil
	}

	valid, err := application.Backend.VerifyToken(c.Context)
	if err != nil {
		loggy.Warn("Error verifying token", "error", err)
	}

	if valid {
		clientName, _ := application.Settings.ClientName(c.Context)
		utils.PrintHeading("Backend Linked")
		utils.PrintKeyValueWithColor("Backend URL", application.Config.Remote.URL, utils.Theme.Info)
		utils.PrintKeyValueWithColor("Client Name", clientName, utils.Theme.Info)
	} else {
		utils.PrintError("Token is invalid or expired")
	}

	return nil
}

func remoteConfigAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}
	ctx := c.Context

	if c.IsSet("url") {
		url := c.String("url")
		if err := application.Settings.SetRemoteURL(ctx, url); err != nil {
			return fmt.Errorf("setting remote url: %w", err)
		}
		application.Backend.SetBaseURL(url)
		utils.PrintKeyValueWithColor("Backend URL Updated", url, utils.Theme.Info)
	}

	if c.IsSet("token") {
		token := c.String("token")
		if err := application.Settings.SetToken(ctx, token); err != nil {
			return fmt.Errorf("setting token: %w", err)
		}
		application.Backend.SetToken(token)
		utils.PrintKeyValueWithColor("Token Updated", "********", utils.Theme.Info)
	}

	if c.IsSet("name") {
		name := c.String("name")
		if err := application.Settings.SetClientName(ctx, name); err != nil {
			return fmt.Errorf("setting client name: %w", err)
		}
		utils.PrintKeyValueWithColor("Client Name Updated", name, utils.Theme.Info)
	}

	if c.IsSet("enabled") {
		enabled := c.Bool("enabled")
		if err := application.Settings.SetRemoteEnabled(ctx, enabled); err != nil {
			return fmt.Errorf("setting enabled status: %w", err)
		}
		utils.PrintKeyValueWithColor("Remote enabled", fmt.Sprintf("%v", enabled), utils.Theme.Info)
	}

	// Display the stored settings when no flag was given
	if !c.IsSet("url") && !c.IsSet("token") && !c.IsSet("name") && !c.IsSet("enabled") {
		clientName, _ := application.Settings.ClientName(ctx)
		utils.PrintHeading("Current Remote Configuration")
		utils.PrintKeyValueWithColor("Backend URL", application.Config.Remote.URL, utils.Theme.Info)
		utils.PrintKeyValueWithColor("Client Name", clientName, utils.Theme.Info)
		utils.PrintKeyValueWithColor("Remote enabled", fmt.Sprintf("%v", application.Config.Remote.Enabled), utils.Theme.Info)
	}

	return nil
}
