package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/driftq/internal/app"
	"github.com/tildaslashalef/driftq/internal/audit"
	"github.com/tildaslashalef/driftq/internal/events"
	"github.com/tildaslashalef/driftq/internal/loggy"
	"github.com/tildaslashalef/driftq/internal/syncer"
	"github.com/tildaslashalef/driftq/internal/utils"
)

// SyncCommand returns the CLI command for replaying the queue against the
// backend
func SyncCommand() *cli.Command {
	return &cli.Command{
		Name:        "sync",
		Usage:       "Replay queued mutations against the backend",
		Description: "Drains the pending mutation queue in enqueue order, one item at a time.",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "plain",
				Usage: "Print a plain summary instead of the interactive view",
			},
		},
		Subcommands: []*cli.Command{
			{
				Name:        "status",
				Usage:       "Show recent sync runs",
				Description: "Display the outcomes of recent sync runs from the audit trail",
				Action:      syncStatusAction,
			},
		},
		Action: syncAction,
	}
}

// syncAction is the main action for the sync command
func syncAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	if !application.Config.Remote.Enabled {
		return fmt.Errorf("no backend linked. Use 'driftq remote link --token <token>' first")
	}

	// The probe decides whether the run is allowed to start
	application.Monitor.SetOnline(application.Backend.Ping(c.Context) == nil)

	loggy.Info("Starting manual sync", "queued", len(application.Queue.Items()))

	if c.Bool("plain") {
		return plainSync(c)
	}

	model := NewSyncModel(application)
	p := tea.NewProgram(model)

	// Forward engine events into the program so the view tracks the run
	unsubscribe := []func(){
		application.Bus.Subscribe(events.TopicSyncStarted, func(e events.Event) {
			p.Send(syncStartedMsg{eligible: e.Payload.(int)})
		}),
		application.Bus.Subscribe(events.TopicQueueUpdated, func(e events.Event) {
			p.Send(queueUpdatedMsg{})
		}),
	}
	defer func() {
		for _, u := range unsubscribe {
			u()
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running sync UI: %w", err)
	}

	return nil
}

// plainSync runs a blocking drain and prints the summary
func plainSync(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	summary, err := application.Syncer.SyncNow(c.Context)
	switch {
	case errors.Is(err, syncer.ErrOffline):
		utils.PrintWarning("Backend is unreachable; queued mutations stay pending")
		return nil
	case errors.Is(err, syncer.ErrRunInProgress):
		utils.PrintWarning("A sync run is already in progress")
		return nil
	case err != nil:
		return err
	}

	printSummary(summary)
	return nil
}

// printSummary renders a run summary with the shared print helpers
func printSummary(summary *syncer.Summary) {
	if summary.Attempted == 0 {
		utils.PrintInfo("Nothing to sync")
		return
	}

	utils.PrintHeading("Sync Completed")
	utils.PrintKeyValueWithColor("Succeeded", fmt.Sprintf("%d", summary.Succeeded), utils.Theme.Success)
	utils.PrintKeyValueWithColor("Failed", fmt.Sprintf("%d", summary.Failed), utils.Theme.Warning)
	utils.PrintKeyValueWithColor("Terminally failed", fmt.Sprintf("%d", summary.TerminallyFailed), utils.Theme.Error)
	utils.PrintKeyValue("Duration", summary.Duration.Round(time.Millisecond).String())
}

// syncStatusAction lists recent run outcomes from the audit trail
func syncStatusAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	entries, err := application.Audit.List(c.Context, 200)
	if err != nil {
		return fmt.Errorf("reading audit trail: %w", err)
	}

	headers := []string{"Completed", "Attempted", "Succeeded", "Failed", "Terminal", "Duration", "Client"}
	var rows [][]string

	for _, entry := range entries {
		if entry.Event != audit.EventRunCompleted {
			continue
		}

		var summary syncer.Summary
		if err := json.Unmarshal([]byte(entry.Detail), &summary); err != nil {
			continue
		}

		rows = append(rows, []string{
			entry.CreatedAt.Format("Jan 02 15:04:05"),
			fmt.Sprintf("%d", summary.Attempted),
			fmt.Sprintf("%d", summary.Succeeded),
			fmt.Sprintf("%d", summary.Failed),
			fmt.Sprintf("%d", summary.TerminallyFailed),
			summary.Duration.Round(time.Millisecond).String(),
			entry.Client,
		})
	}

	if len(rows) == 0 {
		utils.PrintInfo("No sync runs recorded yet")
		return nil
	}

	utils.PrintPaginatedTable(headers, rows, 20, "Sync Runs")
	return nil
}
