package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/driftq/internal/app"
	"github.com/tildaslashalef/driftq/internal/mutation"
	"github.com/tildaslashalef/driftq/internal/utils"
)

// QueueCommand returns the CLI command for inspecting and managing the
// pending mutation queue
func QueueCommand() *cli.Command {
	return &cli.Command{
		Name:  "queue",
		Usage: "Inspect and manage queued mutations",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Emit machine-readable JSON instead of a table",
			},
		},
		Action: queueListAction,
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List queued mutations in replay order",
				Flags:  []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "Emit machine-readable JSON"}},
				Action: queueListAction,
			},
			{
				Name:      "show",
				Usage:     "Show one queued mutation in full",
				ArgsUsage: "<id>",
				Flags:     []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "Emit machine-readable JSON"}},
				Action:    queueShowAction,
			},
			{
				Name:      "cancel",
				Usage:     "Cancel a pending mutation and revert its local change",
				ArgsUsage: "<id>",
				Action:    queueCancelAction,
			},
			{
				Name:      "retry",
				Usage:     "Reset a terminally failed mutation for another attempt",
				ArgsUsage: "<id>",
				Action:    queueRetryAction,
			},
			{
				Name:      "discard",
				Usage:     "Drop a terminally failed mutation for good",
				ArgsUsage: "<id>",
				Action:    queueCancelAction,
			},
		},
	}
}

func queueListAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	items := application.Queue.Items()

	if c.Bool("json") {
		return printJSON(items)
	}

	if len(items) == 0 {
		utils.PrintInfo("Queue is empty")
		return nil
	}

	headers := []string{"ID", "Mutation", "Status", "Retries", "Age", "Last Error"}
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			item.ID,
			item.Description(),
			formatStatus(item),
			fmt.Sprintf("%d", item.RetryCount),
			formatAge(item.CreatedAt),
			truncate(item.LastError, 48),
		})
	}

	utils.PrintTable(headers, rows)

	if application.Queue.Degraded() {
		utils.PrintWarning("Queue store is unavailable: this queue is memory-only for the current session")
	}

	return nil
}

func queueShowAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("mutation id argument is required")
	}

	item, err := application.Queue.Get(id)
	if err != nil {
		return err
	}

	if c.Bool("json") {
		return printJSON(item)
	}

	utils.PrintHeading(item.Description())
	utils.PrintKeyValue("ID", item.ID)
	utils.PrintKeyValue("Status", formatStatus(item))
	utils.PrintKeyValue("Retries", fmt.Sprintf("%d", item.RetryCount))
	utils.PrintKeyValue("Enqueued", item.CreatedAt.Format(time.RFC3339))
	if item.LastError != "" {
		utils.PrintKeyValue("Last Error", item.LastError)
	}
	if !item.NextAttemptAt.IsZero() {
		utils.PrintKeyValue("Next Attempt", item.NextAttemptAt.Format(time.RFC3339))
	}
	if len(item.Payload) > 0 {
		utils.PrintKeyValue("Payload", string(item.Payload))
	}

	return nil
}

func queueCancelAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("mutation id argument is required")
	}

	if err := application.Queue.Cancel(c.Context, id); err != nil {
		return err
	}

	utils.PrintSuccess(fmt.Sprintf("Removed %s and reverted its local change", id))
	return nil
}

func queueRetryAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("mutation id argument is required")
	}

	if err := application.Queue.Retry(c.Context, id); err != nil {
		return err
	}

	utils.PrintSuccess(fmt.Sprintf("Mutation %s is pending again", id))
	return nil
}

// printJSON writes indented JSON to stdout for scripting
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func formatStatus(m *mutation.Mutation) string {
	if m.Terminal() {
		return fmt.Sprintf("failed (%s)", m.FailureKind)
	}
	return string(m.Status)
}

func formatAge(t time.Time) string {
	age := time.Since(t)
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd", int(age.Hours()/24))
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
