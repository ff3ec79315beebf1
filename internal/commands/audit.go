package commands

import (
	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/driftq/internal/app"
	"github.com/tildaslashalef/driftq/internal/audit"
	"github.com/tildaslashalef/driftq/internal/utils"
)

// AuditCommand returns the CLI command for browsing the audit trail
func AuditCommand() *cli.Command {
	return &cli.Command{
		Name:        "audit",
		Usage:       "Show the queue's audit trail",
		Description: "Lists lifecycle events: enqueues, replays, failures, cancels and sync runs.",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of entries to show",
				Value:   50,
			},
			&cli.StringFlag{
				Name:    "mutation",
				Aliases: []string{"m"},
				Usage:   "Show the full history of one mutation instead",
			},
		},
		Action: auditAction,
	}
}

func auditAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	var entries []*audit.Entry
	if mutationID := c.String("mutation"); mutationID != "" {
		entries, err = application.Audit.ListByMutation(c.Context, mutationID)
	} else {
		entries, err = application.Audit.List(c.Context, c.Int("limit"))
	}
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		utils.PrintInfo("No audit entries recorded yet")
		return nil
	}

	headers := []string{"Time", "Event", "Mutation", "Resource", "Entity", "Detail", "Client"}
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, []string{
			entry.CreatedAt.Format("Jan 02 15:04:05"),
			string(entry.Event),
			entry.MutationID,
			entry.Resource,
			entry.EntityKey,
			truncate(entry.Detail, 48),
			entry.Client,
		})
	}

	utils.PrintPaginatedTable(headers, rows, 20, "Audit Trail")
	return nil
}
