package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/driftq/internal/app"
	"github.com/tildaslashalef/driftq/internal/mutation"
	"github.com/tildaslashalef/driftq/internal/utils"
)

// EnqueueCommand returns the CLI command for queuing a mutation
func EnqueueCommand() *cli.Command {
	return &cli.Command{
		Name:      "enqueue",
		Usage:     "Queue a create, update or delete for replay",
		ArgsUsage: "<resource>",
		Description: "Queues a mutation against a backend resource. The change is applied " +
			"to the local view immediately and replayed against the backend on the next " +
			"sync run. Pass the payload inline or pipe it on stdin with --payload -.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "op",
				Aliases:  []string{"o"},
				Usage:    "Operation: create, update or delete",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "payload",
				Aliases: []string{"p"},
				Usage:   "JSON payload, or '-' to read it from stdin",
			},
		},
		Action: enqueueAction,
	}
}

func enqueueAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	resource := c.Args().First()
	if resource == "" {
		return fmt.Errorf("resource argument is required, e.g. 'driftq enqueue pilots --op update --payload ...'")
	}

	payload, err := readPayload(c.String("payload"))
	if err != nil {
		return err
	}

	op := mutation.Operation(c.String("op"))
	m, err := application.Queue.Enqueue(c.Context, resource, op, payload)
	if err != nil {
		return err
	}

	if m == nil {
		utils.PrintSuccess("Delete coalesced with a pending create, nothing left to sync")
		return nil
	}

	utils.PrintSuccess(fmt.Sprintf("Queued %s", m.Description()))
	utils.PrintKeyValue("ID", m.ID)
	if application.Queue.Degraded() {
		utils.PrintWarning("Queue store is unavailable: this change will not survive a restart until it syncs")
	}

	return nil
}

// readPayload resolves the payload flag, reading stdin when asked to
func readPayload(raw string) (json.RawMessage, error) {
	if raw == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading payload from stdin: %w", err)
		}
		raw = string(data)
	}

	if raw == "" {
		return nil, nil
	}

	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}

	return json.RawMessage(raw), nil
}
