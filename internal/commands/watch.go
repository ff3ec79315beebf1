package commands

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/driftq/internal/app"
	"github.com/tildaslashalef/driftq/internal/events"
	"github.com/tildaslashalef/driftq/internal/loggy"
	"github.com/tildaslashalef/driftq/internal/utils"
)

// WatchCommand returns the CLI command for the connectivity daemon
func WatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Watch connectivity and sync automatically on reconnect",
		Description: "Runs until interrupted: probes the backend, replays the queue when " +
			"connectivity returns, and flushes pending mutations periodically while online.",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "flush-interval",
				Usage: "How often to flush pending mutations while online",
				Value: 5 * time.Minute,
			},
		},
		Action: watchAction,
	}
}

func watchAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	if !application.Config.Remote.Enabled {
		return fmt.Errorf("no backend linked. Use 'driftq remote link --token <token>' first")
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Keep the user informed without them polling the queue
	unsubscribe := []func(){
		application.Bus.Subscribe(events.TopicConnectivityChanged, func(e events.Event) {
			if e.Payload.(bool) {
				utils.PrintSuccess("Backend reachable, replaying queued mutations")
			} else {
				utils.PrintWarning("Backend unreachable, queueing locally")
			}
		}),
		application.Bus.Subscribe(events.TopicSyncCompleted, func(e events.Event) {
			loggy.Info("Automatic sync run finished")
		}),
		application.Bus.Subscribe(events.TopicStoreWarning, func(e events.Event) {
			utils.PrintWarning(fmt.Sprintf("%v", e.Payload))
		}),
	}
	defer func() {
		for _, u := range unsubscribe {
			u()
		}
	}()

	utils.PrintHeading("driftq watch")
	utils.PrintInfo(fmt.Sprintf("Probing %s every %s", application.Config.Remote.URL,
		application.Config.Connectivity.ProbeInterval))
	utils.PrintInfo(fmt.Sprintf("%d mutation(s) queued", len(application.Queue.Items())))

	go application.Monitor.Start(ctx)

	flush := time.NewTicker(c.Duration("flush-interval"))
	defer flush.Stop()

	for {
		select {
		case <-ctx.Done():
			loggy.Info("Watch daemon stopping")
			return nil
		case <-flush.C:
			if len(application.Queue.Pending()) > 0 {
				application.Syncer.TriggerSync(ctx)
			}
		}
	}
}
