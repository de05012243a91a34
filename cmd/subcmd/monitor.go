package subcmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/scitags/gonl/metrics"
	"github.com/spf13/cobra"
)

func init() {
	Monitor.Flags().DurationVar(&timeout, "timeout", defaultTimeout, "how long to wait for the kernel when resolving the family")
}

var Monitor = &cobra.Command{
	Use:   "monitor FAMILY GROUP...",
	Short: "Join a family's multicast groups and print every notification.",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		exporter, err := metrics.NewExporter(MetricsConf)
		if err != nil {
			return err
		}
		defer func() {
			if err := exporter.Cleanup(); err != nil {
				slog.Error("error cleaning up the exporter", "err", err)
			}
		}()

		c, done, err := dialGeneric(exporter.Collector)
		if err != nil {
			return err
		}
		defer done()

		family := args[0]
		ctx, cancel := requestContext()
		for _, group := range args[1:] {
			if err := c.JoinGroup(ctx, family, group); err != nil {
				cancel()
				return fmt.Errorf("error joining %s/%s: %w", family, group, err)
			}
			slog.Info("listening", "family", family, "group", group)
		}
		cancel()

		doneChan := make(chan struct{})
		defer close(doneChan)
		go exporter.Run(doneChan)

		sigChan := signals()
		notifications := c.Notifications()
		for {
			select {
			case n, ok := <-notifications:
				if !ok {
					return fmt.Errorf("the notification stream was closed")
				}
				printNotification(os.Stdout, n)
			case sig := <-sigChan:
				slog.Debug("got a signal, quitting", "signal", sig)
				return nil
			}
		}
	},
}
