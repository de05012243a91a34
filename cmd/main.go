package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/scitags/gonl/cmd/subcmd"
	"github.com/scitags/gonl/types"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.PersistentFlags().StringVar(&confPathFlag, "config", "", "path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info", "log level: trace, debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVar(&logTimeFlag, "log-time", false, "include timestamps in log lines")
}

var (
	rootCmd = &cobra.Command{
		Use:   "nlctl",
		Short: "Poke at the kernel over netlink.",
		Long:  "Resolve generic netlink families, listen for multicast notifications and follow kernel uevents.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := types.ParseLevel(logLevelFlag)
			if err != nil {
				return err
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				AddSource:   level < slog.LevelInfo,
				Level:       level,
				ReplaceAttr: logReplacements,
			}))
			slog.SetDefault(logger)

			conf := &Config{}
			if confPathFlag != "" {
				conf, err = ReadConf(confPathFlag)
				if err != nil {
					return err
				}
			}
			conf.fill()

			slog.Debug("running with configuration", "path", confPathFlag)
			slog.Log(cmd.Context(), types.LevelTrace, "full configuration", "conf", conf.String())

			subcmd.TransportConf = conf.Transport
			subcmd.GenetlinkConf = conf.Genetlink
			subcmd.MetricsConf = conf.Metrics
			subcmd.UeventConf = conf.Uevent

			return nil
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Get the built version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("built commit: %s\n", builtCommit)
		},
	}

	confPathFlag string
	logLevelFlag string
	logTimeFlag  bool

	builtCommit = "dev"
)

func init() {
	// Disable completion please!
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Add the different sub-commands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(subcmd.Families)
	rootCmd.AddCommand(subcmd.Resolve)
	rootCmd.AddCommand(subcmd.Links)
	rootCmd.AddCommand(subcmd.Monitor)
	rootCmd.AddCommand(subcmd.Uevent)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
