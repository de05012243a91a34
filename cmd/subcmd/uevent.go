package subcmd

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/scitags/gonl/uevent"
	"github.com/spf13/cobra"
)

func init() {
	Uevent.Flags().StringSliceVar(&subsystems, "subsystem", nil, "only show events for these subsystems")
}

var (
	subsystems []string

	Uevent = &cobra.Command{
		Use:   "uevent",
		Short: "Follow the kernel's device events.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf := *UeventConf
			if len(subsystems) > 0 {
				conf.Subsystems = subsystems
			}

			m, err := uevent.Open(&conf)
			if err != nil {
				return err
			}

			evChan := make(chan uevent.Event)
			errChan := make(chan error, 1)
			go func() {
				for {
					e, err := m.Next()
					if err != nil {
						errChan <- err
						return
					}
					evChan <- e
				}
			}()

			sigChan := signals()
			for {
				select {
				case e := <-evChan:
					fmt.Printf("%s\n", e)
					for _, k := range slices.Sorted(maps.Keys(e.Env)) {
						fmt.Printf("  %s=%s\n", k, e.Env[k])
					}
				case err := <-errChan:
					m.Close()
					return err
				case sig := <-sigChan:
					slog.Debug("got a signal, quitting", "signal", sig)
					return m.Close()
				}
			}
		},
	}
)
