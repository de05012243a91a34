//go:build !linux

package subcmd

import (
	"errors"

	"github.com/spf13/cobra"
)

var Links = &cobra.Command{
	Use:   "links",
	Short: "stubbed-out command only available on linux.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return errors.New("NETLINK_ROUTE is only available on linux")
	},
}
