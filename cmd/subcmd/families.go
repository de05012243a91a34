package subcmd

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/scitags/gonl/genetlink"
	"github.com/spf13/cobra"
)

func init() {
	Families.Flags().DurationVar(&timeout, "timeout", defaultTimeout, "how long to wait for the kernel")
	Resolve.Flags().DurationVar(&timeout, "timeout", defaultTimeout, "how long to wait for the kernel")
}

var (
	Families = &cobra.Command{
		Use:   "families",
		Short: "List every generic netlink family the kernel knows about.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := dialGeneric(nil)
			if err != nil {
				return err
			}
			defer done()

			ctx, cancel := requestContext()
			defer cancel()

			fs, err := c.ListFamilies(ctx)
			if err != nil {
				return fmt.Errorf("error listing families: %w", err)
			}
			slices.SortFunc(fs, func(a, b genetlink.Family) int { return int(a.ID) - int(b.ID) })

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tVERSION\tMAXATTR\tGROUPS")
			for _, f := range fs {
				names := make([]string, 0, len(f.Groups))
				for _, g := range f.Groups {
					names = append(names, g.Name)
				}
				fmt.Fprintf(w, "%#x\t%s\t%d\t%d\t%s\n", f.ID, f.Name, f.Version, f.MaxAttr, strings.Join(names, ","))
			}
			return w.Flush()
		},
	}

	Resolve = &cobra.Command{
		Use:   "resolve NAME",
		Short: "Show a single family's operations and multicast groups.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := dialGeneric(nil)
			if err != nil {
				return err
			}
			defer done()

			ctx, cancel := requestContext()
			defer cancel()

			f, err := c.ResolveFamily(ctx, args[0])
			if err != nil {
				return err
			}

			printFamily(os.Stdout, f)
			return nil
		},
	}
)
