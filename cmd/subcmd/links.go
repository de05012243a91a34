//go:build linux

package subcmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"text/tabwriter"

	"github.com/jsimonetti/rtnetlink"
	"github.com/scitags/gonl/message"
	"github.com/scitags/gonl/transport"
	"github.com/scitags/gonl/types"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

func init() {
	Links.Flags().DurationVar(&timeout, "timeout", defaultTimeout, "how long to wait for the kernel")
}

var Links = &cobra.Command{
	Use:   "links",
	Short: "Dump the network interfaces over NETLINK_ROUTE.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := transport.Dial(transport.NETLINK_ROUTE, TransportConf, nil)
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx, cancel := requestContext()
		defer cancel()

		links, err := dumpLinks(ctx, conn)
		if err != nil {
			if !errors.Is(err, types.ErrDumpInterrupted) {
				return err
			}
			slog.Warn("the link table changed mid-dump, results may be inconsistent")
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "INDEX\tNAME\tMTU\tADDRESS\tFLAGS")
		for _, l := range links {
			var (
				name string
				mtu  uint32
				addr net.HardwareAddr
			)
			if l.Attributes != nil {
				name, mtu, addr = l.Attributes.Name, l.Attributes.MTU, l.Attributes.Address
			}
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n", l.Index, name, mtu, addr, linkFlags(l.Flags))
		}
		return w.Flush()
	},
}

type requester interface {
	Execute(ctx context.Context, m message.Message) ([]message.Message, error)
}

// dumpLinks issues an RTM_GETLINK dump. Interrupted dumps return what was
// collected alongside types.ErrDumpInterrupted.
func dumpLinks(ctx context.Context, r requester) ([]rtnetlink.LinkMessage, error) {
	req, err := (&rtnetlink.LinkMessage{Family: unix.AF_UNSPEC}).MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("error marshaling the request: %w", err)
	}

	msgs, err := r.Execute(ctx, message.Message{
		Header:  message.Header{Type: unix.RTM_GETLINK, Flags: message.Request | message.Dump},
		Payload: req,
	})
	if err != nil && !errors.Is(err, types.ErrDumpInterrupted) {
		return nil, err
	}

	links := make([]rtnetlink.LinkMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Header.Type != unix.RTM_NEWLINK {
			continue
		}
		var lm rtnetlink.LinkMessage
		if err := lm.UnmarshalBinary(m.Payload); err != nil {
			slog.Warn("skipping undecodable link", "seq", m.Header.Sequence, "err", err)
			continue
		}
		links = append(links, lm)
	}

	return links, err
}

// linkFlags maps IFF_* bits onto net.Flags, which numbers them differently.
func linkFlags(iff uint32) net.Flags {
	var f net.Flags
	for bit, flag := range map[uint32]net.Flags{
		unix.IFF_UP:          net.FlagUp,
		unix.IFF_BROADCAST:   net.FlagBroadcast,
		unix.IFF_LOOPBACK:    net.FlagLoopback,
		unix.IFF_POINTOPOINT: net.FlagPointToPoint,
		unix.IFF_MULTICAST:   net.FlagMulticast,
		unix.IFF_RUNNING:     net.FlagRunning,
	} {
		if iff&bit != 0 {
			f |= flag
		}
	}
	return f
}
