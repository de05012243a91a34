// Package subcmd holds nlctl's sub-commands.
package subcmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scitags/gonl/genetlink"
	"github.com/scitags/gonl/metrics"
	"github.com/scitags/gonl/transport"
	"github.com/scitags/gonl/uevent"
)

// The root command points these at the parsed configuration before running
// any sub-command.
var (
	TransportConf = &transport.DefaultConfig
	GenetlinkConf = &genetlink.DefaultConfig
	MetricsConf   = &metrics.DefaultConfig
	UeventConf    = &uevent.DefaultConfig
)

const defaultTimeout = 5 * time.Second

var timeout time.Duration

// dialGeneric opens a generic netlink client. The returned closer must be
// called once done.
func dialGeneric(obs transport.Observer) (*genetlink.Client, func(), error) {
	conn, err := transport.Dial(transport.NETLINK_GENERIC, TransportConf, obs)
	if err != nil {
		return nil, nil, err
	}
	return genetlink.NewClient(conn, GenetlinkConf, obs), func() { conn.Close() }, nil
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func signals() <-chan os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	return sigChan
}
