package metrics

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/scitags/gonl/message"
	"github.com/scitags/gonl/transport"
	"github.com/scitags/gonl/types"
)

// Collector keeps track of the traffic going through a transport.Conn. It
// implements transport.Observer, so it's meant to be handed to
// transport.NewConn.
//
// Metric labels (note these are **always** strings):
//
//	state: terminal state of a request (done, failed or cancelled)
//	type: netlink message type, either a control type name or its hex value
//	reason: why a message was dropped
type Collector struct {
	RequestsSent      prometheus.Counter
	RequestsCompleted *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec

	MessagesReceived *prometheus.CounterVec
	MessagesDropped  *prometheus.CounterVec
}

func NewCollector() *Collector {
	return &Collector{
		RequestsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netlink_requests_total",
			Help: "Requests written to the socket",
		}),
		RequestsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netlink_requests_completed_total",
			Help: "Requests that reached a terminal state",
		}, []string{"state"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "netlink_request_duration_seconds",
			Help:    "Time between registering a request and its completion [s]",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"state"}),

		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netlink_messages_received_total",
			Help: "Messages decoded off the socket",
		}, []string{"type"}),
		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netlink_messages_dropped_total",
			Help: "Messages that never made it to a caller",
		}, []string{"reason"}),
	}
}

// (Nastily) use reflection to avoid having to manually register everything.
func (c *Collector) Register(reg prometheus.Registerer) error {
	v := reflect.ValueOf(*c)

	i := 0
	for i = 0; i < v.NumField(); i++ {
		vv, ok := v.Field(i).Interface().(prometheus.Collector)
		if !ok {
			return fmt.Errorf("error casting the interface for index %d", i)
		}
		if err := reg.Register(vv); err != nil {
			return fmt.Errorf("error registering index %d: %w", i, err)
		}
	}
	logger.Log(context.Background(), types.LevelTrace, "registered collectors", "i", i)

	return nil
}

func (c *Collector) RequestSent() {
	c.RequestsSent.Inc()
}

func (c *Collector) RequestDone(state transport.State, elapsed time.Duration) {
	c.RequestsCompleted.WithLabelValues(state.String()).Inc()
	c.RequestDuration.WithLabelValues(state.String()).Observe(elapsed.Seconds())
}

func (c *Collector) MessageReceived(typ message.Type) {
	c.MessagesReceived.WithLabelValues(typ.String()).Inc()
}

func (c *Collector) MessageDropped(reason string) {
	c.MessagesDropped.WithLabelValues(reason).Inc()
}

var _ transport.Observer = &Collector{}
