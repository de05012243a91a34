// Package metrics exports what a transport.Conn observes in the Prometheus
// exposition format.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var logger = slog.New(slog.DiscardHandler)

type Exporter struct {
	Config

	Collector *Collector

	reg    *prometheus.Registry
	server *http.Server
}

func (e *Exporter) String() string {
	return "prometheus exporter"
}

func NewExporter(c *Config) (*Exporter, error) {
	if c == nil {
		c = &DefaultConfig
	}

	if c.Log {
		logger = slog.Default().With("t", "metrics")
	} else {
		logger = slog.New(slog.DiscardHandler)
	}

	logger.Debug("initialising the prometheus exporter")

	e := Exporter{Config: *c, Collector: NewCollector()}

	// Create a non-global registry.
	e.reg = prometheus.NewRegistry()
	if err := e.Collector.Register(e.reg); err != nil {
		return nil, fmt.Errorf("error registering the metrics: %w", err)
	}

	if e.Port == 0 {
		logger.Warn("the metrics exporter is disabled")
		return &e, nil
	}

	e.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", e.BindAddress, e.Port),
		Handler: e.Handler(),
	}

	return &e, nil
}

func (e *Exporter) Handler() http.Handler {
	handler := http.NewServeMux()
	handler.Handle("/metrics", promhttp.HandlerFor(e.reg, promhttp.HandlerOpts{Registry: e.reg}))
	return handler
}

// Run serves the metrics until done is closed.
func (e *Exporter) Run(done <-chan struct{}) {
	if e.server == nil {
		<-done
		return
	}

	logger.Debug("running the prometheus exporter", "addr", e.server.Addr)

	go func() {
		if err := e.server.ListenAndServe(); err != nil {
			logger.Info("stopped listening", "err", err)
		}
	}()

	<-done
	logger.Debug("cleanly exiting the prometheus exporter")
}

func (e *Exporter) Cleanup() error {
	if e.server == nil {
		return nil
	}

	logger.Debug("cleaning up the prometheus exporter")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return e.server.Shutdown(ctx)
}
