package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/scitags/gonl/internal/nltest"
	"github.com/scitags/gonl/message"
	"github.com/scitags/gonl/transport"
	"golang.org/x/sys/unix"
)

func TestReflection(t *testing.T) {
	x := NewCollector()

	v := reflect.ValueOf(*x)

	for i := 0; i < v.NumField(); i++ {
		vv := v.Field(i).Interface()
		_, ok := vv.(prometheus.Collector)
		if !ok {
			t.Errorf("error casting the interface for %d", i)
		}
	}
}

func scrape(t *testing.T, e *Exporter) string {
	t.Helper()

	srv := httptest.NewServer(e.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("error scraping: %v", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("error reading the scrape: %v", err)
	}
	return string(b)
}

func TestExporter(t *testing.T) {
	e, err := NewExporter(&Config{Log: true})
	if err != nil {
		t.Fatalf("error creating the exporter: %v", err)
	}

	k := nltest.NewKernel(1, func(req message.Message) [][]byte {
		if string(req.Payload) == "fail" {
			return [][]byte{nltest.Batch(nltest.Error(req, int32(unix.EPERM), ""))}
		}
		return [][]byte{nltest.Batch(
			nltest.Reply(req, 0x20, []byte("ok")),
			nltest.Reply(message.Message{Header: message.Header{Sequence: 999}}, 0x20, nil),
		)}
	})
	conn := transport.NewConn(k, nil, e.Collector)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, p := range []string{"ok", "ok", "fail"} {
		conn.Execute(ctx, message.Message{
			Header:  message.Header{Type: 0x20, Flags: message.Request},
			Payload: []byte(p),
		})
	}

	// The stale replies trail the ones completing the requests.
	deadline := time.Now().Add(2 * time.Second)
	var body string
	for {
		body = scrape(t, e)
		if strings.Contains(body, `netlink_messages_dropped_total{reason="unmatched"} 2`) || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	for _, want := range []string{
		"netlink_requests_total 3",
		`netlink_requests_completed_total{state="done"} 2`,
		`netlink_requests_completed_total{state="failed"} 1`,
		`netlink_messages_received_total{type="0x20"} 4`,
		`netlink_messages_received_total{type="ERROR"} 1`,
		`netlink_messages_dropped_total{reason="unmatched"} 2`,
		`netlink_request_duration_seconds_count{state="done"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in:\n%s", want, body)
		}
	}
}

func TestDisabledExporter(t *testing.T) {
	e, err := NewExporter(nil)
	if err != nil {
		t.Fatalf("error creating the exporter: %v", err)
	}
	if e.server != nil {
		t.Errorf("no server should be set up on port 0")
	}

	done := make(chan struct{})
	close(done)
	e.Run(done)

	if err := e.Cleanup(); err != nil {
		t.Errorf("unexpected error cleaning up: %v", err)
	}
}
