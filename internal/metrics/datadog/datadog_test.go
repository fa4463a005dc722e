package datadog

import (
	"net"
	"sort"
	"strings"
	"testing"
	"time"

	"ehi/internal/metrics"
)

// startUDPSink listens on a loopback UDP port and collects every datagram
// the statsd client sends, newline-joined, until the listener is closed.
func startUDPSink(t *testing.T) (addr string, payload func() string) {
	t.Helper()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.ListenPacket() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	var sb strings.Builder
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 64*1024)
		for {
			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			n, _, err := conn.ReadFrom(buf)
			if n > 0 {
				sb.Write(buf[:n])
				sb.WriteByte('\n')
			}
			if err != nil {
				return
			}
		}
	}()

	return conn.LocalAddr().String(), func() string {
		// Closing the listener here would discard datagrams still queued in
		// the socket buffer; instead wait for the reader to drain them and
		// exit on its read deadline.
		<-done
		return sb.String()
	}
}

func TestNewBackendRequiresAddr(t *testing.T) {
	t.Parallel()

	b, err := NewBackend(Config{})
	if err == nil {
		t.Fatalf("NewBackend(Config{}) error = nil, want non-nil")
	}
	if b != nil {
		t.Fatalf("NewBackend(Config{}) backend = %v, want nil", b)
	}
}

// TestBackendEmitsDogStatsD sends pipeline metrics through the backend and
// checks the DogStatsD datagrams arriving on the wire: namespaced metric
// names, the count and histogram metric types, and label-derived tags
// alongside the configured global tags.
func TestBackendEmitsDogStatsD(t *testing.T) {
	addr, payload := startUDPSink(t)

	b, err := NewBackend(Config{
		Addr:       addr,
		Namespace:  "ehi.",
		GlobalTags: []string{"env:test"},
	})
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}

	b.IncCounter("ehi_step_total", 1, metrics.Labels{"job": "nightly", "step": "graph", "status": "success"})
	b.IncCounter("ehi_rows_total", 550, metrics.Labels{"job": "nightly", "kind": "staged"})
	b.IncCounter("ehi_patients_total", 2, metrics.Labels{"job": "nightly"})
	b.ObserveHistogram("ehi_step_duration_seconds", 1.5, metrics.Labels{"job": "nightly", "step": "graph", "status": "success"})

	// Close flushes any buffered datagrams to the sink.
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	got := payload()
	wantSubstrings := []string{
		"ehi.ehi_step_total",
		"ehi.ehi_rows_total:550|c",
		"ehi.ehi_patients_total:2|c",
		"ehi.ehi_step_duration_seconds:1.5|h",
		"env:test",
		"step:graph",
		"kind:staged",
		"job:nightly",
	}
	for _, want := range wantSubstrings {
		if !strings.Contains(got, want) {
			t.Fatalf("datagrams missing %q:\n%s", want, got)
		}
	}
}

// TestBackendNilClientIsSafe covers the zero-value backend: every method
// must be a no-op rather than a panic.
func TestBackendNilClientIsSafe(t *testing.T) {
	t.Parallel()

	var b Backend
	b.IncCounter("ehi_step_total", 1, metrics.Labels{"step": "load"})
	b.ObserveHistogram("ehi_step_duration_seconds", 0.5, metrics.Labels{"step": "load"})
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() on zero-value backend error = %v, want nil", err)
	}
}

func TestLabelsToTags(t *testing.T) {
	t.Parallel()

	if tags := labelsToTags(nil); tags != nil {
		t.Fatalf("labelsToTags(nil) = %v, want nil", tags)
	}

	tags := labelsToTags(metrics.Labels{"step": "merge", "status": "failure"})
	sort.Strings(tags)
	want := []string{"status:failure", "step:merge"}
	if len(tags) != len(want) {
		t.Fatalf("labelsToTags() = %v, want %v", tags, want)
	}
	for i := range want {
		if tags[i] != want[i] {
			t.Fatalf("labelsToTags() = %v, want %v", tags, want)
		}
	}
}
