package metrics

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestServerConnections(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewServerMetrics(reg)

	m.RecordConnect("tcp")
	m.RecordConnect("tcp")
	m.RecordConnect("quic")
	m.RecordDisconnect("tcp")

	if got := testutil.ToFloat64(m.ConnectionsActive.WithLabelValues("tcp")); got != 1 {
		t.Errorf("active tcp = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ConnectionsTotal.WithLabelValues("tcp")); got != 2 {
		t.Errorf("total tcp = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ConnectionsActive.WithLabelValues("quic")); got != 1 {
		t.Errorf("active quic = %v, want 1", got)
	}
}

func TestServerCommandsAndBytes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewServerMetrics(reg)

	m.RecordCommand("DOWNLOAD")
	m.RecordCommand("DOWNLOAD")
	m.RecordBytesSent("DOWNLOAD", 1000)
	m.RecordBytesReceived("UPLOAD", 500)
	m.RecordBytesReceived("UPLOAD", 0)
	m.RecordSizeMismatch()
	m.RecordProtocolError("unknown_command")
	m.RecordRejected()
	m.RecordPanic()

	if got := testutil.ToFloat64(m.Commands.WithLabelValues("DOWNLOAD")); got != 2 {
		t.Errorf("DOWNLOAD commands = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.BytesSent.WithLabelValues("DOWNLOAD")); got != 1000 {
		t.Errorf("bytes sent = %v, want 1000", got)
	}
	if got := testutil.ToFloat64(m.BytesReceived.WithLabelValues("UPLOAD")); got != 500 {
		t.Errorf("bytes received = %v, want 500", got)
	}
	if got := testutil.ToFloat64(m.SizeMismatches); got != 1 {
		t.Errorf("size mismatches = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ProtocolErrors.WithLabelValues("unknown_command")); got != 1 {
		t.Errorf("protocol errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ConnectionsRejected); got != 1 {
		t.Errorf("rejected = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Panics); got != 1 {
		t.Errorf("panics = %v, want 1", got)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var s *ServerMetrics
	s.RecordConnect("tcp")
	s.RecordCommand("HI")
	s.RecordBytesSent("DOWNLOAD", 1)

	var c *ClientMetrics
	c.RecordProbe("ping", "ok")
	c.RecordRTT("ping", 0.01)
	c.RecordTransfer("tcpdownload", 1, 1)
}

func TestClientMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewClientMetrics(reg)

	m.RecordProbe("ping", "ok")
	m.RecordProbe("ping", "timeout")
	m.RecordProbe("ping", "ok")
	m.RecordRTT("ping", 0.012)
	m.RecordTransfer("tcpdownload", 10<<20, 812.5)

	if got := testutil.ToFloat64(m.Probes.WithLabelValues("ping", "ok")); got != 2 {
		t.Errorf("ok probes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Throughput.WithLabelValues("tcpdownload")); got != 812.5 {
		t.Errorf("throughput = %v, want 812.5", got)
	}
	if got := testutil.CollectAndCount(m.RTT); got != 1 {
		t.Errorf("rtt series = %d, want 1", got)
	}
}

func TestWriteText(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewClientMetrics(reg)
	m.RecordProbe("tcping", "ok")

	var buf bytes.Buffer
	if err := WriteText(&buf, reg); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `nettest_client_probes_total{result="ok",task="tcping"} 1`) {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewClientMetrics(reg)
	m.RecordTransfer("quicdownload", 1024, 10)

	path := filepath.Join(t.TempDir(), "nettest.prom")
	if err := WriteTextfile(path, reg); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "nettest_client_bytes_total") {
		t.Errorf("metrics file missing bytes counter:\n%s", data)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %d entries", len(entries))
	}
}
