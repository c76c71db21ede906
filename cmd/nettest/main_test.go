package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/12101111/nettest/internal/runner"
	"github.com/12101111/nettest/internal/stats"
	"github.com/12101111/nettest/internal/task"
	"github.com/12101111/nettest/internal/units"
)

// parsedSession runs the root command's flag parsing for a probe
// subcommand and returns the resulting session.
func parsedSession(t *testing.T, args ...string) (*session, error) {
	t.Helper()
	root := newRootCmd()
	var got *session
	var gotErr error
	for _, c := range root.Commands() {
		if c.Name() == task.NameTCPing {
			c.RunE = func(cmd *cobra.Command, _ []string) error {
				flags := root.PersistentFlags()
				g := &globalFlags{}
				g.configPath, _ = flags.GetString("config")
				g.count, _ = flags.GetInt("count")
				g.interval, _ = flags.GetDuration("interval")
				g.timeout, _ = flags.GetDuration("timeout")
				g.size, _ = flags.GetString("size")
				g.logLevel, _ = flags.GetString("log-level")
				g.logFormat, _ = flags.GetString("log-format")
				got, gotErr = newSession(cmd, g)
				return nil
			}
		}
	}
	root.SetArgs(append([]string{task.NameTCPing, "127.0.0.1:1"}, args...))
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return got, gotErr
}

func TestSession_Defaults(t *testing.T) {
	s, err := parsedSession(t)
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}
	if s.cfg.Client.Count != 5 || s.cfg.Client.Interval != time.Second || s.cfg.Client.Timeout != 5*time.Second {
		t.Errorf("client = %+v", s.cfg.Client)
	}

	opts, err := s.options(task.NameTCPing)
	if err != nil || opts.Size != 60 {
		t.Errorf("latency options = %+v, %v", opts, err)
	}
	opts, err = s.options(task.NameTCPDownload)
	if err != nil || opts.Size != 60*units.MiB {
		t.Errorf("bandwidth options = %+v, %v", opts, err)
	}
}

func TestSession_FlagsOverrideConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nettest.yaml")
	if err := os.WriteFile(path, []byte("client:\n  count: 9\n  timeout: 2s\n"), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := parsedSession(t, "-f", path, "-t", "3s", "-s", "10")
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}
	if s.cfg.Client.Count != 9 {
		t.Errorf("count = %d, want 9 from config", s.cfg.Client.Count)
	}
	if s.cfg.Client.Timeout != 3*time.Second {
		t.Errorf("timeout = %v, want flag value", s.cfg.Client.Timeout)
	}
	if opts, _ := s.options(task.NameUDPing); opts.Size != 10 {
		t.Errorf("latency size = %d, want 10 bytes", opts.Size)
	}
	if opts, _ := s.options(task.NameQUICDownload); opts.Size != 10*units.MiB {
		t.Errorf("bandwidth size = %d, want 10 MiB", opts.Size)
	}
}

func TestSession_ZeroCount(t *testing.T) {
	if _, err := parsedSession(t, "-c", "0"); !errors.Is(err, runner.ErrZeroCount) {
		t.Errorf("newSession = %v, want ErrZeroCount", err)
	}
}

func TestPrintReport(t *testing.T) {
	res := &runner.Result{
		Task:         task.NameTCPing,
		Measurements: []task.Measurement{task.Time(10 * time.Millisecond), task.Time(30 * time.Millisecond)},
		Failures:     2,
	}

	var buf bytes.Buffer
	if err := printReport(&buf, "example:80", res, false); err != nil {
		t.Fatalf("printReport: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"--- example:80 tcping statistics ---",
		"4 packets transmitted, 2 received, 50.00% packet loss",
		"rtt min/avg/max/mdev = 10.000/20.000/30.000/10.000 ms",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestPrintReport_AllFailed(t *testing.T) {
	res := &runner.Result{Task: task.NameTCPing, Failures: 3}
	if err := printReport(&bytes.Buffer{}, "x", res, false); !errors.Is(err, stats.ErrAllFailed) {
		t.Errorf("printReport = %v, want ErrAllFailed", err)
	}
}
