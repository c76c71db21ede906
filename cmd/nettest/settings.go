package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/12101111/nettest/internal/config"
	"github.com/12101111/nettest/internal/logging"
	"github.com/12101111/nettest/internal/metrics"
	"github.com/12101111/nettest/internal/runner"
	"github.com/12101111/nettest/internal/task"
	"github.com/12101111/nettest/internal/units"
)

// globalFlags holds the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath   string
	count        int
	interval     time.Duration
	timeout      time.Duration
	size         string
	logLevel     string
	logFormat    string
	metricsOut   string
	strictVerify bool
}

// session is everything a subcommand needs to run probes.
type session struct {
	cfg      *config.Config
	flags    *globalFlags
	changed  func(name string) bool
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.ClientMetrics
	styled   bool
}

// newSession loads the configuration and applies the flags that were set
// explicitly on top of it.
func newSession(cmd *cobra.Command, g *globalFlags) (*session, error) {
	cfg := config.Default()
	if g.configPath != "" {
		loaded, err := config.Load(g.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	changed := cmd.Flags().Changed
	if changed("count") {
		cfg.Client.Count = g.count
	}
	if changed("interval") {
		cfg.Client.Interval = g.interval
	}
	if changed("timeout") {
		cfg.Client.Timeout = g.timeout
	}
	if changed("strict-verify") {
		cfg.Client.StrictVerify = g.strictVerify
	}
	if changed("log-level") {
		cfg.Log.Level = g.logLevel
	}
	if changed("log-format") {
		cfg.Log.Format = g.logFormat
	}

	if cfg.Client.Count <= 0 {
		return nil, runner.ErrZeroCount
	}
	if !logging.ValidLevel(cfg.Log.Level) {
		return nil, fmt.Errorf("invalid log level %q", cfg.Log.Level)
	}
	if !logging.ValidFormat(cfg.Log.Format) {
		return nil, fmt.Errorf("invalid log format %q", cfg.Log.Format)
	}

	reg := prometheus.NewRegistry()
	return &session{
		cfg:      cfg,
		flags:    g,
		changed:  changed,
		logger:   logging.NewLogger(cfg.Log.Level, cfg.Log.Format),
		registry: reg,
		metrics:  metrics.NewClientMetrics(reg),
		styled:   term.IsTerminal(int(os.Stdout.Fd())),
	}, nil
}

// options returns task options for the named task. Latency probes take
// --size in bytes, bandwidth probes as a transfer size.
func (s *session) options(name string) (task.Options, error) {
	opts := task.Options{
		Timeout:      s.cfg.Client.Timeout,
		StrictVerify: s.cfg.Client.StrictVerify,
	}

	var err error
	switch {
	case task.IsBandwidth(name) && s.changed("size"):
		opts.Size, err = units.ParseTransferSize(s.flags.size)
	case task.IsBandwidth(name):
		opts.Size, err = s.cfg.Client.TransferBytes()
	case s.changed("size"):
		opts.Size, err = units.ParseSize(s.flags.size)
	default:
		opts.Size = int64(s.cfg.Client.PingSize)
	}
	if err != nil {
		return task.Options{}, fmt.Errorf("invalid size: %w", err)
	}
	return opts, nil
}

func (s *session) runnerOptions() runner.Options {
	return runner.Options{Count: s.cfg.Client.Count, Interval: s.cfg.Client.Interval}
}

// finish writes the metrics textfile if one was requested.
func (s *session) finish() error {
	if s.flags.metricsOut == "" {
		return nil
	}
	if err := metrics.WriteTextfile(s.flags.metricsOut, s.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	s.logger.Debug("metrics written", logging.KeyAddress, s.flags.metricsOut)
	return nil
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
