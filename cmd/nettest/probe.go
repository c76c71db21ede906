package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/12101111/nettest/internal/runner"
	"github.com/12101111/nettest/internal/task"
)

// probeDef describes one probe subcommand.
type probeDef struct {
	name  string
	arg   string
	short string
}

var probes = []probeDef{
	{task.NamePing, "host", "Measure ICMP echo round trip time"},
	{task.NameTCPing, "host:port", "Measure TCP handshake time"},
	{task.NameUDPing, "host:port", "Measure round trip time against a UDP echo server"},
	{task.NameLinePing, "host:port", "Measure line protocol HI round trip time"},
	{task.NameTCPUpload, "host:port", "Measure TCP upload bandwidth"},
	{task.NameTCPDownload, "host:port", "Measure TCP download bandwidth"},
	{task.NameQUICUpload, "host:port", "Measure QUIC upload bandwidth"},
	{task.NameQUICDownload, "host:port", "Measure QUIC download bandwidth"},
}

func probeCmd(g *globalFlags, p probeDef) *cobra.Command {
	return &cobra.Command{
		Use:   fmt.Sprintf("%s <%s>", p.name, p.arg),
		Short: p.short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, g)
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			runErr := s.probe(ctx, p.name, args[0], "")
			if err := s.finish(); err != nil && runErr == nil {
				runErr = err
			}
			return runErr
		},
	}
}

// probe builds the named task against target, runs it and prints the
// statistics. An interrupted run reports what it measured so far.
func (s *session) probe(ctx context.Context, name, target, label string) error {
	opts, err := s.options(name)
	if err != nil {
		return err
	}
	opts.Label = label

	t, err := task.New(ctx, name, target, opts, s.logger)
	if err != nil {
		return err
	}
	defer t.Close()

	res, err := runner.Run(ctx, t, s.runnerOptions(), s.logger, s.metrics)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	title := target
	if label != "" {
		title = label
	}
	return printReport(os.Stdout, title, res, s.styled)
}
