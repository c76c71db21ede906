// Package main provides the nettest measurement client.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// Version is set at build time
	Version = "dev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "nettest",
		Short: "nettest - network latency and bandwidth measurement",
		Long: `nettest measures round trip time with ICMP, TCP, UDP and line protocol
probes, and throughput over TCP and QUIC against a nettest-server or a
public speedtest.net server.

Each probe is repeated --count times with --interval between runs, then
ping style statistics are printed.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&g.configPath, "config", "f", "", "Path to configuration file (client section)")
	flags.IntVarP(&g.count, "count", "c", 5, "Number of probes")
	flags.DurationVarP(&g.interval, "interval", "i", time.Second, "Pause between probes")
	flags.DurationVarP(&g.timeout, "timeout", "t", 5*time.Second, "Timeout of every connect, read and write")
	flags.StringVarP(&g.size, "size", "s", "", "Payload size in bytes for latency probes, transfer size for bandwidth probes (plain number = MiB)")
	flags.StringVar(&g.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.StringVar(&g.logFormat, "log-format", "text", "Log format (text, json)")
	flags.StringVar(&g.metricsOut, "metrics-out", "", "Write Prometheus metrics in text format to this file when done")
	flags.BoolVar(&g.strictVerify, "strict-verify", false, "Verify QUIC server certificates")

	for _, p := range probes {
		rootCmd.AddCommand(probeCmd(g, p))
	}
	rootCmd.AddCommand(speedtestCmd(g))
	rootCmd.AddCommand(serversCmd(g))

	return rootCmd
}
