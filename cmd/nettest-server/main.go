// Package main provides the nettest line protocol server.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/12101111/nettest/internal/config"
	"github.com/12101111/nettest/internal/health"
	"github.com/12101111/nettest/internal/logging"
	"github.com/12101111/nettest/internal/metrics"
	"github.com/12101111/nettest/internal/server"
	"github.com/12101111/nettest/internal/transport"
	"github.com/12101111/nettest/internal/wizard"
)

var (
	// Version is set at build time
	Version = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "nettest-server",
		Short: "nettest-server - speed test server",
		Long: `nettest-server serves the line protocol used by the nettest client and
by speedtest.net clients: HI, GETIP, PING, DOWNLOAD and UPLOAD.

The protocol is served over TCP and optionally over QUIC.`,
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(initConfigCmd())
	rootCmd.AddCommand(genCertCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var (
		configPath  string
		tcpAddress  string
		quicAddress string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the speed test server",
		Long:  "Start the speed test server with the specified configuration.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				cfg = loaded
			}
			if cmd.Flags().Changed("tcp") {
				cfg.Server.TCPAddress = tcpAddress
			}
			if cmd.Flags().Changed("quic") {
				cfg.Server.QUICAddress = quicAddress
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			return serve(cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().StringVar(&tcpAddress, "tcp", "", "TCP listen address (overrides config, empty disables)")
	cmd.Flags().StringVar(&quicAddress, "quic", "", "QUIC listen address (overrides config, empty disables)")

	return cmd
}

func serve(cfg *config.Config) error {
	logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)

	rate, err := cfg.Server.RateLimitBytes()
	if err != nil {
		return err
	}

	srvCfg := server.Config{
		TCPAddress:     cfg.Server.TCPAddress,
		QUICAddress:    cfg.Server.QUICAddress,
		IdleTimeout:    cfg.Server.IdleTimeout,
		RateLimit:      rate,
		MaxConnections: cfg.Server.MaxConnections,
	}
	if cfg.Server.QUICAddress != "" {
		tlsCfg, err := transport.ServerTLSConfig(cfg.Server.TLS.Cert, cfg.Server.TLS.Key, "nettest")
		if err != nil {
			return fmt.Errorf("failed to set up TLS: %w", err)
		}
		if cfg.Server.TLS.Cert == "" {
			logger.Warn("using a generated self-signed certificate for QUIC")
		}
		srvCfg.TLSConfig = tlsCfg
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	srv := server.New(srvCfg, logger, metrics.NewServerMetrics(reg))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	var healthSrv *health.Server
	if cfg.Health.Enabled {
		healthSrv = health.NewServer(health.ServerConfig{
			Address:      cfg.Health.Address,
			ReadTimeout:  cfg.Health.ReadTimeout,
			WriteTimeout: cfg.Health.WriteTimeout,
		}, srv, reg)
		if err := healthSrv.Start(); err != nil {
			srv.Stop()
			return fmt.Errorf("failed to start health server: %w", err)
		}
		logger.Info("health endpoint listening", logging.KeyAddress, healthSrv.Address().String())
	}

	<-ctx.Done()
	logger.Info("shutting down")

	var errs []error
	if healthSrv != nil {
		errs = append(errs, healthSrv.Stop())
	}

	done := make(chan error, 1)
	go func() { done <- srv.Stop() }()
	select {
	case err := <-done:
		errs = append(errs, err)
	case <-time.After(10 * time.Second):
		errs = append(errs, errors.New("timed out waiting for sessions to end"))
	}

	return errors.Join(errs...)
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a configuration interactively",
		Long:  "Run the setup wizard and write a configuration file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return errors.New("the setup wizard needs an interactive terminal; use init-config instead")
			}
			_, err := wizard.New().Run()
			return err
		},
	}
}

func initConfigCmd() *cobra.Command {
	var (
		output string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write an annotated example configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "-" {
				_, err := fmt.Fprint(os.Stdout, config.ExampleYAML)
				return err
			}
			if _, err := os.Stat(output); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", output)
			}
			if err := os.WriteFile(output, []byte(config.ExampleYAML), 0644); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}
			fmt.Printf("Configuration written to %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "./nettest.yaml", "Output path (- for stdout)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	return cmd
}

func genCertCmd() *cobra.Command {
	var (
		certFile   string
		keyFile    string
		commonName string
		validFor   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "gen-cert",
		Short: "Generate a self-signed certificate for the QUIC listener",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := transport.GenerateAndSaveCert(certFile, keyFile, commonName, validFor); err != nil {
				return fmt.Errorf("failed to generate certificate: %w", err)
			}
			fmt.Printf("Certificate: %s\n", certFile)
			fmt.Printf("Private key: %s\n", keyFile)
			return nil
		},
	}

	cmd.Flags().StringVar(&certFile, "cert", "./server.crt", "Certificate output path")
	cmd.Flags().StringVar(&keyFile, "key", "./server.key", "Private key output path")
	cmd.Flags().StringVar(&commonName, "cn", "nettest", "Certificate common name")
	cmd.Flags().DurationVar(&validFor, "valid-for", transport.DefaultCertValidity, "Certificate validity")

	return cmd
}
