package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/12101111/nettest/internal/speedtest"
	"github.com/12101111/nettest/internal/task"
	"github.com/12101111/nettest/internal/wizard"
)

// pickLimit is how many nearby servers the interactive picker offers.
const pickLimit = 10

func speedtestCmd(g *globalFlags) *cobra.Command {
	var (
		serverAddr string
		pick       bool
		skip       []string
	)

	cmd := &cobra.Command{
		Use:   "speedtest",
		Short: "Run ping, download and upload against a speedtest.net server",
		Long: `Fetch the speedtest.net server directory, ping the nearest servers and
run latency, download and upload probes against the fastest one.

Use --server to skip discovery, or --pick to choose interactively.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, g)
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			target, err := s.selectServer(ctx, serverAddr, pick)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, target.String())

			runErr := s.speedtest(ctx, target, skip)
			if err := s.finish(); err != nil && runErr == nil {
				runErr = err
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&serverAddr, "server", "", "Use this host:port instead of discovering a server")
	cmd.Flags().BoolVar(&pick, "pick", false, "Choose the server interactively")
	cmd.Flags().StringSliceVar(&skip, "skip", nil, "Phases to skip (ping, download, upload)")

	return cmd
}

func serversCmd(g *globalFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "servers",
		Short: "List speedtest.net servers, nearest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, g)
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			servers, err := s.nearestServers(ctx, limit)
			if err != nil {
				return err
			}
			for _, srv := range servers {
				fmt.Fprintln(os.Stdout, srv.String())
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show at most this many servers (0 = all)")

	return cmd
}

// nearestServers fetches the directory sorted by distance, cut to limit
// when limit is positive.
func (s *session) nearestServers(ctx context.Context, limit int) ([]speedtest.Server, error) {
	servers, err := speedtest.ListServers(ctx, nil, s.cfg.Client.ServersURL, s.logger)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(servers, func(a, b speedtest.Server) int { return cmp.Compare(a.Distance, b.Distance) })
	if limit > 0 && len(servers) > limit {
		servers = servers[:limit]
	}
	return servers, nil
}

func (s *session) selectServer(ctx context.Context, addr string, pick bool) (speedtest.Server, error) {
	if addr != "" {
		return speedtest.Custom(addr), nil
	}

	if pick {
		if !s.styled {
			return speedtest.Server{}, errors.New("--pick needs an interactive terminal")
		}
		servers, err := s.nearestServers(ctx, pickLimit)
		if err != nil {
			return speedtest.Server{}, err
		}
		return wizard.New().PickServer(servers)
	}

	servers, err := speedtest.ListServers(ctx, nil, s.cfg.Client.ServersURL, s.logger)
	if err != nil {
		return speedtest.Server{}, err
	}
	opts, err := s.options(task.NameLinePing)
	if err != nil {
		return speedtest.Server{}, err
	}
	return speedtest.BestServer(ctx, servers, opts, s.logger)
}

// speedtest runs the latency, download and upload phases against target.
// A failed phase is reported and the next one still runs.
func (s *session) speedtest(ctx context.Context, target speedtest.Server, skip []string) error {
	phases := []struct {
		name string
		task string
	}{
		{"ping", task.NameLinePing},
		{"download", task.NameTCPDownload},
		{"upload", task.NameTCPUpload},
	}

	var errs []error
	for _, p := range phases {
		if slices.Contains(skip, p.name) {
			continue
		}
		if err := ctx.Err(); err != nil {
			break
		}
		if err := s.probe(ctx, p.task, target.Host, target.Sponsor); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.name, err))
		}
	}
	return errors.Join(errs...)
}
