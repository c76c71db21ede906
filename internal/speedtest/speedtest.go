// Package speedtest discovers public speedtest.net servers and picks the
// one with the lowest line protocol latency.
package speedtest

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/12101111/nettest/internal/logging"
	"github.com/12101111/nettest/internal/task"
)

// DefaultURL is the public server directory.
const DefaultURL = "https://www.speedtest.net/api/js/servers?engine=js"

// MaxCandidates is how many of the nearest servers are pinged.
const MaxCandidates = 5

// DefaultHTTPTimeout bounds the directory request.
const DefaultHTTPTimeout = 10 * time.Second

// maxDirectorySize caps the directory response body.
const maxDirectorySize = 8 << 20

// ErrNoServers is returned when there is nothing to choose from.
var ErrNoServers = errors.New("no speedtest server available")

// Server is one entry of the directory.
type Server struct {
	Lat      string `json:"lat"`
	Lon      string `json:"lon"`
	Distance int    `json:"distance"`
	Name     string `json:"name"`
	Country  string `json:"country"`
	CC       string `json:"cc"`
	Sponsor  string `json:"sponsor"`
	ID       string `json:"id"`
	Host     string `json:"host"`

	// Latency is filled in by BestServer.
	Latency time.Duration `json:"-"`
}

// Custom returns a server known only by its host:port.
func Custom(host string) Server {
	return Server{Host: host, Sponsor: host}
}

// String renders the server the way the directory listing shows it.
func (s Server) String() string {
	return fmt.Sprintf("[id: %5s] %4dKm [%s, %s] %s\n   %s", s.ID, s.Distance, s.Name, s.CC, s.Sponsor, s.Host)
}

// ListServers fetches the directory at url. A nil client uses a client
// with DefaultHTTPTimeout.
func ListServers(ctx context.Context, client *http.Client, url string, logger *slog.Logger) ([]Server, error) {
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	if url == "" {
		url = DefaultURL
	}
	logger.Info("Fetch server list from speedtest.net ...")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build directory request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch server list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch server list: unexpected status %s", resp.Status)
	}

	var servers []Server
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDirectorySize)).Decode(&servers); err != nil {
		return nil, fmt.Errorf("decode server list: %w", err)
	}
	for i := range servers {
		servers[i].normalize()
	}
	logger.Debug("server list fetched", logging.KeyCount, len(servers))
	return servers, nil
}

// normalize puts the human readable fields in NFC form.
func (s *Server) normalize() {
	s.Name = norm.NFC.String(s.Name)
	s.Country = norm.NFC.String(s.Country)
	s.Sponsor = norm.NFC.String(s.Sponsor)
}

// BestServer pings the MaxCandidates nearest servers once each and returns
// the one that answered fastest. A server that fails to answer counts as
// taking opts.Timeout. servers is not modified.
func BestServer(ctx context.Context, servers []Server, opts task.Options, logger *slog.Logger) (Server, error) {
	if len(servers) == 0 {
		return Server{}, ErrNoServers
	}
	logger.Info("Finding best server...")

	candidates := slices.Clone(servers)
	slices.SortStableFunc(candidates, func(a, b Server) int { return cmp.Compare(a.Distance, b.Distance) })
	candidates = candidates[:min(len(candidates), MaxCandidates)]

	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return Server{}, err
		}
		s := &candidates[i]
		s.Latency = latency(ctx, *s, opts, logger)
		logger.Info(fmt.Sprintf("[%5s] %s: %s", s.ID, s.Sponsor, s.Latency))
	}

	best := slices.MinFunc(candidates, func(a, b Server) int { return cmp.Compare(a.Latency, b.Latency) })
	logger.Info(fmt.Sprintf("Select server %s", best.Sponsor))
	return best, nil
}

// latency runs a single line protocol ping against s.
func latency(ctx context.Context, s Server, opts task.Options, logger *slog.Logger) time.Duration {
	opts.Label = s.Sponsor
	probe, err := task.NewLinePing(ctx, s.Host, opts, logging.NopLogger())
	if err != nil {
		logger.Debug("candidate unusable", logging.KeyTarget, s.Host, logging.KeyError, err)
		return opts.Timeout
	}
	defer probe.Close()

	m, err := probe.Run(ctx)
	if err != nil {
		logger.Debug("candidate ping failed", logging.KeyTarget, s.Host, logging.KeyError, err)
		return opts.Timeout
	}
	return m.Elapsed
}
