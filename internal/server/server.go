// Package server implements the line protocol speed test server over TCP
// and QUIC.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/12101111/nettest/internal/health"
	"github.com/12101111/nettest/internal/logging"
	"github.com/12101111/nettest/internal/metrics"
	"github.com/12101111/nettest/internal/payload"
	"github.com/12101111/nettest/internal/protocol"
	"github.com/12101111/nettest/internal/recovery"
	"github.com/12101111/nettest/internal/transport"
)

// Transport labels used in logs and metrics.
const (
	TransportTCP  = "tcp"
	TransportQUIC = "quic"
)

// ErrAlreadyStarted is returned by Start on a running server.
var ErrAlreadyStarted = errors.New("server already started")

// Config configures a Server.
type Config struct {
	// TCPAddress is the TCP listen address. Empty disables TCP.
	TCPAddress string

	// QUICAddress is the UDP listen address for QUIC. Empty disables QUIC.
	QUICAddress string

	// TLSConfig is required when QUICAddress is set.
	TLSConfig *tls.Config

	// IdleTimeout closes a session that makes no progress for this long.
	// Zero disables it.
	IdleTimeout time.Duration

	// RateLimit caps each direction of a session in bytes per second.
	// Zero means unlimited.
	RateLimit int64

	// MaxConnections caps concurrent sessions. Zero means unlimited.
	MaxConnections int
}

// Server accepts line protocol sessions.
type Server struct {
	cfg     Config
	pool    *payload.Pool
	logger  *slog.Logger
	metrics *metrics.ServerMetrics

	mu      sync.Mutex
	tcp     net.Listener
	quic    *transport.QUICListener
	cancel  context.CancelFunc
	started time.Time

	running atomic.Bool
	active  atomic.Int64
	total   atomic.Int64
	wg      sync.WaitGroup
}

// New creates a server. m may be nil.
func New(cfg Config, logger *slog.Logger, m *metrics.ServerMetrics) *Server {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Server{
		cfg:     cfg,
		pool:    payload.NewSessionPool(),
		logger:  logger.With(logging.KeyComponent, "server"),
		metrics: m,
	}
}

// Start binds the configured listeners and begins accepting sessions.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return ErrAlreadyStarted
	}
	if s.cfg.TCPAddress == "" && s.cfg.QUICAddress == "" {
		return errors.New("no listen address configured")
	}

	ctx, cancel := context.WithCancel(ctx)

	if s.cfg.TCPAddress != "" {
		var lc net.ListenConfig
		ln, err := lc.Listen(ctx, "tcp", s.cfg.TCPAddress)
		if err != nil {
			cancel()
			return fmt.Errorf("listen tcp %s: %w", s.cfg.TCPAddress, err)
		}
		s.tcp = ln
	}

	if s.cfg.QUICAddress != "" {
		if s.cfg.TLSConfig == nil {
			s.closeListeners()
			cancel()
			return errors.New("quic listener requires a TLS config")
		}
		opts := transport.DefaultListenOptions()
		opts.TLSConfig = s.cfg.TLSConfig
		ln, err := transport.ListenQUIC(s.cfg.QUICAddress, opts)
		if err != nil {
			s.closeListeners()
			cancel()
			return err
		}
		s.quic = ln
	}

	s.cancel = cancel
	s.started = time.Now()
	s.running.Store(true)

	if s.tcp != nil {
		s.logger.Info("listening", logging.KeyTransport, TransportTCP, logging.KeyAddress, s.tcp.Addr().String())
		s.wg.Add(1)
		go s.acceptTCP(ctx, s.tcp)
	}
	if s.quic != nil {
		s.logger.Info("listening", logging.KeyTransport, TransportQUIC, logging.KeyAddress, s.quic.Addr().String())
		s.wg.Add(1)
		go s.acceptQUIC(ctx, s.quic)
	}
	return nil
}

// Stop closes the listeners, ends every session and waits for them.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running.Load() {
		s.mu.Unlock()
		return nil
	}
	s.running.Store(false)
	s.cancel()
	err := s.closeListeners()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("stopped", logging.KeyCount, s.total.Load())
	return err
}

func (s *Server) closeListeners() error {
	var errs []error
	if s.tcp != nil {
		if err := s.tcp.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if s.quic != nil {
		if err := s.quic.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TCPAddr returns the bound TCP address, or nil.
func (s *Server) TCPAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tcp == nil {
		return nil
	}
	return s.tcp.Addr()
}

// QUICAddr returns the bound QUIC address, or nil.
func (s *Server) QUICAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quic == nil {
		return nil
	}
	return s.quic.Addr()
}

// IsRunning reports whether the server is accepting sessions.
func (s *Server) IsRunning() bool {
	return s.running.Load()
}

// Stats implements health.StatsProvider.
func (s *Server) Stats() health.Stats {
	st := health.Stats{
		ActiveConnections: s.active.Load(),
		TotalConnections:  s.total.Load(),
	}
	if a := s.TCPAddr(); a != nil {
		st.TCPAddress = a.String()
	}
	if a := s.QUICAddr(); a != nil {
		st.QUICAddress = a.String()
	}
	s.mu.Lock()
	if !s.started.IsZero() {
		st.Uptime = time.Since(s.started).Truncate(time.Second).String()
	}
	s.mu.Unlock()
	return st
}

func (s *Server) acceptTCP(ctx context.Context, ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", logging.KeyTransport, TransportTCP, logging.KeyError, err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			s.handle(ctx, conn, conn.LocalAddr(), conn.RemoteAddr(), TransportTCP)
		}()
	}
}

func (s *Server) acceptQUIC(ctx context.Context, ln *transport.QUICListener) {
	defer s.wg.Done()
	for {
		pc, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("accept failed", logging.KeyTransport, TransportQUIC, logging.KeyError, err)
			continue
		}

		s.wg.Add(1)
		go s.serveQUICConn(ctx, pc)
	}
}

// serveQUICConn runs one session per incoming stream until the connection
// goes away.
func (s *Server) serveQUICConn(ctx context.Context, pc *transport.QUICPeerConn) {
	defer s.wg.Done()
	defer pc.Close()
	defer recovery.RecoverWithLog(s.logger, "quic connection")

	for {
		st, err := pc.AcceptStream(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Debug("quic connection ended",
					logging.KeyRemoteAddr, pc.RemoteAddr().String(),
					logging.KeyError, err)
			}
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer st.Close()
			s.handle(ctx, st, pc.LocalAddr(), pc.RemoteAddr(), TransportQUIC)
		}()
	}
}

// handle admits one session, runs it and accounts for it.
func (s *Server) handle(ctx context.Context, c Conn, local, remote net.Addr, transportName string) {
	logger := s.logger.With(
		logging.KeyTransport, transportName,
		logging.KeyLocalAddr, local.String(),
		logging.KeyRemoteAddr, remote.String())
	if st, ok := c.(interface{ StreamID() uint64 }); ok {
		logger = logger.With(logging.KeyStream, st.StreamID())
	}

	if n := s.active.Add(1); s.cfg.MaxConnections > 0 && n > int64(s.cfg.MaxConnections) {
		s.active.Add(-1)
		s.metrics.RecordRejected()
		logger.Warn("connection rejected", logging.KeyCount, n-1)
		io.WriteString(c, protocol.ErrorLine)
		return
	}
	defer s.active.Add(-1)
	s.total.Add(1)

	s.metrics.RecordConnect(transportName)
	defer s.metrics.RecordDisconnect(transportName)

	// Unblock pending I/O on shutdown.
	stop := context.AfterFunc(ctx, func() {
		c.SetReadDeadline(time.Now())
		c.SetWriteDeadline(time.Now())
	})
	defer stop()

	defer recovery.RecoverWithCallback(logger, "session", func(any) {
		s.metrics.RecordPanic()
	})

	start := time.Now()
	logger.Debug("session started")

	sess := newSession(ctx, c, peerIP(remote), transportName, s.cfg, s.pool, logger, s.metrics)
	if err := sess.serve(ctx); err != nil {
		logger.Info("session closed", logging.KeyDuration, time.Since(start), logging.KeyError, err)
		return
	}
	logger.Debug("session closed", logging.KeyDuration, time.Since(start))
}

func peerIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP
	case *net.UDPAddr:
		return a.IP
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return nil
	}
	return net.ParseIP(host)
}
