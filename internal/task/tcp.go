package task

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"time"

	"github.com/12101111/nettest/internal/logging"
	"github.com/12101111/nettest/internal/payload"
	"github.com/12101111/nettest/internal/units"
)

func dialTCP(ctx context.Context, addr string, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, timeoutError("connect", fmt.Errorf("%w: connect %s: %w", ErrSocketSetup, addr, err))
	}
	return conn, nil
}

// TCPing measures the duration of the TCP handshake. Every run opens a
// fresh connection.
type TCPing struct {
	addr   string
	opts   Options
	seq    uint16
	logger *slog.Logger
}

// NewTCPing resolves target (host:port) once.
func NewTCPing(ctx context.Context, target string, opts Options, logger *slog.Logger) (*TCPing, error) {
	addr, _, err := resolveHostPort(ctx, target)
	if err != nil {
		return nil, err
	}
	if addr != target {
		logger.Info(fmt.Sprintf("Ping to %s (%s) using TCP", target, addr))
	} else {
		logger.Info(fmt.Sprintf("Ping to %s using TCP", addr))
	}
	return &TCPing{addr: addr, opts: opts, logger: logger}, nil
}

// Name implements Task.
func (t *TCPing) Name() string { return NameTCPing }

// Run implements Task.
func (t *TCPing) Run(ctx context.Context) (Measurement, error) {
	t.seq++
	start := time.Now()
	conn, err := dialTCP(ctx, t.addr, t.opts.Timeout)
	if err != nil {
		return finish(ctx, Measurement{}, err)
	}
	elapsed := time.Since(start)
	conn.Close()

	t.logger.Info(fmt.Sprintf("Connected to %s: seq=%d time=%s", t.addr, t.seq, elapsed))
	return Time(elapsed), nil
}

// Close implements Task.
func (t *TCPing) Close() error { return nil }

// LinePing measures the time from sending HI to receiving the server banner
// on a fresh connection.
type LinePing struct {
	addr   string
	opts   Options
	seq    uint16
	logger *slog.Logger
}

// NewLinePing resolves target (host:port) once.
func NewLinePing(ctx context.Context, target string, opts Options, logger *slog.Logger) (*LinePing, error) {
	addr, _, err := resolveHostPort(ctx, target)
	if err != nil {
		return nil, err
	}
	logger.Debug("line protocol ping", logging.KeyTarget, opts.describe(target), logging.KeyAddress, addr)
	return &LinePing{addr: addr, opts: opts, logger: logger}, nil
}

// Name implements Task.
func (t *LinePing) Name() string { return NameLinePing }

// Run implements Task.
func (t *LinePing) Run(ctx context.Context) (Measurement, error) {
	t.seq++
	conn, err := dialTCP(ctx, t.addr, t.opts.Timeout)
	if err != nil {
		return finish(ctx, Measurement{}, err)
	}
	defer conn.Close()

	ex, stop := newExchange(ctx, conn, t.opts.Timeout, t.logger)
	defer stop()

	elapsed, line, err := ex.hello()
	if err != nil {
		return finish(ctx, Measurement{}, err)
	}
	ex.quit()

	t.logger.Info(fmt.Sprintf("%d bytes from %s: seq=%d time=%s", len(line), t.opts.describe(t.addr), t.seq, elapsed))
	return Time(elapsed), nil
}

// Close implements Task.
func (t *LinePing) Close() error { return nil }

// TCPTransfer measures upload or download throughput against a line
// protocol server. Every run reconnects so that slow start is part of
// each measurement.
type TCPTransfer struct {
	name   string
	addr   string
	opts   Options
	upload bool
	pool   *payload.Pool
	rng    *rand.Rand
	logger *slog.Logger
}

// NewTCPDownload returns a task downloading opts.Size bytes from target.
func NewTCPDownload(ctx context.Context, target string, opts Options, logger *slog.Logger) (*TCPTransfer, error) {
	return newTCPTransfer(ctx, NameTCPDownload, target, opts, false, logger)
}

// NewTCPUpload returns a task uploading opts.Size bytes to target.
func NewTCPUpload(ctx context.Context, target string, opts Options, logger *slog.Logger) (*TCPTransfer, error) {
	return newTCPTransfer(ctx, NameTCPUpload, target, opts, true, logger)
}

func newTCPTransfer(ctx context.Context, name, target string, opts Options, upload bool, logger *slog.Logger) (*TCPTransfer, error) {
	addr, _, err := resolveHostPort(ctx, target)
	if err != nil {
		return nil, err
	}
	kind := "download"
	if upload {
		kind = "upload"
	}
	logger.Info(fmt.Sprintf("TCP %s test, connecting to %s", kind, opts.describe(target)))

	t := &TCPTransfer{
		name:   name,
		addr:   addr,
		opts:   opts,
		upload: upload,
		logger: logger,
	}
	if upload {
		t.pool = payload.NewRandomPool()
		t.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return t, nil
}

// Name implements Task.
func (t *TCPTransfer) Name() string { return t.name }

// Run implements Task.
func (t *TCPTransfer) Run(ctx context.Context) (Measurement, error) {
	conn, err := dialTCP(ctx, t.addr, t.opts.Timeout)
	if err != nil {
		return finish(ctx, Measurement{}, err)
	}
	defer conn.Close()

	ex, stop := newExchange(ctx, conn, t.opts.Timeout, t.logger)
	defer stop()

	var m Measurement
	if t.upload {
		t.logger.Info(fmt.Sprintf("Upload %s to %s", units.FormatSize(t.opts.Size), t.opts.describe(t.addr)))
		m, err = ex.upload(ctx, t.opts.Size, t.pool, t.rng)
	} else {
		t.logger.Info(fmt.Sprintf("Download %s from %s", units.FormatSize(t.opts.Size), t.opts.describe(t.addr)))
		m, err = ex.download(ctx, t.opts.Size)
	}
	if err != nil {
		return finish(ctx, Measurement{}, err)
	}
	ex.quit()
	return m, nil
}

// Close implements Task.
func (t *TCPTransfer) Close() error { return nil }
