package task

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/12101111/nettest/internal/logging"
	"github.com/12101111/nettest/internal/payload"
	"github.com/12101111/nettest/internal/transport"
	"github.com/12101111/nettest/internal/units"
)

// QUICTransfer measures throughput over QUIC. The connection is established
// once and kept; each run opens a new bidirectional stream and speaks the
// line protocol on it.
type QUICTransfer struct {
	name   string
	addr   string
	opts   Options
	upload bool
	conn   *transport.QUICPeerConn
	pool   *payload.Pool
	rng    *rand.Rand
	logger *slog.Logger
}

// NewQUICDownload connects to target and returns a download task.
func NewQUICDownload(ctx context.Context, target string, opts Options, logger *slog.Logger) (*QUICTransfer, error) {
	return newQUICTransfer(ctx, NameQUICDownload, target, opts, false, logger)
}

// NewQUICUpload connects to target and returns an upload task.
func NewQUICUpload(ctx context.Context, target string, opts Options, logger *slog.Logger) (*QUICTransfer, error) {
	return newQUICTransfer(ctx, NameQUICUpload, target, opts, true, logger)
}

func newQUICTransfer(ctx context.Context, name, target string, opts Options, upload bool, logger *slog.Logger) (*QUICTransfer, error) {
	addr, _, err := resolveHostPort(ctx, target)
	if err != nil {
		return nil, err
	}
	kind := "download"
	if upload {
		kind = "upload"
	}
	if addr != target {
		logger.Info(fmt.Sprintf("QUIC %s test, connecting to %s (%s)", kind, target, addr))
	} else {
		logger.Info(fmt.Sprintf("QUIC %s test, connecting to %s", kind, addr))
	}

	t := &QUICTransfer{
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
	if err := t.connect(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *QUICTransfer) connect(ctx context.Context) error {
	dial := transport.DefaultDialOptions()
	dial.Timeout = t.opts.Timeout
	dial.StrictVerify = t.opts.StrictVerify

	conn, err := transport.DialQUIC(ctx, t.addr, dial)
	if err != nil {
		return timeoutError("QUIC handshake", fmt.Errorf("%w: failed to establish QUIC handshake with %s: %w", ErrSocketSetup, t.addr, err))
	}
	t.conn = conn
	return nil
}

// Name implements Task.
func (t *QUICTransfer) Name() string { return t.name }

// Run implements Task.
func (t *QUICTransfer) Run(ctx context.Context) (Measurement, error) {
	select {
	case <-t.conn.Done():
		t.logger.Warn("QUIC connection lost, reconnecting", logging.KeyAddress, t.addr)
		if err := t.connect(ctx); err != nil {
			return finish(ctx, Measurement{}, err)
		}
	default:
	}

	openCtx, cancel := context.WithTimeout(ctx, t.opts.Timeout)
	s, err := t.conn.OpenStream(openCtx)
	cancel()
	if err != nil {
		return finish(ctx, Measurement{}, timeoutError("open stream", err))
	}
	defer s.Close()

	ex, stop := newExchange(ctx, s, t.opts.Timeout, t.logger)
	defer stop()

	var m Measurement
	if t.upload {
		t.logger.Info(fmt.Sprintf("Upload %s to %s", units.FormatSize(t.opts.Size), t.addr))
		m, err = ex.upload(ctx, t.opts.Size, t.pool, t.rng)
	} else {
		t.logger.Info(fmt.Sprintf("Download %s from %s", units.FormatSize(t.opts.Size), t.addr))
		m, err = ex.download(ctx, t.opts.Size)
	}
	if err != nil {
		return finish(ctx, Measurement{}, err)
	}
	ex.quit()
	if err := s.CloseWrite(); err != nil {
		t.logger.Debug("half-close failed", logging.KeyError, err)
	}
	return m, nil
}

// Close implements Task.
func (t *QUICTransfer) Close() error {
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}
