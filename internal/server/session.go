package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"os"
	"strings"
	"time"

	"github.com/12101111/nettest/internal/logging"
	"github.com/12101111/nettest/internal/metrics"
	"github.com/12101111/nettest/internal/payload"
	"github.com/12101111/nettest/internal/protocol"
	"github.com/12101111/nettest/internal/ratelimit"
)

// maxLineLength bounds a command line. Longer lines are a protocol error.
const maxLineLength = 4096

// Conn is a byte stream carrying one line protocol session: a TCP
// connection or a QUIC stream.
type Conn interface {
	io.ReadWriter
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// session serves commands on one Conn until QUIT, an error or shutdown.
type session struct {
	r         *bufio.Reader
	w         io.Writer
	peer      net.IP
	transport string
	pool      *payload.Pool
	rng       *rand.Rand
	logger    *slog.Logger
	metrics   *metrics.ServerMetrics
}

func newSession(ctx context.Context, c Conn, peer net.IP, transport string, cfg Config, pool *payload.Pool, logger *slog.Logger, m *metrics.ServerMetrics) *session {
	var r io.Reader = c
	var w io.Writer = c
	if cfg.IdleTimeout > 0 {
		r = &idleReader{ctx: ctx, c: c, idle: cfg.IdleTimeout}
		w = &idleWriter{ctx: ctx, c: c, idle: cfg.IdleTimeout}
	}
	r = ratelimit.NewReader(ctx, r, cfg.RateLimit)
	w = ratelimit.NewWriter(ctx, w, cfg.RateLimit)

	return &session{
		r:         bufio.NewReaderSize(r, maxLineLength),
		w:         w,
		peer:      peer,
		transport: transport,
		pool:      pool,
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		logger:    logger,
		metrics:   m,
	}
}

// serve runs the command loop. A nil return means the peer quit or hung up.
func (s *session) serve(ctx context.Context) error {
	for {
		line, err := s.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) && line == "" {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return s.fail("read", err)
		}

		cmd, err := protocol.ParseCommand(line)
		if err != nil {
			kind := "malformed_command"
			if errors.Is(err, protocol.ErrUnknownCommand) {
				kind = "unknown_command"
			}
			return s.fail(kind, err)
		}
		if cmd.Type == protocol.CmdNone {
			continue
		}

		s.metrics.RecordCommand(cmd.Type.String())
		s.logger.Debug("command", logging.KeyCommand, strings.TrimSpace(line))

		done, err := s.dispatch(ctx, cmd)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return s.fail("io", err)
		}
		if done {
			return nil
		}
	}
}

// readLine returns one '\n' terminated line.
func (s *session) readLine() (string, error) {
	b, err := s.r.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		return "", fmt.Errorf("%w: line longer than %d bytes", protocol.ErrMalformedCommand, maxLineLength)
	}
	return string(b), err
}

func (s *session) dispatch(ctx context.Context, cmd protocol.Command) (bool, error) {
	switch cmd.Type {
	case protocol.CmdQuit:
		return true, nil
	case protocol.CmdHi:
		return false, s.reply(protocol.Greeting)
	case protocol.CmdCapabilities:
		return false, s.reply(protocol.CapabilitiesLine)
	case protocol.CmdGetIP:
		return false, s.reply(protocol.YourIPLine(s.peer))
	case protocol.CmdPing:
		return false, s.reply(protocol.PongLine(time.Now()))
	case protocol.CmdDownload:
		n, err := protocol.WriteDownload(s.w, cmd.Size, s.pool, s.rng)
		s.metrics.RecordBytesSent(protocol.CmdDownload.String(), n)
		if err != nil {
			return false, fmt.Errorf("download of %d bytes after %d: %w", cmd.Size, n, err)
		}
		s.logger.Debug("download sent", logging.KeyBytes, n)
		return false, nil
	case protocol.CmdUpload:
		return false, s.upload(ctx, cmd)
	}
	return false, fmt.Errorf("%w: %s", protocol.ErrUnknownCommand, cmd.Type)
}

// upload counts the body of an UPLOAD. The declared size covers the whole
// exchange, so the command line itself is part of the reported count.
func (s *session) upload(ctx context.Context, cmd protocol.Command) error {
	counter := protocol.NewByteCounter(s.r, protocol.UploadBudget(cmd.Size, len(cmd.Line)))
	n, err := counter.Run(ctx)
	s.metrics.RecordBytesReceived(protocol.CmdUpload.String(), n)
	if err != nil {
		return fmt.Errorf("upload after %d bytes: %w", n, err)
	}

	if counter.Overflowed() {
		extra, err := s.discardLine()
		if err != nil {
			return fmt.Errorf("discard upload surplus after %d bytes: %w", extra, err)
		}
		s.metrics.RecordBytesReceived(protocol.CmdUpload.String(), extra)
		s.logger.Debug("discarded upload surplus", logging.KeyBytes, extra)
	}

	total := int64(len(cmd.Line)) + n
	if total != cmd.Size {
		s.metrics.RecordSizeMismatch()
		s.logger.Warn("upload size mismatch",
			logging.KeyDeclared, cmd.Size,
			logging.KeyBytes, total,
			logging.KeyError, protocol.ErrSizeMismatch)
	}
	s.logger.Debug("upload received", logging.KeyBytes, total)
	return s.reply(protocol.UploadAckLine(total, time.Now()))
}

// discardLine drops input up to and including the next '\n'. Bodies longer
// than the declared size end up here instead of in the command parser.
func (s *session) discardLine() (int64, error) {
	var n int64
	for {
		b, err := s.r.ReadSlice('\n')
		n += int64(len(b))
		switch {
		case err == nil:
			return n, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			return n, nil
		default:
			return n, err
		}
	}
}

func (s *session) reply(line string) error {
	_, err := io.WriteString(s.w, line)
	return err
}

// fail reports err to the peer with ERROR and ends the session.
func (s *session) fail(kind string, err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		kind = "idle_timeout"
	}
	s.metrics.RecordProtocolError(kind)
	_ = s.reply(protocol.ErrorLine)
	return err
}

// idleReader refreshes the read deadline before every read. It stops
// refreshing once ctx is done so a shutdown deadline sticks.
type idleReader struct {
	ctx  context.Context
	c    Conn
	idle time.Duration
}

func (r *idleReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	if err := r.c.SetReadDeadline(time.Now().Add(r.idle)); err != nil {
		return 0, err
	}
	return r.c.Read(p)
}

// idleWriter refreshes the write deadline before every write.
type idleWriter struct {
	ctx  context.Context
	c    Conn
	idle time.Duration
}

func (w *idleWriter) Write(p []byte) (int, error) {
	if err := w.ctx.Err(); err != nil {
		return 0, err
	}
	if err := w.c.SetWriteDeadline(time.Now().Add(w.idle)); err != nil {
		return 0, err
	}
	return w.c.Write(p)
}
