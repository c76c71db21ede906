package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	xicmp "golang.org/x/net/icmp"

	"github.com/12101111/nettest/internal/icmp"
	"github.com/12101111/nettest/internal/logging"
	"github.com/12101111/nettest/internal/payload"
)

// Ping measures ICMP echo round trips. It keeps one datagram echo socket and
// one header, bumped before each probe.
type Ping struct {
	target net.IP
	v6     bool
	conn   *xicmp.PacketConn
	header icmp.Header
	size   int
	opts   Options
	buf    []byte
	logger *slog.Logger
}

// NewPing resolves host and opens an echo socket for its family. A host
// that does not allow unprivileged ICMP sockets yields ErrSocketPermission.
func NewPing(ctx context.Context, host string, opts Options, logger *slog.Logger) (*Ping, error) {
	ip, err := resolveHost(ctx, host)
	if err != nil {
		return nil, err
	}
	v6 := ip.To4() == nil
	if !v6 {
		ip = ip.To4()
	}

	conn, err := icmp.ListenEcho(ip)
	if err != nil {
		if errors.Is(err, icmp.ErrPermission) {
			return nil, fmt.Errorf("%w: %w", ErrSocketPermission, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrSocketSetup, err)
	}

	size := int(max(opts.Size, icmp.HeaderSize))
	logger.Info(fmt.Sprintf("PING %s (%s) %d bytes of data.", host, ip, size))

	return &Ping{
		target: ip,
		v6:     v6,
		conn:   conn,
		header: icmp.NewEchoRequest(v6, time.Now()),
		size:   size,
		opts:   opts,
		buf:    make([]byte, size+icmp.HeaderSize),
		logger: logger,
	}, nil
}

// Name implements Task.
func (t *Ping) Name() string { return NamePing }

// Run implements Task.
func (t *Ping) Run(ctx context.Context) (Measurement, error) {
	t.header.Bump(time.Now())
	msg := t.header.AppendTo(make([]byte, 0, t.size))
	msg = append(msg, payload.Filler(t.header.Timestamp, t.size-icmp.HeaderSize)...)

	stop := context.AfterFunc(ctx, func() { t.conn.SetReadDeadline(time.Now()) })
	defer stop()

	start := time.Now()
	deadline := start.Add(t.opts.Timeout)
	if err := icmp.WriteEcho(t.conn, t.target, msg); err != nil {
		return finish(ctx, Measurement{}, err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return Measurement{}, err
		}
		n, src, err := icmp.ReadEcho(t.conn, t.buf, deadline)
		if err != nil {
			return finish(ctx, Measurement{}, timeoutError("receive", fmt.Errorf("failed to receive echo reply: %w", err)))
		}
		elapsed := time.Since(start)

		reply, err := icmp.Parse(t.buf[:n])
		if err != nil {
			return Measurement{}, fmt.Errorf("%w: packet is broken: %w", ErrProtocolViolation, err)
		}
		if reply.Type != icmp.ReplyType(t.v6) {
			return Measurement{}, fmt.Errorf("%w: received packet isn't echo reply (type %d)", ErrProtocolViolation, reply.Type)
		}
		if !src.Equal(t.target) {
			return Measurement{}, fmt.Errorf("%w: received packet isn't sent from target (%s)", ErrProtocolViolation, src)
		}
		if reply.Seq != t.header.Seq {
			// reply to a probe that already timed out
			t.logger.Debug("discarding stale echo reply", logging.KeySeq, reply.Seq)
			continue
		}

		t.logger.Info(fmt.Sprintf("%d bytes from %s: icmp_seq=%d time=%s", n, src, reply.Seq, elapsed))
		return Time(elapsed), nil
	}
}

// Close implements Task.
func (t *Ping) Close() error {
	return t.conn.Close()
}
