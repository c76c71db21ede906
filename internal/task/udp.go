package task

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/12101111/nettest/internal/logging"
	"github.com/12101111/nettest/internal/payload"
)

// udpHeaderSize is the little-endian unix timestamp leading every datagram.
const udpHeaderSize = 8

// UDPing measures the round trip of a datagram through a UDP echo server
// (for example `socat UDP-LISTEN:8000,fork PIPE`). The socket is kept open
// across runs.
type UDPing struct {
	target string
	conn   *net.UDPConn
	size   int
	opts   Options
	seq    uint16
	buf    []byte
	logger *slog.Logger
}

// NewUDPing resolves target (host:port) and connects a UDP socket to it.
func NewUDPing(ctx context.Context, target string, opts Options, logger *slog.Logger) (*UDPing, error) {
	addr, ip, err := resolveHostPort(ctx, target)
	if err != nil {
		return nil, err
	}
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrAddressResolution, addr, err)
	}
	network := "udp4"
	if ip.To4() == nil {
		network = "udp6"
	}
	conn, err := net.DialUDP(network, nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to %s: %w", ErrSocketSetup, addr, err)
	}

	if addr != target {
		logger.Info(fmt.Sprintf("Ping to %s (%s) using UDP", target, addr))
	} else {
		logger.Info(fmt.Sprintf("Ping to %s using UDP", addr))
	}

	size := int(max(opts.Size, udpHeaderSize))
	return &UDPing{
		target: addr,
		conn:   conn,
		size:   size,
		opts:   opts,
		buf:    make([]byte, size+1),
		logger: logger,
	}, nil
}

// Name implements Task.
func (t *UDPing) Name() string { return NameUDPing }

// Run implements Task.
func (t *UDPing) Run(ctx context.Context) (Measurement, error) {
	t.seq++
	msg := udpPayload(time.Now(), t.seq, t.size)

	if err := t.conn.SetDeadline(t.opts.deadline()); err != nil {
		return Measurement{}, err
	}
	stop := context.AfterFunc(ctx, func() { t.conn.SetDeadline(time.Now()) })
	defer stop()

	start := time.Now()
	n, err := t.conn.Write(msg)
	if err != nil {
		return finish(ctx, Measurement{}, timeoutError("send", fmt.Errorf("send echo request: %w", err)))
	}
	if n != len(msg) {
		return Measurement{}, fmt.Errorf("expect to send %d bytes but only sent %d bytes", len(msg), n)
	}

	for {
		n, err = t.conn.Read(t.buf)
		if err != nil {
			return finish(ctx, Measurement{}, timeoutError("receive", fmt.Errorf("failed to receive echo reply: %w", err)))
		}
		if n != len(msg) {
			return Measurement{}, fmt.Errorf("%w: send %d bytes but receive %d bytes", ErrProtocolViolation, len(msg), n)
		}
		if bytes.Equal(t.buf[:n], msg) {
			break
		}
		// a late echo of an earlier probe
		t.logger.Debug("discarding stale echo", logging.KeySeq, t.seq)
	}
	elapsed := time.Since(start)

	t.logger.Info(fmt.Sprintf("%d bytes from %s: seq=%d time=%s", n, t.target, t.seq, elapsed))
	return Time(elapsed), nil
}

// Close implements Task.
func (t *UDPing) Close() error {
	return t.conn.Close()
}

// udpPayload returns the nanosecond timestamp followed by alphanumeric
// filler seeded from it and seq, size bytes in total. Every probe sends a
// distinct datagram so a late echo never matches the current one.
func udpPayload(now time.Time, seq uint16, size int) []byte {
	ts := uint64(now.UnixNano())
	buf := binary.LittleEndian.AppendUint64(make([]byte, 0, size), ts)
	return append(buf, payload.Filler(ts^uint64(seq)<<48, size-udpHeaderSize)...)
}
