package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
)

// Default QUIC configuration values
const (
	DefaultMaxIdleTimeout     = 60 * time.Second
	DefaultKeepAlivePeriod    = 15 * time.Second
	DefaultMaxIncomingStreams = 100
)

func quicConfig(idle time.Duration, maxStreams int) *quic.Config {
	if idle <= 0 {
		idle = DefaultMaxIdleTimeout
	}
	if maxStreams <= 0 {
		maxStreams = DefaultMaxIncomingStreams
	}
	return &quic.Config{
		MaxIdleTimeout:        idle,
		KeepAlivePeriod:       DefaultKeepAlivePeriod,
		MaxIncomingStreams:    int64(maxStreams),
		MaxIncomingUniStreams: -1, // line protocol uses bidirectional streams only
	}
}

// DialQUIC connects to a speed test server over QUIC.
func DialQUIC(ctx context.Context, addr string, opts DialOptions) (*QUICPeerConn, error) {
	tlsConfig := opts.TLSConfig
	if tlsConfig == nil {
		tlsConfig = ClientTLSConfig(opts.StrictVerify)
	} else {
		tlsConfig = withALPN(tlsConfig)
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	conn, err := quic.DialAddr(ctx, addr, tlsConfig, quicConfig(opts.IdleTimeout, 0))
	if err != nil {
		return nil, fmt.Errorf("QUIC dial failed: %w", err)
	}

	return &QUICPeerConn{conn: conn}, nil
}

// ListenQUIC creates a QUIC listener.
func ListenQUIC(addr string, opts ListenOptions) (*QUICListener, error) {
	if opts.TLSConfig == nil {
		return nil, fmt.Errorf("TLS config required for QUIC listener")
	}

	listener, err := quic.ListenAddr(addr, withALPN(opts.TLSConfig), quicConfig(opts.IdleTimeout, opts.MaxStreams))
	if err != nil {
		return nil, fmt.Errorf("QUIC listen failed: %w", err)
	}

	return &QUICListener{listener: listener}, nil
}

// QUICListener accepts QUIC connections carrying line protocol streams.
type QUICListener struct {
	listener *quic.Listener
	closed   bool
	mu       sync.Mutex
}

// Accept waits for and returns the next QUIC connection.
func (l *QUICListener) Accept(ctx context.Context) (*QUICPeerConn, error) {
	conn, err := l.listener.Accept(ctx)
	if err != nil {
		return nil, err
	}

	return &QUICPeerConn{conn: conn}, nil
}

// Addr returns the listener's address.
func (l *QUICListener) Addr() net.Addr {
	return l.listener.Addr()
}

// Close stops the listener.
func (l *QUICListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	return l.listener.Close()
}

// QUICPeerConn is an established QUIC connection.
type QUICPeerConn struct {
	conn quic.Connection
}

// OpenStream creates a new outgoing QUIC stream.
func (c *QUICPeerConn) OpenStream(ctx context.Context) (Stream, error) {
	stream, err := c.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open QUIC stream: %w", err)
	}

	return &QUICStream{stream: stream}, nil
}

// AcceptStream waits for an incoming QUIC stream.
func (c *QUICPeerConn) AcceptStream(ctx context.Context) (Stream, error) {
	stream, err := c.conn.AcceptStream(ctx)
	if err != nil {
		return nil, err
	}

	return &QUICStream{stream: stream}, nil
}

// Close terminates the QUIC connection.
func (c *QUICPeerConn) Close() error {
	return c.conn.CloseWithError(0, "connection closed")
}

// LocalAddr returns the local address.
func (c *QUICPeerConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote address.
func (c *QUICPeerConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Done is closed when the connection is gone.
func (c *QUICPeerConn) Done() <-chan struct{} {
	return c.conn.Context().Done()
}

// QUICStream implements Stream for QUIC.
type QUICStream struct {
	stream quic.Stream
}

// StreamID returns the QUIC stream ID.
func (s *QUICStream) StreamID() uint64 {
	return uint64(s.stream.StreamID())
}

// Read reads data from the stream.
func (s *QUICStream) Read(p []byte) (int, error) {
	return s.stream.Read(p)
}

// Write writes data to the stream.
func (s *QUICStream) Write(p []byte) (int, error) {
	return s.stream.Write(p)
}

// CloseWrite sends a half-close (FIN) on the write side.
func (s *QUICStream) CloseWrite() error {
	return s.stream.Close()
}

// Close fully closes the stream.
func (s *QUICStream) Close() error {
	s.stream.CancelRead(0)
	return s.stream.Close()
}

// SetDeadline sets read and write deadlines.
func (s *QUICStream) SetDeadline(t time.Time) error {
	return s.stream.SetDeadline(t)
}

// SetReadDeadline sets the read deadline.
func (s *QUICStream) SetReadDeadline(t time.Time) error {
	return s.stream.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline.
func (s *QUICStream) SetWriteDeadline(t time.Time) error {
	return s.stream.SetWriteDeadline(t)
}
