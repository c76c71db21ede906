// Package transport provides the QUIC transport used by the speed test
// server and the QUIC measurement tasks.
package transport

import (
	"crypto/tls"
	"io"
	"time"
)

// Stream is a bidirectional byte stream with half-close support.
type Stream interface {
	io.Reader
	io.Writer

	// StreamID returns the stream identifier.
	StreamID() uint64

	// CloseWrite sends a half-close (FIN) once the sender is done.
	CloseWrite() error

	// Close fully closes the stream in both directions.
	Close() error

	// SetDeadline sets read and write deadlines.
	SetDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// DialOptions contains options for dialing a server.
type DialOptions struct {
	// TLSConfig is the TLS configuration for the connection. When nil a
	// client config is built from StrictVerify.
	TLSConfig *tls.Config

	// StrictVerify enables TLS certificate verification (default: false).
	// Public speed test servers present self-signed certificates.
	StrictVerify bool

	// Timeout bounds the handshake.
	Timeout time.Duration

	// IdleTimeout closes the connection after this much inactivity.
	IdleTimeout time.Duration
}

// ListenOptions contains options for creating a listener.
type ListenOptions struct {
	// TLSConfig is the TLS configuration for the listener.
	TLSConfig *tls.Config

	// MaxStreams is the maximum number of concurrent streams per connection.
	MaxStreams int

	// IdleTimeout closes idle connections.
	IdleTimeout time.Duration
}

// DefaultDialOptions returns DialOptions with sensible defaults.
func DefaultDialOptions() DialOptions {
	return DialOptions{
		Timeout:     5 * time.Second,
		IdleTimeout: DefaultMaxIdleTimeout,
	}
}

// DefaultListenOptions returns ListenOptions with sensible defaults.
func DefaultListenOptions() ListenOptions {
	return ListenOptions{
		MaxStreams:  DefaultMaxIncomingStreams,
		IdleTimeout: DefaultMaxIdleTimeout,
	}
}
