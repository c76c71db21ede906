// Package ratelimit caps the throughput of a connection with a token bucket.
package ratelimit

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// BurstSize is the token bucket depth and the largest single read or write
// let through at once.
const BurstSize = 64 * 1024

// Reader wraps an io.Reader with rate limiting using a token bucket algorithm.
type Reader struct {
	r       io.Reader
	limiter *rate.Limiter
	ctx     context.Context
}

// NewReader creates a reader limited to bytesPerSecond. If bytesPerSecond
// is 0 or negative, r is returned unwrapped.
func NewReader(ctx context.Context, r io.Reader, bytesPerSecond int64) io.Reader {
	if bytesPerSecond <= 0 {
		return r
	}
	return &Reader{
		r:       r,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), BurstSize),
		ctx:     ctx,
	}
}

// Read implements io.Reader. A single call returns at most BurstSize bytes.
func (r *Reader) Read(p []byte) (int, error) {
	select {
	case <-r.ctx.Done():
		return 0, r.ctx.Err()
	default:
	}

	if len(p) > BurstSize {
		p = p[:BurstSize]
	}
	n, err := r.r.Read(p)
	if n <= 0 {
		return n, err
	}

	if waitErr := r.limiter.WaitN(r.ctx, n); waitErr != nil {
		return n, waitErr
	}
	return n, err
}

// Writer wraps an io.Writer with rate limiting using a token bucket algorithm.
type Writer struct {
	w       io.Writer
	limiter *rate.Limiter
	ctx     context.Context
}

// NewWriter creates a writer limited to bytesPerSecond. If bytesPerSecond
// is 0 or negative, w is returned unwrapped.
func NewWriter(ctx context.Context, w io.Writer, bytesPerSecond int64) io.Writer {
	if bytesPerSecond <= 0 {
		return w
	}
	return &Writer{
		w:       w,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), BurstSize),
		ctx:     ctx,
	}
}

// Write implements io.Writer. p is forwarded in BurstSize pieces, each
// waiting for its tokens first.
func (w *Writer) Write(p []byte) (int, error) {
	var written int
	for len(p) > 0 {
		chunk := p[:min(len(p), BurstSize)]
		if err := w.limiter.WaitN(w.ctx, len(chunk)); err != nil {
			return written, err
		}
		n, err := w.w.Write(chunk)
		written += n
		if err != nil {
			return written, err
		}
		p = p[n:]
	}
	return written, nil
}
