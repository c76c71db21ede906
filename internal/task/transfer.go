package task

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/12101111/nettest/internal/logging"
	"github.com/12101111/nettest/internal/payload"
	"github.com/12101111/nettest/internal/protocol"
)

// stream is the part of net.Conn and transport.Stream a line protocol
// exchange needs.
type stream interface {
	io.ReadWriter
	SetDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

const quitLine = "QUIT\r\n"

// exchange runs line protocol operations on one stream with a per-operation
// timeout. Cancelling ctx expires every pending deadline.
type exchange struct {
	s       stream
	timeout time.Duration
	logger  *slog.Logger
	br      *bufio.Reader
}

func newExchange(ctx context.Context, s stream, timeout time.Duration, logger *slog.Logger) (*exchange, func()) {
	stop := context.AfterFunc(ctx, func() {
		s.SetDeadline(time.Now())
	})
	return &exchange{s: s, timeout: timeout, logger: logger}, func() { stop() }
}

func (e *exchange) write(op string, b []byte) error {
	if err := e.s.SetWriteDeadline(time.Now().Add(e.timeout)); err != nil {
		return err
	}
	if _, err := e.s.Write(b); err != nil {
		return timeoutError(op, fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

// readLine reads one reply line. The buffered reader is only created for
// replies, never while counting download bytes.
func (e *exchange) readLine(op string) (string, error) {
	if e.br == nil {
		e.br = bufio.NewReaderSize(e.s, 256)
	}
	if err := e.s.SetReadDeadline(time.Now().Add(e.timeout)); err != nil {
		return "", err
	}
	line, err := e.br.ReadString('\n')
	if err != nil {
		return line, timeoutError(op, fmt.Errorf("%s: %w", op, err))
	}
	return line, nil
}

// quit sends QUIT. Failures are ignored because the measurement is complete.
func (e *exchange) quit() {
	e.s.SetWriteDeadline(time.Now().Add(e.timeout))
	e.s.Write([]byte(quitLine))
}

// hello sends HI and returns the time until the banner arrived.
func (e *exchange) hello() (time.Duration, string, error) {
	start := time.Now()
	if err := e.write("send HI", []byte("HI\r\n")); err != nil {
		return 0, "", err
	}
	line, err := e.readLine("read banner")
	if err != nil {
		return 0, "", err
	}
	elapsed := time.Since(start)
	if !strings.HasPrefix(line, "HELLO") {
		return elapsed, line, fmt.Errorf("%w: unexpected banner %q", ErrProtocolViolation, strings.TrimSpace(line))
	}
	return elapsed, line, nil
}

// download requests size bytes and counts the reply until size bytes, a
// chunk ending in '\n', or EOF.
func (e *exchange) download(ctx context.Context, size int64) (Measurement, error) {
	if err := e.write("send DOWNLOAD", []byte(protocol.DownloadRequest(size))); err != nil {
		return Measurement{}, err
	}

	start := time.Now()
	sampler := newRateSampler(e.logger, size, start)
	counter := protocol.NewByteCounter(e.s, size)
	for !counter.Done() {
		if err := ctx.Err(); err != nil {
			return Measurement{}, err
		}
		if err := e.s.SetReadDeadline(time.Now().Add(e.timeout)); err != nil {
			return Measurement{}, err
		}
		n, _, err := counter.Step()
		sampler.add(n, time.Now())
		if err != nil {
			return Measurement{}, timeoutError("download", fmt.Errorf("download after %d bytes: %w", counter.Count(), err))
		}
	}
	elapsed := time.Since(start)

	if got := counter.Count(); got != size {
		e.logger.Warn("download size mismatch",
			logging.KeyDeclared, size,
			logging.KeyBytes, got,
			logging.KeyError, ErrSizeMismatch)
	}
	return Speed(counter.Count(), elapsed), nil
}

// upload declares size bytes and streams filler so the command line,
// filler and terminator add up to size, then waits for the server's count.
func (e *exchange) upload(ctx context.Context, size int64, pool *payload.Pool, rng *rand.Rand) (Measurement, error) {
	line := protocol.UploadRequest(size)
	if err := e.write("send UPLOAD", []byte(line)); err != nil {
		return Measurement{}, err
	}

	filler, terminator := protocol.UploadBody(size)
	start := time.Now()
	sampler := newRateSampler(e.logger, size, start)
	sampler.add(len(line), start)
	for remaining := filler; remaining > 0; {
		if err := ctx.Err(); err != nil {
			return Measurement{}, err
		}
		chunk := uploadChunk(pool, rng, remaining)
		if err := e.write("upload", chunk); err != nil {
			return Measurement{}, err
		}
		remaining -= int64(len(chunk))
		sampler.add(len(chunk), time.Now())
	}
	if terminator != "" {
		if err := e.write("upload", []byte(terminator)); err != nil {
			return Measurement{}, err
		}
	}

	reply, err := e.readLine("read upload reply")
	if err != nil {
		return Measurement{}, err
	}
	elapsed := time.Since(start)

	ack, err := protocol.ParseUploadAck(reply)
	if err != nil {
		return Measurement{}, fmt.Errorf("%w: %w", ErrProtocolViolation, err)
	}
	if ack.Count != size {
		e.logger.Warn("upload size mismatch",
			logging.KeyDeclared, size,
			logging.KeyBytes, ack.Count,
			logging.KeyError, ErrSizeMismatch)
	}
	return Speed(size, elapsed), nil
}

// uploadChunk returns the next filler chunk: random pool windows while more
// than a window remains, then the pool tail.
func uploadChunk(pool *payload.Pool, rng *rand.Rand, remaining int64) []byte {
	if remaining > payload.MaxWindow {
		return pool.Window(rng, payload.MaxWindow)
	}
	return pool.Tail(int(remaining))
}
