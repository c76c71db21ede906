package protocol

import (
	"context"
	"errors"
	"io"
)

// ByteCounter reads from a stream toward a byte budget, counting what
// arrives without keeping it.
//
// Each Step issues at most one Read of at most MiB bytes. A Step that fails
// (for example on a read deadline) keeps everything counted so far, and the
// next Step continues from there, so a caller can retry after a timeout
// without losing or double counting bytes.
//
// The operation completes when the budget is exhausted, when a chunk ends
// in '\n', or on a zero-length read or io.EOF. The last two are normal
// completions of a short upload, not errors.
type ByteCounter struct {
	r      io.Reader
	budget int64
	count  int64
	done   bool
	eol    bool
	buf    []byte
}

// NewByteCounter returns a counter that reads at most budget bytes from r.
func NewByteCounter(r io.Reader, budget int64) *ByteCounter {
	size := int64(MiB)
	if budget < size {
		size = max(budget, 1)
	}
	return &ByteCounter{
		r:      r,
		budget: budget,
		done:   budget <= 0,
		buf:    make([]byte, size),
	}
}

// Step performs a single read. It returns the number of bytes counted by
// this step and whether the operation is complete.
func (c *ByteCounter) Step() (int, bool, error) {
	if c.done {
		return 0, true, nil
	}

	want := min(int64(len(c.buf)), c.budget-c.count)
	n, err := c.r.Read(c.buf[:want])
	if n > 0 {
		c.count += int64(n)
		c.eol = c.buf[n-1] == '\n'
		if c.eol || c.count >= c.budget {
			c.done = true
		}
	}

	switch {
	case err == nil:
		if n == 0 {
			c.done = true
		}
	case errors.Is(err, io.EOF):
		c.done = true
		err = nil
	}
	return n, c.done, err
}

// Count returns the bytes counted so far.
func (c *ByteCounter) Count() int64 {
	return c.count
}

// Done reports whether the operation has completed.
func (c *ByteCounter) Done() bool {
	return c.done
}

// Overflowed reports whether the budget ran out in the middle of a line,
// so the sender may still have body bytes in flight.
func (c *ByteCounter) Overflowed() bool {
	return c.budget > 0 && c.count >= c.budget && !c.eol
}

// Run steps until completion, a read error, or ctx is done. The count is
// returned in every case.
func (c *ByteCounter) Run(ctx context.Context) (int64, error) {
	for !c.done {
		if err := ctx.Err(); err != nil {
			return c.count, err
		}
		if _, _, err := c.Step(); err != nil {
			return c.count, err
		}
	}
	return c.count, nil
}
