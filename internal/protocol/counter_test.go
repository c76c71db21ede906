package protocol

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
)

// scriptedReader replays a fixed sequence of read results.
type scriptedReader struct {
	steps []step
	reads int
}

type step struct {
	data string
	err  error
}

func (r *scriptedReader) Read(p []byte) (int, error) {
	if r.reads >= len(r.steps) {
		return 0, io.EOF
	}
	s := r.steps[r.reads]
	r.reads++
	n := copy(p, s.data)
	return n, s.err
}

func TestByteCounterBudget(t *testing.T) {
	r := strings.NewReader(strings.Repeat("x", 5000))
	c := NewByteCounter(r, 1000)

	n, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n != 1000 {
		t.Errorf("count = %d, want 1000", n)
	}
	if r.Len() != 4000 {
		t.Errorf("reader has %d bytes left, want 4000", r.Len())
	}
}

func TestByteCounterStopsOnNewline(t *testing.T) {
	r := &scriptedReader{steps: []step{{data: "abc"}, {data: "def\r\n"}, {data: "never"}}}
	c := NewByteCounter(r, 1000)

	n, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n != 8 {
		t.Errorf("count = %d, want 8", n)
	}
	if r.reads != 2 {
		t.Errorf("reads = %d, want 2", r.reads)
	}
}

func TestByteCounterEOFIsSuccess(t *testing.T) {
	r := &scriptedReader{steps: []step{{data: "abc"}, {data: "de", err: io.EOF}}}
	c := NewByteCounter(r, 1000)

	n, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n != 5 {
		t.Errorf("count = %d, want 5", n)
	}
}

func TestByteCounterZeroReadIsSuccess(t *testing.T) {
	r := &scriptedReader{steps: []step{{data: "abc"}, {data: ""}}}
	c := NewByteCounter(r, 1000)

	n, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n != 3 || !c.Done() {
		t.Errorf("count = %d done = %v, want 3 true", n, c.Done())
	}
}

func TestByteCounterResumesAfterTimeout(t *testing.T) {
	r := &scriptedReader{steps: []step{
		{data: "abc"},
		{data: "de", err: os.ErrDeadlineExceeded},
		{data: "fgh\n"},
	}}
	c := NewByteCounter(r, 1000)

	n, err := c.Run(context.Background())
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("Run error = %v, want deadline exceeded", err)
	}
	if n != 5 {
		t.Errorf("count after timeout = %d, want 5", n)
	}
	if c.Done() {
		t.Fatal("counter done after timeout")
	}

	n, err = c.Run(context.Background())
	if err != nil {
		t.Fatalf("resumed Run: %v", err)
	}
	if n != 9 {
		t.Errorf("count = %d, want 9", n)
	}
	if r.reads != 3 {
		t.Errorf("reads = %d, want 3", r.reads)
	}
}

func TestByteCounterZeroBudget(t *testing.T) {
	r := &scriptedReader{steps: []step{{data: "abc"}}}
	c := NewByteCounter(r, 0)

	n, err := c.Run(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("Run = %d, %v", n, err)
	}
	if r.reads != 0 {
		t.Errorf("reads = %d, want 0", r.reads)
	}
}

func TestByteCounterOverflowed(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		budget int64
		want   bool
	}{
		{"budget ends mid line", "xxxxxxxxxx\r\n", 5, true},
		{"budget ends on newline", "xxx\r\n", 5, false},
		{"newline before budget", "x\r\n", 10, false},
		{"eof before budget", "xxx", 10, false},
		{"zero budget", "xxx", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewByteCounter(strings.NewReader(tt.input), tt.budget)
			if _, err := c.Run(context.Background()); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if got := c.Overflowed(); got != tt.want {
				t.Errorf("Overflowed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestByteCounterCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewByteCounter(strings.NewReader("abc"), 10)
	if _, err := c.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run error = %v, want context.Canceled", err)
	}
}

func TestByteCounterStep(t *testing.T) {
	c := NewByteCounter(strings.NewReader(strings.Repeat("y", 3*MiB)), 2*MiB+10)

	var steps int
	for !c.Done() {
		n, _, err := c.Step()
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		if n > MiB {
			t.Fatalf("step read %d bytes, more than MiB", n)
		}
		steps++
	}
	if c.Count() != 2*MiB+10 {
		t.Errorf("count = %d", c.Count())
	}
	if steps < 3 {
		t.Errorf("steps = %d, want at least 3", steps)
	}
}
