package ratelimit

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"
)

func TestReader_Unlimited(t *testing.T) {
	r := bytes.NewReader([]byte("hello world"))
	if NewReader(context.Background(), r, 0) != r {
		t.Error("expected unwrapped reader for 0 rate limit")
	}
	if NewReader(context.Background(), r, -100) != r {
		t.Error("expected unwrapped reader for negative rate limit")
	}
}

func TestReader_CapsReadSize(t *testing.T) {
	data := make([]byte, 4*BurstSize)
	limited := NewReader(context.Background(), bytes.NewReader(data), 1<<30)

	buf := make([]byte, len(data))
	n, err := limited.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != BurstSize {
		t.Errorf("Read returned %d bytes, want %d", n, BurstSize)
	}
}

func TestReader_ReadAll(t *testing.T) {
	data := make([]byte, 3*BurstSize+17)
	for i := range data {
		data[i] = byte(i % 251)
	}
	limited := NewReader(context.Background(), bytes.NewReader(data), 1<<30)

	got, err := io.ReadAll(limited)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("data mismatch")
	}
}

func TestReader_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	limited := NewReader(ctx, bytes.NewReader([]byte("data")), 1024)
	if _, err := limited.Read(make([]byte, 4)); err != context.Canceled {
		t.Errorf("Read error = %v, want context.Canceled", err)
	}
}

func TestWriter_Unlimited(t *testing.T) {
	var buf bytes.Buffer
	if NewWriter(context.Background(), &buf, 0) != &buf {
		t.Error("expected unwrapped writer for 0 rate limit")
	}
}

func TestWriter_LargeWrite(t *testing.T) {
	// a single write larger than the bucket must be split rather than rejected
	data := make([]byte, 5*BurstSize+3)
	var buf bytes.Buffer
	limited := NewWriter(context.Background(), &buf, 1<<30)

	n, err := limited.Write(data)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len(data) || buf.Len() != len(data) {
		t.Errorf("wrote %d (buffer %d), want %d", n, buf.Len(), len(data))
	}
}

func TestWriter_RateLimiting(t *testing.T) {
	// the first BurstSize bytes pass immediately, the next BurstSize take ~0.5s
	data := make([]byte, 2*BurstSize)
	var buf bytes.Buffer
	limited := NewWriter(context.Background(), &buf, 2*BurstSize)

	start := time.Now()
	if _, err := limited.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	elapsed := time.Since(start)

	if elapsed < 300*time.Millisecond {
		t.Errorf("write finished in %v, expected rate limiting", elapsed)
	}
	if elapsed > 3*time.Second {
		t.Errorf("write took %v, too slow", elapsed)
	}
}

func TestWriter_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var buf bytes.Buffer
	limited := NewWriter(ctx, &buf, 1)

	// drain the initial burst, then cancel while waiting
	if _, err := limited.Write(make([]byte, BurstSize)); err != nil {
		t.Fatalf("first Write: %v", err)
	}
	cancel()
	if _, err := limited.Write([]byte("x")); err == nil {
		t.Error("expected error after cancel")
	}
}
