package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/12101111/nettest/internal/logging"
)

func TestPing_Loopback(t *testing.T) {
	task, err := NewPing(context.Background(), "127.0.0.1", Options{Timeout: 2 * time.Second, Size: 60}, logging.NopLogger())
	if errors.Is(err, ErrSocketPermission) {
		t.Skipf("unprivileged ICMP not available: %v", err)
	}
	if err != nil {
		t.Fatalf("NewPing: %v", err)
	}
	defer task.Close()

	m, err := task.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if m.Kind != KindTime || m.Elapsed <= 0 {
		t.Errorf("Run = %+v", m)
	}
}

func TestPing_UnresolvableHost(t *testing.T) {
	_, err := NewPing(context.Background(), "host.invalid", Options{Timeout: time.Second}, logging.NopLogger())
	if !errors.Is(err, ErrAddressResolution) {
		t.Errorf("NewPing = %v, want ErrAddressResolution", err)
	}
}
