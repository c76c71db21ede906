package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/12101111/nettest/internal/protocol"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ResultOK},
		{"deadline", os.ErrDeadlineExceeded, ResultTimeout},
		{"context deadline", context.DeadlineExceeded, ResultTimeout},
		{"wrapped timeout", timeoutError("receive", fmt.Errorf("read: %w", os.ErrDeadlineExceeded)), ResultTimeout},
		{"canceled", context.Canceled, ResultCanceled},
		{"resolve", fmt.Errorf("%w example.invalid", ErrAddressResolution), ResultResolve},
		{"permission", fmt.Errorf("%w: operation not permitted", ErrSocketPermission), ResultPermission},
		{"socket", fmt.Errorf("%w: connection refused", ErrSocketSetup), ResultSocket},
		{"size mismatch", protocol.ErrSizeMismatch, ResultSizeMismatch},
		{"protocol", fmt.Errorf("%w: bad banner", ErrProtocolViolation), ResultProtocol},
		{"bad reply", fmt.Errorf("ack: %w", protocol.ErrBadReply), ResultProtocol},
		{"io", io.ErrUnexpectedEOF, ResultIO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestPermissionIsSocketSetup(t *testing.T) {
	if !errors.Is(ErrSocketPermission, ErrSocketSetup) {
		t.Error("ErrSocketPermission does not match ErrSocketSetup")
	}
}

func TestTimeoutError(t *testing.T) {
	err := timeoutError("receive", os.ErrDeadlineExceeded)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("%v does not match ErrTimeout", err)
	}
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Errorf("%v lost the cause", err)
	}

	if got := timeoutError("receive", io.EOF); got != io.EOF {
		t.Errorf("non-timeout error rewritten: %v", got)
	}
	if got := timeoutError("receive", nil); got != nil {
		t.Errorf("timeoutError(nil) = %v", got)
	}
}

func TestFinishPrefersContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := finish(ctx, Time(1), os.ErrDeadlineExceeded)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("finish = %v, want context.Canceled", err)
	}

	m, err := finish(ctx, Time(5), nil)
	if err != nil || m.Elapsed != 5 {
		t.Errorf("finish on success = %v, %v", m, err)
	}
}
