package task

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/12101111/nettest/internal/protocol"
)

var (
	// ErrAddressResolution means the target has no usable address.
	ErrAddressResolution = errors.New("can't resolve address")

	// ErrSocketSetup means a socket could not be created, bound or connected.
	ErrSocketSetup = errors.New("socket setup failed")

	// ErrSocketPermission means the kernel refused to create a socket.
	ErrSocketPermission = fmt.Errorf("%w: permission denied", ErrSocketSetup)

	// ErrProtocolViolation means the peer answered with something unexpected.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrTimeout means a run exceeded its deadline.
	ErrTimeout = errors.New("timeout")

	// ErrSizeMismatch means declared and observed byte counts differ.
	ErrSizeMismatch = protocol.ErrSizeMismatch
)

// Result labels returned by Classify.
const (
	ResultOK           = "ok"
	ResultTimeout      = "timeout"
	ResultResolve      = "resolve"
	ResultPermission   = "permission"
	ResultSocket       = "socket"
	ResultProtocol     = "protocol"
	ResultSizeMismatch = "size_mismatch"
	ResultCanceled     = "canceled"
	ResultIO           = "io"
)

// IsTimeout reports whether err is a deadline expiry of any origin.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Classify maps err onto a short label for metrics and loss accounting.
func Classify(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case IsTimeout(err):
		return ResultTimeout
	case errors.Is(err, context.Canceled):
		return ResultCanceled
	case errors.Is(err, ErrAddressResolution):
		return ResultResolve
	case errors.Is(err, ErrSocketPermission):
		return ResultPermission
	case errors.Is(err, ErrSocketSetup):
		return ResultSocket
	case errors.Is(err, ErrSizeMismatch):
		return ResultSizeMismatch
	case errors.Is(err, ErrProtocolViolation), errors.Is(err, protocol.ErrBadReply):
		return ResultProtocol
	default:
		return ResultIO
	}
}

// timeoutError tags a deadline expiry during op so it matches ErrTimeout.
func timeoutError(op string, err error) error {
	if err == nil || !IsTimeout(err) || errors.Is(err, ErrTimeout) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
}
