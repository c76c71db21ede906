//go:build unix

package icmp

import (
	"errors"

	"golang.org/x/sys/unix"
)

func isPermissionError(err error) bool {
	return errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM)
}
