//go:build !unix

package icmp

import (
	"errors"
	"os"
)

func isPermissionError(err error) bool {
	return errors.Is(err, os.ErrPermission)
}
