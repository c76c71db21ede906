// Package units converts between byte counts, durations and human-readable
// sizes and rates.
package units

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// MiB is one mebibyte.
const MiB = 1024 * 1024

// ParseSize parses a human-readable size string to bytes.
// Supported formats:
//   - Decimal units: 100B, 10KB, 1MB, 1GB (1KB = 1000 bytes)
//   - Binary units: 10KiB, 1MiB, 1GiB (1KiB = 1024 bytes)
//   - Plain number: 1024 (interpreted as bytes)
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	bytes, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size format '%s': %w", s, err)
	}

	return int64(bytes), nil
}

// ParseTransferSize parses a bandwidth-test size. A plain number is taken
// as a count of MiB, anything with a unit suffix goes through ParseSize.
func ParseTransferSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative size: %s", s)
		}
		return n * MiB, nil
	}
	return ParseSize(s)
}

// FormatSize formats bytes using IEC binary units (KiB, MiB, ...).
func FormatSize(bytes int64) string {
	if bytes < 0 {
		return fmt.Sprintf("%d B", bytes)
	}
	return humanize.IBytes(uint64(bytes))
}

// MiBs returns bytes expressed in MiB.
func MiBs(bytes int64) float64 {
	return float64(bytes) / MiB
}

// Mbps returns the rate of bytes over d in megabits per second
// (bits per microsecond). Returns 0 for a zero duration.
func Mbps(bytes int64, d time.Duration) float64 {
	us := d.Microseconds()
	if us <= 0 {
		return 0
	}
	return float64(bytes*8) / float64(us)
}

// Millis returns d in milliseconds with microsecond resolution.
func Millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
