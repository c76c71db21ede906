package task

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/12101111/nettest/internal/units"
)

// minSampleStep is the smallest byte interval between rate samples.
const minSampleStep = units.MiB

// rateSampler logs the instantaneous rate every time step more bytes have
// moved since the last sample. It only reports; the measurement of a run
// always covers the whole transfer.
type rateSampler struct {
	logger    *slog.Logger
	step      int64
	total     int64
	lastBytes int64
	last      time.Time
}

// sampleStep returns max(total/32, 1 MiB).
func sampleStep(total int64) int64 {
	return max(total/32, minSampleStep)
}

func newRateSampler(logger *slog.Logger, total int64, start time.Time) *rateSampler {
	return &rateSampler{
		logger: logger,
		step:   sampleStep(total),
		last:   start,
	}
}

// add accounts n transferred bytes at now. It returns true when a sample
// was emitted.
func (s *rateSampler) add(n int, now time.Time) bool {
	s.total += int64(n)
	delta := s.total - s.lastBytes
	if delta < s.step {
		return false
	}
	elapsed := now.Sub(s.last)
	s.logger.Info(fmt.Sprintf("Size: %.3f MiB, time: %.3f ms, speed: %.3f Mbps",
		units.MiBs(delta), units.Millis(elapsed), units.Mbps(delta, elapsed)))
	s.last = now
	s.lastBytes = s.total
	return true
}
