// Package stats summarises the measurements of a session.
package stats

import (
	"errors"
	"fmt"
	"math/big"
	"math/bits"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/12101111/nettest/internal/task"
	"github.com/12101111/nettest/internal/units"
)

var (
	// ErrEmpty is returned when nothing was measured.
	ErrEmpty = errors.New("no measurements")

	// ErrAllFailed is returned when every probe failed.
	ErrAllFailed = errors.New("All tests are failed")

	// ErrMixedShapes is returned when time and speed measurements are mixed.
	ErrMixedShapes = errors.New("measurements of different kinds")
)

// TimeSummary describes round trip times.
type TimeSummary struct {
	Transmitted int
	Received    int
	// Loss is the percentage of probes without a valid reply.
	Loss   float64
	Total  time.Duration
	Min    time.Duration
	Avg    time.Duration
	Max    time.Duration
	Mdev   time.Duration
	Median time.Duration
}

// Lines renders the summary in ping style.
func (s TimeSummary) Lines() []string {
	ms := func(d time.Duration) string { return fmt.Sprintf("%.3f", units.Millis(d)) }
	return []string{
		fmt.Sprintf("%d packets transmitted, %d received, %.2f%% packet loss, time %s ms",
			s.Transmitted, s.Received, s.Loss, ms(s.Total)),
		fmt.Sprintf("rtt min/avg/max/mdev = %s/%s/%s/%.3f ms",
			ms(s.Min), ms(s.Avg), ms(s.Max), float64(s.Mdev)/float64(time.Millisecond)),
	}
}

// SpeedSummary describes throughput runs. Rates are in Mbps.
type SpeedSummary struct {
	Runs     int
	Failures int
	Bytes    int64
	Elapsed  time.Duration
	Min      float64
	Avg      float64
	Max      float64
	Median   float64
}

// Lines renders the summary.
func (s SpeedSummary) Lines() []string {
	return []string{
		fmt.Sprintf("%d MiB transmitted in %s", s.Bytes/units.MiB, s.Elapsed),
		fmt.Sprintf("Speed min/avg/max %.3f/%.3f/%.3f Mbps", s.Min, s.Avg, s.Max),
	}
}

// Summary is the aggregate of one session. Exactly one of Time and Speed
// is set, according to Kind.
type Summary struct {
	Kind  task.Kind
	Time  *TimeSummary
	Speed *SpeedSummary
}

// Lines renders whichever summary is set.
func (s *Summary) Lines() []string {
	if s.Time != nil {
		return s.Time.Lines()
	}
	return s.Speed.Lines()
}

// Summarize aggregates ms, which must all have the same kind, plus the
// number of failed probes.
func Summarize(ms []task.Measurement, failures int) (*Summary, error) {
	if len(ms) == 0 {
		if failures > 0 {
			return nil, ErrAllFailed
		}
		return nil, ErrEmpty
	}
	kind := ms[0].Kind
	for _, m := range ms[1:] {
		if m.Kind != kind {
			return nil, ErrMixedShapes
		}
	}

	switch kind {
	case task.KindTime:
		ts := summarizeTime(ms, failures)
		return &Summary{Kind: kind, Time: &ts}, nil
	case task.KindSpeed:
		ss := summarizeSpeed(ms, failures)
		return &Summary{Kind: kind, Speed: &ss}, nil
	default:
		return nil, fmt.Errorf("unknown measurement kind %v", kind)
	}
}

func summarizeTime(ms []task.Measurement, failures int) TimeSummary {
	s := TimeSummary{
		Received:    len(ms),
		Transmitted: len(ms) + failures,
		Min:         ms[0].Elapsed,
		Max:         ms[0].Elapsed,
	}
	s.Loss = 100 * float64(failures) / float64(s.Transmitted)

	samples := make(stats.Float64Data, 0, len(ms))
	for _, m := range ms {
		s.Total += m.Elapsed
		s.Min = min(s.Min, m.Elapsed)
		s.Max = max(s.Max, m.Elapsed)
		samples = append(samples, float64(m.Elapsed))
	}
	s.Avg = s.Total / time.Duration(len(ms))
	s.Mdev = mdev(ms, s.Avg)
	if median, err := samples.Median(); err == nil {
		s.Median = time.Duration(median)
	}
	return s
}

// mdev returns sqrt(mean((t - avg)^2)). The squares are summed exactly in
// integer nanoseconds.
func mdev(ms []task.Measurement, avg time.Duration) time.Duration {
	sum := new(big.Int)
	d := new(big.Int)
	for _, m := range ms {
		d.SetInt64(int64(m.Elapsed - avg))
		sum.Add(sum, d.Mul(d, d))
	}
	mean := new(big.Float).SetInt(sum)
	mean.Quo(mean, new(big.Float).SetInt64(int64(len(ms))))
	ns, _ := mean.Sqrt(mean).Float64()
	return time.Duration(ns + 0.5)
}

func summarizeSpeed(ms []task.Measurement, failures int) SpeedSummary {
	s := SpeedSummary{Runs: len(ms), Failures: failures}

	slowest, fastest := ms[0], ms[0]
	rates := make(stats.Float64Data, 0, len(ms))
	for _, m := range ms {
		s.Bytes += m.Bytes
		s.Elapsed += m.Elapsed
		if faster(slowest, m) {
			slowest = m
		}
		if faster(m, fastest) {
			fastest = m
		}
		rates = append(rates, units.Mbps(m.Bytes, m.Elapsed))
	}

	s.Min = units.Mbps(slowest.Bytes, slowest.Elapsed)
	s.Max = units.Mbps(fastest.Bytes, fastest.Elapsed)
	s.Avg = units.Mbps(s.Bytes, s.Elapsed)
	if median, err := rates.Median(); err == nil {
		s.Median = median
	}
	return s
}

// faster reports whether a moved more bytes per unit of time than b, by
// comparing a.Bytes*b.Elapsed with b.Bytes*a.Elapsed in 128 bits.
func faster(a, b task.Measurement) bool {
	ahi, alo := bits.Mul64(uint64(max(a.Bytes, 0)), uint64(max(b.Elapsed, 0)))
	bhi, blo := bits.Mul64(uint64(max(b.Bytes, 0)), uint64(max(a.Elapsed, 0)))
	if ahi != bhi {
		return ahi > bhi
	}
	return alo > blo
}
