// Package task implements the measurement tasks: latency probes (ICMP echo,
// TCP handshake, UDP echo, line protocol HI) and throughput probes (TCP,
// QUIC and line protocol upload/download).
//
// A Task is built once from the command line, which resolves the target and
// opens any long-lived socket, and then run repeatedly by the driver. Tasks
// are not safe for concurrent use.
package task

import (
	"context"
	"fmt"
	"time"
)

// Kind tells which field of a Measurement carries the result.
type Kind int

const (
	// KindTime is a round trip time.
	KindTime Kind = iota
	// KindSpeed is a byte count transferred over a duration.
	KindSpeed
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindTime:
		return "time"
	case KindSpeed:
		return "speed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Measurement is the result of one successful run.
type Measurement struct {
	Kind    Kind
	Elapsed time.Duration
	Bytes   int64
}

// Time returns a latency measurement.
func Time(d time.Duration) Measurement {
	return Measurement{Kind: KindTime, Elapsed: d}
}

// Speed returns a throughput measurement.
func Speed(bytes int64, d time.Duration) Measurement {
	return Measurement{Kind: KindSpeed, Elapsed: d, Bytes: bytes}
}

// Task is one kind of probe against one target.
type Task interface {
	// Name identifies the task in logs and metrics.
	Name() string

	// Run performs a single probe.
	Run(ctx context.Context) (Measurement, error)

	// Close releases sockets held across runs.
	Close() error
}

// Options carries the parameters shared by all task constructors.
type Options struct {
	// Timeout bounds every connect, read and write of a run.
	Timeout time.Duration

	// Size is the probe payload in bytes for latency tasks and the
	// transfer size in bytes for throughput tasks.
	Size int64

	// StrictVerify enables certificate verification for QUIC.
	StrictVerify bool

	// Label names the target in log lines instead of its address, e.g. the
	// sponsor of a speedtest.net server.
	Label string
}

// deadline returns the point at which a run that starts now times out.
func (o Options) deadline() time.Time {
	return time.Now().Add(o.Timeout)
}

// describe returns how a target is named in logs.
func (o Options) describe(target string) string {
	if o.Label != "" {
		return o.Label
	}
	return target
}

// finish prefers the context error when a run failed because ctx ended.
func finish(ctx context.Context, m Measurement, err error) (Measurement, error) {
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Measurement{}, ctxErr
		}
		return Measurement{}, err
	}
	return m, nil
}
