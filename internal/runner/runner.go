// Package runner drives a task: it runs the probe a fixed number of times
// with a pause in between and collects measurements and failures.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/12101111/nettest/internal/logging"
	"github.com/12101111/nettest/internal/metrics"
	"github.com/12101111/nettest/internal/task"
	"github.com/12101111/nettest/internal/units"
)

// ErrZeroCount is returned when no probe was requested.
var ErrZeroCount = errors.New("count = 0 means don't run anything")

// Options controls the probe loop.
type Options struct {
	// Count is the number of probes. It must be positive.
	Count int

	// Interval is the pause after each probe except the last.
	Interval time.Duration
}

// Result collects the outcome of a session.
type Result struct {
	Task         string
	Measurements []task.Measurement
	Failures     int
	Timeouts     int
}

// Transmitted returns the number of probes that were attempted.
func (r *Result) Transmitted() int {
	return len(r.Measurements) + r.Failures
}

// Run probes t opts.Count times. A failed probe is counted and the loop
// continues. When ctx ends the partial result is returned with ctx.Err().
// m may be nil.
func Run(ctx context.Context, t task.Task, opts Options, logger *slog.Logger, m *metrics.ClientMetrics) (*Result, error) {
	if opts.Count <= 0 {
		return nil, ErrZeroCount
	}
	if logger == nil {
		logger = logging.NopLogger()
	}

	res := &Result{
		Task:         t.Name(),
		Measurements: make([]task.Measurement, 0, opts.Count),
	}
	logger = logger.With(logging.KeyTask, res.Task)

	for seq := 1; seq <= opts.Count; seq++ {
		meas, err := t.Run(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			logger.Debug("probe loop interrupted", logging.KeySeq, seq)
			return res, ctxErr
		}

		label := task.Classify(err)
		m.RecordProbe(res.Task, label)
		if err != nil {
			res.Failures++
			if label == task.ResultTimeout {
				res.Timeouts++
			}
			logger.Info(err.Error(), logging.KeySeq, seq)
		} else {
			res.Measurements = append(res.Measurements, meas)
			record(m, res.Task, meas)
		}

		if seq == opts.Count || opts.Interval <= 0 {
			continue
		}
		if err := sleep(ctx, opts.Interval); err != nil {
			return res, err
		}
	}
	return res, nil
}

func record(m *metrics.ClientMetrics, name string, meas task.Measurement) {
	switch meas.Kind {
	case task.KindTime:
		m.RecordRTT(name, meas.Elapsed.Seconds())
	case task.KindSpeed:
		m.RecordTransfer(name, meas.Bytes, units.Mbps(meas.Bytes, meas.Elapsed))
	default:
		panic(fmt.Sprintf("runner: unexpected measurement kind %v", meas.Kind))
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
