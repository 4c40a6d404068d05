package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/RidiculousBuffal/TCSA/internal/cicp"
	"github.com/RidiculousBuffal/TCSA/internal/errorutil"
	"github.com/RidiculousBuffal/TCSA/internal/frame"
	"github.com/RidiculousBuffal/TCSA/internal/sample"
	"github.com/RidiculousBuffal/TCSA/internal/tocc"
)

type (
	Options struct {
		sample.SignatureOptions

		// DurationThreshold is the minimum duration length of a run kept
		// when subdividing a window, tocc.MeanThreshold to use the mean of
		// each execution mode group.
		DurationThreshold int      `json:"duration_length_threshold"`
		IgnoredProcesses  []string `json:"ignored_processes"`
		// Workers bounds the goroutines of each fan-out stage, 0 uses
		// GOMAXPROCS.
		Workers int `json:"-"`
	}

	// Result owns the runs of an analysis, windows reference them.
	Result struct {
		ID          string
		CreatedAt   time.Time
		Options     Options
		SampleCount int
		ThreadCount int
		// RunCount is the number of runs before filtering.
		RunCount int
		CICPs    []cicp.CICP
		Windows  []tocc.Subdivision
	}
)

func DefaultOptions() Options {
	return Options{
		SignatureOptions: sample.SignatureOptions{
			DegreesOfFreedom: sample.UnboundedDepth,
			Direction:        sample.BottomUp,
		},
		DurationThreshold: tocc.MeanThreshold,
		IgnoredProcesses:  cicp.DefaultIgnoredProcesses,
	}
}

func (o Options) Validate() error {
	if err := o.SignatureOptions.Validate(); err != nil {
		return err
	}
	if o.DurationThreshold < tocc.MeanThreshold {
		return fmt.Errorf("%w: duration length threshold must be -1 or positive, got %d", errorutil.ErrInvalidConfig, o.DurationThreshold)
	}
	if o.Workers < 0 {
		return fmt.Errorf("%w: workers can't be negative, got %d", errorutil.ErrInvalidConfig, o.Workers)
	}
	return nil
}

// Run detects the contention windows of a complete sample set.
func Run(ctx context.Context, samples []sample.Sample, o Options) (*Result, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	s := sentry.StartSpan(ctx, "analysis.compress")
	threads, err := sample.SamplesByThread(samples)
	if err != nil {
		s.Finish()
		return nil, err
	}
	runs, err := cicp.CompressThreads(s.Context(), threads, o.SignatureOptions, o.Workers)
	s.Finish()
	if err != nil {
		return nil, err
	}
	filtered := cicp.Filter(runs, o.IgnoredProcesses)

	s = sentry.StartSpan(ctx, "analysis.partition")
	members := make([]*cicp.CICP, 0, len(filtered))
	for i := range filtered {
		members = append(members, &filtered[i])
	}
	windows := tocc.Partition(members)
	s.Finish()

	s = sentry.StartSpan(ctx, "analysis.subdivide")
	subdivisions, err := tocc.Subdivide(s.Context(), windows, o.DurationThreshold, o.Workers)
	s.Finish()
	if err != nil {
		return nil, err
	}

	r := &Result{
		ID:          uuid.New().String(),
		CreatedAt:   time.Now().UTC(),
		Options:     o,
		SampleCount: len(samples),
		ThreadCount: len(threads),
		RunCount:    len(runs),
		CICPs:       filtered,
		Windows:     subdivisions,
	}
	log.Debug().
		Str("analysis_id", r.ID).
		Int("samples", r.SampleCount).
		Int("threads", r.ThreadCount).
		Int("runs", r.RunCount).
		Int("filtered_runs", len(filtered)).
		Int("windows", len(windows)).
		Dur("elapsed", time.Since(start)).
		Msg("contention windows detected")
	return r, nil
}

// SubWindows returns the sub-windows of every window, kernel and user
// together, from the largest to the smallest.
func (r *Result) SubWindows() []tocc.Window {
	return tocc.SubWindows(r.Windows)
}

// SubWindowsByMode returns the sub-windows of one execution mode across
// every window, from the largest to the smallest.
func (r *Result) SubWindowsByMode(mode frame.Mode) []tocc.Window {
	return tocc.SubWindowsByMode(r.Windows, mode)
}
