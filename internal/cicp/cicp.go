package cicp

import (
	"context"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/RidiculousBuffal/TCSA/internal/frame"
	"github.com/RidiculousBuffal/TCSA/internal/sample"
)

// CICP is a maximal run of consecutive samples of one thread sharing the
// same signature.
type CICP struct {
	ThreadID          string        `json:"thread_id"`
	ProcessName       string        `json:"process_name"`
	Signature         string        `json:"signature"`
	TSBegin           float64       `json:"ts_begin"`
	TSEnd             float64       `json:"ts_end"`
	DurationLength    int           `json:"duration_length"`
	CallStack         []frame.Frame `json:"representative_call_stack"`
	FunctionCallStack string        `json:"function_call_stack"`
}

// DefaultIgnoredProcesses lists the idle pseudo-processes dropped by Filter.
var DefaultIgnoredProcesses = []string{"swapper"}

// Mode returns the execution mode of the run, read from the innermost frame
// of its representative call stack.
func (c CICP) Mode() frame.Mode {
	return frame.ModeOf(c.CallStack)
}

// Compress run-length encodes the time-ordered samples of a single thread.
// The representative call stack of a run is the one of its first sample.
func Compress(samples []*sample.Sample, o sample.SignatureOptions) []CICP {
	var cicps []CICP
	for _, s := range samples {
		signature := sample.Signature(s.CallStack, o)
		if last := len(cicps) - 1; last >= 0 && cicps[last].Signature == signature {
			cicps[last].TSEnd = s.Timestamp
			cicps[last].DurationLength++
			continue
		}
		cicps = append(cicps, CICP{
			ThreadID:          s.ThreadID,
			ProcessName:       s.ProcessName,
			Signature:         signature,
			TSBegin:           s.Timestamp,
			TSEnd:             s.Timestamp,
			DurationLength:    1,
			CallStack:         s.CallStack,
			FunctionCallStack: sample.FunctionCallStack(s.CallStack),
		})
	}
	return cicps
}

// CompressThreads compresses every thread independently, using at most
// workers goroutines, and concatenates the results in thread order.
func CompressThreads(ctx context.Context, threads []sample.Thread, o sample.SignatureOptions, workers int) ([]CICP, error) {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	results := make([][]CICP, len(threads))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, t := range threads {
		i, t := i, t
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = Compress(t.Samples, o)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var size int
	for _, r := range results {
		size += len(r)
	}
	cicps := make([]CICP, 0, size)
	for _, r := range results {
		cicps = append(cicps, r...)
	}
	return cicps, nil
}

// Filter drops single-sample runs and runs of processes whose name contains
// one of the ignored names. Order is preserved.
func Filter(cicps []CICP, ignoredProcesses []string) []CICP {
	filtered := make([]CICP, 0, len(cicps))
	for _, c := range cicps {
		if c.DurationLength <= 1 || isIgnored(c.ProcessName, ignoredProcesses) {
			continue
		}
		filtered = append(filtered, c)
	}
	return filtered
}

func isIgnored(processName string, ignoredProcesses []string) bool {
	for _, name := range ignoredProcesses {
		if name != "" && strings.Contains(processName, name) {
			return true
		}
	}
	return false
}
