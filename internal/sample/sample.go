package sample

import (
	"fmt"
	"math"
	"sort"

	"github.com/RidiculousBuffal/TCSA/internal/errorutil"
	"github.com/RidiculousBuffal/TCSA/internal/frame"
)

type (
	// Sample is one profiler observation of a thread. CallStack is ordered
	// root first, the innermost frame being the last one.
	Sample struct {
		ThreadID    string
		ProcessName string
		Timestamp   float64
		CPU         int
		Event       string
		CallStack   []frame.Frame
	}

	Thread struct {
		ID      string
		Samples []*Sample
	}
)

// Validate checks a sample can be fed to the analysis.
func (s Sample) Validate() error {
	if s.ThreadID == "" {
		return fmt.Errorf("%w: sample is missing a thread id", errorutil.ErrInvalidInput)
	}
	if math.IsNaN(s.Timestamp) || math.IsInf(s.Timestamp, 0) {
		return fmt.Errorf("%w: thread %s has a non numeric timestamp", errorutil.ErrInvalidInput, s.ThreadID)
	}
	for i, f := range s.CallStack {
		if _, err := frame.Classify(f.Address); err != nil {
			return fmt.Errorf("thread %s frame %d: %w", s.ThreadID, i, err)
		}
	}
	return nil
}

// SamplesByThread groups samples by thread, keeping their order inside a
// thread, and returns the threads sorted by ID. Samples are validated and
// must have non-decreasing timestamps within a thread.
func SamplesByThread(samples []Sample) ([]Thread, error) {
	byThread := make(map[string][]*Sample)
	var threadIDs []string
	for i, s := range samples {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		previous, exists := byThread[s.ThreadID]
		if !exists {
			threadIDs = append(threadIDs, s.ThreadID)
		} else if last := previous[len(previous)-1]; s.Timestamp < last.Timestamp {
			return nil, fmt.Errorf(
				"%w: sample %d of thread %s goes back in time (%f < %f)",
				errorutil.ErrInvalidInput,
				i,
				s.ThreadID,
				s.Timestamp,
				last.Timestamp,
			)
		}
		byThread[s.ThreadID] = append(byThread[s.ThreadID], &samples[i])
	}
	sort.SliceStable(threadIDs, func(i, j int) bool {
		return threadIDs[i] < threadIDs[j]
	})
	threads := make([]Thread, 0, len(threadIDs))
	for _, id := range threadIDs {
		threads = append(threads, Thread{ID: id, Samples: byThread[id]})
	}
	return threads, nil
}
