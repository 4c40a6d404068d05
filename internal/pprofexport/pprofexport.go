// Package pprofexport converts contention groups into pprof profiles.
package pprofexport

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/pprof/profile"

	"github.com/RidiculousBuffal/TCSA/internal/frame"
	"github.com/RidiculousBuffal/TCSA/internal/report"
)

const (
	LabelThreadID    = "thread_id"
	LabelProcessName = "process_name"
	LabelMode        = "mode"
)

type builder struct {
	profile   *profile.Profile
	functions map[string]*profile.Function
	locations map[frame.Frame]*profile.Location
}

// FromContentionGroup builds a profile holding one sample per run of the
// group, valued with 1 run and its duration length, with leaf-first
// locations and thread, process and mode labels.
func FromContentionGroup(analysisID string, g report.ContentionGroup) (*profile.Profile, error) {
	b := builder{
		profile: &profile.Profile{
			SampleType: []*profile.ValueType{
				{Type: "runs", Unit: "count"},
				{Type: "samples", Unit: "count"},
			},
			DefaultSampleType: "samples",
			PeriodType:        &profile.ValueType{Type: "samples", Unit: "count"},
			Period:            1,
			Comments: []string{
				"analysis " + analysisID,
				fmt.Sprintf("contention group %d (%s) of window %d", g.ID, g.Mode, g.Window),
			},
			TimeNanos:     int64(math.Round(g.Summary.Begin * 1e9)),
			DurationNanos: int64(math.Round(g.Summary.Duration * 1e9)),
		},
		functions: make(map[string]*profile.Function),
		locations: make(map[frame.Frame]*profile.Location),
	}

	for _, r := range g.Members {
		stack, err := frame.ParseStack(r.CallStack)
		if err != nil {
			return nil, err
		}
		s := &profile.Sample{
			Value: []int64{1, int64(r.DurationLength)},
			Label: map[string][]string{
				LabelThreadID:    {r.ThreadID},
				LabelProcessName: {r.ProcessName},
				LabelMode:        {r.Mode},
			},
		}
		for i := len(stack) - 1; i >= 0; i-- {
			s.Location = append(s.Location, b.location(stack[i]))
		}
		b.profile.Sample = append(b.profile.Sample, s)
	}

	if err := b.profile.CheckValid(); err != nil {
		return nil, err
	}
	return b.profile, nil
}

func (b *builder) location(f frame.Frame) *profile.Location {
	if l, exists := b.locations[f]; exists {
		return l
	}
	address, _ := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(f.Address), "0x"), 16, 64)
	l := &profile.Location{
		ID:      uint64(len(b.profile.Location) + 1),
		Address: address,
		Line:    []profile.Line{{Function: b.function(f)}},
	}
	b.locations[f] = l
	b.profile.Location = append(b.profile.Location, l)
	return l
}

func (b *builder) function(f frame.Frame) *profile.Function {
	if fn, exists := b.functions[f.Symbol]; exists {
		return fn
	}
	fn := &profile.Function{
		ID:         uint64(len(b.profile.Function) + 1),
		Name:       f.Function(),
		SystemName: f.Symbol,
		Filename:   f.Module(),
	}
	b.functions[f.Symbol] = fn
	b.profile.Function = append(b.profile.Function, fn)
	return fn
}
