// Package report turns an analysis result into documents meant to be read,
// stored or published.
package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/RidiculousBuffal/TCSA/internal/analysis"
	"github.com/RidiculousBuffal/TCSA/internal/cicp"
	"github.com/RidiculousBuffal/TCSA/internal/frame"
	"github.com/RidiculousBuffal/TCSA/internal/quantile"
	"github.com/RidiculousBuffal/TCSA/internal/tocc"
)

type (
	// Document is the serializable view of an analysis.
	Document struct {
		ID          string           `json:"analysis_id"`
		CreatedAt   time.Time        `json:"created_at"`
		Options     analysis.Options `json:"options"`
		SampleCount int              `json:"sample_count"`
		ThreadCount int              `json:"thread_count"`
		RunCount    int              `json:"run_count"`
		Windows     []Window         `json:"windows"`
		// ContentionGroups lists the kernel sub-windows of every window
		// followed by the user ones, each from the largest to the smallest.
		ContentionGroups []ContentionGroup `json:"contention_groups"`
	}

	Window struct {
		Index   int     `json:"index"`
		Summary Summary `json:"summary"`
		Members []Run   `json:"members"`
		Kernel  Group   `json:"kernel"`
		User    Group   `json:"user"`
	}

	// Group describes the runs of a window executing in one mode.
	Group struct {
		Mode      frame.Mode `json:"mode"`
		Threshold float64    `json:"threshold"`
		Runs      int        `json:"runs"`
		Retained  int        `json:"retained"`
		// ContentionGroups holds the IDs of the sub-windows found in the group.
		ContentionGroups []int `json:"contention_groups"`
	}

	ContentionGroup struct {
		ID         int              `json:"id"`
		Window     int              `json:"window"`
		Mode       frame.Mode       `json:"mode"`
		Summary    Summary          `json:"summary"`
		CallStacks []CallStackGroup `json:"call_stacks"`
		Members    []Run            `json:"members"`
	}

	Summary struct {
		Begin      float64 `json:"begin"`
		End        float64 `json:"end"`
		Duration   float64 `json:"duration"`
		Runs       int     `json:"runs"`
		Threads    int     `json:"threads"`
		Processes  int     `json:"processes"`
		CallStacks int     `json:"call_stacks"`

		// DurationLength describes the number of samples merged by the runs.
		DurationLength Quantiles `json:"duration_length"`
	}

	Quantiles struct {
		Min float64 `json:"min"`
		P50 float64 `json:"p50"`
		P90 float64 `json:"p90"`
		Max float64 `json:"max"`
	}

	// CallStackGroup gathers the runs of a window sharing a function call stack.
	CallStackGroup struct {
		FunctionCallStack string   `json:"function_call_stack"`
		Begin             float64  `json:"begin"`
		End               float64  `json:"end"`
		Processes         []string `json:"processes"`
		Threads           []string `json:"threads"`
	}

	Run struct {
		ThreadID          string   `json:"thread_id"`
		ProcessName       string   `json:"process_name"`
		Signature         string   `json:"signature"`
		TSBegin           float64  `json:"ts_begin"`
		TSEnd             float64  `json:"ts_end"`
		DurationLength    int      `json:"duration_length"`
		Mode              string   `json:"mode"`
		CallStack         []string `json:"representative_call_stack"`
		FunctionCallStack string   `json:"function_call_stack"`
	}
)

// NewDocument builds the document of an analysis result.
func NewDocument(r *analysis.Result) Document {
	d := Document{
		ID:          r.ID,
		CreatedAt:   r.CreatedAt,
		Options:     r.Options,
		SampleCount: r.SampleCount,
		ThreadCount: r.ThreadCount,
		RunCount:    r.RunCount,
		Windows:     make([]Window, 0, len(r.Windows)),
	}
	for i, s := range r.Windows {
		d.Windows = append(d.Windows, Window{
			Index:   i + 1,
			Summary: Summarize(s.Window),
			Members: runs(s.Members),
			Kernel:  group(s.Kernel),
			User:    group(s.User),
		})
	}

	for _, mode := range []frame.Mode{frame.ModeKernel, frame.ModeUser} {
		type entry struct {
			window int
			w      tocc.Window
		}
		var entries []entry
		for i, s := range r.Windows {
			for _, w := range s.Group(mode).SubWindows {
				entries = append(entries, entry{window: i, w: w})
			}
		}
		sort.SliceStable(entries, func(i, j int) bool {
			return len(entries[i].w.Members) > len(entries[j].w.Members)
		})
		for _, e := range entries {
			id := len(d.ContentionGroups) + 1
			d.ContentionGroups = append(d.ContentionGroups, ContentionGroup{
				ID:         id,
				Window:     e.window + 1,
				Mode:       mode,
				Summary:    Summarize(e.w),
				CallStacks: CallStacks(e.w),
				Members:    runs(e.w.Members),
			})
			g := &d.Windows[e.window].User
			if mode == frame.ModeKernel {
				g = &d.Windows[e.window].Kernel
			}
			g.ContentionGroups = append(g.ContentionGroups, id)
		}
	}
	return d
}

func group(g tocc.ModeGroup) Group {
	return Group{
		Mode:             g.Mode,
		Threshold:        g.Threshold,
		Runs:             len(g.Members),
		Retained:         len(g.Retained),
		ContentionGroups: []int{},
	}
}

func runs(members []*cicp.CICP) []Run {
	result := make([]Run, 0, len(members))
	for _, c := range members {
		stack := make([]string, 0, len(c.CallStack))
		for _, f := range c.CallStack {
			stack = append(stack, f.String())
		}
		result = append(result, Run{
			ThreadID:          c.ThreadID,
			ProcessName:       c.ProcessName,
			Signature:         c.Signature,
			TSBegin:           c.TSBegin,
			TSEnd:             c.TSEnd,
			DurationLength:    c.DurationLength,
			Mode:              c.Mode().String(),
			CallStack:         stack,
			FunctionCallStack: c.FunctionCallStack,
		})
	}
	return result
}

// Summarize computes the time period and population of a window.
func Summarize(w tocc.Window) Summary {
	stacks := make(map[string]struct{})
	durations := make([]int, 0, len(w.Members))
	for _, c := range w.Members {
		stacks[c.FunctionCallStack] = struct{}{}
		durations = append(durations, c.DurationLength)
	}
	q := quantile.FromInts(durations)
	q.Sort()
	min, max := q.Bounds()
	return Summary{
		Begin:      w.Begin(),
		End:        w.End(),
		Duration:   w.End() - w.Begin(),
		Runs:       len(w.Members),
		Threads:    w.ThreadCount(),
		Processes:  len(w.Processes()),
		CallStacks: len(stacks),
		DurationLength: Quantiles{
			Min: min,
			P50: q.Percentile(0.5),
			P90: q.Percentile(0.9),
			Max: max,
		},
	}
}

// CallStacks groups the runs of a window by function call stack, ordered by
// the first time each call stack was seen.
func CallStacks(w tocc.Window) []CallStackGroup {
	byStack := make(map[string]*tocc.Window)
	var order []string
	for _, c := range w.Members {
		g, exists := byStack[c.FunctionCallStack]
		if !exists {
			g = &tocc.Window{}
			byStack[c.FunctionCallStack] = g
			order = append(order, c.FunctionCallStack)
		}
		g.Members = append(g.Members, c)
	}
	groups := make([]CallStackGroup, 0, len(order))
	for _, stack := range order {
		g := byStack[stack]
		groups = append(groups, CallStackGroup{
			FunctionCallStack: stack,
			Begin:             g.Begin(),
			End:               g.End(),
			Processes:         g.Processes(),
			Threads:           g.Threads(),
		})
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Begin < groups[j].Begin
	})
	return groups
}

// StoragePath returns the object name of a stored document.
func StoragePath(analysisID string) string {
	return fmt.Sprintf("analyses/%s.json.lz4", analysisID)
}
