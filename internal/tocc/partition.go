package tocc

import (
	"sort"

	"github.com/RidiculousBuffal/TCSA/internal/cicp"
)

type (
	// Window is a time-overlap cluster of runs spanning at least 2 threads.
	// Members reference runs owned by the caller, in the order they start.
	Window struct {
		Members []*cicp.CICP
	}

	eventKind int

	event struct {
		ts    float64
		kind  eventKind
		index int
	}
)

// At equal timestamps, starts are processed before ends so runs touching at
// a single instant end up in the same window.
const (
	eventStart eventKind = iota
	eventEnd
)

// Partition sweeps the start and end events of the runs in time order and
// cuts a window every time no thread has an open run anymore. Windows
// covering a single thread are discarded. Windows are returned from the
// largest to the smallest, ties kept in time order.
func Partition(members []*cicp.CICP) []Window {
	events := make([]event, 0, 2*len(members))
	for i, c := range members {
		events = append(events,
			event{ts: c.TSBegin, kind: eventStart, index: i},
			event{ts: c.TSEnd, kind: eventEnd, index: i},
		)
	}
	sort.Slice(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.ts != b.ts {
			return a.ts < b.ts
		}
		if a.kind != b.kind {
			return a.kind < b.kind
		}
		return a.index < b.index
	})

	var windows []Window
	var current []*cicp.CICP
	// open runs per thread
	active := make(map[string]int)
	for _, e := range events {
		c := members[e.index]
		switch e.kind {
		case eventStart:
			if len(active) == 0 {
				current = nil
			}
			active[c.ThreadID]++
			current = append(current, c)
		case eventEnd:
			open, exists := active[c.ThreadID]
			if !exists {
				continue
			}
			if open > 1 {
				active[c.ThreadID] = open - 1
				continue
			}
			delete(active, c.ThreadID)
			if len(active) != 0 {
				continue
			}
			if w := (Window{Members: current}); w.ThreadCount() >= 2 {
				windows = append(windows, w)
			}
			current = nil
		}
	}

	sortBySize(windows)
	return windows
}

func sortBySize(windows []Window) {
	sort.SliceStable(windows, func(i, j int) bool {
		return len(windows[i].Members) > len(windows[j].Members)
	})
}

// Threads returns the sorted distinct thread IDs of the window.
func (w Window) Threads() []string {
	seen := make(map[string]struct{}, len(w.Members))
	threads := make([]string, 0, len(w.Members))
	for _, c := range w.Members {
		if _, exists := seen[c.ThreadID]; exists {
			continue
		}
		seen[c.ThreadID] = struct{}{}
		threads = append(threads, c.ThreadID)
	}
	sort.Strings(threads)
	return threads
}

func (w Window) ThreadCount() int {
	return len(w.Threads())
}

// Processes returns the sorted distinct process names of the window.
func (w Window) Processes() []string {
	seen := make(map[string]struct{})
	var processes []string
	for _, c := range w.Members {
		if _, exists := seen[c.ProcessName]; exists {
			continue
		}
		seen[c.ProcessName] = struct{}{}
		processes = append(processes, c.ProcessName)
	}
	sort.Strings(processes)
	return processes
}

// Begin returns the earliest start of the window members.
func (w Window) Begin() float64 {
	if len(w.Members) == 0 {
		return 0
	}
	begin := w.Members[0].TSBegin
	for _, c := range w.Members[1:] {
		begin = min(begin, c.TSBegin)
	}
	return begin
}

// End returns the latest end of the window members.
func (w Window) End() float64 {
	if len(w.Members) == 0 {
		return 0
	}
	end := w.Members[0].TSEnd
	for _, c := range w.Members[1:] {
		end = max(end, c.TSEnd)
	}
	return end
}
