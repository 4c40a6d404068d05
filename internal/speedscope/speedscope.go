// Package speedscope exports contention groups in the evented speedscope
// file format, one profile per thread.
package speedscope

import (
	"fmt"
	"math"
	"sort"

	"github.com/RidiculousBuffal/TCSA/internal/frame"
	"github.com/RidiculousBuffal/TCSA/internal/report"
)

const (
	Schema = "https://www.speedscope.app/file-format-schema.json"

	ValueUnitNanoseconds ValueUnit = "nanoseconds"

	EventTypeOpenFrame  EventType = "O"
	EventTypeCloseFrame EventType = "C"

	ProfileTypeEvented ProfileType = "evented"
)

type (
	Frame struct {
		Image         string `json:"image,omitempty"`
		IsApplication bool   `json:"is_application"`
		Name          string `json:"name"`
	}

	Event struct {
		Type  EventType `json:"type"`
		Frame int       `json:"frame"`
		At    uint64    `json:"at"`
	}

	EventedProfile struct {
		EndValue   uint64      `json:"endValue"`
		Events     []Event     `json:"events"`
		Name       string      `json:"name"`
		StartValue uint64      `json:"startValue"`
		ThreadID   string      `json:"threadID"`
		Type       ProfileType `json:"type"`
		Unit       ValueUnit   `json:"unit"`
	}

	SharedData struct {
		Frames []Frame `json:"frames"`
	}

	EventType   string
	ProfileType string
	ValueUnit   string

	Output struct {
		Schema             string           `json:"$schema"`
		ActiveProfileIndex int              `json:"activeProfileIndex"`
		AnalysisID         string           `json:"analysisID"`
		DurationNS         uint64           `json:"durationNS"`
		Exporter           string           `json:"exporter"`
		Name               string           `json:"name"`
		Profiles           []EventedProfile `json:"profiles"`
		Shared             SharedData       `json:"shared"`
	}
)

// FromContentionGroup lays out every run of a contention group on the
// timeline of its thread. Each run opens the frames of its representative
// call stack from the root down and closes them in reverse order, with
// times relative to the beginning of the group.
func FromContentionGroup(analysisID string, g report.ContentionGroup) (Output, error) {
	o := Output{
		Schema:     Schema,
		AnalysisID: analysisID,
		DurationNS: toNS(g.Summary.Duration),
		Exporter:   "tcsa",
		Name:       fmt.Sprintf("contention group %d (%s)", g.ID, g.Mode),
		Shared:     SharedData{Frames: []Frame{}},
	}

	frameIndex := make(map[Frame]int)
	byThread := make(map[string]*EventedProfile)
	var threads []string
	for _, r := range g.Members {
		stack, err := frame.ParseStack(r.CallStack)
		if err != nil {
			return Output{}, err
		}
		p, exists := byThread[r.ThreadID]
		if !exists {
			p = &EventedProfile{
				Name:     fmt.Sprintf("%s (%s)", r.ProcessName, r.ThreadID),
				ThreadID: r.ThreadID,
				Type:     ProfileTypeEvented,
				Unit:     ValueUnitNanoseconds,
				Events:   []Event{},
			}
			byThread[r.ThreadID] = p
			threads = append(threads, r.ThreadID)
		}

		indexes := make([]int, 0, len(stack))
		for _, f := range stack {
			sf := Frame{
				Image:         f.Module(),
				IsApplication: f.Mode() == frame.ModeUser,
				Name:          f.Function(),
			}
			i, exists := frameIndex[sf]
			if !exists {
				i = len(o.Shared.Frames)
				frameIndex[sf] = i
				o.Shared.Frames = append(o.Shared.Frames, sf)
			}
			indexes = append(indexes, i)
		}

		begin, end := toNS(r.TSBegin-g.Summary.Begin), toNS(r.TSEnd-g.Summary.Begin)
		for _, i := range indexes {
			p.Events = append(p.Events, Event{Type: EventTypeOpenFrame, Frame: i, At: begin})
		}
		for j := len(indexes) - 1; j >= 0; j-- {
			p.Events = append(p.Events, Event{Type: EventTypeCloseFrame, Frame: indexes[j], At: end})
		}
	}

	sort.Strings(threads)
	o.Profiles = make([]EventedProfile, 0, len(threads))
	for _, tid := range threads {
		p := byThread[tid]
		p.EndValue = o.DurationNS
		o.Profiles = append(o.Profiles, *p)
	}
	return o, nil
}

func toNS(seconds float64) uint64 {
	if seconds <= 0 {
		return 0
	}
	return uint64(math.Round(seconds * 1e9))
}
