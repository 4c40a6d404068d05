package sample

import (
	"fmt"
	"io"

	gojson "github.com/goccy/go-json"

	"github.com/RidiculousBuffal/TCSA/internal/errorutil"
	"github.com/RidiculousBuffal/TCSA/internal/frame"
)

type (
	// SampleSet is the JSON document accepted as an analysis input.
	SampleSet struct {
		Samples []Sample `json:"samples"`
	}

	sampleJSON struct {
		ThreadID    string   `json:"thread_id"`
		ProcessName string   `json:"process_name"`
		Timestamp   float64  `json:"timestamp"`
		CPU         int      `json:"cpu,omitempty"`
		Event       string   `json:"event,omitempty"`
		CallStack   []string `json:"call_stack"`
	}
)

func (s Sample) MarshalJSON() ([]byte, error) {
	stack := make([]string, 0, len(s.CallStack))
	for _, f := range s.CallStack {
		stack = append(stack, f.String())
	}
	return gojson.Marshal(sampleJSON{
		ThreadID:    s.ThreadID,
		ProcessName: s.ProcessName,
		Timestamp:   s.Timestamp,
		CPU:         s.CPU,
		Event:       s.Event,
		CallStack:   stack,
	})
}

func (s *Sample) UnmarshalJSON(b []byte) error {
	var raw sampleJSON
	if err := gojson.Unmarshal(b, &raw); err != nil {
		return err
	}
	stack, err := frame.ParseStack(raw.CallStack)
	if err != nil {
		return err
	}
	*s = Sample{
		ThreadID:    raw.ThreadID,
		ProcessName: raw.ProcessName,
		Timestamp:   raw.Timestamp,
		CPU:         raw.CPU,
		Event:       raw.Event,
		CallStack:   stack,
	}
	return nil
}

// Decode reads a JSON sample set.
func Decode(r io.Reader) ([]Sample, error) {
	var set SampleSet
	if err := gojson.NewDecoder(r).Decode(&set); err != nil {
		return nil, fmt.Errorf("%w: %v", errorutil.ErrInvalidInput, err)
	}
	return set.Samples, nil
}
