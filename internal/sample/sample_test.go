package sample

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/RidiculousBuffal/TCSA/internal/errorutil"
	"github.com/RidiculousBuffal/TCSA/internal/frame"
	"github.com/RidiculousBuffal/TCSA/internal/testutil"
)

func stack(t *testing.T, lines ...string) []frame.Frame {
	t.Helper()
	frames, err := frame.ParseStack(lines)
	if err != nil {
		t.Fatalf("invalid stack: %v", err)
	}
	return frames
}

func TestSignature(t *testing.T) {
	tests := []struct {
		name    string
		stack   []string
		options SignatureOptions
		want    string
	}{
		{
			name:    "bottom-up with 2 degrees of freedom",
			stack:   []string{"0x1 main", "0x2 foo", "0x3 bar"},
			options: SignatureOptions{DegreesOfFreedom: 2, Direction: BottomUp},
			want:    "main;foo",
		},
		{
			name:    "unbounded",
			stack:   []string{"0x1 main", "0x2 foo", "0x3 bar"},
			options: SignatureOptions{DegreesOfFreedom: UnboundedDepth},
			want:    "main;foo;bar",
		},
		{
			name:    "degrees of freedom larger than the stack",
			stack:   []string{"0x1 main", "0x2 foo"},
			options: SignatureOptions{DegreesOfFreedom: 10},
			want:    "main;foo",
		},
		{
			name:    "top-down keeps the innermost frames",
			stack:   []string{"0x1 main", "0x2 foo", "0x3 bar"},
			options: SignatureOptions{DegreesOfFreedom: 2, Direction: TopDown},
			want:    "foo;bar",
		},
		{
			name:    "top-down unbounded",
			stack:   []string{"0x1 main", "0x2 foo", "0x3 bar"},
			options: SignatureOptions{DegreesOfFreedom: UnboundedDepth, Direction: TopDown},
			want:    "main;foo;bar",
		},
		{
			name:    "symbol tokens joined by a single space",
			stack:   []string{"4005d6  worker+0x1a   (/tmp/contender)", "ffffffff810a1b2c schedule ([kernel.kallsyms])"},
			options: SignatureOptions{DegreesOfFreedom: UnboundedDepth},
			want:    "worker+0x1a (/tmp/contender);schedule ([kernel.kallsyms])",
		},
		{
			name:    "zero degrees of freedom",
			stack:   []string{"0x1 main"},
			options: SignatureOptions{DegreesOfFreedom: 0},
			want:    "",
		},
		{
			name:    "empty stack",
			options: SignatureOptions{DegreesOfFreedom: UnboundedDepth},
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Signature(stack(t, tt.stack...), tt.options)
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSignatureOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		options SignatureOptions
		valid   bool
	}{
		{name: "defaults", options: SignatureOptions{DegreesOfFreedom: -1}, valid: true},
		{name: "top-down", options: SignatureOptions{DegreesOfFreedom: 3, Direction: TopDown}, valid: true},
		{name: "negative depth", options: SignatureOptions{DegreesOfFreedom: -2}},
		{name: "unknown direction", options: SignatureOptions{DegreesOfFreedom: -1, Direction: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.options.Validate()
			if tt.valid && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.valid && !errors.Is(err, errorutil.ErrInvalidConfig) {
				t.Fatalf("expected an invalid config error, got %v", err)
			}
		})
	}
}

func TestFunctionCallStack(t *testing.T) {
	got := FunctionCallStack(stack(t,
		"4005d6 worker+0x1a (/tmp/contender)",
		"4005f0 wait_for_lock (/tmp/contender)",
		"400610 check_and_acquire_lock",
	))
	want := "worker+0x1a;wait_for_lock;check_and_acquire_lock"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestSamplesByThread(t *testing.T) {
	samples := []Sample{
		{ThreadID: "20", Timestamp: 1},
		{ThreadID: "10", Timestamp: 1},
		{ThreadID: "20", Timestamp: 2},
		{ThreadID: "10", Timestamp: 2},
		{ThreadID: "10", Timestamp: 2},
	}
	threads, err := SamplesByThread(samples)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Thread{
		{ID: "10", Samples: []*Sample{&samples[1], &samples[3], &samples[4]}},
		{ID: "20", Samples: []*Sample{&samples[0], &samples[2]}},
	}
	if diff := testutil.Diff(threads, want); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	if threads[0].Samples[0] != &samples[1] {
		t.Fatal("samples should be referenced, not copied")
	}
}

func TestSamplesByThreadInvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		samples []Sample
	}{
		{
			name:    "missing thread id",
			samples: []Sample{{Timestamp: 1}},
		},
		{
			name:    "timestamp going back in time",
			samples: []Sample{{ThreadID: "1", Timestamp: 2}, {ThreadID: "2", Timestamp: 1}, {ThreadID: "1", Timestamp: 1}},
		},
		{
			name:    "not a number",
			samples: []Sample{{ThreadID: "1", Timestamp: math.NaN()}},
		},
		{
			name: "frame without a hexadecimal address",
			samples: []Sample{{
				ThreadID:  "1",
				Timestamp: 1,
				CallStack: []frame.Frame{{Address: "main"}},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SamplesByThread(tt.samples)
			if !errors.Is(err, errorutil.ErrInvalidInput) {
				t.Fatalf("expected an invalid input error, got %v", err)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	input := `{"samples":[
		{"thread_id":"101","process_name":"contender","timestamp":691089.368816,"cpu":3,"event":"cpu-clock","call_stack":["4005d6 worker (/tmp/contender)","ffffffff810a1b2c schedule ([kernel.kallsyms])"]},
		{"thread_id":"102","process_name":"contender","timestamp":691089.369816,"call_stack":[]}
	]}`
	samples, err := Decode(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Sample{
		{
			ThreadID:    "101",
			ProcessName: "contender",
			Timestamp:   691089.368816,
			CPU:         3,
			Event:       "cpu-clock",
			CallStack: []frame.Frame{
				{Address: "4005d6", Symbol: "worker (/tmp/contender)"},
				{Address: "ffffffff810a1b2c", Symbol: "schedule ([kernel.kallsyms])"},
			},
		},
		{
			ThreadID:    "102",
			ProcessName: "contender",
			Timestamp:   691089.369816,
			CallStack:   []frame.Frame{},
		},
	}
	if diff := testutil.Diff(samples, want); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
}

func TestDecodeInvalidFrame(t *testing.T) {
	input := `{"samples":[{"thread_id":"1","timestamp":1,"call_stack":["main"]}]}`
	if _, err := Decode(strings.NewReader(input)); !errors.Is(err, errorutil.ErrInvalidInput) {
		t.Fatalf("expected an invalid input error, got %v", err)
	}
}
