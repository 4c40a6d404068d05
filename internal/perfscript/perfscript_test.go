package perfscript

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/RidiculousBuffal/TCSA/internal/errorutil"
	"github.com/RidiculousBuffal/TCSA/internal/frame"
	"github.com/RidiculousBuffal/TCSA/internal/sample"
	"github.com/RidiculousBuffal/TCSA/internal/testutil"
)

func TestParse(t *testing.T) {
	f, err := os.Open("testdata/contender.txt")
	if err != nil {
		t.Fatalf("can't open test data: %v", err)
	}
	defer f.Close()

	samples, err := Parse(f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []sample.Sample{
		{
			ThreadID:    "4243",
			ProcessName: "contender",
			Timestamp:   691089.368816,
			CPU:         1,
			Event:       "cpu-clock:pppH",
			CallStack: []frame.Frame{
				{Address: "7f3a2b1c0d0e", Symbol: "start_thread+0xde (/usr/lib/libc.so.6)"},
				{Address: "4005d6", Symbol: "worker+0x1a (/tmp/contender)"},
				{Address: "4005f0", Symbol: "wait_for_lock+0xe (/tmp/contender)"},
				{Address: "400610", Symbol: "check_and_acquire_lock+0x4 (/tmp/contender)"},
			},
		},
		{
			ThreadID:    "4244",
			ProcessName: "contender",
			Timestamp:   691089.368817,
			CPU:         2,
			Event:       "cpu-clock:pppH",
			CallStack: []frame.Frame{
				{Address: "4005d6", Symbol: "worker+0x1a (/tmp/contender)"},
				{Address: "ffffffff810a1b2c", Symbol: "native_queued_spin_lock_slowpath+0x1c ([kernel.kallsyms])"},
			},
		},
		{
			ThreadID:    "0",
			ProcessName: "swapper",
			Timestamp:   691089.368818,
			Event:       "cpu-clock:pppH",
			CallStack: []frame.Frame{
				{Address: "ffffffff81000000", Symbol: "cpu_idle+0x0 ([kernel.kallsyms])"},
			},
		},
		{
			ThreadID:    "4245",
			ProcessName: "Web Content",
			Timestamp:   691089.368819,
			Event:       "cycles",
		},
	}
	if diff := testutil.Diff(samples, want); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	if frame.ModeOf(samples[1].CallStack) != frame.ModeKernel {
		t.Fatal("innermost frame should be the last one")
	}
}

func TestParseWithoutTrailingBlankLine(t *testing.T) {
	input := "perf 12 [000] 1.5: 1 cycles:\n\t4005d6 main (/tmp/a)"
	samples, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(samples) != 1 || len(samples[0].CallStack) != 1 {
		t.Fatalf("expected one sample with one frame, got %+v", samples)
	}
}

func TestParseInvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "frame before any header", input: "\t4005d6 main\n"},
		{name: "frame without an address", input: "perf 12 [000] 1.5: 1 cycles:\n\tmain (/tmp/a)\n"},
		{name: "header without a timestamp", input: "perf twelve cycles\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			if !errors.Is(err, errorutil.ErrInvalidInput) {
				t.Fatalf("expected an invalid input error, got %v", err)
			}
		})
	}
}
