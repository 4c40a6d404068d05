package report

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/RidiculousBuffal/TCSA/internal/analysis"
	"github.com/RidiculousBuffal/TCSA/internal/frame"
	"github.com/RidiculousBuffal/TCSA/internal/sample"
	"github.com/RidiculousBuffal/TCSA/internal/testutil"
)

var (
	lockStack = []frame.Frame{
		{Address: "4005d6", Symbol: "worker (/tmp/contender)"},
		{Address: "4005f0", Symbol: "wait_for_lock (/tmp/contender)"},
		{Address: "400610", Symbol: "check_and_acquire_lock (/tmp/contender)"},
	}
	spinStack = []frame.Frame{
		{Address: "4005d6", Symbol: "worker (/tmp/contender)"},
		{Address: "ffffffff810a1b2c", Symbol: "native_queued_spin_lock_slowpath ([kernel.kallsyms])"},
	}
)

func samplesOf(threadID string, from, to int, stack []frame.Frame) []sample.Sample {
	var samples []sample.Sample
	for ts := from; ts <= to; ts++ {
		samples = append(samples, sample.Sample{
			ThreadID:    threadID,
			ProcessName: "contender",
			Timestamp:   float64(ts),
			CallStack:   stack,
		})
	}
	return samples
}

func analyze(t *testing.T) *analysis.Result {
	t.Helper()
	var samples []sample.Sample
	samples = append(samples, samplesOf("101", 0, 3, lockStack)...)
	samples = append(samples, samplesOf("101", 4, 6, spinStack)...)
	samples = append(samples, samplesOf("102", 2, 5, lockStack)...)
	samples = append(samples, samplesOf("103", 3, 5, spinStack)...)
	r, err := analysis.Run(context.Background(), samples, analysis.DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return r
}

func TestNewDocument(t *testing.T) {
	r := analyze(t)
	d := NewDocument(r)

	if d.ID != r.ID || d.RunCount != 4 || d.ThreadCount != 3 {
		t.Fatalf("unexpected header: %s %d runs %d threads", d.ID, d.RunCount, d.ThreadCount)
	}
	if len(d.Windows) != 1 {
		t.Fatalf("expected a single window, got %d", len(d.Windows))
	}

	w := d.Windows[0]
	wantSummary := Summary{
		Begin:          0,
		End:            6,
		Duration:       6,
		Runs:           4,
		Threads:        3,
		Processes:      1,
		CallStacks:     2,
		DurationLength: Quantiles{Min: 3, P50: 3.5, P90: 4, Max: 4},
	}
	if diff := testutil.Diff(w.Summary, wantSummary, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	wantKernel := Group{Mode: frame.ModeKernel, Threshold: 3, Runs: 2, Retained: 2, ContentionGroups: []int{1}}
	if diff := testutil.Diff(w.Kernel, wantKernel); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	wantUser := Group{Mode: frame.ModeUser, Threshold: 4, Runs: 2, Retained: 2, ContentionGroups: []int{2}}
	if diff := testutil.Diff(w.User, wantUser); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}

	if len(d.ContentionGroups) != 2 {
		t.Fatalf("expected 2 contention groups, got %d", len(d.ContentionGroups))
	}
	kernel := d.ContentionGroups[0]
	if kernel.ID != 1 || kernel.Window != 1 || kernel.Mode != frame.ModeKernel {
		t.Fatalf("unexpected first group: %+v", kernel)
	}
	wantStacks := []CallStackGroup{
		{
			FunctionCallStack: "worker;native_queued_spin_lock_slowpath",
			Begin:             3,
			End:               6,
			Processes:         []string{"contender"},
			Threads:           []string{"101", "103"},
		},
	}
	if diff := testutil.Diff(kernel.CallStacks, wantStacks); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	if kernel.Members[0].ThreadID != "103" || kernel.Members[0].Mode != "kernel" {
		t.Fatalf("unexpected first member: %+v", kernel.Members[0])
	}
	if diff := testutil.Diff(kernel.Members[1].CallStack, []string{
		"4005d6 worker (/tmp/contender)",
		"ffffffff810a1b2c native_queued_spin_lock_slowpath ([kernel.kallsyms])",
	}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}

	user := d.ContentionGroups[1]
	if user.ID != 2 || user.Mode != frame.ModeUser || user.Summary.Threads != 2 {
		t.Fatalf("unexpected second group: %+v", user)
	}
}

func TestNewDocumentWithoutWindows(t *testing.T) {
	d := NewDocument(&analysis.Result{ID: "empty", Options: analysis.DefaultOptions()})
	if len(d.Windows) != 0 || len(d.ContentionGroups) != 0 {
		t.Fatal("expected an empty document")
	}
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Contains(b, []byte(`"windows":[]`)) {
		t.Fatalf("windows should be serialized as an empty list: %s", b)
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	d := NewDocument(analyze(t))
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got Document
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := testutil.Diff(got.ContentionGroups, d.ContentionGroups); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	if !bytes.Contains(b, []byte(`"mode":"kernel"`)) {
		t.Fatalf("modes should be serialized by name: %s", b)
	}
}

func TestCallStacks(t *testing.T) {
	r := analyze(t)
	groups := CallStacks(r.Windows[0].Window)
	want := []string{"worker;wait_for_lock;check_and_acquire_lock", "worker;native_queued_spin_lock_slowpath"}
	var got []string
	for _, g := range groups {
		got = append(got, g.FunctionCallStack)
	}
	if diff := testutil.Diff(got, want); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	if groups[0].Begin != 0 || groups[0].End != 5 {
		t.Fatalf("expected the lock stack to span [0, 5], got [%v, %v]", groups[0].Begin, groups[0].End)
	}
}

func TestWriteText(t *testing.T) {
	var b bytes.Buffer
	if err := WriteText(&b, NewDocument(analyze(t))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := b.String()
	for _, s := range []string{
		"Contention group 1",
		"Contention group 2",
		"KERNEL",
		"worker;native_queued_spin_lock_slowpath",
		"worker;wait_for_lock;check_and_acquire_lock",
		"direction: 0",
		"duration threshold: mean",
	} {
		if !strings.Contains(out, s) {
			t.Fatalf("expected %q in the report:\n%s", s, out)
		}
	}
}

func TestWriteTextWithoutWindows(t *testing.T) {
	var b bytes.Buffer
	if err := WriteText(&b, NewDocument(&analysis.Result{ID: "empty"})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(b.String(), "No contention window found.") {
		t.Fatalf("unexpected report:\n%s", b.String())
	}
}

func TestGenerateKafkaMessageBatch(t *testing.T) {
	d := NewDocument(analyze(t))
	messages, err := GenerateKafkaMessageBatch(d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(messages) != len(d.ContentionGroups) {
		t.Fatalf("expected %d messages, got %d", len(d.ContentionGroups), len(messages))
	}
	for i, m := range messages {
		if string(m.Key) != d.ID {
			t.Fatalf("message %d is not keyed by the analysis id", i)
		}
		var e ContentionEvent
		if err := json.Unmarshal(m.Value, &e); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := testutil.Diff(e, ContentionEvent{AnalysisID: d.ID, Group: d.ContentionGroups[i]}); diff != "" {
			t.Fatalf("Result mismatch: got - want +\n%s", diff)
		}
	}
}

func TestStoragePath(t *testing.T) {
	if got := StoragePath("abc"); got != "analyses/abc.json.lz4" {
		t.Fatalf("unexpected path %q", got)
	}
}
