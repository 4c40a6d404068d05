// Package perfscript reads the text output of `perf script` recorded with
// call graphs.
package perfscript

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/RidiculousBuffal/TCSA/internal/errorutil"
	"github.com/RidiculousBuffal/TCSA/internal/frame"
	"github.com/RidiculousBuffal/TCSA/internal/sample"
)

// Headers come as `comm tid [cpu] ts: period event:` with an optional
// `pid/` before the thread id and an optional cpu.
var headerRegex = regexp.MustCompile(`^\s*(.+?)\s+(?:\d+/)?(\d+)\s+(?:\[(\d+)\]\s+)?(\d+(?:\.\d+)?):\s*(.*)$`)

const maxLineSize = 1024 * 1024

// Parse reads every record of a perf script output. Frames are printed
// innermost first by perf and returned root first.
func Parse(r io.Reader) ([]sample.Sample, error) {
	var samples []sample.Sample
	var current *sample.Sample
	flush := func() {
		if current == nil {
			return
		}
		reverse(current.CallStack)
		samples = append(samples, *current)
		current = nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	var lineNumber int
	for scanner.Scan() {
		lineNumber++
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "#"):
			continue
		case strings.TrimSpace(line) == "":
			flush()
		case line[0] == '\t' || line[0] == ' ':
			if current == nil {
				return nil, fmt.Errorf("%w: line %d: frame outside of a record", errorutil.ErrInvalidInput, lineNumber)
			}
			f, err := frame.Parse(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNumber, err)
			}
			current.CallStack = append(current.CallStack, f)
		default:
			flush()
			s, err := parseHeader(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNumber, err)
			}
			current = &s
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()
	return samples, nil
}

func parseHeader(line string) (sample.Sample, error) {
	m := headerRegex.FindStringSubmatch(line)
	if m == nil {
		return sample.Sample{}, fmt.Errorf("%w: unrecognized record header %q", errorutil.ErrInvalidInput, line)
	}
	ts, err := strconv.ParseFloat(m[4], 64)
	if err != nil {
		return sample.Sample{}, fmt.Errorf("%w: timestamp %q: %v", errorutil.ErrInvalidInput, m[4], err)
	}
	s := sample.Sample{
		ProcessName: m[1],
		ThreadID:    m[2],
		Timestamp:   ts,
	}
	if m[3] != "" {
		s.CPU, _ = strconv.Atoi(m[3])
	}
	if fields := strings.Fields(m[5]); len(fields) > 0 {
		s.Event = strings.TrimSuffix(fields[len(fields)-1], ":")
	}
	return s, nil
}

func reverse(frames []frame.Frame) {
	for i, j := 0, len(frames)-1; i < j; i, j = i+1, j-1 {
		frames[i], frames[j] = frames[j], frames[i]
	}
}
