package frame

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/RidiculousBuffal/TCSA/internal/errorutil"
)

type (
	// Frame is one entry of a captured call stack, textually
	// `<address> <symbol tokens...>`.
	Frame struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol,omitempty"`
	}

	Mode int
)

const (
	ModeUser Mode = iota
	ModeKernel
)

const (
	kernel64Start uint64 = 0xffffffff80000000
	kernel32Start uint64 = 0xc0000000
	kernel32End   uint64 = 0xffffffff

	// Addresses with more hex digits than this are treated as 64-bit.
	maxDigits32 = 10
)

// Parse reads a frame from its textual form. The first whitespace separated
// token is the address, the remaining tokens make the symbol.
func Parse(s string) (Frame, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Frame{}, fmt.Errorf("%w: frame is missing an address", errorutil.ErrInvalidInput)
	}
	if _, err := parseAddress(fields[0]); err != nil {
		return Frame{}, err
	}
	return Frame{
		Address: fields[0],
		Symbol:  strings.Join(fields[1:], " "),
	}, nil
}

// ParseStack parses every frame of a textual call stack, keeping its order.
func ParseStack(lines []string) ([]Frame, error) {
	frames := make([]Frame, 0, len(lines))
	for i, l := range lines {
		f, err := Parse(l)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		frames = append(frames, f)
	}
	return frames, nil
}

func (f Frame) String() string {
	if f.Symbol == "" {
		return f.Address
	}
	return f.Address + " " + f.Symbol
}

// Module returns the trailing `(module)` token of the symbol, if any.
func (f Frame) Module() string {
	if i := moduleIndex(f.Symbol); i != -1 {
		return strings.TrimSuffix(strings.TrimPrefix(f.Symbol[i:], "("), ")")
	}
	return ""
}

// Function returns the symbol without its trailing module token.
func (f Frame) Function() string {
	if i := moduleIndex(f.Symbol); i != -1 {
		return strings.TrimSpace(f.Symbol[:i])
	}
	return f.Symbol
}

// Mode classifies the frame by its address. Unparsable addresses are user mode.
func (f Frame) Mode() Mode {
	m, err := Classify(f.Address)
	if err != nil {
		return ModeUser
	}
	return m
}

func moduleIndex(symbol string) int {
	if !strings.HasSuffix(symbol, ")") {
		return -1
	}
	i := strings.LastIndex(symbol, " (")
	if i == -1 {
		if strings.HasPrefix(symbol, "(") {
			return 0
		}
		return -1
	}
	return i + 1
}

func parseAddress(address string) (uint64, error) {
	digits := strings.TrimPrefix(strings.TrimPrefix(address, "0x"), "0X")
	v, err := strconv.ParseUint(digits, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: address %q is not hexadecimal", errorutil.ErrInvalidInput, address)
	}
	return v, nil
}

// Classify tells if an address belongs to the kernel address range. The
// width of the address is inferred from its number of hex digits.
func Classify(address string) (Mode, error) {
	v, err := parseAddress(address)
	if err != nil {
		return ModeUser, err
	}
	digits := strings.TrimPrefix(strings.TrimPrefix(address, "0x"), "0X")
	if len(digits) > maxDigits32 {
		if v >= kernel64Start {
			return ModeKernel, nil
		}
		return ModeUser, nil
	}
	if v >= kernel32Start && v <= kernel32End {
		return ModeKernel, nil
	}
	return ModeUser, nil
}

// ModeOf classifies a root-first call stack by its innermost frame.
// An empty stack is user mode.
func ModeOf(stack []Frame) Mode {
	if len(stack) == 0 {
		return ModeUser
	}
	return stack[len(stack)-1].Mode()
}

func (m Mode) String() string {
	switch m {
	case ModeKernel:
		return "kernel"
	default:
		return "user"
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "kernel":
		*m = ModeKernel
	case "user":
		*m = ModeUser
	default:
		return fmt.Errorf("%w: unknown execution mode %q", errorutil.ErrInvalidInput, string(b))
	}
	return nil
}
