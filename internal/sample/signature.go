package sample

import (
	"fmt"
	"strings"

	"github.com/RidiculousBuffal/TCSA/internal/errorutil"
	"github.com/RidiculousBuffal/TCSA/internal/frame"
)

type Direction int

const (
	BottomUp Direction = 0
	TopDown  Direction = 1

	// UnboundedDepth keeps every frame of a stack in its signature.
	UnboundedDepth = -1
)

// SignatureOptions selects which frames of a stack make its signature.
type SignatureOptions struct {
	DegreesOfFreedom int       `json:"degrees_of_freedom"`
	Direction        Direction `json:"direction"`
}

func (o SignatureOptions) Validate() error {
	if o.DegreesOfFreedom < UnboundedDepth {
		return fmt.Errorf("%w: degrees of freedom must be -1 or positive, got %d", errorutil.ErrInvalidConfig, o.DegreesOfFreedom)
	}
	if o.Direction != BottomUp && o.Direction != TopDown {
		return fmt.Errorf("%w: direction must be 0 or 1, got %d", errorutil.ErrInvalidConfig, o.Direction)
	}
	return nil
}

// Signature joins the symbols of the selected frames with `;`. Bottom-up
// keeps the first frames of the stack, top-down keeps the last ones.
func Signature(stack []frame.Frame, o SignatureOptions) string {
	n := len(stack)
	k := n
	if o.DegreesOfFreedom != UnboundedDepth && o.DegreesOfFreedom < n {
		k = o.DegreesOfFreedom
	}
	selected := stack[:k]
	if o.Direction == TopDown {
		selected = stack[n-k:]
	}
	symbols := make([]string, 0, len(selected))
	for _, f := range selected {
		symbols = append(symbols, f.Symbol)
	}
	return strings.Join(symbols, ";")
}

// FunctionCallStack joins the function names of every frame, without their
// module, with `;`.
func FunctionCallStack(stack []frame.Frame) string {
	functions := make([]string, 0, len(stack))
	for _, f := range stack {
		functions = append(functions, f.Function())
	}
	return strings.Join(functions, ";")
}
