package tocc

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/RidiculousBuffal/TCSA/internal/cicp"
	"github.com/RidiculousBuffal/TCSA/internal/frame"
)

type (
	// ModeGroup holds the runs of a window executing in one mode, the ones
	// surviving the threshold and the windows found among them.
	ModeGroup struct {
		Mode       frame.Mode
		Members    []*cicp.CICP
		Threshold  float64
		Retained   []*cicp.CICP
		SubWindows []Window
	}

	// Subdivision is a window split by execution mode.
	Subdivision struct {
		Window
		Kernel ModeGroup
		User   ModeGroup
	}
)

// SplitByMode separates kernel and user runs, keeping their order.
func SplitByMode(members []*cicp.CICP) (kernel, user []*cicp.CICP) {
	for _, c := range members {
		if c.Mode() == frame.ModeKernel {
			kernel = append(kernel, c)
		} else {
			user = append(user, c)
		}
	}
	return kernel, user
}

func newModeGroup(mode frame.Mode, members []*cicp.CICP, threshold int) ModeGroup {
	retained, cutoff := Prune(members, threshold)
	return ModeGroup{
		Mode:       mode,
		Members:    members,
		Threshold:  cutoff,
		Retained:   retained,
		SubWindows: Partition(retained),
	}
}

// SubdivideWindow prunes each execution mode of the window independently and
// partitions what is left again.
func SubdivideWindow(w Window, threshold int) Subdivision {
	kernel, user := SplitByMode(w.Members)
	return Subdivision{
		Window: w,
		Kernel: newModeGroup(frame.ModeKernel, kernel, threshold),
		User:   newModeGroup(frame.ModeUser, user, threshold),
	}
}

// Subdivide subdivides every window, using at most workers goroutines. The
// result keeps the order of windows.
func Subdivide(ctx context.Context, windows []Window, threshold int, workers int) ([]Subdivision, error) {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	subdivisions := make([]Subdivision, len(windows))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, w := range windows {
		i, w := i, w
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			subdivisions[i] = SubdivideWindow(w, threshold)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return subdivisions, nil
}

// SubWindows returns the kernel and user windows of the subdivision, from
// the largest to the smallest.
func (s Subdivision) SubWindows() []Window {
	windows := make([]Window, 0, len(s.Kernel.SubWindows)+len(s.User.SubWindows))
	windows = append(windows, s.Kernel.SubWindows...)
	windows = append(windows, s.User.SubWindows...)
	sortBySize(windows)
	return windows
}

// Group returns the group of the given mode.
func (s Subdivision) Group(mode frame.Mode) ModeGroup {
	if mode == frame.ModeKernel {
		return s.Kernel
	}
	return s.User
}

// SubWindowsByMode flattens the windows found in one execution mode of every
// subdivision, from the largest to the smallest.
func SubWindowsByMode(subdivisions []Subdivision, mode frame.Mode) []Window {
	var windows []Window
	for _, s := range subdivisions {
		windows = append(windows, s.Group(mode).SubWindows...)
	}
	sortBySize(windows)
	return windows
}

// SubWindows flattens the windows found in every subdivision, from the
// largest to the smallest.
func SubWindows(subdivisions []Subdivision) []Window {
	var windows []Window
	for _, s := range subdivisions {
		windows = append(windows, s.Kernel.SubWindows...)
		windows = append(windows, s.User.SubWindows...)
	}
	sortBySize(windows)
	return windows
}
