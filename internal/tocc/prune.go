package tocc

import (
	"github.com/RidiculousBuffal/TCSA/internal/cicp"
)

// MeanThreshold asks the pruner to use the mean duration of each group.
const MeanThreshold = -1

// EffectiveThreshold returns the cutoff applied to a group. With
// MeanThreshold, it is the mean duration length of the group itself, and
// ok is false when the group is empty.
func EffectiveThreshold(group []*cicp.CICP, threshold int) (float64, bool) {
	if threshold != MeanThreshold {
		return float64(threshold), true
	}
	if len(group) == 0 {
		return 0, false
	}
	var sum int
	for _, c := range group {
		sum += c.DurationLength
	}
	return float64(sum) / float64(len(group)), true
}

// Prune keeps the runs of the group lasting at least the effective threshold.
func Prune(group []*cicp.CICP, threshold int) ([]*cicp.CICP, float64) {
	cutoff, ok := EffectiveThreshold(group, threshold)
	if !ok {
		return nil, 0
	}
	retained := make([]*cicp.CICP, 0, len(group))
	for _, c := range group {
		if float64(c.DurationLength) >= cutoff {
			retained = append(retained, c)
		}
	}
	return retained, cutoff
}
