package proposals

import "github.com/menta2k/mmbcd/pkg/types"

// Suppress runs greedy non-max suppression in file order. A box is kept when
// no earlier kept box overlaps it by more than threshold; the pass is repeated
// on the survivors until it keeps everything. Confidence is never consulted.
func Suppress(boxes []types.Box, threshold float64) []types.Box {
	current := append([]types.Box(nil), boxes...)
	for {
		kept := suppressPass(current, threshold)
		if len(kept) == len(current) {
			return current
		}
		next := make([]types.Box, len(kept))
		for i, idx := range kept {
			next[i] = current[idx]
		}
		current = next
	}
}

// suppressPass returns the indices kept by a single greedy sweep, ascending.
func suppressPass(boxes []types.Box, threshold float64) []int {
	removed := make([]bool, len(boxes))
	kept := make([]int, 0, len(boxes))
	for i := range boxes {
		if removed[i] {
			continue
		}
		kept = append(kept, i)
		for j := i + 1; j < len(boxes); j++ {
			if removed[j] {
				continue
			}
			if IoU(boxes[i], boxes[j]) > threshold {
				removed[j] = true
			}
		}
	}
	return kept
}
