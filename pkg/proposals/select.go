package proposals

import (
	"fmt"
	"math/rand"

	"github.com/menta2k/mmbcd/pkg/types"
)

// PadOrTruncate returns exactly k boxes. Short lists are padded with uniform
// draws, with replacement, from the boxes themselves; long lists keep their
// first k entries in the order given.
func PadOrTruncate(boxes []types.Box, k int, rng *rand.Rand) (types.ProposalSet, error) {
	if k <= 0 {
		return nil, fmt.Errorf("proposals: k must be positive, got %d", k)
	}
	if len(boxes) == 0 {
		return nil, ErrNoProposals
	}

	out := make(types.ProposalSet, 0, k)
	if len(boxes) >= k {
		return append(out, boxes[:k]...), nil
	}
	out = append(out, boxes...)
	n := len(boxes)
	for len(out) < k {
		out = append(out, boxes[rng.Intn(n)])
	}
	return out, nil
}

// Select suppresses duplicates and then pads or truncates to k.
func Select(boxes []types.Box, threshold float64, k int, rng *rand.Rand) (types.ProposalSet, error) {
	return PadOrTruncate(Suppress(boxes, threshold), k, rng)
}
