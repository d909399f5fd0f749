package proposals

import (
	"math"

	"github.com/menta2k/mmbcd/pkg/types"
)

// IoU returns the intersection over union of two centre-format boxes.
// Degenerate pairs whose union is zero score 0 instead of dividing by zero.
func IoU(a, b types.Box) float64 {
	ax1, ay1, ax2, ay2 := a.Corners()
	bx1, by1, bx2, by2 := b.Corners()

	ix := math.Max(ax1, bx1)
	iy := math.Max(ay1, by1)
	iw := math.Max(0, math.Min(ax2, bx2)-ix)
	ih := math.Max(0, math.Min(ay2, by2)-iy)
	inter := iw * ih

	union := a.Area() + b.Area() - inter
	if union == 0 {
		return 0
	}
	return inter / union
}
