package metrics

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// ROC is a receiver operating characteristic curve. Thresholds decrease
// along the curve and the first point is (0, 0) at +Inf.
type ROC struct {
	FPR        []float64
	TPR        []float64
	Thresholds []float64
}

func counts(labels []int) (pos, neg int) {
	for _, l := range labels {
		if l == 1 {
			pos++
		} else {
			neg++
		}
	}
	return pos, neg
}

// ROCCurve sweeps every distinct score as a threshold. Points that lie on a
// straight segment between their neighbours are dropped.
func ROCCurve(scores []float64, labels []int) (*ROC, error) {
	if err := checkLen(len(scores), len(labels)); err != nil {
		return nil, err
	}
	pos, neg := counts(labels)
	if pos == 0 {
		return nil, ErrNoPositives
	}
	if neg == 0 {
		return nil, ErrNoNegatives
	}

	y := make([]float64, len(scores))
	copy(y, scores)
	classes := make([]bool, len(labels))
	for i, l := range labels {
		classes[i] = l == 1
	}
	stat.SortWeightedLabeled(y, classes, nil)

	// tpr[0], fpr[0] is the (0, 0) point at +Inf
	tpr, fpr, thr := stat.ROC(nil, y, classes, nil)

	// collinearity is tested on counts so rounding in the rates cannot hide it
	tps := make([]float64, len(tpr))
	fps := make([]float64, len(fpr))
	for i := range tpr {
		tps[i] = math.Round(tpr[i] * float64(pos))
		fps[i] = math.Round(fpr[i] * float64(neg))
	}

	roc := &ROC{FPR: []float64{fpr[0]}, TPR: []float64{tpr[0]}, Thresholds: []float64{thr[0]}}
	for i := 1; i < len(thr); i++ {
		if i > 1 && i < len(thr)-1 &&
			fps[i-1]-2*fps[i]+fps[i+1] == 0 && tps[i-1]-2*tps[i]+tps[i+1] == 0 {
			continue
		}
		roc.FPR = append(roc.FPR, fpr[i])
		roc.TPR = append(roc.TPR, tpr[i])
		roc.Thresholds = append(roc.Thresholds, thr[i])
	}
	return roc, nil
}

// AUC integrates the curve with the trapezoidal rule.
func (r *ROC) AUC() float64 {
	if len(r.FPR) < 2 {
		return 0
	}
	return integrate.Trapezoidal(r.FPR, r.TPR)
}

// ROCAUC is the area under the ROC curve of scores.
func ROCAUC(scores []float64, labels []int) (float64, error) {
	roc, err := ROCCurve(scores, labels)
	if err != nil {
		return 0, err
	}
	return roc.AUC(), nil
}

// RecallResult is the operating point chosen by RecallAtFPR.
type RecallResult struct {
	FPR            float64
	Threshold      float64
	Recall         float64
	FalseNegatives []int
	TruePositives  []int
}

func (r RecallResult) String() string {
	return fmt.Sprintf("Recall@FPR=%.2f: %.3f (threshold %.4f, FN %d, TP %d)",
		r.FPR, r.Recall, r.Threshold, len(r.FalseNegatives), len(r.TruePositives))
}

// RecallAtFPR picks the threshold admitting roughly fpr of the negatives:
// negative scores are sorted in descending order and the one at position
// int(fpr*n) becomes the threshold. Samples scoring at or above it are
// predicted malignant. Recall is 0 when there are no positives.
func RecallAtFPR(scores []float64, labels []int, fpr float64) (RecallResult, error) {
	if err := checkLen(len(scores), len(labels)); err != nil {
		return RecallResult{}, err
	}
	var negScores []float64
	for i, l := range labels {
		if l == 0 {
			negScores = append(negScores, scores[i])
		}
	}
	if len(negScores) == 0 {
		return RecallResult{}, ErrNoNegatives
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(negScores)))
	k := int(fpr * float64(len(negScores)))
	if k >= len(negScores) {
		k = len(negScores) - 1
	}
	if k < 0 {
		k = 0
	}

	res := RecallResult{FPR: fpr, Threshold: negScores[k]}
	pos := 0
	for i, l := range labels {
		if l != 1 {
			continue
		}
		pos++
		if scores[i] >= res.Threshold {
			res.TruePositives = append(res.TruePositives, i)
		} else {
			res.FalseNegatives = append(res.FalseNegatives, i)
		}
	}
	res.Recall = ratio(len(res.TruePositives), pos)
	return res, nil
}

// FPRAtFullRecall takes the lowest malignant score as the threshold and
// returns the false positive rate of samples scoring strictly above it,
// together with the indices of those false positives.
func FPRAtFullRecall(scores []float64, labels []int) (float64, []int, error) {
	if err := checkLen(len(scores), len(labels)); err != nil {
		return 0, nil, err
	}
	pos, neg := counts(labels)
	if pos == 0 {
		return 0, nil, ErrNoPositives
	}
	if neg == 0 {
		return 0, nil, ErrNoNegatives
	}

	minPos := math.Inf(1)
	for i, l := range labels {
		if l == 1 && scores[i] < minPos {
			minPos = scores[i]
		}
	}
	var fps []int
	for i, l := range labels {
		if l != 1 && scores[i] > minPos {
			fps = append(fps, i)
		}
	}
	return float64(len(fps)) / float64(neg), fps, nil
}
