// Package metrics computes the binary screening metrics reported by the
// evaluator.
package metrics

import (
	"errors"
	"fmt"
	"strings"

	"github.com/montanaflynn/stats"
)

var (
	// ErrLengthMismatch is returned when predictions and labels differ in length.
	ErrLengthMismatch = errors.New("metrics: length mismatch")
	// ErrNoPositives is returned when a metric needs at least one malignant sample.
	ErrNoPositives = errors.New("metrics: no positive samples")
	// ErrNoNegatives is returned when a metric needs at least one benign sample.
	ErrNoNegatives = errors.New("metrics: no negative samples")
)

// Labels reported by ClassificationReport.
var Labels = []int{0, 1}

func checkLen(a, b int) error {
	if a != b {
		return fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, a, b)
	}
	return nil
}

// Accuracy is the fraction of predictions equal to their label.
func Accuracy(pred, labels []int) (float64, error) {
	if err := checkLen(len(pred), len(labels)); err != nil {
		return 0, err
	}
	if len(labels) == 0 {
		return 0, nil
	}
	correct := 0
	for i := range pred {
		if pred[i] == labels[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(labels)), nil
}

// ClassScores are the one-vs-rest scores of a single class.
type ClassScores struct {
	Label     int
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// ScoresFor computes precision, recall and F1 treating class as positive.
// Undefined ratios are reported as 0.
func ScoresFor(pred, labels []int, class int) (ClassScores, error) {
	if err := checkLen(len(pred), len(labels)); err != nil {
		return ClassScores{}, err
	}
	var tp, fp, fn int
	for i := range pred {
		switch {
		case pred[i] == class && labels[i] == class:
			tp++
		case pred[i] == class:
			fp++
		case labels[i] == class:
			fn++
		}
	}
	s := ClassScores{Label: class, Support: tp + fn}
	s.Precision = ratio(tp, tp+fp)
	s.Recall = ratio(tp, tp+fn)
	if s.Precision+s.Recall > 0 {
		s.F1 = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
	}
	return s, nil
}

// F1 is the F1 score of the malignant class.
func F1(pred, labels []int) (float64, error) {
	s, err := ScoresFor(pred, labels, 1)
	return s.F1, err
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

// ClassificationReport renders per-class precision, recall, F1 and support
// followed by accuracy, macro and weighted averages.
func ClassificationReport(pred, labels []int) (string, error) {
	acc, err := Accuracy(pred, labels)
	if err != nil {
		return "", err
	}

	rows := make([]ClassScores, len(Labels))
	for i, c := range Labels {
		if rows[i], err = ScoresFor(pred, labels, c); err != nil {
			return "", err
		}
	}

	const width = len("weighted avg")
	var b strings.Builder
	fmt.Fprintf(&b, "%*s  %9s %9s %9s %9s\n\n", width, "", "precision", "recall", "f1-score", "support")
	for _, r := range rows {
		fmt.Fprintf(&b, "%*d  %9.2f %9.2f %9.2f %9d\n", width, r.Label, r.Precision, r.Recall, r.F1, r.Support)
	}
	b.WriteString("\n")

	total := len(labels)
	fmt.Fprintf(&b, "%*s  %9s %9s %9.2f %9d\n", width, "accuracy", "", "", acc, total)

	var precision, recall, f1 stats.Float64Data
	var wp, wr, wf float64
	for _, r := range rows {
		precision = append(precision, r.Precision)
		recall = append(recall, r.Recall)
		f1 = append(f1, r.F1)
		wp += r.Precision * float64(r.Support)
		wr += r.Recall * float64(r.Support)
		wf += r.F1 * float64(r.Support)
	}
	mp, _ := precision.Mean()
	mr, _ := recall.Mean()
	mf, _ := f1.Mean()
	fmt.Fprintf(&b, "%*s  %9.2f %9.2f %9.2f %9d\n", width, "macro avg", mp, mr, mf, total)
	if total > 0 {
		n := float64(total)
		wp, wr, wf = wp/n, wr/n, wf/n
	}
	fmt.Fprintf(&b, "%*s  %9.2f %9.2f %9.2f %9d\n", width, "weighted avg", wp, wr, wf, total)
	return b.String(), nil
}
