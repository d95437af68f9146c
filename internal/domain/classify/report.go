package classify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/okian/dipscan/internal/domain/model"
)

// ClassMetrics holds per-class evaluation scores.
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Report is a classification report and confusion matrix over a held-out set.
// Confusion rows are true labels, columns are predicted labels, both in Classes order.
type Report struct {
	Classes     []model.Label                `json:"classes"`
	PerClass    map[model.Label]ClassMetrics `json:"per_class"`
	Accuracy    float64                      `json:"accuracy"`
	MacroAvg    ClassMetrics                 `json:"macro_avg"`
	WeightedAvg ClassMetrics                 `json:"weighted_avg"`
	Confusion   [][]int                      `json:"confusion_matrix"`
	Samples     int                          `json:"samples"`
}

// Evaluate compares true and predicted labels.
func Evaluate(truth, predicted []model.Label) (Report, error) {
	if len(truth) != len(predicted) {
		return Report{}, ErrShapeMismatch
	}
	classes := uniqueLabels(append(append([]model.Label(nil), truth...), predicted...))
	index := make(map[model.Label]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}

	confusion := make([][]int, len(classes))
	for i := range confusion {
		confusion[i] = make([]int, len(classes))
	}
	correct := 0
	for i := range truth {
		confusion[index[truth[i]]][index[predicted[i]]]++
		if truth[i] == predicted[i] {
			correct++
		}
	}

	r := Report{
		Classes:   classes,
		PerClass:  make(map[model.Label]ClassMetrics, len(classes)),
		Confusion: confusion,
		Samples:   len(truth),
	}
	if len(truth) > 0 {
		r.Accuracy = float64(correct) / float64(len(truth))
	}

	for i, c := range classes {
		tp := confusion[i][i]
		var predictedN, support int
		for j := range classes {
			predictedN += confusion[j][i]
			support += confusion[i][j]
		}
		m := ClassMetrics{
			Precision: ratio(tp, predictedN),
			Recall:    ratio(tp, support),
			Support:   support,
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		r.PerClass[c] = m

		r.MacroAvg.Precision += m.Precision
		r.MacroAvg.Recall += m.Recall
		r.MacroAvg.F1 += m.F1
		r.WeightedAvg.Precision += m.Precision * float64(support)
		r.WeightedAvg.Recall += m.Recall * float64(support)
		r.WeightedAvg.F1 += m.F1 * float64(support)
	}
	if k := float64(len(classes)); k > 0 {
		r.MacroAvg.Precision /= k
		r.MacroAvg.Recall /= k
		r.MacroAvg.F1 /= k
	}
	if n := float64(len(truth)); n > 0 {
		r.WeightedAvg.Precision /= n
		r.WeightedAvg.Recall /= n
		r.WeightedAvg.F1 /= n
	}
	r.MacroAvg.Support = len(truth)
	r.WeightedAvg.Support = len(truth)
	return r, nil
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

// String renders the report as an aligned text table.
func (r Report) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%12s %9s %9s %9s %9s\n", "", "precision", "recall", "f1-score", "support")
	labels := append([]model.Label(nil), r.Classes...)
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	for _, c := range labels {
		m := r.PerClass[c]
		fmt.Fprintf(&sb, "%12s %9.2f %9.2f %9.2f %9d\n", c, m.Precision, m.Recall, m.F1, m.Support)
	}
	fmt.Fprintf(&sb, "%12s %9s %9s %9.2f %9d\n", "accuracy", "", "", r.Accuracy, r.Samples)
	fmt.Fprintf(&sb, "%12s %9.2f %9.2f %9.2f %9d\n", "macro avg", r.MacroAvg.Precision, r.MacroAvg.Recall, r.MacroAvg.F1, r.MacroAvg.Support)
	fmt.Fprintf(&sb, "%12s %9.2f %9.2f %9.2f %9d\n", "weighted avg", r.WeightedAvg.Precision, r.WeightedAvg.Recall, r.WeightedAvg.F1, r.WeightedAvg.Support)
	sb.WriteString("confusion matrix (rows=true, cols=predicted):\n")
	for i, row := range r.Confusion {
		fmt.Fprintf(&sb, "%12s %v\n", r.Classes[i], row)
	}
	return sb.String()
}
