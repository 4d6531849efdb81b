// Package metrics scores classifier predictions.
package metrics

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sjwhitworth/golearn/evaluation"
	"gonum.org/v1/gonum/floats"
)

// Accuracy returns the fraction of matching predictions.
func Accuracy(yTrue, yPred []int) (float64, error) {
	if err := checkLengths(yTrue, yPred); err != nil {
		return 0, err
	}
	cm := make(evaluation.ConfusionMatrix)
	for i := range yTrue {
		count(cm, strconv.Itoa(yTrue[i]), strconv.Itoa(yPred[i]))
	}
	return evaluation.GetAccuracy(cm), nil
}

func checkLengths(yTrue, yPred []int) error {
	if len(yTrue) != len(yPred) {
		return errors.Errorf("metrics: %d labels but %d predictions", len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return errors.New("metrics: no samples")
	}
	return nil
}

// count records one prediction in cm, indexed [actual][predicted].
func count(cm evaluation.ConfusionMatrix, actual, predicted string) {
	row, ok := cm[actual]
	if !ok {
		row = make(map[string]int)
		cm[actual] = row
	}
	row[predicted]++
}

// ClassScore is the one-vs-rest score of a single class.
type ClassScore struct {
	Name      string
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// Report is a per-class precision/recall/F1 table with averages.
type Report struct {
	// Classes is ordered by class code.
	Classes     []ClassScore
	Accuracy    float64
	MacroAvg    ClassScore
	WeightedAvg ClassScore
	Total       int
}

// ConfusionMatrix counts predictions of class codes 0..n-1 by class
// name, where n is len(classNames).
func ConfusionMatrix(yTrue, yPred []int, classNames []string) (evaluation.ConfusionMatrix, error) {
	if err := checkLengths(yTrue, yPred); err != nil {
		return nil, err
	}
	k := len(classNames)
	if k == 0 {
		return nil, errors.New("metrics: no class names")
	}

	cm := make(evaluation.ConfusionMatrix, k)
	for i := range yTrue {
		t, p := yTrue[i], yPred[i]
		if t < 0 || t >= k || p < 0 || p >= k {
			return nil, errors.Errorf("metrics: class code outside [0, %d) at sample %d", k, i)
		}
		count(cm, classNames[t], classNames[p])
	}
	return cm, nil
}

// NewClassificationReport scores predictions of class codes 0..n-1, where
// n is len(classNames). A zero denominator yields a score of 0.
func NewClassificationReport(yTrue, yPred []int, classNames []string) (*Report, error) {
	cm, err := ConfusionMatrix(yTrue, yPred, classNames)
	if err != nil {
		return nil, err
	}
	k := len(classNames)

	r := &Report{
		Classes:  make([]ClassScore, k),
		Accuracy: evaluation.GetAccuracy(cm),
		Total:    len(yTrue),
	}
	precision := make([]float64, k)
	recall := make([]float64, k)
	f1 := make([]float64, k)
	support := make([]float64, k)
	for c, name := range classNames {
		for _, n := range cm[name] {
			support[c] += float64(n)
		}
		precision[c] = defined(evaluation.GetPrecision(name, cm))
		recall[c] = defined(evaluation.GetRecall(name, cm))
		f1[c] = defined(evaluation.GetF1Score(name, cm))
		r.Classes[c] = ClassScore{
			Name:      name,
			Precision: precision[c],
			Recall:    recall[c],
			F1:        f1[c],
			Support:   int(support[c]),
		}
	}

	n := float64(len(yTrue))
	r.MacroAvg = ClassScore{
		Name:      "macro avg",
		Precision: floats.Sum(precision) / float64(k),
		Recall:    floats.Sum(recall) / float64(k),
		F1:        floats.Sum(f1) / float64(k),
		Support:   len(yTrue),
	}
	r.WeightedAvg = ClassScore{
		Name:      "weighted avg",
		Precision: floats.Dot(precision, support) / n,
		Recall:    floats.Dot(recall, support) / n,
		F1:        floats.Dot(f1, support) / n,
		Support:   len(yTrue),
	}

	return r, nil
}

// defined maps the NaN of a zero denominator to 0.
func defined(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// String renders the report as an aligned text table.
func (r *Report) String() string {
	width := len("weighted avg")
	for _, c := range r.Classes {
		width = max(width, len(c.Name))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%*s %9s %9s %9s %9s\n\n", width, "", "precision", "recall", "f1-score", "support")
	for _, c := range r.Classes {
		writeRow(&b, width, c)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%*s %9s %9s %9.2f %9d\n", width, "accuracy", "", "", r.Accuracy, r.Total)
	writeRow(&b, width, r.MacroAvg)
	writeRow(&b, width, r.WeightedAvg)
	return b.String()
}

func writeRow(b *strings.Builder, width int, c ClassScore) {
	fmt.Fprintf(b, "%*s %9.2f %9.2f %9.2f %9d\n", width, c.Name, c.Precision, c.Recall, c.F1, c.Support)
}
