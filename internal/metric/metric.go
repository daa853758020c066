// Package metric provides the named scoring functions used to evaluate
// competition submissions. All metrics are pure: the same inputs always
// produce the same output, rounded to 6 decimal digits so score comparison
// and leaderboard tie-breaking stay reproducible.
package metric

import (
	"errors"
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/meridian-ml/podium/internal/validate"
)

// ErrUnknownMetric is returned by Lookup for names outside the registry.
var ErrUnknownMetric = errors.New("unknown metric")

// DomainError marks inputs a metric cannot score (single-class AUC, empty
// or mismatched inputs). Callers convert these to scoring failures rather
// than letting them escape.
type DomainError struct {
	Msg string
}

func (e *DomainError) Error() string { return e.Msg }

func domainErrorf(format string, args ...any) error {
	return &DomainError{Msg: eris.Errorf(format, args...).Error()}
}

// IsDomainError reports whether err is a metric domain error.
func IsDomainError(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}

// Func computes a score from aligned predictions and actuals.
type Func func(predictions, actuals []float64) (float64, error)

// Constraints are the value-column rules a metric implies for submissions.
type Constraints struct {
	ValueType validate.ValueType
	ValueMin  *float64
	ValueMax  *float64
}

// Metric is a registered scoring function plus its metadata.
type Metric struct {
	Name          string
	Compute       Func
	LowerIsBetter bool
	Constraints   Constraints
}

func unitInterval() Constraints {
	lo, hi := 0.0, 1.0
	return Constraints{ValueType: validate.TypeFloat, ValueMin: &lo, ValueMax: &hi}
}

var registry = map[string]Metric{
	"auc_roc":  {Name: "auc_roc", Compute: AUCROC, Constraints: unitInterval()},
	"roc_auc":  {Name: "auc_roc", Compute: AUCROC, Constraints: unitInterval()},
	"rmse":     {Name: "rmse", Compute: RMSE, LowerIsBetter: true, Constraints: Constraints{ValueType: validate.TypeFloat}},
	"mae":      {Name: "mae", Compute: MAE, LowerIsBetter: true, Constraints: Constraints{ValueType: validate.TypeFloat}},
	"accuracy": {Name: "accuracy", Compute: Accuracy, Constraints: Constraints{ValueType: validate.TypeInt}},
	"f1":       {Name: "f1", Compute: F1, Constraints: Constraints{ValueType: validate.TypeBinary}},
	"f1_score": {Name: "f1", Compute: F1, Constraints: Constraints{ValueType: validate.TypeBinary}},
}

// Normalize maps a metric name to its canonical registry key:
// lower-cased with hyphens as underscores.
func Normalize(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "-", "_")
}

// Lookup resolves a metric by name, case- and hyphen-insensitively.
func Lookup(name string) (Metric, error) {
	m, ok := registry[Normalize(name)]
	if !ok {
		return Metric{}, eris.Wrapf(ErrUnknownMetric, "%s", name)
	}
	return m, nil
}

// LowerIsBetter reports the score direction for a metric name. Unknown
// names report false.
func LowerIsBetter(name string) bool {
	m, ok := registry[Normalize(name)]
	return ok && m.LowerIsBetter
}

func checkLengths(metric string, predictions, actuals []float64) error {
	if len(predictions) != len(actuals) {
		return domainErrorf("%s: predictions and actuals must have the same length", metric)
	}
	if len(predictions) == 0 {
		return domainErrorf("%s: cannot score empty input", metric)
	}
	return nil
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// AUCROC computes the area under the ROC curve via the rank statistic:
// sort pairs by prediction descending (stable), scan accumulating the
// running positive count, and for each negative add that count. Ties in
// prediction resolve by sort stability, a documented approximation of
// exact tie-corrected AUC. Requires at least one positive and one
// negative actual.
func AUCROC(predictions, actuals []float64) (float64, error) {
	if err := checkLengths("auc_roc", predictions, actuals); err != nil {
		return 0, err
	}

	type pair struct {
		pred   float64
		actual float64
	}
	paired := make([]pair, len(predictions))
	for i := range predictions {
		paired[i] = pair{pred: predictions[i], actual: actuals[i]}
	}
	sort.SliceStable(paired, func(i, j int) bool {
		return paired[i].pred > paired[j].pred
	})

	var nPos, nNeg int
	for _, a := range actuals {
		if a == 1 {
			nPos++
		} else {
			nNeg++
		}
	}
	if nPos == 0 || nNeg == 0 {
		return 0, domainErrorf("auc_roc: requires both positive and negative samples")
	}

	var auc float64
	cumPos := 0
	for _, p := range paired {
		if p.actual == 1 {
			cumPos++
		} else {
			auc += float64(cumPos)
		}
	}
	return round6(auc / (float64(nPos) * float64(nNeg))), nil
}

// RMSE computes root mean squared error. Lower is better.
func RMSE(predictions, actuals []float64) (float64, error) {
	if err := checkLengths("rmse", predictions, actuals); err != nil {
		return 0, err
	}
	var sum float64
	for i := range predictions {
		d := predictions[i] - actuals[i]
		sum += d * d
	}
	return round6(math.Sqrt(sum / float64(len(predictions)))), nil
}

// MAE computes mean absolute error. Lower is better.
func MAE(predictions, actuals []float64) (float64, error) {
	if err := checkLengths("mae", predictions, actuals); err != nil {
		return 0, err
	}
	var sum float64
	for i := range predictions {
		sum += math.Abs(predictions[i] - actuals[i])
	}
	return round6(sum / float64(len(predictions))), nil
}

// Accuracy computes the fraction of exact matches.
func Accuracy(predictions, actuals []float64) (float64, error) {
	if err := checkLengths("accuracy", predictions, actuals); err != nil {
		return 0, err
	}
	correct := 0
	for i := range predictions {
		if predictions[i] == actuals[i] {
			correct++
		}
	}
	return round6(float64(correct) / float64(len(predictions))), nil
}

// F1 computes the binary F1 score. By convention zero true positives, or
// zero precision+recall, yields 0 rather than an error.
func F1(predictions, actuals []float64) (float64, error) {
	if err := checkLengths("f1", predictions, actuals); err != nil {
		return 0, err
	}

	var tp, fp, fn int
	for i := range predictions {
		switch {
		case predictions[i] == 1 && actuals[i] == 1:
			tp++
		case predictions[i] == 1 && actuals[i] == 0:
			fp++
		case predictions[i] == 0 && actuals[i] == 1:
			fn++
		}
	}
	if tp == 0 {
		return 0, nil
	}

	precision := float64(tp) / float64(tp+fp)
	recall := float64(tp) / float64(tp+fn)
	if precision+recall == 0 {
		return 0, nil
	}
	return round6(2 * precision * recall / (precision + recall)), nil
}
