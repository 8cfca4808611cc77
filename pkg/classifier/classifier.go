// Package classifier holds the frozen attention model: a standardizing
// scaler followed by a linear decision function.
package classifier

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// ErrDimension is returned when vector lengths disagree.
var ErrDimension = errors.New("classifier: dimension mismatch")

// Label is a per-chunk attention state.
type Label int

const (
	NotFocused Label = 0
	Focused    Label = 1
)

// String returns the display text for the label.
func (l Label) String() string {
	if l == Focused {
		return "FOCUSED"
	}
	return "NOT FOCUSED"
}

// Model is any frozen classifier the pipeline can query.
type Model interface {
	Classify(features []float64) Label
}

// Scaler standardizes features element-wise as (x - Mean) / Scale.
type Scaler struct {
	Mean  []float64 `yaml:"mean" json:"mean"`
	Scale []float64 `yaml:"scale" json:"scale"`
}

// Transform returns the scaled copy of x. A zero scale entry leaves that
// feature unscaled.
func (s Scaler) Transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		out[i] = (v - s.Mean[i]) / scale
	}
	return out
}

// LinearModel is a linear decision boundary: Focused iff w·x + b > 0.
type LinearModel struct {
	Weights   []float64 `yaml:"weights" json:"weights"`
	Intercept float64   `yaml:"intercept" json:"intercept"`
}

// Decision returns the signed distance score w·x + b.
func (m LinearModel) Decision(x []float64) float64 {
	return floats.Dot(m.Weights, x) + m.Intercept
}

// Classifier applies a Scaler then a LinearModel. It is immutable and safe
// for concurrent use.
type Classifier struct {
	scaler Scaler
	model  LinearModel
}

// New validates that all vectors share one dimension.
func New(scaler Scaler, model LinearModel) (*Classifier, error) {
	n := len(model.Weights)
	if n == 0 {
		return nil, fmt.Errorf("%w: model has no weights", ErrDimension)
	}
	if len(scaler.Mean) != n || len(scaler.Scale) != n {
		return nil, fmt.Errorf("%w: %d weights, scaler mean %d, scale %d",
			ErrDimension, n, len(scaler.Mean), len(scaler.Scale))
	}
	return &Classifier{
		scaler: Scaler{
			Mean:  append([]float64(nil), scaler.Mean...),
			Scale: append([]float64(nil), scaler.Scale...),
		},
		model: LinearModel{
			Weights:   append([]float64(nil), model.Weights...),
			Intercept: model.Intercept,
		},
	}, nil
}

// Dim returns the expected feature vector length.
func (c *Classifier) Dim() int { return len(c.model.Weights) }

// Scale standardizes a raw feature vector.
func (c *Classifier) Scale(features []float64) []float64 {
	return c.scaler.Transform(features)
}

// Predict labels an already scaled feature vector.
func (c *Classifier) Predict(scaled []float64) Label {
	if c.model.Decision(scaled) > 0 {
		return Focused
	}
	return NotFocused
}

// Classify is Predict(Scale(features)). The vector must have Dim entries.
func (c *Classifier) Classify(features []float64) Label {
	return c.Predict(c.Scale(features))
}
