package scorer

import (
	"context"
	"math"

	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/explain"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/features"
)

// Linear scores with a Model and attributes each logit term against a
// baseline taken from a background sample. It is built once and shared.
//
// For a linear model with independent features, weight*(x-baseline)/scale is
// the exact Shapley value of that feature in logit space. A feature missing
// from the vector is imputed with its baseline, so it contributes nothing.
type Linear struct {
	model       Model
	baseline    map[string]float64
	catBaseline map[string]float64
}

// NewLinear validates m and computes baselines from background.
func NewLinear(m Model, background []*features.Vector) (*Linear, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	l := &Linear{
		model:       m,
		baseline:    make(map[string]float64, len(m.Numeric)),
		catBaseline: make(map[string]float64, len(m.Categorical)),
	}
	for _, term := range m.Numeric {
		sum, n := 0.0, 0
		for _, v := range background {
			if x, ok := v.Lookup(term.Name); ok {
				sum += x
				n++
			}
		}
		if n == 0 {
			l.baseline[term.Name] = term.Center
			continue
		}
		l.baseline[term.Name] = sum / float64(n)
	}
	for _, term := range m.Categorical {
		sum, n := 0.0, 0
		for _, v := range background {
			if value, ok := v.Get(term.Name); ok && value.Kind == features.Categorical {
				sum += term.Weights[value.Text]
				n++
			}
		}
		if n > 0 {
			l.catBaseline[term.Name] = sum / float64(n)
		}
	}
	return l, nil
}

func (l *Linear) Version() string { return l.model.Version }

// Baseline returns the numeric baseline used for name.
func (l *Linear) Baseline(name string) (float64, bool) {
	b, ok := l.baseline[name]
	return b, ok
}

func (l *Linear) Predict(ctx context.Context, v *features.Vector) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	z := l.model.Intercept
	for _, term := range l.model.Numeric {
		x, ok := v.Lookup(term.Name)
		if !ok {
			x = l.baseline[term.Name]
		}
		z += term.Weight * (x - term.Center) / term.Scale
	}
	for _, term := range l.model.Categorical {
		value, ok := v.Get(term.Name)
		if !ok || value.Kind != features.Categorical {
			z += l.catBaseline[term.Name]
			continue
		}
		z += term.Weights[value.Text]
	}
	return sigmoid(z), nil
}

func (l *Linear) Explain(ctx context.Context, v *features.Vector) ([]explain.Attribution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []explain.Attribution
	for _, term := range l.model.Numeric {
		x, ok := v.Lookup(term.Name)
		if !ok {
			continue
		}
		out = append(out, explain.Attribution{
			Feature:      term.Name,
			Contribution: term.Weight * (x - l.baseline[term.Name]) / term.Scale,
		})
	}
	for _, term := range l.model.Categorical {
		value, ok := v.Get(term.Name)
		if !ok || value.Kind != features.Categorical {
			continue
		}
		out = append(out, explain.Attribution{
			Feature:      term.Name,
			Contribution: term.Weights[value.Text] - l.catBaseline[term.Name],
		})
	}
	return out, nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
