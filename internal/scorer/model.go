package scorer

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/crypto"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/features"
	"github.com/Mahaboob26/NEXUS-TRUSAI/pkg/types"
)

// Model is a logistic regression over standardized numeric terms and one-hot
// categorical terms.
type Model struct {
	Name        string            `yaml:"name"`
	Version     string            `yaml:"version"`
	Dataset     string            `yaml:"dataset"`
	Intercept   float64           `yaml:"intercept"`
	Numeric     []NumericTerm     `yaml:"numeric"`
	Categorical []CategoricalTerm `yaml:"categorical"`
}

type NumericTerm struct {
	Name   string  `yaml:"name"`
	Weight float64 `yaml:"weight"`
	// Center is the fallback baseline when the background sample has no value.
	Center float64 `yaml:"center"`
	Scale  float64 `yaml:"scale"`
}

type CategoricalTerm struct {
	Name    string             `yaml:"name"`
	Weights map[string]float64 `yaml:"weights"`
}

type LoadedModel struct {
	Model Model
	Hash  string
}

// Info describes the loaded model for governance reporting. Terms outside the
// feature vocabulary are reported as caller-supplied extras.
func (lm LoadedModel) Info() types.ModelInfo {
	info := types.ModelInfo{
		Name:    lm.Model.Name,
		Version: lm.Model.Version,
		Hash:    lm.Hash,
		Dataset: lm.Model.Dataset,
	}
	add := func(name string, kind features.Kind) {
		f := types.ModelFeature{Name: name, Kind: kind.String()}
		if spec, ok := features.Lookup(name); ok {
			f.Engineered = spec.Engineered
		} else {
			f.Extra = true
		}
		info.Features = append(info.Features, f)
	}
	for _, term := range lm.Model.Numeric {
		add(term.Name, features.Numeric)
	}
	for _, term := range lm.Model.Categorical {
		add(term.Name, features.Categorical)
	}
	return info
}

// LoadModel reads a YAML model file and hashes its bytes.
func LoadModel(path string) (LoadedModel, error) {
	// #nosec G304 -- path comes from operator configuration.
	data, err := os.ReadFile(path)
	if err != nil {
		return LoadedModel{}, err
	}
	var m Model
	if err := yaml.Unmarshal(data, &m); err != nil {
		return LoadedModel{}, fmt.Errorf("parse model: %w", err)
	}
	if err := m.Validate(); err != nil {
		return LoadedModel{}, err
	}
	return LoadedModel{Model: m, Hash: crypto.DigestWithPrefix(data)}, nil
}

func (m *Model) Validate() error {
	if m.Version == "" {
		return fmt.Errorf("%w: version is required", ErrInvalidModel)
	}
	if !finite(m.Intercept) {
		return fmt.Errorf("%w: intercept is not finite", ErrInvalidModel)
	}
	seen := map[string]bool{}
	for i := range m.Numeric {
		term := &m.Numeric[i]
		if term.Name == "" || seen[term.Name] {
			return fmt.Errorf("%w: numeric term %d has an empty or duplicate name", ErrInvalidModel, i)
		}
		seen[term.Name] = true
		if term.Scale == 0 {
			term.Scale = 1
		}
		if !finite(term.Weight) || !finite(term.Center) || !finite(term.Scale) {
			return fmt.Errorf("%w: numeric term %s is not finite", ErrInvalidModel, term.Name)
		}
	}
	for i, term := range m.Categorical {
		if term.Name == "" || seen[term.Name] {
			return fmt.Errorf("%w: categorical term %d has an empty or duplicate name", ErrInvalidModel, i)
		}
		seen[term.Name] = true
		for level, w := range term.Weights {
			if !finite(w) {
				return fmt.Errorf("%w: categorical term %s level %s is not finite", ErrInvalidModel, term.Name, level)
			}
		}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
