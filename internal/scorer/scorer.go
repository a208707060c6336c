// Package scorer defines the scoring collaborator and ships a linear model.
package scorer

import (
	"context"
	"errors"

	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/explain"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/features"
)

// Scorer produces an approval probability and per-feature attributions for
// a (possibly redacted) feature vector. Implementations must honour ctx.
type Scorer interface {
	Version() string
	Predict(ctx context.Context, v *features.Vector) (float64, error)
	Explain(ctx context.Context, v *features.Vector) ([]explain.Attribution, error)
}

var ErrInvalidModel = errors.New("invalid model")
