// Package membership decides whether an eligible observer is inside an emitter's radius.
package membership

import (
	"github.com/osa030/zonebox/internal/app/authority"
	"github.com/osa030/zonebox/internal/app/geometry"
	"github.com/osa030/zonebox/internal/domain/emitter"
	"github.com/osa030/zonebox/internal/domain/scene"
	"github.com/osa030/zonebox/internal/domain/token"
)

// Evaluator tests radius membership of tokens.
type Evaluator struct {
	gate authority.Gate
}

// NewEvaluator creates an evaluator. Token ownership is checked against gate.
func NewEvaluator(gate authority.Gate) *Evaluator {
	return &Evaluator{gate: gate}
}

// Eligible reports whether a token counts as an observer.
func (ev *Evaluator) Eligible(t token.Token) bool {
	return !t.Hidden && t.HasActor() && ev.gate.Owns(t)
}

// IsAnyObserverInside reports whether at least one eligible token of the
// snapshot lies within the emitter's effective radius (boundary inclusive).
func (ev *Evaluator) IsAnyObserverInside(e emitter.Emitter, s *scene.Snapshot) bool {
	radius := e.EffectiveRadius()
	if radius <= 0 {
		return false
	}

	origin := geometry.Point{X: e.X, Y: e.Y}
	for _, t := range s.Tokens {
		if !ev.Eligible(t) {
			continue
		}
		d := geometry.Distance(origin, geometry.Point{X: t.X, Y: t.Y}, s.GridSize, s.UnitsPerGrid())
		if d <= radius {
			return true
		}
	}
	return false
}
