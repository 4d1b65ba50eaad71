package membership

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/zonebox/internal/app/authority"
	"github.com/osa030/zonebox/internal/domain/emitter"
	"github.com/osa030/zonebox/internal/domain/scene"
	"github.com/osa030/zonebox/internal/domain/token"
)

// Grid of 100px per 5 units: 20px per unit.
func testScene(tokens ...token.Token) *scene.Snapshot {
	return &scene.Snapshot{
		ID:           "scene-1",
		Active:       true,
		GridSize:     100,
		GridDistance: 5,
		Tokens:       tokens,
	}
}

func observerAt(id string, units float64) token.Token {
	return token.Token{ID: id, X: units * 20, Y: 0, ActorID: "actor-" + id, OwnerIDs: []string{"gm"}}
}

func radius(v float64) *float64 { return &v }

func TestEvaluator_IsAnyObserverInside(t *testing.T) {
	gate := authority.Static{Enabled: true, UserID: "gm"}
	ev := NewEvaluator(gate)

	hidden := observerAt("hidden", 5)
	hidden.Hidden = true
	noActor := observerAt("no-actor", 5)
	noActor.ActorID = ""
	foreign := observerAt("foreign", 5)
	foreign.OwnerIDs = []string{"player"}

	tests := []struct {
		name     string
		emitter  emitter.Emitter
		tokens   []token.Token
		expected bool
	}{
		{
			name:     "observer inside",
			emitter:  emitter.Emitter{ID: "e", DocumentRadius: 30},
			tokens:   []token.Token{observerAt("a", 20)},
			expected: true,
		},
		{
			name:     "observer outside",
			emitter:  emitter.Emitter{ID: "e", DocumentRadius: 30},
			tokens:   []token.Token{observerAt("a", 50)},
			expected: false,
		},
		{
			name:     "observer exactly on the boundary is inside",
			emitter:  emitter.Emitter{ID: "e", DocumentRadius: 30},
			tokens:   []token.Token{observerAt("a", 30)},
			expected: true,
		},
		{
			name:     "one of several observers inside",
			emitter:  emitter.Emitter{ID: "e", DocumentRadius: 30},
			tokens:   []token.Token{observerAt("a", 80), observerAt("b", 10)},
			expected: true,
		},
		{
			name:     "runtime radius overrides document radius",
			emitter:  emitter.Emitter{ID: "e", Radius: radius(10), DocumentRadius: 30},
			tokens:   []token.Token{observerAt("a", 20)},
			expected: false,
		},
		{
			name:     "zero radius contains nothing",
			emitter:  emitter.Emitter{ID: "e"},
			tokens:   []token.Token{observerAt("a", 0)},
			expected: false,
		},
		{
			name:     "negative radius contains nothing",
			emitter:  emitter.Emitter{ID: "e", DocumentRadius: -5},
			tokens:   []token.Token{observerAt("a", 0)},
			expected: false,
		},
		{
			name:     "hidden token is not an observer",
			emitter:  emitter.Emitter{ID: "e", DocumentRadius: 30},
			tokens:   []token.Token{hidden},
			expected: false,
		},
		{
			name:     "token without actor is not an observer",
			emitter:  emitter.Emitter{ID: "e", DocumentRadius: 30},
			tokens:   []token.Token{noActor},
			expected: false,
		},
		{
			name:     "token not owned by the authority is not an observer",
			emitter:  emitter.Emitter{ID: "e", DocumentRadius: 30},
			tokens:   []token.Token{foreign},
			expected: false,
		},
		{
			name:     "no tokens",
			emitter:  emitter.Emitter{ID: "e", DocumentRadius: 30},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ev.IsAnyObserverInside(tt.emitter, testScene(tt.tokens...)))
		})
	}
}

func TestEvaluator_NonPositiveRadiusNeverInside(t *testing.T) {
	ev := NewEvaluator(authority.Static{Enabled: true, OwnsAll: true})
	tokens := []token.Token{observerAt("a", 0), observerAt("b", 1), observerAt("c", 1000)}

	for _, r := range []float64{0, -0.5, -100} {
		e := emitter.Emitter{ID: "e", Radius: radius(r), DocumentRadius: 50}
		assert.False(t, ev.IsAnyObserverInside(e, testScene(tokens...)), "radius %v", r)
	}
}

func TestEvaluator_OwnsAll(t *testing.T) {
	ev := NewEvaluator(authority.Static{Enabled: true, UserID: "gm", OwnsAll: true})
	tok := observerAt("a", 5)
	tok.OwnerIDs = nil

	assert.True(t, ev.Eligible(tok))
	assert.True(t, ev.IsAnyObserverInside(emitter.Emitter{DocumentRadius: 10}, testScene(tok)))
}
