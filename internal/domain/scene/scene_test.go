package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/zonebox/internal/domain/emitter"
	"github.com/osa030/zonebox/internal/domain/token"
)

func TestSnapshot_UnitsPerGrid(t *testing.T) {
	tests := []struct {
		name     string
		distance float64
		expected float64
	}{
		{name: "unset", distance: 0, expected: 5},
		{name: "negative", distance: -1, expected: 5},
		{name: "configured", distance: 10, expected: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Snapshot{GridDistance: tt.distance}
			assert.Equal(t, tt.expected, s.UnitsPerGrid())
		})
	}
}

func TestSnapshot_CloneIsIndependent(t *testing.T) {
	s := &Snapshot{
		ID:       "scene-1",
		Emitters: []emitter.Emitter{{ID: "e1"}},
		Tokens:   []token.Token{{ID: "t1", OwnerIDs: []string{"gm"}}},
	}

	c := s.Clone()
	c.Emitters[0].SetFlag(emitter.Namespace, emitter.KeyEnabled, true)
	c.Tokens[0].OwnerIDs[0] = "player"

	_, ok := s.Emitters[0].Flag(emitter.Namespace, emitter.KeyEnabled)
	assert.False(t, ok)
	assert.Equal(t, "gm", s.Tokens[0].OwnerIDs[0])

	e, ok := c.Emitter("e1")
	assert.True(t, ok)
	assert.Equal(t, "e1", e.ID)
	_, ok = c.Emitter("missing")
	assert.False(t, ok)
}

func TestRemovedEmitters(t *testing.T) {
	prev := &Snapshot{
		ID:       "tavern",
		Emitters: []emitter.Emitter{{ID: "hearth"}, {ID: "fountain"}},
	}
	next := &Snapshot{
		ID:       "tavern",
		Emitters: []emitter.Emitter{{ID: "hearth"}, {ID: "window"}},
	}

	tests := []struct {
		name string
		prev *Snapshot
		next *Snapshot
		want []string
	}{
		{name: "no previous scene", prev: nil, next: next},
		{name: "different scene", prev: &Snapshot{ID: "forest", Emitters: []emitter.Emitter{{ID: "owl"}}}, next: next},
		{name: "emitter dropped", prev: prev, next: next, want: []string{"fountain"}},
		{name: "unchanged", prev: next, next: next},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, e := range RemovedEmitters(tt.prev, tt.next) {
				got = append(got, e.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
