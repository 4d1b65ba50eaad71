// Package scene provides the scene Snapshot consumed by a reconciliation sweep.
package scene

import (
	"github.com/osa030/zonebox/internal/domain/emitter"
	"github.com/osa030/zonebox/internal/domain/token"
)

// DefaultGridDistance is the number of scene units per grid square when the scene leaves it unset.
const DefaultGridDistance = 5

// Snapshot is an immutable view of a scene at sweep time.
type Snapshot struct {
	ID           string
	Name         string
	Active       bool
	GridSize     float64 // Pixels per grid square
	GridDistance float64 // Scene units per grid square
	Emitters     []emitter.Emitter
	Tokens       []token.Token
}

// UnitsPerGrid returns the grid distance, falling back to DefaultGridDistance.
func (s *Snapshot) UnitsPerGrid() float64 {
	if s.GridDistance <= 0 {
		return DefaultGridDistance
	}
	return s.GridDistance
}

// Emitter looks up an emitter by ID.
func (s *Snapshot) Emitter(id string) (emitter.Emitter, bool) {
	for _, e := range s.Emitters {
		if e.ID == id {
			return e, true
		}
	}
	return emitter.Emitter{}, false
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	c := *s
	c.Emitters = make([]emitter.Emitter, len(s.Emitters))
	for i := range s.Emitters {
		c.Emitters[i] = s.Emitters[i].Clone()
	}
	c.Tokens = make([]token.Token, len(s.Tokens))
	for i, t := range s.Tokens {
		t.OwnerIDs = append([]string(nil), t.OwnerIDs...)
		c.Tokens[i] = t
	}
	return &c
}

// RemovedEmitters returns the emitters of prev that next no longer contains.
// Snapshots of different scenes share nothing, so a nil prev or a scene ID
// mismatch yields nil.
func RemovedEmitters(prev, next *Snapshot) []emitter.Emitter {
	if prev == nil || next == nil || prev.ID != next.ID {
		return nil
	}
	var removed []emitter.Emitter
	for _, e := range prev.Emitters {
		if _, ok := next.Emitter(e.ID); !ok {
			removed = append(removed, e)
		}
	}
	return removed
}
