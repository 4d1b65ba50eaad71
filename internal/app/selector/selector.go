// Package selector picks the track an emitter should play next.
package selector

import (
	"math/rand"
	"sync"
	"time"

	"github.com/osa030/zonebox/internal/domain/emitter"
	"github.com/osa030/zonebox/internal/domain/playlist"
	"github.com/osa030/zonebox/internal/domain/track"
)

// Selector picks tracks from a playlist according to a mode.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a selector with the given seed. A zero seed uses the current time.
func New(seed int64) *Selector {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return NewWithSource(rand.NewSource(seed))
}

// NewWithSource creates a selector drawing from src.
func NewWithSource(src rand.Source) *Selector {
	return &Selector{rng: rand.New(src)}
}

// Pick returns the track to start, or false when the playlist has no candidate.
//
// Sequential mode continues a playing candidate, else starts the first one.
// Shuffle and single pick a uniformly random candidate and may reselect the current one.
func (s *Selector) Pick(p *playlist.Playlist, mode emitter.Mode) (track.Track, bool) {
	candidates := p.Candidates()
	if len(candidates) == 0 {
		return track.Track{}, false
	}

	if mode.Random() {
		s.mu.Lock()
		i := s.rng.Intn(len(candidates))
		s.mu.Unlock()
		return candidates[i], true
	}

	for _, t := range candidates {
		if t.Playing {
			return t, true
		}
	}
	return candidates[0], true
}
