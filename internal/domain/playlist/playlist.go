// Package playlist provides the Playlist domain entity.
package playlist

import "github.com/osa030/zonebox/internal/domain/track"

// Playlist represents an ordered collection of tracks.
type Playlist struct {
	ID     string        // Playlist ID
	Name   string        // Playlist name
	Source string        // Where the playlist came from ("scene", "spotify")
	Tracks []track.Track // Tracks in playlist order
}

// TrackIDs returns all track IDs in the playlist.
func (p *Playlist) TrackIDs() []string {
	ids := make([]string, len(p.Tracks))
	for i, t := range p.Tracks {
		ids[i] = t.ID
	}
	return ids
}

// Candidates returns the non-disabled tracks in playlist order.
func (p *Playlist) Candidates() []track.Track {
	candidates := make([]track.Track, 0, len(p.Tracks))
	for _, t := range p.Tracks {
		if t.Selectable() {
			candidates = append(candidates, t)
		}
	}
	return candidates
}

// Next returns the first selectable track after afterID in playlist order,
// wrapping around to the start. An unknown afterID yields the first candidate.
func (p *Playlist) Next(afterID string) (track.Track, bool) {
	start := 0
	for i, t := range p.Tracks {
		if t.ID == afterID {
			start = i + 1
			break
		}
	}
	for i := 0; i < len(p.Tracks); i++ {
		t := p.Tracks[(start+i)%len(p.Tracks)]
		if t.Selectable() {
			return t, true
		}
	}
	return track.Track{}, false
}

// PlayingTrack returns the first track reporting playing, if any.
func (p *Playlist) PlayingTrack() (track.Track, bool) {
	for _, t := range p.Tracks {
		if t.Playing {
			return t, true
		}
	}
	return track.Track{}, false
}

// IsPlaying reports whether any track of the playlist is playing.
func (p *Playlist) IsPlaying() bool {
	_, ok := p.PlayingTrack()
	return ok
}

// Track looks up a track by ID.
func (p *Playlist) Track(id string) (track.Track, bool) {
	for _, t := range p.Tracks {
		if t.ID == id {
			return t, true
		}
	}
	return track.Track{}, false
}

// Clone returns a deep copy of the playlist.
func (p *Playlist) Clone() *Playlist {
	c := *p
	c.Tracks = make([]track.Track, len(p.Tracks))
	copy(c.Tracks, p.Tracks)
	return &c
}
