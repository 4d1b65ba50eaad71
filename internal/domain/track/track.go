// Package track provides the Track domain entity.
package track

import "time"

// Track represents a playable unit of a playlist.
type Track struct {
	ID       string        // Track ID, unique within its playlist
	Name     string        // Display name
	Path     string        // Playable reference (file path, URL or URI)
	Disabled bool          // Excluded from selection
	Playing  bool          // Current playback status, mutated by the playback collaborator
	Duration time.Duration // Track duration (0 if unknown)
}

// Selectable reports whether the track can be chosen for playback.
func (t *Track) Selectable() bool {
	return !t.Disabled
}

// HasDuration reports whether the track has a known, finite duration.
func (t *Track) HasDuration() bool {
	return t.Duration > 0
}
