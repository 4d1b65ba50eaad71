// Package playback provides the in-process playback collaborator: it starts and
// stops playlist tracks, keeps per-playlist channel state and reports events.
package playback

import "time"

// State represents the playback state of a playlist channel.
type State int

const (
	StateIdle    State = iota // Nothing playing on the playlist
	StatePlaying              // A track is playing
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// Options are the transition settings of a start or stop call.
type Options struct {
	Fade    time.Duration // Fade-in on start, fade-out on stop
	Loop    bool          // Repeat the track until stopped (start only)
	Advance bool          // Continue with the next track when one ends (start only)
}
