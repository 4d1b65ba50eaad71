package playback

import (
	"time"

	"github.com/osa030/zonebox/internal/domain/track"
)

// EventType represents a playback event type.
type EventType int

const (
	EventTrackStarted EventType = iota // Track started playing
	EventTrackEnded                    // Non-looping track reached its end
	EventStopped                       // Playlist stopped
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackStarted:
		return "track_started"
	case EventTrackEnded:
		return "track_ended"
	case EventStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type       EventType
	PlaylistID string
	Track      *track.Track // Affected track (nil for a stop with nothing active)
	Options    Options
	State      State // Channel state after the event
	At         time.Time
}
