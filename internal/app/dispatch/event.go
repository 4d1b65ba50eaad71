package dispatch

import "github.com/osa030/zonebox/internal/domain/emitter"

// EventType is the type of scene lifecycle event.
type EventType int

const (
	EventSceneActivated  EventType = iota // A scene became the active scene
	EventObserverChanged                  // A token was created, moved, updated or removed
	EventEmitterChanged                   // An emitter or a playlist it references changed
	EventEmitterDeleted                   // An emitter was removed
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventSceneActivated:
		return "scene_activated"
	case EventObserverChanged:
		return "observer_changed"
	case EventEmitterChanged:
		return "emitter_changed"
	case EventEmitterDeleted:
		return "emitter_deleted"
	default:
		return "unknown"
	}
}

// Event is a scene lifecycle event.
type Event struct {
	Type    EventType
	SceneID string // Empty means the active scene

	// Emitter is the removed emitter, as it was before removal.
	// Required for EventEmitterDeleted only.
	Emitter *emitter.Emitter
}
