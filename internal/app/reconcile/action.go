package reconcile

// Action is the playback transition issued for one emitter.
type Action int

const (
	ActionNone  Action = iota // Nothing to do
	ActionStart               // Started a track
	ActionStop                // Stopped the playlist
)

// String returns the string representation of the action.
func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionStart:
		return "start"
	case ActionStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Outcome describes what reconciliation decided for one emitter.
type Outcome struct {
	EmitterID  string
	PlaylistID string
	Inside     bool
	Playing    bool
	Action     Action
	TrackID    string // Track started (ActionStart only)
	Reason     string // Why nothing happened (ActionNone only)
}

// Result summarises a sweep.
type Result struct {
	SceneID  string
	Outcomes []Outcome
	Invalid  int // Emitters skipped because their flags failed to decode
}

// Count returns the number of outcomes with the given action.
func (r Result) Count(a Action) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Action == a {
			n++
		}
	}
	return n
}
