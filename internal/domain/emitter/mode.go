package emitter

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Mode represents the track selection mode of an emitter.
type Mode int

const (
	ModeSequential Mode = iota // Continue the playing track, else the first candidate; advance on track end
	ModeShuffle                // Uniform random candidate
	ModeSingle                 // Uniform random candidate, same policy as shuffle
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeSequential:
		return "sequential"
	case ModeShuffle:
		return "shuffle"
	case ModeSingle:
		return "single"
	default:
		return "unknown"
	}
}

// Random reports whether the mode picks a random candidate.
func (m Mode) Random() bool {
	return m == ModeShuffle || m == ModeSingle
}

// ParseMode parses a configured mode value.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sequential":
		return ModeSequential, nil
	case "shuffle":
		return ModeShuffle, nil
	case "single":
		return ModeSingle, nil
	default:
		return 0, errors.Newf("unknown playback mode %q", s)
	}
}

// Channel is the display label of an emitter. It has no playback effect.
type Channel int

const (
	ChannelMusic Channel = iota
	ChannelAmbient
	ChannelInterface
)

// String returns the string representation of the channel.
func (c Channel) String() string {
	switch c {
	case ChannelMusic:
		return "music"
	case ChannelAmbient:
		return "ambient"
	case ChannelInterface:
		return "interface"
	default:
		return "unknown"
	}
}

// ParseChannel parses a configured channel label.
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "music":
		return ChannelMusic, nil
	case "ambient":
		return ChannelAmbient, nil
	case "interface":
		return ChannelInterface, nil
	default:
		return 0, errors.Newf("unknown channel %q", s)
	}
}
