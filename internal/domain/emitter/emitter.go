// Package emitter provides the Emitter domain entity and its playlist-control configuration.
package emitter

import (
	"math"
	"reflect"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// Namespace is the flag namespace owned by this module.
const Namespace = "zonebox"

// Flag keys inside Namespace.
const (
	KeyEnabled    = "enabled"
	KeyPlaylistID = "playlistId"
	KeyMode       = "mode"
	KeyFadeMs     = "fadeMs"
	KeyLoop       = "loop"
	KeyChannel    = "channel"
)

// Flags is the flat key/value flag bag of an emitter document, grouped by namespace.
type Flags map[string]map[string]any

// Emitter represents a positioned ambient sound source on a scene.
type Emitter struct {
	ID             string
	SceneID        string
	Name           string
	X, Y           float64  // Centre point in pixels
	Radius         *float64 // Runtime radius in scene units (nil if not rendered)
	DocumentRadius float64  // Persisted radius in scene units
	Path           string   // Static audio path, untouched by playlist control
	Flags          Flags
}

// Config is the playlist-control configuration of an emitter.
type Config struct {
	Enabled    bool    `mapstructure:"enabled"`
	PlaylistID string  `mapstructure:"playlistId"`
	Mode       Mode    `mapstructure:"mode"`
	FadeMs     int     `mapstructure:"fadeMs" default:"500" validate:"gte=0"`
	Loop       bool    `mapstructure:"loop" default:"true"`
	Channel    Channel `mapstructure:"channel"`
}

var validate = validator.New()

// Participates reports whether the emitter takes part in reconciliation.
func (c Config) Participates() bool {
	return c.Enabled && c.PlaylistID != ""
}

// Fade returns the configured fade as a duration.
func (c Config) Fade() time.Duration {
	return time.Duration(c.FadeMs) * time.Millisecond
}

// DefaultConfig returns the configuration of an emitter with no flags set.
func DefaultConfig() Config {
	var c Config
	_ = defaults.Set(&c)
	return c
}

// Flag returns a single flag value.
func (e *Emitter) Flag(namespace, key string) (any, bool) {
	if e.Flags == nil {
		return nil, false
	}
	bag, ok := e.Flags[namespace]
	if !ok {
		return nil, false
	}
	v, ok := bag[key]
	return v, ok
}

// Config decodes the playlist-control configuration from the flag bag.
// Unknown mode or channel values are reported as errors.
func (e *Emitter) Config() (Config, error) {
	cfg := DefaultConfig()

	bag := e.Flags[Namespace]
	if len(bag) == 0 {
		return cfg, nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     &cfg,
		TagName:    "mapstructure",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(modeHook, channelHook),
	})
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(bag); err != nil {
		return Config{}, errors.Wrapf(err, "emitter %s: failed to decode flags", e.ID)
	}

	if err := validate.Struct(cfg); err != nil {
		return Config{}, errors.Wrapf(err, "emitter %s: invalid flags", e.ID)
	}
	return cfg, nil
}

// SetFlag sets a single flag value, creating the namespace if needed.
func (e *Emitter) SetFlag(namespace, key string, value any) {
	if e.Flags == nil {
		e.Flags = make(Flags)
	}
	if e.Flags[namespace] == nil {
		e.Flags[namespace] = make(map[string]any)
	}
	e.Flags[namespace][key] = value
}

// EffectiveRadius returns the runtime radius if it is a finite number,
// else the persisted document radius.
func (e *Emitter) EffectiveRadius() float64 {
	if e.Radius != nil && !math.IsNaN(*e.Radius) && !math.IsInf(*e.Radius, 0) {
		return *e.Radius
	}
	if math.IsNaN(e.DocumentRadius) || math.IsInf(e.DocumentRadius, 0) {
		return 0
	}
	return e.DocumentRadius
}

// Clone returns a copy of the emitter with its own flag bag.
func (e *Emitter) Clone() Emitter {
	c := *e
	if e.Radius != nil {
		r := *e.Radius
		c.Radius = &r
	}
	if e.Flags != nil {
		c.Flags = make(Flags, len(e.Flags))
		for ns, bag := range e.Flags {
			nb := make(map[string]any, len(bag))
			for k, v := range bag {
				nb[k] = v
			}
			c.Flags[ns] = nb
		}
	}
	return c
}

var (
	modeType    = reflect.TypeOf(Mode(0))
	channelType = reflect.TypeOf(Channel(0))
)

func modeHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != modeType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return ParseMode(v)
	case Mode:
		return v, nil
	default:
		return nil, errors.Newf("mode must be a string, got %T", data)
	}
}

func channelHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != channelType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return ParseChannel(v)
	case Channel:
		return v, nil
	default:
		return nil, errors.Newf("channel must be a string, got %T", data)
	}
}
