package emitter

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitter_Config_Defaults(t *testing.T) {
	e := &Emitter{ID: "e1"}

	cfg, err := e.Config()
	require.NoError(t, err)

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "", cfg.PlaylistID)
	assert.Equal(t, ModeSequential, cfg.Mode)
	assert.Equal(t, 500, cfg.FadeMs)
	assert.True(t, cfg.Loop)
	assert.Equal(t, ChannelMusic, cfg.Channel)
	assert.False(t, cfg.Participates())
}

func TestEmitter_Config_Decode(t *testing.T) {
	tests := []struct {
		name    string
		flags   map[string]any
		want    Config
		wantErr string
	}{
		{
			name: "full configuration",
			flags: map[string]any{
				"enabled":    true,
				"playlistId": "pl-1",
				"mode":       "shuffle",
				"fadeMs":     float64(1200),
				"loop":       false,
				"channel":    "ambient",
			},
			want: Config{
				Enabled:    true,
				PlaylistID: "pl-1",
				Mode:       ModeShuffle,
				FadeMs:     1200,
				Loop:       false,
				Channel:    ChannelAmbient,
			},
		},
		{
			name: "explicit zero fade is kept",
			flags: map[string]any{
				"enabled":    true,
				"playlistId": "pl-1",
				"fadeMs":     0,
			},
			want: Config{
				Enabled:    true,
				PlaylistID: "pl-1",
				Mode:       ModeSequential,
				FadeMs:     0,
				Loop:       true,
				Channel:    ChannelMusic,
			},
		},
		{
			name: "single mode",
			flags: map[string]any{
				"mode": "single",
			},
			want: Config{
				Mode:    ModeSingle,
				FadeMs:  500,
				Loop:    true,
				Channel: ChannelMusic,
			},
		},
		{
			name: "keys owned by other writers are ignored",
			flags: map[string]any{
				"enabled":     true,
				"playlistId":  "pl-1",
				"activeTrack": "t1",
			},
			want: Config{
				Enabled:    true,
				PlaylistID: "pl-1",
				Mode:       ModeSequential,
				FadeMs:     500,
				Loop:       true,
				Channel:    ChannelMusic,
			},
		},
		{
			name:    "unknown mode fails",
			flags:   map[string]any{"mode": "random"},
			wantErr: "unknown playback mode",
		},
		{
			name:    "unknown channel fails",
			flags:   map[string]any{"channel": "voice"},
			wantErr: "unknown channel",
		},
		{
			name:    "negative fade fails",
			flags:   map[string]any{"fadeMs": -100},
			wantErr: "FadeMs",
		},
		{
			name:    "mode of wrong type fails",
			flags:   map[string]any{"mode": 3},
			wantErr: "mode must be a string",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Emitter{ID: "e1", Flags: Flags{Namespace: tt.flags}}

			cfg, err := e.Config()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg)
		})
	}
}

func TestEmitter_Config_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(fade int) {
			defer wg.Done()
			e := &Emitter{ID: "e1", Flags: Flags{Namespace: {"fadeMs": fade}}}
			cfg, err := e.Config()
			assert.NoError(t, err)
			assert.Equal(t, fade, cfg.FadeMs)

			bad := &Emitter{ID: "e2", Flags: Flags{Namespace: {"fadeMs": -fade - 1}}}
			_, err = bad.Config()
			assert.Error(t, err)
		}(i * 100)
	}
	wg.Wait()
}

func TestConfig_Participates(t *testing.T) {
	assert.False(t, Config{Enabled: false, PlaylistID: "pl"}.Participates())
	assert.False(t, Config{Enabled: true, PlaylistID: ""}.Participates())
	assert.True(t, Config{Enabled: true, PlaylistID: "pl"}.Participates())
}

func TestConfig_Fade(t *testing.T) {
	assert.Equal(t, 750*time.Millisecond, Config{FadeMs: 750}.Fade())
}

func TestEmitter_EffectiveRadius(t *testing.T) {
	r := func(v float64) *float64 { return &v }

	tests := []struct {
		name     string
		runtime  *float64
		document float64
		expected float64
	}{
		{name: "runtime radius preferred", runtime: r(15), document: 30, expected: 15},
		{name: "document radius fallback", runtime: nil, document: 30, expected: 30},
		{name: "NaN runtime falls back", runtime: r(math.NaN()), document: 20, expected: 20},
		{name: "infinite runtime falls back", runtime: r(math.Inf(1)), document: 20, expected: 20},
		{name: "nothing set", expected: 0},
		{name: "zero runtime radius is used", runtime: r(0), document: 30, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Emitter{Radius: tt.runtime, DocumentRadius: tt.document}
			assert.Equal(t, tt.expected, e.EffectiveRadius())
		})
	}
}

func TestEmitter_FlagsAndClone(t *testing.T) {
	e := &Emitter{ID: "e1"}
	_, ok := e.Flag(Namespace, KeyEnabled)
	assert.False(t, ok)

	e.SetFlag(Namespace, KeyEnabled, true)
	v, ok := e.Flag(Namespace, KeyEnabled)
	assert.True(t, ok)
	assert.Equal(t, true, v)

	c := e.Clone()
	c.SetFlag(Namespace, KeyEnabled, false)
	v, _ = e.Flag(Namespace, KeyEnabled)
	assert.Equal(t, true, v)
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{ModeSequential, ModeShuffle, ModeSingle} {
		parsed, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}
	assert.True(t, ModeShuffle.Random())
	assert.True(t, ModeSingle.Random())
	assert.False(t, ModeSequential.Random())

	_, err := ParseMode("")
	assert.Error(t, err)
}
