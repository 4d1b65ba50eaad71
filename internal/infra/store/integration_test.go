package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/zonebox/internal/app/authority"
	"github.com/osa030/zonebox/internal/app/dispatch"
	"github.com/osa030/zonebox/internal/app/playback"
	"github.com/osa030/zonebox/internal/app/reconcile"
	"github.com/osa030/zonebox/internal/app/selector"
	"github.com/osa030/zonebox/internal/domain/emitter"
	"github.com/osa030/zonebox/internal/domain/playlist"
	"github.com/osa030/zonebox/internal/domain/scene"
	"github.com/osa030/zonebox/internal/domain/token"
	"github.com/osa030/zonebox/internal/domain/track"
)

type harness struct {
	store      *Store
	controller *playback.Controller
	dispatcher *dispatch.Dispatcher
}

func threeTracks(d time.Duration) []track.Track {
	return []track.Track{
		{ID: "t1", Name: "One", Duration: d},
		{ID: "t2", Name: "Two", Duration: d},
		{ID: "t3", Name: "Three", Duration: d},
	}
}

func newHarness(t *testing.T) *harness {
	return newHarnessWith(t, threeTracks(0), nil)
}

// newHarnessWith builds a harness whose hearth emitter plays tracks, with
// flags overriding the sequential defaults.
func newHarnessWith(t *testing.T, tracks []track.Track, flags map[string]any) *harness {
	t.Helper()

	s := New()
	require.NoError(t, s.UpsertPlaylist(&playlist.Playlist{ID: "pl-1", Tracks: tracks}))

	bag := map[string]any{
		"enabled":    true,
		"playlistId": "pl-1",
		"mode":       "sequential",
		"fadeMs":     800,
	}
	for k, v := range flags {
		bag[k] = v
	}
	// 100px grid of 5 units: 20px per unit.
	require.NoError(t, s.PutScene(scene.Snapshot{
		ID:           "tavern",
		Active:       true,
		GridSize:     100,
		GridDistance: 5,
		Emitters: []emitter.Emitter{{
			ID:             "hearth",
			DocumentRadius: 30,
			Flags:          emitter.Flags{emitter.Namespace: bag},
		}},
	}))

	gate := authority.Static{Enabled: true, UserID: "gm"}
	controller := playback.NewController(s, playback.Config{TickInterval: 5 * time.Millisecond})
	t.Cleanup(controller.Close)

	r := reconcile.New(reconcile.Deps{
		Gate:      gate,
		Selector:  selector.New(7),
		Playlists: s,
		Playback:  controller,
	})
	return &harness{
		store:      s,
		controller: controller,
		dispatcher: dispatch.New(gate, s, r, dispatch.Config{}),
	}
}

func (h *harness) moveObserver(t *testing.T, units float64) {
	t.Helper()
	_, err := h.store.UpsertToken("", token.Token{ID: "hero", X: units * 20, ActorID: "a1", OwnerIDs: []string{"gm"}})
	require.NoError(t, err)
	require.NoError(t, h.dispatcher.Handle(context.Background(), dispatch.Event{Type: dispatch.EventObserverChanged}))
}

func (h *harness) playing(t *testing.T) (string, bool) {
	t.Helper()
	p, ok := h.store.Playlist(context.Background(), "pl-1")
	require.True(t, ok)
	tr, ok := p.PlayingTrack()
	return tr.ID, ok
}

func (h *harness) hearthFlags(t *testing.T) map[string]any {
	t.Helper()
	snap, ok := h.store.Scene("tavern")
	require.True(t, ok)
	e, ok := snap.Emitter("hearth")
	require.True(t, ok)
	return e.Flags[emitter.Namespace]
}

func nextEvent(t *testing.T, ch <-chan playback.Event) playback.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for playback event")
		return playback.Event{}
	}
}

func drain(ch <-chan playback.Event) []playback.Event {
	var out []playback.Event
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		case <-time.After(20 * time.Millisecond):
			return out
		}
	}
}

func TestIntegration_EnterLeaveAndDelete(t *testing.T) {
	h := newHarness(t)
	flags := h.hearthFlags(t)

	// Observer enters at 20 units of a 30 unit radius.
	h.moveObserver(t, 20)
	id, ok := h.playing(t)
	require.True(t, ok)
	assert.Equal(t, "t1", id)
	assert.Equal(t, flags, h.hearthFlags(t))

	events := drain(h.controller.Events())
	require.Len(t, events, 1)
	assert.Equal(t, playback.EventTrackStarted, events[0].Type)
	assert.Equal(t, 800*time.Millisecond, events[0].Options.Fade)
	assert.True(t, events[0].Options.Loop)

	// Moving inside the radius changes nothing.
	h.moveObserver(t, 25)
	assert.Empty(t, drain(h.controller.Events()))

	// Observer leaves: exactly one stop.
	h.moveObserver(t, 50)
	_, ok = h.playing(t)
	assert.False(t, ok)
	assert.Equal(t, flags, h.hearthFlags(t))
	h.moveObserver(t, 60)
	events = drain(h.controller.Events())
	require.Len(t, events, 1)
	assert.Equal(t, playback.EventStopped, events[0].Type)

	// Re-enter, then delete the emitter: one stop, no restart.
	h.moveObserver(t, 0)
	drain(h.controller.Events())

	removed, err := h.store.RemoveEmitter("", "hearth")
	require.NoError(t, err)
	require.NoError(t, h.dispatcher.Handle(context.Background(), dispatch.Event{
		Type:    dispatch.EventEmitterDeleted,
		SceneID: "tavern",
		Emitter: &removed,
	}))

	events = drain(h.controller.Events())
	require.Len(t, events, 1)
	assert.Equal(t, playback.EventStopped, events[0].Type)
	_, ok = h.playing(t)
	assert.False(t, ok)
	_, ok = h.controller.Active("pl-1")
	assert.False(t, ok)
}

func TestIntegration_SequentialAdvancesOnTrackEnd(t *testing.T) {
	h := newHarnessWith(t, threeTracks(30*time.Millisecond), map[string]any{"fadeMs": 0, "loop": false})
	events := h.controller.Events()

	h.moveObserver(t, 10)

	var started []string
	for len(started) < 4 {
		e := nextEvent(t, events)
		if e.Type != playback.EventTrackStarted {
			continue
		}
		started = append(started, e.Track.ID)

		// A sweep triggered by the track end keeps the advanced track.
		require.NoError(t, h.dispatcher.Handle(context.Background(), dispatch.Event{Type: dispatch.EventEmitterChanged}))
	}
	assert.Equal(t, []string{"t1", "t2", "t3", "t1"}, started)

	// Leaving stops the playlist wherever it got to.
	h.moveObserver(t, 50)
	_, ok := h.playing(t)
	assert.False(t, ok)
	_, ok = h.controller.Active("pl-1")
	assert.False(t, ok)
}

func TestIntegration_ShuffleRepicksOnTrackEnd(t *testing.T) {
	h := newHarnessWith(t, threeTracks(100*time.Millisecond), map[string]any{"fadeMs": 0, "loop": false, "mode": "shuffle"})
	events := h.controller.Events()

	h.moveObserver(t, 10)
	require.Equal(t, playback.EventTrackStarted, nextEvent(t, events).Type)

	e := nextEvent(t, events)
	require.Equal(t, playback.EventTrackEnded, e.Type)
	_, ok := h.playing(t)
	assert.False(t, ok)

	// The track end sweep picks again.
	require.NoError(t, h.dispatcher.Handle(context.Background(), dispatch.Event{Type: dispatch.EventEmitterChanged}))
	_, ok = h.playing(t)
	assert.True(t, ok)
}
