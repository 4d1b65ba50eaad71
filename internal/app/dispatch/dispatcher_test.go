package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/zonebox/internal/app/authority"
	"github.com/osa030/zonebox/internal/app/reconcile"
	"github.com/osa030/zonebox/internal/domain/emitter"
	"github.com/osa030/zonebox/internal/domain/scene"
)

type fakeScenes struct {
	snapshot *scene.Snapshot
}

func (f *fakeScenes) ActiveSnapshot(ctx context.Context) (*scene.Snapshot, bool) {
	if f.snapshot == nil {
		return nil, false
	}
	return f.snapshot.Clone(), true
}

type fakeReconciler struct {
	mu       sync.Mutex
	sweeps   []string
	releases []string
	err      error
	inFlight int
	overlap  bool
}

func (f *fakeReconciler) Sweep(ctx context.Context, s *scene.Snapshot) (reconcile.Result, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > 1 {
		f.overlap = true
	}
	f.sweeps = append(f.sweeps, s.ID)
	f.mu.Unlock()

	time.Sleep(time.Millisecond)

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
	return reconcile.Result{SceneID: s.ID}, f.err
}

func (f *fakeReconciler) Release(ctx context.Context, e emitter.Emitter) (reconcile.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases = append(f.releases, e.ID)
	return reconcile.Outcome{EmitterID: e.ID, Action: reconcile.ActionStop}, f.err
}

func (f *fakeReconciler) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sweeps), len(f.releases)
}

func playlistEmitter(id string, enabled bool) *emitter.Emitter {
	return &emitter.Emitter{
		ID:             id,
		DocumentRadius: 30,
		Flags: emitter.Flags{emitter.Namespace: {
			"enabled":    enabled,
			"playlistId": "pl-1",
		}},
	}
}

var gm = authority.Static{Enabled: true, UserID: "gm"}

func TestDispatcher_Handle(t *testing.T) {
	tests := []struct {
		name         string
		event        Event
		wantSweeps   int
		wantReleases int
	}{
		{name: "scene activated sweeps", event: Event{Type: EventSceneActivated}, wantSweeps: 1},
		{name: "observer changed sweeps", event: Event{Type: EventObserverChanged, SceneID: "scene-1"}, wantSweeps: 1},
		{name: "emitter changed sweeps", event: Event{Type: EventEmitterChanged}, wantSweeps: 1},
		{name: "event for another scene is ignored", event: Event{Type: EventObserverChanged, SceneID: "scene-2"}},
		{
			name:         "deleted playlist emitter is released without sweep",
			event:        Event{Type: EventEmitterDeleted, Emitter: playlistEmitter("e1", true)},
			wantReleases: 1,
		},
		{
			name:  "deleted disabled emitter is ignored",
			event: Event{Type: EventEmitterDeleted, Emitter: playlistEmitter("e1", false)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeReconciler{}
			d := New(gm, &fakeScenes{snapshot: &scene.Snapshot{ID: "scene-1", Active: true}}, rec, Config{})

			require.NoError(t, d.Handle(context.Background(), tt.event))

			sweeps, releases := rec.counts()
			assert.Equal(t, tt.wantSweeps, sweeps)
			assert.Equal(t, tt.wantReleases, releases)
		})
	}
}

func TestDispatcher_ScenarioC_DeleteStopsOnce(t *testing.T) {
	rec := &fakeReconciler{}
	d := New(gm, &fakeScenes{snapshot: &scene.Snapshot{ID: "scene-1", Active: true}}, rec, Config{})

	err := d.Handle(context.Background(), Event{Type: EventEmitterDeleted, SceneID: "scene-1", Emitter: playlistEmitter("e1", true)})
	require.NoError(t, err)

	sweeps, releases := rec.counts()
	assert.Equal(t, 0, sweeps)
	assert.Equal(t, 1, releases)
	assert.Equal(t, []string{"e1"}, rec.releases)
}

func TestDispatcher_NotAuthorityIsNoOp(t *testing.T) {
	rec := &fakeReconciler{}
	d := New(authority.Static{}, &fakeScenes{snapshot: &scene.Snapshot{ID: "scene-1", Active: true}}, rec, Config{})

	for _, ev := range []Event{
		{Type: EventSceneActivated},
		{Type: EventObserverChanged},
		{Type: EventEmitterChanged},
		{Type: EventEmitterDeleted, Emitter: playlistEmitter("e1", true)},
	} {
		require.NoError(t, d.Handle(context.Background(), ev))
	}

	sweeps, releases := rec.counts()
	assert.Zero(t, sweeps)
	assert.Zero(t, releases)
}

func TestDispatcher_NoActiveScene(t *testing.T) {
	rec := &fakeReconciler{}
	d := New(gm, &fakeScenes{}, rec, Config{})

	require.NoError(t, d.Handle(context.Background(), Event{Type: EventSceneActivated}))
	sweeps, _ := rec.counts()
	assert.Zero(t, sweeps)
}

func TestDispatcher_Errors(t *testing.T) {
	rec := &fakeReconciler{err: errors.New("host rejected update")}
	d := New(gm, &fakeScenes{snapshot: &scene.Snapshot{ID: "scene-1", Active: true}}, rec, Config{})

	err := d.Handle(context.Background(), Event{Type: EventObserverChanged})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host rejected update")

	err = d.Handle(context.Background(), Event{Type: EventEmitterDeleted, Emitter: playlistEmitter("e1", true)})
	require.Error(t, err)

	err = d.Handle(context.Background(), Event{Type: EventEmitterDeleted})
	require.Error(t, err)

	err = d.Handle(context.Background(), Event{Type: EventType(42)})
	require.Error(t, err)
}

func TestDispatcher_RunSerialisesSweeps(t *testing.T) {
	rec := &fakeReconciler{}
	d := New(gm, &fakeScenes{snapshot: &scene.Snapshot{ID: "scene-1", Active: true}}, rec, Config{QueueSize: 4})

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				assert.NoError(t, d.Publish(Event{Type: EventObserverChanged}))
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		sweeps, _ := rec.counts()
		return sweeps == 20
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-d.Done()

	rec.mu.Lock()
	assert.False(t, rec.overlap)
	rec.mu.Unlock()

	assert.ErrorIs(t, d.Publish(Event{Type: EventObserverChanged}), ErrStopped)
}

func TestEventType_String(t *testing.T) {
	assert.Equal(t, "scene_activated", EventSceneActivated.String())
	assert.Equal(t, "observer_changed", EventObserverChanged.String())
	assert.Equal(t, "emitter_changed", EventEmitterChanged.String())
	assert.Equal(t, "emitter_deleted", EventEmitterDeleted.String())
	assert.Equal(t, "unknown", EventType(42).String())
}
