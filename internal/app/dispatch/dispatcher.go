// Package dispatch turns scene lifecycle events into reconciliation sweeps.
package dispatch

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/zonebox/internal/app/authority"
	"github.com/osa030/zonebox/internal/app/reconcile"
	"github.com/osa030/zonebox/internal/domain/emitter"
	"github.com/osa030/zonebox/internal/domain/scene"
)

// ErrStopped is returned by Publish once the event loop has exited.
var ErrStopped = errors.New("dispatcher stopped")

// SceneSource provides the active scene.
type SceneSource interface {
	// ActiveSnapshot returns a copy of the active scene, or false when no scene is active.
	ActiveSnapshot(ctx context.Context) (*scene.Snapshot, bool)
}

// Reconciler is the part of reconcile.Reconciler the dispatcher drives.
type Reconciler interface {
	Sweep(ctx context.Context, s *scene.Snapshot) (reconcile.Result, error)
	Release(ctx context.Context, e emitter.Emitter) (reconcile.Outcome, error)
}

// Config holds dispatcher configuration.
type Config struct {
	QueueSize int
}

// Dispatcher reacts to scene lifecycle events on the authority instance.
type Dispatcher struct {
	gate       authority.Gate
	scenes     SceneSource
	reconciler Reconciler

	queue chan Event
	done  chan struct{}
}

// New creates a dispatcher.
func New(gate authority.Gate, scenes SceneSource, reconciler Reconciler, config Config) *Dispatcher {
	if config.QueueSize <= 0 {
		config.QueueSize = 64
	}
	return &Dispatcher{
		gate:       gate,
		scenes:     scenes,
		reconciler: reconciler,
		queue:      make(chan Event, config.QueueSize),
		done:       make(chan struct{}),
	}
}

// Handle processes one event synchronously.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) error {
	if !d.gate.IsAuthority() {
		return nil
	}

	switch ev.Type {
	case EventSceneActivated, EventObserverChanged, EventEmitterChanged:
		return d.sweep(ctx, ev)
	case EventEmitterDeleted:
		return d.release(ctx, ev)
	default:
		return errors.Newf("unknown event type %d", int(ev.Type))
	}
}

func (d *Dispatcher) sweep(ctx context.Context, ev Event) error {
	s, ok := d.scenes.ActiveSnapshot(ctx)
	if !ok {
		zlog.Debug().Msgf("dispatch: no active scene: event=%s", ev.Type)
		return nil
	}
	if ev.SceneID != "" && ev.SceneID != s.ID {
		zlog.Debug().Msgf("dispatch: ignoring event for inactive scene: event=%s scene_id=%s active_scene_id=%s",
			ev.Type, ev.SceneID, s.ID)
		return nil
	}

	res, err := d.reconciler.Sweep(ctx, s)
	if err != nil {
		zlog.Error().Msgf("dispatch: sweep failed: event=%s scene_id=%s error=%v", ev.Type, s.ID, err)
		return errors.Wrapf(err, "sweep of scene %s", s.ID)
	}
	if n := res.Count(reconcile.ActionStart) + res.Count(reconcile.ActionStop); n > 0 {
		zlog.Info().Msgf("dispatch: sweep applied transitions: event=%s scene_id=%s started=%d stopped=%d",
			ev.Type, s.ID, res.Count(reconcile.ActionStart), res.Count(reconcile.ActionStop))
	}
	return nil
}

func (d *Dispatcher) release(ctx context.Context, ev Event) error {
	if ev.Emitter == nil {
		return errors.New("emitter deleted event without emitter")
	}

	cfg, err := ev.Emitter.Config()
	if err != nil || !cfg.Participates() {
		return nil
	}

	if _, err := d.reconciler.Release(ctx, *ev.Emitter); err != nil {
		zlog.Error().Msgf("dispatch: release failed: emitter_id=%s playlist_id=%s error=%v",
			ev.Emitter.ID, cfg.PlaylistID, err)
		return errors.Wrapf(err, "release of emitter %s", ev.Emitter.ID)
	}
	return nil
}

// Publish queues an event for Run. It blocks while the queue is full.
func (d *Dispatcher) Publish(ev Event) error {
	select {
	case <-d.done:
		return ErrStopped
	default:
	}

	select {
	case d.queue <- ev:
		return nil
	case <-d.done:
		return ErrStopped
	}
}

// Run handles queued events one at a time until ctx is cancelled.
// Sweeps never overlap.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)

	zlog.Info().Msg("dispatch: event loop started")
	for {
		select {
		case <-ctx.Done():
			zlog.Info().Msg("dispatch: event loop stopped")
			return
		case ev := <-d.queue:
			// Errors are logged by Handle; the next event retries.
			_ = d.Handle(ctx, ev)
		}
	}
}

// Done is closed when Run returns.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}
