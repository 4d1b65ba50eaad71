// Package reconcile compares desired and actual playback per emitter and issues at most one transition.
package reconcile

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/zonebox/internal/app/authority"
	"github.com/osa030/zonebox/internal/app/membership"
	"github.com/osa030/zonebox/internal/app/playback"
	"github.com/osa030/zonebox/internal/domain/emitter"
	"github.com/osa030/zonebox/internal/domain/playlist"
	"github.com/osa030/zonebox/internal/domain/scene"
	"github.com/osa030/zonebox/internal/domain/track"
)

// ErrInvalidConfig marks emitters whose flag bag failed to decode.
var ErrInvalidConfig = errors.New("invalid emitter configuration")

// PlaylistResolver resolves playlists by ID.
type PlaylistResolver interface {
	Playlist(ctx context.Context, id string) (*playlist.Playlist, bool)
}

// Playback is the playback collaborator.
type Playback interface {
	StartTrack(ctx context.Context, playlistID, trackID string, opts playback.Options) error
	StopAll(ctx context.Context, playlistID string, opts playback.Options) error
	// Active returns the track last started for the playlist that has not
	// been stopped or ended yet, including starts still fading in.
	Active(playlistID string) (string, bool)
}

// Selector picks the next track.
type Selector interface {
	Pick(p *playlist.Playlist, mode emitter.Mode) (track.Track, bool)
}

// Recorder receives reconciliation metrics.
type Recorder interface {
	SweepCompleted(d time.Duration, emitters int)
	Transition(action string)
	Failure(stage string)
}

type nopRecorder struct{}

func (nopRecorder) SweepCompleted(time.Duration, int) {}
func (nopRecorder) Transition(string)                 {}
func (nopRecorder) Failure(string)                    {}

// Reconciler drives playback of playlist-controlled emitters.
type Reconciler struct {
	gate      authority.Gate
	evaluator *membership.Evaluator
	selector  Selector
	playlists PlaylistResolver
	playback  Playback
	recorder  Recorder
}

// Deps holds the collaborators of a Reconciler.
type Deps struct {
	Gate      authority.Gate
	Selector  Selector
	Playlists PlaylistResolver
	Playback  Playback
	Recorder  Recorder // optional
}

// New creates a reconciler.
func New(deps Deps) *Reconciler {
	recorder := deps.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Reconciler{
		gate:      deps.Gate,
		evaluator: membership.NewEvaluator(deps.Gate),
		selector:  deps.Selector,
		playlists: deps.Playlists,
		playback:  deps.Playback,
		recorder:  recorder,
	}
}

// Evaluator returns the membership evaluator used by the reconciler.
func (r *Reconciler) Evaluator() *membership.Evaluator {
	return r.evaluator
}

// Reconcile reconciles a single emitter against the snapshot.
func (r *Reconciler) Reconcile(ctx context.Context, s *scene.Snapshot, e emitter.Emitter) (Outcome, error) {
	out := Outcome{EmitterID: e.ID}
	if !r.gate.IsAuthority() {
		out.Reason = "not authority"
		return out, nil
	}

	cfg, err := e.Config()
	if err != nil {
		r.recorder.Failure("config")
		return out, errors.Mark(err, ErrInvalidConfig)
	}
	if !cfg.Participates() {
		out.Reason = "not playlist-controlled"
		return out, nil
	}

	return r.apply(ctx, e, cfg, r.evaluator.IsAnyObserverInside(e, s))
}

// Sweep reconciles every playlist-controlled emitter of an active scene.
//
// Emitters sharing a playlist are reconciled once per playlist: the playlist
// is wanted when any of them has an observer inside, and the first such
// emitter's configuration drives the start. Failures of one emitter do not
// stop the sweep; they are combined into the returned error.
func (r *Reconciler) Sweep(ctx context.Context, s *scene.Snapshot) (Result, error) {
	res := Result{SceneID: s.ID}
	if !r.gate.IsAuthority() || !s.Active {
		return res, nil
	}

	started := time.Now()

	type member struct {
		emitter emitter.Emitter
		cfg     emitter.Config
		inside  bool
	}
	groups := make(map[string][]member)
	order := make([]string, 0)

	for _, e := range s.Emitters {
		cfg, err := e.Config()
		if err != nil {
			res.Invalid++
			r.recorder.Failure("config")
			zlog.Warn().Msgf("reconcile: skipping emitter with invalid flags: emitter_id=%s error=%v", e.ID, err)
			continue
		}
		if !cfg.Participates() {
			continue
		}
		if _, ok := groups[cfg.PlaylistID]; !ok {
			order = append(order, cfg.PlaylistID)
		}
		groups[cfg.PlaylistID] = append(groups[cfg.PlaylistID], member{
			emitter: e,
			cfg:     cfg,
			inside:  r.evaluator.IsAnyObserverInside(e, s),
		})
	}

	var errs error
	for _, playlistID := range order {
		members := groups[playlistID]

		driver := members[0]
		for _, m := range members {
			if m.inside {
				driver = m
				break
			}
		}

		out, err := r.apply(ctx, driver.emitter, driver.cfg, driver.inside)
		res.Outcomes = append(res.Outcomes, out)
		if err != nil {
			errs = errors.CombineErrors(errs, err)
		}

		for _, m := range members {
			if m.emitter.ID == driver.emitter.ID {
				continue
			}
			res.Outcomes = append(res.Outcomes, Outcome{
				EmitterID:  m.emitter.ID,
				PlaylistID: playlistID,
				Inside:     m.inside,
				Playing:    out.Playing,
				Reason:     "playlist driven by " + driver.emitter.ID,
			})
		}
	}

	r.recorder.SweepCompleted(time.Since(started), len(res.Outcomes))
	zlog.Debug().Msgf("reconcile: sweep completed: scene_id=%s emitters=%d started=%d stopped=%d invalid=%d",
		s.ID, len(res.Outcomes), res.Count(ActionStart), res.Count(ActionStop), res.Invalid)

	return res, errs
}

// Release stops the playlist of a deleted emitter. Emitters that were not
// playlist-controlled are ignored.
func (r *Reconciler) Release(ctx context.Context, e emitter.Emitter) (Outcome, error) {
	out := Outcome{EmitterID: e.ID}
	if !r.gate.IsAuthority() {
		out.Reason = "not authority"
		return out, nil
	}

	cfg, err := e.Config()
	if err != nil || !cfg.Participates() {
		out.Reason = "not playlist-controlled"
		return out, nil
	}
	out.PlaylistID = cfg.PlaylistID

	if err := r.playback.StopAll(ctx, cfg.PlaylistID, playback.Options{Fade: cfg.Fade()}); err != nil {
		r.recorder.Failure("stop")
		return out, errors.Wrapf(err, "failed to stop playlist %s of deleted emitter %s", cfg.PlaylistID, e.ID)
	}
	out.Action = ActionStop
	r.recorder.Transition(ActionStop.String())
	zlog.Info().Msgf("reconcile: released deleted emitter: emitter_id=%s playlist_id=%s fade=%v", e.ID, cfg.PlaylistID, cfg.Fade())
	return out, nil
}

// apply runs the transition table for one emitter.
func (r *Reconciler) apply(ctx context.Context, e emitter.Emitter, cfg emitter.Config, inside bool) (Outcome, error) {
	out := Outcome{EmitterID: e.ID, PlaylistID: cfg.PlaylistID, Inside: inside}

	pl, ok := r.playlists.Playlist(ctx, cfg.PlaylistID)
	if !ok {
		out.Reason = "playlist not found"
		zlog.Debug().Msgf("reconcile: playlist not found: emitter_id=%s playlist_id=%s", e.ID, cfg.PlaylistID)
		return out, nil
	}
	out.Playing = pl.IsPlaying()

	switch {
	case !inside && out.Playing:
		return r.stop(ctx, e, cfg, out)
	case inside && !out.Playing:
		return r.start(ctx, e, cfg, pl, out)
	case inside:
		out.Reason = "already playing"
	default:
		out.Reason = "idle"
	}
	return out, nil
}

func (r *Reconciler) stop(ctx context.Context, e emitter.Emitter, cfg emitter.Config, out Outcome) (Outcome, error) {
	if err := r.playback.StopAll(ctx, cfg.PlaylistID, playback.Options{Fade: cfg.Fade()}); err != nil {
		r.recorder.Failure("stop")
		return out, errors.Wrapf(err, "failed to stop playlist %s for emitter %s", cfg.PlaylistID, e.ID)
	}
	out.Action = ActionStop
	r.recorder.Transition(ActionStop.String())
	zlog.Info().Msgf("reconcile: stopped playlist: emitter_id=%s playlist_id=%s fade=%v", e.ID, cfg.PlaylistID, cfg.Fade())
	return out, nil
}

func (r *Reconciler) start(ctx context.Context, e emitter.Emitter, cfg emitter.Config, pl *playlist.Playlist, out Outcome) (Outcome, error) {
	t, ok := r.selector.Pick(pl, cfg.Mode)
	if !ok {
		out.Reason = "no candidate track"
		zlog.Debug().Msgf("reconcile: no candidate track: emitter_id=%s playlist_id=%s", e.ID, pl.ID)
		return out, nil
	}

	if active, ok := r.playback.Active(pl.ID); ok && active == t.ID {
		out.Reason = "track already active"
		return out, nil
	}

	opts := playback.Options{Fade: cfg.Fade(), Loop: cfg.Loop, Advance: cfg.Mode == emitter.ModeSequential}
	if err := r.playback.StartTrack(ctx, pl.ID, t.ID, opts); err != nil {
		r.recorder.Failure("start")
		return out, errors.Wrapf(err, "failed to start track %s of playlist %s for emitter %s", t.ID, pl.ID, e.ID)
	}
	out.Action = ActionStart
	out.TrackID = t.ID
	r.recorder.Transition(ActionStart.String())
	zlog.Info().Msgf("reconcile: started track: emitter_id=%s playlist_id=%s track=%s mode=%s fade=%v loop=%v",
		e.ID, pl.ID, t.Name, cfg.Mode, opts.Fade, opts.Loop)
	return out, nil
}
