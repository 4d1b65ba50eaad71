package connect

import (
	"context"
	"sync"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/zonebox/internal/app/authority"
	"github.com/osa030/zonebox/internal/app/dispatch"
	"github.com/osa030/zonebox/internal/app/membership"
	"github.com/osa030/zonebox/internal/app/notification"
	"github.com/osa030/zonebox/internal/domain/emitter"
	"github.com/osa030/zonebox/internal/domain/scene"
	"github.com/osa030/zonebox/internal/infra/store"
)

// Publisher queues scene lifecycle events.
type Publisher interface {
	Publish(ev dispatch.Event) error
}

// SceneService implements the SceneService RPC.
type SceneService struct {
	store        *store.Store
	events       Publisher
	gate         authority.Gate
	evaluator    *membership.Evaluator
	notification *notification.Manager
	done         <-chan struct{}
	instanceID   string
}

// SceneServiceDeps holds the collaborators of a SceneService.
type SceneServiceDeps struct {
	Store        *store.Store
	Events       Publisher
	Gate         authority.Gate
	Notification *notification.Manager
	Done         <-chan struct{} // Closed on shutdown; ends open streams
}

// NewSceneService creates a new SceneService.
func NewSceneService(deps SceneServiceDeps) *SceneService {
	return &SceneService{
		store:        deps.Store,
		events:       deps.Events,
		gate:         deps.Gate,
		evaluator:    membership.NewEvaluator(deps.Gate),
		notification: deps.Notification,
		done:         deps.Done,
		instanceID:   uuid.New().String(),
	}
}

// PushScene replaces a scene.
func (s *SceneService) PushScene(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	var in pushSceneRequest
	if err := decode(req.Msg, &in); err != nil {
		return nil, err
	}

	snap := in.Scene.toSnapshot()
	for _, e := range snap.Emitters {
		if _, err := e.Config(); err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
	}
	prev, _ := s.store.Scene(snap.ID)
	if err := s.store.PutScene(snap); err != nil {
		return nil, toConnectError(err)
	}

	// Emitters missing from the replacement are released like deletions.
	for _, e := range scene.RemovedEmitters(prev, &snap) {
		if err := s.publish(dispatch.Event{Type: dispatch.EventEmitterDeleted, SceneID: e.SceneID, Emitter: &e}); err != nil {
			return nil, err
		}
	}

	evType := dispatch.EventObserverChanged
	if snap.Active {
		evType = dispatch.EventSceneActivated
	}
	if err := s.publish(dispatch.Event{Type: evType, SceneID: snap.ID}); err != nil {
		return nil, err
	}

	zlog.Info().Msgf("rpc: scene pushed: scene_id=%s emitters=%d tokens=%d active=%v",
		snap.ID, len(snap.Emitters), len(snap.Tokens), snap.Active)
	return respond(map[string]any{"sceneId": snap.ID, "active": snap.Active})
}

// ActivateScene makes a stored scene the active one.
func (s *SceneService) ActivateScene(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	var in sceneRefRequest
	if err := decode(req.Msg, &in); err != nil {
		return nil, err
	}
	if err := s.store.ActivateScene(in.SceneID); err != nil {
		return nil, toConnectError(err)
	}
	if err := s.publish(dispatch.Event{Type: dispatch.EventSceneActivated, SceneID: in.SceneID}); err != nil {
		return nil, err
	}
	zlog.Info().Msgf("rpc: scene activated: scene_id=%s", in.SceneID)
	return respond(map[string]any{"sceneId": in.SceneID})
}

// UpsertToken creates or moves a token.
func (s *SceneService) UpsertToken(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	var in upsertTokenRequest
	if err := decode(req.Msg, &in); err != nil {
		return nil, err
	}
	sceneID, err := s.store.UpsertToken(in.SceneID, in.Token.toToken())
	if err != nil {
		return nil, toConnectError(err)
	}
	if err := s.publish(dispatch.Event{Type: dispatch.EventObserverChanged, SceneID: sceneID}); err != nil {
		return nil, err
	}
	return respond(map[string]any{"sceneId": sceneID, "tokenId": in.Token.ID})
}

// RemoveToken removes a token.
func (s *SceneService) RemoveToken(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	var in removeTokenRequest
	if err := decode(req.Msg, &in); err != nil {
		return nil, err
	}
	t, err := s.store.RemoveToken(in.SceneID, in.TokenID)
	if err != nil {
		return nil, toConnectError(err)
	}
	if err := s.publish(dispatch.Event{Type: dispatch.EventObserverChanged, SceneID: t.SceneID}); err != nil {
		return nil, err
	}
	return respond(map[string]any{"sceneId": t.SceneID, "tokenId": t.ID})
}

// UpsertEmitter creates or updates an emitter. Emitters with invalid
// playlist-control flags are rejected.
func (s *SceneService) UpsertEmitter(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	var in upsertEmitterRequest
	if err := decode(req.Msg, &in); err != nil {
		return nil, err
	}
	e := in.Emitter.toEmitter()
	if _, err := e.Config(); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	sceneID, err := s.store.UpsertEmitter(in.SceneID, e)
	if err != nil {
		return nil, toConnectError(err)
	}
	if err := s.publish(dispatch.Event{Type: dispatch.EventEmitterChanged, SceneID: sceneID}); err != nil {
		return nil, err
	}
	return respond(map[string]any{"sceneId": sceneID, "emitterId": e.ID})
}

// RemoveEmitter removes an emitter and releases its playlist.
func (s *SceneService) RemoveEmitter(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	var in removeEmitterRequest
	if err := decode(req.Msg, &in); err != nil {
		return nil, err
	}
	e, err := s.store.RemoveEmitter(in.SceneID, in.EmitterID)
	if err != nil {
		return nil, toConnectError(err)
	}
	if err := s.publish(dispatch.Event{Type: dispatch.EventEmitterDeleted, SceneID: e.SceneID, Emitter: &e}); err != nil {
		return nil, err
	}
	zlog.Info().Msgf("rpc: emitter removed: scene_id=%s emitter_id=%s", e.SceneID, e.ID)
	return respond(map[string]any{"sceneId": e.SceneID, "emitterId": e.ID})
}


// SetEmitterFlags merges values into the playlist-control flags of an
// existing emitter. The merged flags must still decode.
func (s *SceneService) SetEmitterFlags(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	var in setEmitterFlagsRequest
	if err := decode(req.Msg, &in); err != nil {
		return nil, err
	}

	sceneID := in.SceneID
	if sceneID == "" {
		sceneID = s.store.ActiveSceneID()
	}
	if sceneID == "" {
		return nil, toConnectError(store.ErrNoActiveScene)
	}
	snap, ok := s.store.Scene(sceneID)
	if !ok {
		return nil, toConnectError(errors.Wrapf(store.ErrSceneNotFound, "scene %s", sceneID))
	}
	e, ok := snap.Emitter(in.EmitterID)
	if !ok {
		return nil, toConnectError(errors.Wrapf(store.ErrEmitterNotFound, "emitter %s", in.EmitterID))
	}

	merged := e.Clone()
	for k, v := range in.Flags {
		merged.SetFlag(emitter.Namespace, k, v)
	}
	if _, err := merged.Config(); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	sceneID, err := s.store.UpdateFlags(snap.ID, e.ID, emitter.Namespace, in.Flags)
	if err != nil {
		return nil, toConnectError(err)
	}
	if err := s.publish(dispatch.Event{Type: dispatch.EventEmitterChanged, SceneID: sceneID}); err != nil {
		return nil, err
	}
	zlog.Info().Msgf("rpc: emitter flags updated: scene_id=%s emitter_id=%s keys=%d", sceneID, e.ID, len(in.Flags))
	return respond(map[string]any{"sceneId": sceneID, "emitterId": e.ID})
}

// UpsertPlaylist creates or replaces a playlist.
func (s *SceneService) UpsertPlaylist(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	var in upsertPlaylistRequest
	if err := decode(req.Msg, &in); err != nil {
		return nil, err
	}
	p := in.Playlist.toPlaylist()
	if err := s.store.UpsertPlaylist(p); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	// Playlist contents can change decisions of emitters referencing it.
	if err := s.publish(dispatch.Event{Type: dispatch.EventEmitterChanged}); err != nil {
		return nil, err
	}
	return respond(map[string]any{"playlistId": p.ID, "tracks": float64(len(p.Tracks))})
}

// GetStatus reports the active scene and the state of its emitters.
func (s *SceneService) GetStatus(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	status := map[string]any{
		"instanceId":  s.instanceID,
		"authority":   s.gate.IsAuthority(),
		"subscribers": float64(s.notification.SubscriberCount()),
	}

	playlists := make([]any, 0)
	for _, p := range s.store.Playlists() {
		entry := map[string]any{
			"id":     p.ID,
			"name":   p.Name,
			"source": p.Source,
			"tracks": float64(len(p.Tracks)),
		}
		if t, ok := p.PlayingTrack(); ok {
			entry["playingTrackId"] = t.ID
		}
		playlists = append(playlists, entry)
	}
	status["playlists"] = playlists

	snap, ok := s.store.ActiveSnapshot(ctx)
	if !ok {
		return respond(status)
	}
	status["sceneId"] = snap.ID

	emitters := make([]any, 0, len(snap.Emitters))
	for _, e := range snap.Emitters {
		entry := map[string]any{"id": e.ID, "name": e.Name}
		cfg, err := e.Config()
		if err != nil {
			entry["error"] = err.Error()
			emitters = append(emitters, entry)
			continue
		}
		entry["participates"] = cfg.Participates()
		entry["playlistId"] = cfg.PlaylistID
		entry["mode"] = cfg.Mode.String()
		entry["channel"] = cfg.Channel.String()
		entry["radius"] = e.EffectiveRadius()
		entry["inside"] = s.evaluator.IsAnyObserverInside(e, snap)
		entry["playing"] = false
		if p, ok := s.store.Playlist(ctx, cfg.PlaylistID); ok {
			if t, ok := p.PlayingTrack(); ok {
				entry["playing"] = true
				entry["trackId"] = t.ID
				entry["trackName"] = t.Name
			}
		}
		emitters = append(emitters, entry)
	}
	status["emitters"] = emitters
	status["tokens"] = float64(len(snap.Tokens))

	return respond(status)
}

// Subscribe streams playback notifications, starting with the tracks
// currently playing.
func (s *SceneService) Subscribe(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
	stream *connect.ServerStream[structpb.Struct],
) error {
	adapter := &notificationStreamAdapter{stream: stream}

	for _, p := range s.store.Playlists() {
		t, ok := p.PlayingTrack()
		if !ok {
			continue
		}
		initial := &notification.Notification{
			SequenceNo: s.notification.NextSequenceNo(),
			Type:       "initial_state",
			PlaylistID: p.ID,
			TrackID:    t.ID,
			TrackName:  t.Name,
			TrackPath:  t.Path,
			State:      "playing",
		}
		if err := adapter.Send(initial); err != nil {
			return err
		}
	}

	subscriptionID := s.notification.Subscribe(adapter)
	defer s.notification.Unsubscribe(subscriptionID)
	zlog.Debug().Msgf("rpc: subscriber connected: subscription_id=%s", subscriptionID)

	select {
	case <-ctx.Done():
	case <-s.done:
	}
	zlog.Debug().Msgf("rpc: subscriber disconnected: subscription_id=%s", subscriptionID)
	return nil
}

func (s *SceneService) publish(ev dispatch.Event) error {
	if err := s.events.Publish(ev); err != nil {
		return connect.NewError(connect.CodeUnavailable, err)
	}
	return nil
}

// toConnectError maps store errors to RPC codes.
func toConnectError(err error) error {
	switch {
	case errors.Is(err, store.ErrSceneNotFound),
		errors.Is(err, store.ErrEmitterNotFound),
		errors.Is(err, store.ErrTokenNotFound),
		errors.Is(err, store.ErrPlaylistNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, store.ErrNoActiveScene):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	default:
		return connect.NewError(connect.CodeInvalidArgument, err)
	}
}

// notificationStreamAdapter adapts connect.ServerStream to notification.Stream.
// Sends are serialised since a stream is not safe for concurrent use.
type notificationStreamAdapter struct {
	mu     sync.Mutex
	stream *connect.ServerStream[structpb.Struct]
}

func (a *notificationStreamAdapter) Send(n *notification.Notification) error {
	msg, err := notificationStruct(n)
	if err != nil {
		return errors.Wrap(err, "failed to encode notification")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stream.Send(msg)
}
