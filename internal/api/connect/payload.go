package connect

import (
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/zonebox/internal/app/notification"
	"github.com/osa030/zonebox/internal/domain/emitter"
	"github.com/osa030/zonebox/internal/domain/playlist"
	"github.com/osa030/zonebox/internal/domain/scene"
	"github.com/osa030/zonebox/internal/domain/token"
	"github.com/osa030/zonebox/internal/domain/track"
)

type scenePayload struct {
	ID           string           `mapstructure:"id"`
	Name         string           `mapstructure:"name"`
	Active       bool             `mapstructure:"active"`
	GridSize     float64          `mapstructure:"gridSize"`
	GridDistance float64          `mapstructure:"gridDistance"`
	Emitters     []emitterPayload `mapstructure:"emitters"`
	Tokens       []tokenPayload   `mapstructure:"tokens"`
}

type emitterPayload struct {
	ID             string                    `mapstructure:"id"`
	Name           string                    `mapstructure:"name"`
	X              float64                   `mapstructure:"x"`
	Y              float64                   `mapstructure:"y"`
	Radius         *float64                  `mapstructure:"radius"`
	DocumentRadius float64                   `mapstructure:"documentRadius"`
	Path           string                    `mapstructure:"path"`
	Flags          map[string]map[string]any `mapstructure:"flags"`
}

type tokenPayload struct {
	ID      string   `mapstructure:"id"`
	Name    string   `mapstructure:"name"`
	X       float64  `mapstructure:"x"`
	Y       float64  `mapstructure:"y"`
	Hidden  bool     `mapstructure:"hidden"`
	ActorID string   `mapstructure:"actorId"`
	Owners  []string `mapstructure:"owners"`
}

type playlistPayload struct {
	ID     string         `mapstructure:"id"`
	Name   string         `mapstructure:"name"`
	Tracks []trackPayload `mapstructure:"tracks"`
}

type trackPayload struct {
	ID         string `mapstructure:"id"`
	Name       string `mapstructure:"name"`
	Path       string `mapstructure:"path"`
	Disabled   bool   `mapstructure:"disabled"`
	DurationMs int64  `mapstructure:"durationMs"`
}

type pushSceneRequest struct {
	Scene scenePayload `mapstructure:"scene"`
}

type sceneRefRequest struct {
	SceneID string `mapstructure:"sceneId"`
}

type upsertTokenRequest struct {
	SceneID string       `mapstructure:"sceneId"`
	Token   tokenPayload `mapstructure:"token"`
}

type removeTokenRequest struct {
	SceneID string `mapstructure:"sceneId"`
	TokenID string `mapstructure:"tokenId"`
}

type upsertEmitterRequest struct {
	SceneID string         `mapstructure:"sceneId"`
	Emitter emitterPayload `mapstructure:"emitter"`
}

type removeEmitterRequest struct {
	SceneID   string `mapstructure:"sceneId"`
	EmitterID string `mapstructure:"emitterId"`
}

type setEmitterFlagsRequest struct {
	SceneID   string         `mapstructure:"sceneId"`
	EmitterID string         `mapstructure:"emitterId"`
	Flags     map[string]any `mapstructure:"flags"`
}

type upsertPlaylistRequest struct {
	Playlist playlistPayload `mapstructure:"playlist"`
}

// decode decodes a request message into out, rejecting unknown fields.
func decode(msg *structpb.Struct, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		TagName:     "mapstructure",
		ErrorUnused: true,
	})
	if err != nil {
		return connect.NewError(connect.CodeInternal, errors.Wrap(err, "failed to create decoder"))
	}
	if err := decoder.Decode(msg.AsMap()); err != nil {
		return connect.NewError(connect.CodeInvalidArgument, errors.Wrap(err, "invalid request"))
	}
	return nil
}

// respond encodes a response map.
func respond(m map[string]any) (*connect.Response[structpb.Struct], error) {
	msg, err := structpb.NewStruct(m)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, errors.Wrap(err, "failed to encode response"))
	}
	return connect.NewResponse(msg), nil
}

func (p scenePayload) toSnapshot() scene.Snapshot {
	s := scene.Snapshot{
		ID:           p.ID,
		Name:         p.Name,
		Active:       p.Active,
		GridSize:     p.GridSize,
		GridDistance: p.GridDistance,
	}
	for _, e := range p.Emitters {
		s.Emitters = append(s.Emitters, e.toEmitter())
	}
	for _, t := range p.Tokens {
		s.Tokens = append(s.Tokens, t.toToken())
	}
	return s
}

func (p emitterPayload) toEmitter() emitter.Emitter {
	e := emitter.Emitter{
		ID:             p.ID,
		Name:           p.Name,
		X:              p.X,
		Y:              p.Y,
		Radius:         p.Radius,
		DocumentRadius: p.DocumentRadius,
		Path:           p.Path,
	}
	if len(p.Flags) > 0 {
		e.Flags = emitter.Flags(p.Flags)
	}
	return e
}

func (p tokenPayload) toToken() token.Token {
	return token.Token{
		ID:       p.ID,
		Name:     p.Name,
		X:        p.X,
		Y:        p.Y,
		Hidden:   p.Hidden,
		ActorID:  p.ActorID,
		OwnerIDs: p.Owners,
	}
}

func (p playlistPayload) toPlaylist() *playlist.Playlist {
	pl := &playlist.Playlist{ID: p.ID, Name: p.Name, Source: "rpc"}
	for _, t := range p.Tracks {
		pl.Tracks = append(pl.Tracks, track.Track{
			ID:       t.ID,
			Name:     t.Name,
			Path:     t.Path,
			Disabled: t.Disabled,
			Duration: time.Duration(t.DurationMs) * time.Millisecond,
		})
	}
	return pl
}

// notificationStruct converts a notification to its wire form.
func notificationStruct(n *notification.Notification) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"sequenceNo": float64(n.SequenceNo),
		"type":       n.Type,
		"playlistId": n.PlaylistID,
		"trackId":    n.TrackID,
		"trackName":  n.TrackName,
		"trackPath":  n.TrackPath,
		"state":      n.State,
		"fadeMs":     float64(n.Fade.Milliseconds()),
		"loop":       n.Loop,
		"at":         n.At.Format(time.RFC3339Nano),
	})
}

// SceneRequest builds a PushScene request for s.
func SceneRequest(s scene.Snapshot) map[string]any {
	emitters := make([]any, 0, len(s.Emitters))
	for _, e := range s.Emitters {
		m := map[string]any{
			"id":             e.ID,
			"name":           e.Name,
			"x":              e.X,
			"y":              e.Y,
			"documentRadius": e.DocumentRadius,
			"path":           e.Path,
		}
		if e.Radius != nil {
			m["radius"] = *e.Radius
		}
		if len(e.Flags) > 0 {
			flags := make(map[string]any, len(e.Flags))
			for ns, bag := range e.Flags {
				flags[ns] = map[string]any(bag)
			}
			m["flags"] = flags
		}
		emitters = append(emitters, m)
	}

	tokens := make([]any, 0, len(s.Tokens))
	for _, t := range s.Tokens {
		tokens = append(tokens, TokenRequest(t)["token"])
	}

	return map[string]any{
		"scene": map[string]any{
			"id":           s.ID,
			"name":         s.Name,
			"active":       s.Active,
			"gridSize":     s.GridSize,
			"gridDistance": s.GridDistance,
			"emitters":     emitters,
			"tokens":       tokens,
		},
	}
}

// TokenRequest builds an UpsertToken request for t.
func TokenRequest(t token.Token) map[string]any {
	owners := make([]any, 0, len(t.OwnerIDs))
	for _, id := range t.OwnerIDs {
		owners = append(owners, id)
	}
	m := map[string]any{
		"token": map[string]any{
			"id":      t.ID,
			"name":    t.Name,
			"x":       t.X,
			"y":       t.Y,
			"hidden":  t.Hidden,
			"actorId": t.ActorID,
			"owners":  owners,
		},
	}
	if t.SceneID != "" {
		m["sceneId"] = t.SceneID
	}
	return m
}

// PlaylistRequest builds an UpsertPlaylist request for p.
func PlaylistRequest(p *playlist.Playlist) map[string]any {
	tracks := make([]any, 0, len(p.Tracks))
	for _, t := range p.Tracks {
		tracks = append(tracks, map[string]any{
			"id":         t.ID,
			"name":       t.Name,
			"path":       t.Path,
			"disabled":   t.Disabled,
			"durationMs": float64(t.Duration.Milliseconds()),
		})
	}
	return map[string]any{
		"playlist": map[string]any{
			"id":     p.ID,
			"name":   p.Name,
			"tracks": tracks,
		},
	}
}
