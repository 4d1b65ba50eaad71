// Package store provides the in-memory host model: scenes, their tokens and
// emitters, and the playlist documents emitters refer to.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/zonebox/internal/domain/emitter"
	"github.com/osa030/zonebox/internal/domain/playlist"
	"github.com/osa030/zonebox/internal/domain/scene"
	"github.com/osa030/zonebox/internal/domain/token"
)

// Errors
var (
	ErrSceneNotFound    = errors.New("scene not found")
	ErrNoActiveScene    = errors.New("no active scene")
	ErrEmitterNotFound  = errors.New("emitter not found")
	ErrTokenNotFound    = errors.New("token not found")
	ErrPlaylistNotFound = errors.New("playlist not found")
	ErrTrackNotFound    = errors.New("track not found")
)

// Store holds the documents of the host. All reads return copies.
type Store struct {
	mu        sync.RWMutex
	scenes    map[string]*scene.Snapshot
	activeID  string
	playlists map[string]*playlist.Playlist
}

// New creates an empty store.
func New() *Store {
	return &Store{
		scenes:    make(map[string]*scene.Snapshot),
		playlists: make(map[string]*playlist.Playlist),
	}
}

// PutScene replaces a scene. A scene marked active becomes the active scene.
func (s *Store) PutScene(sc scene.Snapshot) error {
	if sc.ID == "" {
		return errors.New("scene id is required")
	}

	c := sc.Clone()
	for i := range c.Emitters {
		c.Emitters[i].SceneID = c.ID
	}
	for i := range c.Tokens {
		c.Tokens[i].SceneID = c.ID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.scenes[c.ID] = c
	if c.Active {
		s.activateLocked(c.ID)
	} else if s.activeID == c.ID {
		s.activeID = ""
	}
	zlog.Debug().Msgf("store: scene stored: scene_id=%s emitters=%d tokens=%d active=%v",
		c.ID, len(c.Emitters), len(c.Tokens), c.Active)
	return nil
}

// ActivateScene makes the scene the active one.
func (s *Store) ActivateScene(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.scenes[id]; !ok {
		return errors.Wrapf(ErrSceneNotFound, "scene %s", id)
	}
	s.activateLocked(id)
	return nil
}

func (s *Store) activateLocked(id string) {
	for sid, sc := range s.scenes {
		sc.Active = sid == id
	}
	s.activeID = id
}

// ActiveSceneID returns the ID of the active scene.
func (s *Store) ActiveSceneID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// ActiveSnapshot returns a copy of the active scene.
func (s *Store) ActiveSnapshot(ctx context.Context) (*scene.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, ok := s.scenes[s.activeID]
	if !ok {
		return nil, false
	}
	return sc.Clone(), true
}

// Scene returns a copy of a scene.
func (s *Store) Scene(id string) (*scene.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, ok := s.scenes[id]
	if !ok {
		return nil, false
	}
	return sc.Clone(), true
}

// resolveLocked returns the scene with the given ID; an empty ID means the active scene.
func (s *Store) resolveLocked(sceneID string) (*scene.Snapshot, error) {
	if sceneID == "" {
		if s.activeID == "" {
			return nil, ErrNoActiveScene
		}
		sceneID = s.activeID
	}
	sc, ok := s.scenes[sceneID]
	if !ok {
		return nil, errors.Wrapf(ErrSceneNotFound, "scene %s", sceneID)
	}
	return sc, nil
}

// UpsertToken creates or replaces a token and returns the scene ID it was stored in.
func (s *Store) UpsertToken(sceneID string, t token.Token) (string, error) {
	if t.ID == "" {
		return "", errors.New("token id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sc, err := s.resolveLocked(sceneID)
	if err != nil {
		return "", err
	}
	t.SceneID = sc.ID
	t.OwnerIDs = append([]string(nil), t.OwnerIDs...)
	for i := range sc.Tokens {
		if sc.Tokens[i].ID == t.ID {
			sc.Tokens[i] = t
			return sc.ID, nil
		}
	}
	sc.Tokens = append(sc.Tokens, t)
	return sc.ID, nil
}

// RemoveToken removes a token and returns it.
func (s *Store) RemoveToken(sceneID, tokenID string) (token.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, err := s.resolveLocked(sceneID)
	if err != nil {
		return token.Token{}, err
	}
	for i, t := range sc.Tokens {
		if t.ID == tokenID {
			sc.Tokens = append(sc.Tokens[:i], sc.Tokens[i+1:]...)
			return t, nil
		}
	}
	return token.Token{}, errors.Wrapf(ErrTokenNotFound, "token %s", tokenID)
}

// UpsertEmitter creates or replaces an emitter and returns the scene ID it was stored in.
func (s *Store) UpsertEmitter(sceneID string, e emitter.Emitter) (string, error) {
	if e.ID == "" {
		return "", errors.New("emitter id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sc, err := s.resolveLocked(sceneID)
	if err != nil {
		return "", err
	}
	c := e.Clone()
	c.SceneID = sc.ID
	for i := range sc.Emitters {
		if sc.Emitters[i].ID == c.ID {
			sc.Emitters[i] = c
			return sc.ID, nil
		}
	}
	sc.Emitters = append(sc.Emitters, c)
	return sc.ID, nil
}

// RemoveEmitter removes an emitter and returns it as it was before removal.
func (s *Store) RemoveEmitter(sceneID, emitterID string) (emitter.Emitter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, err := s.resolveLocked(sceneID)
	if err != nil {
		return emitter.Emitter{}, err
	}
	for i, e := range sc.Emitters {
		if e.ID == emitterID {
			sc.Emitters = append(sc.Emitters[:i], sc.Emitters[i+1:]...)
			return e, nil
		}
	}
	return emitter.Emitter{}, errors.Wrapf(ErrEmitterNotFound, "emitter %s", emitterID)
}

// UpdateFlags merges values into the emitter's flag namespace and returns
// the scene ID the emitter was found in.
func (s *Store) UpdateFlags(sceneID, emitterID, namespace string, values map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, err := s.resolveLocked(sceneID)
	if err != nil {
		return "", err
	}
	for i := range sc.Emitters {
		if sc.Emitters[i].ID != emitterID {
			continue
		}
		for k, v := range values {
			sc.Emitters[i].SetFlag(namespace, k, v)
		}
		return sc.ID, nil
	}
	return "", errors.Wrapf(ErrEmitterNotFound, "emitter %s", emitterID)
}

// UpsertPlaylist creates or replaces a playlist. Playing marks of an existing
// playlist are kept for tracks that remain.
func (s *Store) UpsertPlaylist(p *playlist.Playlist) error {
	if p == nil || p.ID == "" {
		return errors.New("playlist id is required")
	}

	c := p.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.playlists[c.ID]; ok {
		if playing, ok := old.PlayingTrack(); ok {
			for i := range c.Tracks {
				if c.Tracks[i].ID == playing.ID {
					c.Tracks[i].Playing = true
				}
			}
		}
	}
	s.playlists[c.ID] = c
	return nil
}

// RemovePlaylist removes a playlist.
func (s *Store) RemovePlaylist(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.playlists[id]; !ok {
		return errors.Wrapf(ErrPlaylistNotFound, "playlist %s", id)
	}
	delete(s.playlists, id)
	return nil
}

// Playlist returns a copy of a playlist.
func (s *Store) Playlist(ctx context.Context, id string) (*playlist.Playlist, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.playlists[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Playlists returns copies of all playlists ordered by ID.
func (s *Store) Playlists() []*playlist.Playlist {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*playlist.Playlist, 0, len(s.playlists))
	for _, p := range s.playlists {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetPlaying marks trackID as the only playing track of the playlist.
// An empty trackID marks every track stopped.
func (s *Store) SetPlaying(ctx context.Context, playlistID, trackID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.playlists[playlistID]
	if !ok {
		return errors.Wrapf(ErrPlaylistNotFound, "playlist %s", playlistID)
	}
	if trackID != "" {
		if _, ok := p.Track(trackID); !ok {
			return errors.Wrapf(ErrTrackNotFound, "track %s in playlist %s", trackID, playlistID)
		}
	}
	for i := range p.Tracks {
		p.Tracks[i].Playing = trackID != "" && p.Tracks[i].ID == trackID
	}
	return nil
}
