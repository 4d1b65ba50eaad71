// Package scenefile loads scene snapshots and playlists from YAML files.
package scenefile

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/osa030/zonebox/internal/domain/emitter"
	"github.com/osa030/zonebox/internal/domain/playlist"
	"github.com/osa030/zonebox/internal/domain/scene"
	"github.com/osa030/zonebox/internal/domain/token"
	"github.com/osa030/zonebox/internal/domain/track"
)

// Source is the playlist source label of file playlists.
const Source = "scene"

// file is the on-disk layout.
type file struct {
	Scene     sceneEntry      `yaml:"scene"`
	Playlists []playlistEntry `yaml:"playlists"`
}

type sceneEntry struct {
	ID           string         `yaml:"id"`
	Name         string         `yaml:"name"`
	Active       bool           `yaml:"active"`
	GridSize     float64        `yaml:"gridSize"`
	GridDistance float64        `yaml:"gridDistance"`
	Emitters     []emitterEntry `yaml:"emitters"`
	Tokens       []tokenEntry   `yaml:"tokens"`
}

type emitterEntry struct {
	ID     string                    `yaml:"id"`
	Name   string                    `yaml:"name"`
	X      float64                   `yaml:"x"`
	Y      float64                   `yaml:"y"`
	Radius float64                   `yaml:"radius"`
	Path   string                    `yaml:"path"`
	Flags  map[string]map[string]any `yaml:"flags"`
}

type tokenEntry struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	X       float64  `yaml:"x"`
	Y       float64  `yaml:"y"`
	Hidden  bool     `yaml:"hidden"`
	ActorID string   `yaml:"actorId"`
	Owners  []string `yaml:"owners"`
}

type playlistEntry struct {
	ID     string       `yaml:"id"`
	Name   string       `yaml:"name"`
	Tracks []trackEntry `yaml:"tracks"`
}

type trackEntry struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Path       string `yaml:"path"`
	Disabled   bool   `yaml:"disabled"`
	DurationMs int64  `yaml:"durationMs"`
}

// Document is a decoded scene file.
type Document struct {
	Scene     scene.Snapshot
	Playlists []*playlist.Playlist
}

// Sink receives the contents of a document.
type Sink interface {
	PutScene(sc scene.Snapshot) error
	UpsertPlaylist(p *playlist.Playlist) error
}

// Load reads and decodes a scene file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read scene file")
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "scene file %s", path)
	}
	return doc, nil
}

// Parse decodes a scene file. Playlists are written back with Playing unset.
func Parse(data []byte) (*Document, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "failed to parse scene file")
	}
	if f.Scene.ID == "" {
		return nil, errors.New("scene.id is required")
	}

	doc := &Document{
		Scene: scene.Snapshot{
			ID:           f.Scene.ID,
			Name:         f.Scene.Name,
			Active:       f.Scene.Active,
			GridSize:     f.Scene.GridSize,
			GridDistance: f.Scene.GridDistance,
		},
	}

	for _, e := range f.Scene.Emitters {
		if e.ID == "" {
			return nil, errors.New("emitter id is required")
		}
		em := emitter.Emitter{
			ID:             e.ID,
			SceneID:        f.Scene.ID,
			Name:           e.Name,
			X:              e.X,
			Y:              e.Y,
			DocumentRadius: e.Radius,
			Path:           e.Path,
		}
		if len(e.Flags) > 0 {
			em.Flags = emitter.Flags(e.Flags)
		}
		// Surface bad flags at load time; the sweep would skip the emitter anyway.
		if _, err := em.Config(); err != nil {
			return nil, err
		}
		doc.Scene.Emitters = append(doc.Scene.Emitters, em)
	}

	for _, t := range f.Scene.Tokens {
		if t.ID == "" {
			return nil, errors.New("token id is required")
		}
		doc.Scene.Tokens = append(doc.Scene.Tokens, token.Token{
			ID:       t.ID,
			SceneID:  f.Scene.ID,
			Name:     t.Name,
			X:        t.X,
			Y:        t.Y,
			Hidden:   t.Hidden,
			ActorID:  t.ActorID,
			OwnerIDs: t.Owners,
		})
	}

	for _, p := range f.Playlists {
		if p.ID == "" {
			return nil, errors.New("playlist id is required")
		}
		pl := &playlist.Playlist{ID: p.ID, Name: p.Name, Source: Source}
		for _, t := range p.Tracks {
			if t.ID == "" {
				return nil, errors.Newf("playlist %s: track id is required", p.ID)
			}
			pl.Tracks = append(pl.Tracks, track.Track{
				ID:       t.ID,
				Name:     t.Name,
				Path:     t.Path,
				Disabled: t.Disabled,
				Duration: time.Duration(t.DurationMs) * time.Millisecond,
			})
		}
		doc.Playlists = append(doc.Playlists, pl)
	}

	return doc, nil
}

// Apply stores the playlists, then the scene.
func (d *Document) Apply(sink Sink) error {
	for _, p := range d.Playlists {
		if err := sink.UpsertPlaylist(p); err != nil {
			return errors.Wrapf(err, "failed to store playlist %s", p.ID)
		}
	}
	if err := sink.PutScene(d.Scene); err != nil {
		return errors.Wrapf(err, "failed to store scene %s", d.Scene.ID)
	}
	return nil
}
