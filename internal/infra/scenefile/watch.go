package scenefile

import (
	"context"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	zlog "github.com/rs/zerolog/log"
)

// Watcher reloads a scene file when it changes on disk.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
}

// NewWatcher watches the directory of path, so that editors replacing the
// file are noticed too.
func NewWatcher(path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve scene file path")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create file watcher")
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, errors.Wrapf(err, "failed to watch %s", filepath.Dir(abs))
	}

	return &Watcher{
		path:     abs,
		watcher:  w,
		debounce: 100 * time.Millisecond,
	}, nil
}

// Run calls onChange with each successfully reloaded document until ctx is
// done. Bursts of events are coalesced. The watcher is closed on return.
// Unreadable or invalid files are logged and skipped.
func (w *Watcher) Run(ctx context.Context, onChange func(*Document)) error {
	defer w.watcher.Close()

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C
		case <-timerC:
			timerC = nil
			doc, err := Load(w.path)
			if err != nil {
				zlog.Warn().Msgf("scenefile: reload failed, keeping previous scene: path=%s error=%v", w.path, err)
				continue
			}
			zlog.Info().Msgf("scenefile: reloaded: path=%s scene_id=%s emitters=%d tokens=%d playlists=%d",
				w.path, doc.Scene.ID, len(doc.Scene.Emitters), len(doc.Scene.Tokens), len(doc.Playlists))
			onChange(doc)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			zlog.Warn().Msgf("scenefile: watcher error: path=%s error=%v", w.path, err)
		}
	}
}
