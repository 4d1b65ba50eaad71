package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/zonebox/internal/domain/playlist"
	"github.com/osa030/zonebox/internal/domain/track"
)

// Errors
var (
	ErrPlaylistNotFound = errors.New("playlist not found")
	ErrTrackNotFound    = errors.New("track not found")
	ErrClosed           = errors.New("controller closed")
)

// Library is the document side of playback: it resolves playlists and
// persists which track is marked playing.
type Library interface {
	Playlist(ctx context.Context, id string) (*playlist.Playlist, bool)
	// SetPlaying marks trackID as the only playing track of the playlist.
	// An empty trackID marks every track as stopped.
	SetPlaying(ctx context.Context, playlistID, trackID string) error
}

// Config holds controller configuration.
type Config struct {
	TickInterval time.Duration // Resolution of track end timers
}

// channel is the playback state of one playlist.
type channel struct {
	track       track.Track
	options     Options
	startTime   time.Time
	timerCancel func() // Cancel function for track end timer
}

// Controller plays playlist tracks. Each playlist has at most one active track.
type Controller struct {
	mu sync.RWMutex

	library  Library
	channels map[string]*channel
	config   Config

	// Events
	eventCh chan Event

	// Context
	ctx    context.Context
	cancel context.CancelFunc
}

// NewController creates a new playback controller.
func NewController(library Library, config Config) *Controller {
	if config.TickInterval <= 0 {
		config.TickInterval = 100 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		library:  library,
		channels: make(map[string]*channel),
		config:   config,
		eventCh:  make(chan Event, 64),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Events returns the event channel.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// StartTrack starts trackID on the playlist, replacing whatever the playlist
// was playing.
func (c *Controller) StartTrack(ctx context.Context, playlistID, trackID string, opts Options) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctx.Err() != nil {
		return ErrClosed
	}

	pl, ok := c.library.Playlist(ctx, playlistID)
	if !ok {
		return errors.Wrapf(ErrPlaylistNotFound, "playlist %s", playlistID)
	}
	t, ok := pl.Track(trackID)
	if !ok {
		return errors.Wrapf(ErrTrackNotFound, "track %s in playlist %s", trackID, playlistID)
	}

	return c.startLocked(ctx, playlistID, t, opts)
}

// startLocked marks t playing and opens a new channel for it.
// Must be called with lock held.
func (c *Controller) startLocked(ctx context.Context, playlistID string, t track.Track, opts Options) error {
	if err := c.library.SetPlaying(ctx, playlistID, t.ID); err != nil {
		return errors.Wrap(err, "failed to mark track playing")
	}

	c.clearChannelLocked(playlistID)

	t.Playing = true
	ch := &channel{
		track:     t,
		options:   opts,
		startTime: toWallTime(time.Now()),
	}
	c.channels[playlistID] = ch

	// Looping tracks and tracks of unknown length play until stopped.
	if !opts.Loop && t.HasDuration() {
		ch.timerCancel = c.startWallClockTimer(opts.Fade+t.Duration, func() {
			c.onTrackEnd(playlistID, ch)
		})
	}

	zlog.Debug().Msgf("playback: track started: playlist_id=%s track=%s fade=%v loop=%v advance=%v duration=%v",
		playlistID, t.Name, opts.Fade, opts.Loop, opts.Advance, t.Duration)

	c.sendEventLocked(Event{
		Type:       EventTrackStarted,
		PlaylistID: playlistID,
		Track:      &t,
		Options:    opts,
		State:      StatePlaying,
		At:         ch.startTime,
	})
	return nil
}

// StopAll stops every track of the playlist.
func (c *Controller) StopAll(ctx context.Context, playlistID string, opts Options) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctx.Err() != nil {
		return ErrClosed
	}

	if err := c.library.SetPlaying(ctx, playlistID, ""); err != nil {
		return errors.Wrap(err, "failed to mark playlist stopped")
	}

	var stopped *track.Track
	if ch, ok := c.channels[playlistID]; ok {
		t := ch.track
		t.Playing = false
		stopped = &t
	}
	c.clearChannelLocked(playlistID)

	zlog.Debug().Msgf("playback: playlist stopped: playlist_id=%s fade=%v", playlistID, opts.Fade)

	c.sendEventLocked(Event{
		Type:       EventStopped,
		PlaylistID: playlistID,
		Track:      stopped,
		Options:    Options{Fade: opts.Fade},
		State:      StateIdle,
		At:         toWallTime(time.Now()),
	})
	return nil
}

// Active returns the track currently started on the playlist.
func (c *Controller) Active(playlistID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ch, ok := c.channels[playlistID]
	if !ok {
		return "", false
	}
	return ch.track.ID, true
}

// GetState returns the state of the playlist channel.
func (c *Controller) GetState(playlistID string) State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.channels[playlistID]; ok {
		return StatePlaying
	}
	return StateIdle
}

// GetElapsed returns how long the active track of the playlist has been playing.
func (c *Controller) GetElapsed(playlistID string) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ch, ok := c.channels[playlistID]
	if !ok {
		return 0
	}
	return toWallTime(time.Now()).Sub(ch.startTime)
}

// ActivePlaylists returns the IDs of playlists with an active track.
func (c *Controller) ActivePlaylists() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.channels))
	for id := range c.channels {
		ids = append(ids, id)
	}
	return ids
}

// Close stops all timers and closes the event channel.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctx.Err() != nil {
		return
	}
	for id := range c.channels {
		c.clearChannelLocked(id)
	}
	c.cancel()
	close(c.eventCh)
}

// onTrackEnd is called when a non-looping track reaches its end.
func (c *Controller) onTrackEnd(playlistID string, ended *channel) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// The track was replaced or stopped in the meantime.
	if c.ctx.Err() != nil || c.channels[playlistID] != ended {
		return
	}

	elapsed := toWallTime(time.Now()).Sub(ended.startTime)
	zlog.Debug().Msgf("playback: track ended: playlist_id=%s track=%s expected_duration=%v actual_elapsed=%v",
		playlistID, ended.track.Name, ended.track.Duration, elapsed)

	ended.timerCancel = nil
	delete(c.channels, playlistID)

	var next track.Track
	advance := false
	if ended.options.Advance {
		next, advance = c.nextTrackLocked(playlistID, ended.track.ID)
	}

	// Marks are updated before the event goes out so that listeners
	// reacting to it read the new state.
	if !advance {
		if err := c.library.SetPlaying(context.Background(), playlistID, ""); err != nil {
			zlog.Error().Msgf("playback: failed to mark ended track stopped: playlist_id=%s error=%v", playlistID, err)
		}
	}

	t := ended.track
	t.Playing = false
	c.sendEventLocked(Event{
		Type:       EventTrackEnded,
		PlaylistID: playlistID,
		Track:      &t,
		Options:    ended.options,
		State:      StateIdle,
		At:         toWallTime(time.Now()),
	})

	if !advance {
		return
	}
	if err := c.startLocked(context.Background(), playlistID, next, ended.options); err != nil {
		zlog.Error().Msgf("playback: failed to advance playlist: playlist_id=%s track=%s error=%v", playlistID, next.Name, err)
		if err := c.library.SetPlaying(context.Background(), playlistID, ""); err != nil {
			zlog.Error().Msgf("playback: failed to mark ended track stopped: playlist_id=%s error=%v", playlistID, err)
		}
	}
}

// nextTrackLocked returns the track that follows endedID in the playlist.
// Must be called with lock held.
func (c *Controller) nextTrackLocked(playlistID, endedID string) (track.Track, bool) {
	pl, ok := c.library.Playlist(context.Background(), playlistID)
	if !ok {
		return track.Track{}, false
	}
	return pl.Next(endedID)
}

// clearChannelLocked cancels the channel timer and forgets the channel.
// Must be called with lock held.
func (c *Controller) clearChannelLocked(playlistID string) {
	ch, ok := c.channels[playlistID]
	if !ok {
		return
	}
	if ch.timerCancel != nil {
		ch.timerCancel()
		ch.timerCancel = nil
	}
	delete(c.channels, playlistID)
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (c *Controller) sendEventLocked(e Event) {
	select {
	case c.eventCh <- e:
	case <-c.ctx.Done():
	default:
		zlog.Warn().Msgf("playback: event channel full, dropping event: type=%s playlist_id=%s", e.Type, e.PlaylistID)
	}
}

// startWallClockTimer starts a timer that triggers callback after duration, using wall clock.
// Returns a cancel function.
func (c *Controller) startWallClockTimer(duration time.Duration, callback func()) func() {
	ctx, cancel := context.WithCancel(c.ctx)

	go func() {
		endTime := toWallTime(time.Now()).Add(duration)
		ticker := time.NewTicker(c.config.TickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !toWallTime(time.Now()).Before(endTime) {
					callback()
					return
				}
			}
		}
	}()

	return cancel
}

// toWallTime returns the time with monotonic clock stripped.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}
