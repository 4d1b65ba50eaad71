package playlist

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/zonebox/internal/domain/track"
)

func TestPlaylist_TrackIDs(t *testing.T) {
	tests := []struct {
		name     string
		tracks   []track.Track
		expected []string
	}{
		{
			name:     "empty playlist",
			tracks:   []track.Track{},
			expected: []string{},
		},
		{
			name:     "single track",
			tracks:   []track.Track{{ID: "track-1"}},
			expected: []string{"track-1"},
		},
		{
			name: "multiple tracks",
			tracks: []track.Track{
				{ID: "track-1"},
				{ID: "track-2"},
				{ID: "track-3"},
			},
			expected: []string{"track-1", "track-2", "track-3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Playlist{ID: "playlist-1", Tracks: tt.tracks}
			assert.Equal(t, tt.expected, p.TrackIDs())
		})
	}
}

func TestPlaylist_Candidates(t *testing.T) {
	p := &Playlist{
		ID: "playlist-1",
		Tracks: []track.Track{
			{ID: "track-1", Disabled: true},
			{ID: "track-2"},
			{ID: "track-3", Disabled: true},
			{ID: "track-4"},
		},
	}

	candidates := p.Candidates()
	assert.Len(t, candidates, 2)
	assert.Equal(t, "track-2", candidates[0].ID)
	assert.Equal(t, "track-4", candidates[1].ID)

	empty := &Playlist{Tracks: []track.Track{{ID: "x", Disabled: true}}}
	assert.Empty(t, empty.Candidates())
}

func TestPlaylist_Next(t *testing.T) {
	p := &Playlist{
		ID: "playlist-1",
		Tracks: []track.Track{
			{ID: "track-1"},
			{ID: "track-2", Disabled: true},
			{ID: "track-3"},
		},
	}

	tests := []struct {
		name   string
		after  string
		want   string
		wantOK bool
	}{
		{name: "skips disabled", after: "track-1", want: "track-3", wantOK: true},
		{name: "wraps around", after: "track-3", want: "track-1", wantOK: true},
		{name: "after disabled track", after: "track-2", want: "track-3", wantOK: true},
		{name: "unknown track starts over", after: "gone", want: "track-1", wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := p.Next(tt.after)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got.ID)
		})
	}

	empty := &Playlist{ID: "playlist-2", Tracks: []track.Track{{ID: "x", Disabled: true}}}
	_, ok := empty.Next("x")
	assert.False(t, ok)
}

func TestPlaylist_PlayingTrack(t *testing.T) {
	p := &Playlist{
		Tracks: []track.Track{
			{ID: "track-1"},
			{ID: "track-2", Playing: true},
		},
	}

	playing, ok := p.PlayingTrack()
	assert.True(t, ok)
	assert.Equal(t, "track-2", playing.ID)
	assert.True(t, p.IsPlaying())

	p.Tracks[1].Playing = false
	_, ok = p.PlayingTrack()
	assert.False(t, ok)
	assert.False(t, p.IsPlaying())
}

func TestPlaylist_CloneIsIndependent(t *testing.T) {
	p := &Playlist{ID: "p", Tracks: []track.Track{{ID: "a"}}}
	c := p.Clone()
	c.Tracks[0].Playing = true

	assert.False(t, p.Tracks[0].Playing)
	tr, ok := c.Track("a")
	assert.True(t, ok)
	assert.True(t, tr.Playing)

	_, ok = c.Track("missing")
	assert.False(t, ok)
}
