// Package spotify imports Spotify playlists as zonebox playlists.
package spotify

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/osa030/zonebox/internal/domain/playlist"
	"github.com/osa030/zonebox/internal/domain/track"
)

// Source is the playlist source label of imported playlists.
const Source = "spotify"

// Client is a Spotify API client limited to reading playlists.
type Client struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	Market       string
}

// New creates a client authenticated with the client credentials flow.
// No user login is needed to read public playlists.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("spotify credentials are required")
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	if _, err := cc.Token(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to obtain spotify token")
	}

	return newClient(spotify.New(cc.Client(ctx)), cfg.Market), nil
}

// NewWithHTTPClient creates a client on a preconfigured HTTP client and API base URL.
func NewWithHTTPClient(httpClient *http.Client, baseURL string, market string) *Client {
	var opts []spotify.ClientOption
	if baseURL != "" {
		opts = append(opts, spotify.WithBaseURL(baseURL))
	}
	return newClient(spotify.New(httpClient, opts...), market)
}

func newClient(c *spotify.Client, market string) *Client {
	if market == "" {
		market = "JP"
	}
	return &Client{
		client:     c,
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// GetPlaylist fetches a playlist with all its tracks.
// playlistURL may be a URL, URI or bare ID; the bare ID becomes the playlist ID.
func (c *Client) GetPlaylist(ctx context.Context, playlistURL string) (*playlist.Playlist, error) {
	playlistID := extractPlaylistID(playlistURL)
	if playlistID == "" {
		return nil, errors.New("invalid playlist URL")
	}

	var meta *spotify.FullPlaylist
	err := c.retry(ctx, func() error {
		p, err := c.client.GetPlaylist(ctx, spotify.ID(playlistID), spotify.Market(c.market))
		if err != nil {
			return err
		}
		meta = p
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get playlist %s", playlistID)
	}

	tracks, err := c.getPlaylistTracks(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	return &playlist.Playlist{
		ID:     playlistID,
		Name:   meta.Name,
		Source: Source,
		Tracks: tracks,
	}, nil
}

// Import fetches every playlist. Failed playlists are skipped and their
// errors combined.
func (c *Client) Import(ctx context.Context, playlistURLs []string) ([]*playlist.Playlist, error) {
	var (
		out  []*playlist.Playlist
		errs error
	)
	for _, url := range playlistURLs {
		p, err := c.GetPlaylist(ctx, url)
		if err != nil {
			zlog.Warn().Msgf("spotify: failed to import playlist: url=%s error=%v", url, err)
			errs = errors.CombineErrors(errs, err)
			continue
		}
		zlog.Info().Msgf("spotify: imported playlist: playlist_id=%s name=%q tracks=%d", p.ID, p.Name, len(p.Tracks))
		out = append(out, p)
	}
	return out, errs
}

// getPlaylistTracks retrieves all tracks from a playlist, page by page.
func (c *Client) getPlaylistTracks(ctx context.Context, playlistID string) ([]track.Track, error) {
	var tracks []track.Track
	offset := 0
	limit := 100

	for {
		var page *spotify.PlaylistItemPage
		err := c.retry(ctx, func() error {
			p, err := c.client.GetPlaylistItems(ctx, spotify.ID(playlistID),
				spotify.Limit(limit),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get playlist items")
		}

		for _, item := range page.Items {
			// Episodes and local files have no track ID.
			if item.Track.Track != nil && item.Track.Track.ID != "" {
				tracks = append(tracks, convertTrack(item.Track.Track))
			}
		}

		if len(page.Items) < limit {
			break
		}
		offset += limit
	}

	return tracks, nil
}

// convertTrack converts a Spotify FullTrack to a domain Track.
func convertTrack(t *spotify.FullTrack) track.Track {
	name := t.Name
	if len(t.Artists) > 0 {
		name = t.Artists[0].Name + " - " + t.Name
	}
	return track.Track{
		ID:       string(t.ID),
		Name:     name,
		Path:     "spotify:track:" + string(t.ID),
		Disabled: t.IsPlayable != nil && !*t.IsPlayable,
		Duration: time.Duration(t.Duration) * time.Millisecond,
	}
}

// retry retries an operation with linear backoff.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), "retry cancelled")
			case <-time.After(c.retryDelay * time.Duration(i+1)):
			}
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is a rate limit or server error.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr spotify.Error
	if errors.As(err, &apiErr) && apiErr.Status != 0 {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500
	}

	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// extractPlaylistID extracts the playlist ID from a Spotify playlist URL or URI.
func extractPlaylistID(input string) string {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, "spotify:playlist:") {
		return strings.TrimPrefix(input, "spotify:playlist:")
	}

	// https://open.spotify.com/playlist/ID or https://open.spotify.com/intl-XX/playlist/ID
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, "/playlist/") {
		parts := strings.Split(input, "/playlist/")
		id := strings.Split(parts[len(parts)-1], "?")[0]
		return strings.TrimRight(id, "/")
	}

	return input
}
