package spotify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const (
	defaultBaseURL       = "https://api.spotify.com/v1"
	currentlyPlayingPath = "/me/player/currently-playing"
	recentlyPlayedPath   = "/me/player/recently-played?limit=1"
)

// TokenProvider hands out a usable access token.
type TokenProvider interface {
	EnsureValid(ctx context.Context) (*oauth2.Token, error)
}

// Client reads the listener's playback state from the Spotify Web API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenProvider
	logger     logrus.FieldLogger
	now        func() time.Time
}

// NewClient creates a Spotify API client. An empty baseURL targets the public API.
func NewClient(httpClient *http.Client, baseURL string, tokens TokenProvider, logger logrus.FieldLogger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		logger:     logger,
		now:        time.Now,
	}
}

// CurrentTrack returns the track that is playing now, or the most recently
// played one when nothing is. It returns (nil, nil) when Spotify has neither.
func (c *Client) CurrentTrack(ctx context.Context) (*Track, error) {
	token, err := c.tokens.EnsureValid(ctx)
	if err != nil {
		return nil, err
	}

	var current CurrentlyPlaying
	ok, err := c.get(ctx, token, currentlyPlayingPath, &current)
	if err != nil {
		return nil, err
	}
	if ok && current.Item != nil {
		return newTrack(current.Item, c.now().UTC(), true), nil
	}

	var recent RecentlyPlayed
	ok, err = c.get(ctx, token, recentlyPlayedPath, &recent)
	if err != nil {
		return nil, err
	}
	if ok && len(recent.Items) > 0 {
		item := recent.Items[0]
		return newTrack(&item.Track, item.PlayedAt, false), nil
	}

	return nil, nil
}

// get performs an authenticated GET and decodes the body into out. It reports
// false without an error when Spotify answers with no content.
func (c *Client) get(ctx context.Context, token *oauth2.Token, path string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, err
	}
	token.SetAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.WithError(err).Warn("failed to close spotify api response body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, newAPIError(resp)
	}

	// When nothing is playing, Spotify returns 204 No Content.
	if resp.StatusCode == http.StatusNoContent {
		return false, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return false, nil
	}

	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return true, nil
}
