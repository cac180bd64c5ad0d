package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type apiResponse struct {
	status int
	body   string
}

// authRecorder collects the Authorization headers seen by the fake API.
type authRecorder struct {
	mu      sync.Mutex
	headers []string
}

func (a *authRecorder) add(h string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.headers = append(a.headers, h)
}

func (a *authRecorder) all() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.headers...)
}

// newAPIServer fakes the two player endpoints and records the bearer tokens it sees.
func newAPIServer(t *testing.T, current, recent apiResponse) (*httptest.Server, *authRecorder) {
	t.Helper()

	auth := &authRecorder{}
	mux := http.NewServeMux()
	write := func(w http.ResponseWriter, r *http.Request, resp apiResponse) {
		auth.add(r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.status)
		fmt.Fprint(w, resp.body)
	}
	mux.HandleFunc("GET /v1/me/player/currently-playing", func(w http.ResponseWriter, r *http.Request) {
		write(w, r, current)
	})
	mux.HandleFunc("GET /v1/me/player/recently-played", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		write(w, r, recent)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, auth
}

func newTestClient(srv *httptest.Server, tokens TokenProvider) *Client {
	return NewClient(srv.Client(), srv.URL+"/v1", tokens, nullLogger())
}

var bearer = staticTokens{token: &oauth2.Token{AccessToken: "abc", TokenType: "Bearer"}}

func TestCurrentTrack(t *testing.T) {
	ctx := context.Background()
	playing := apiResponse{http.StatusOK, `{"is_playing": true, "progress_ms": 1000, "item": ` + trackJSON + `}`}
	recent := apiResponse{http.StatusOK, `{"items": [{"track": ` + trackJSON + `, "played_at": "2024-04-30T21:15:07.123Z"}]}`}
	noRecent := apiResponse{http.StatusOK, `{"items": []}`}
	playedAt := time.Date(2024, 4, 30, 21, 15, 7, 123000000, time.UTC)

	t.Run("Currently Playing", func(t *testing.T) {
		srv, auth := newAPIServer(t, playing, recent)
		c := newTestClient(srv, bearer)

		before := time.Now()
		track, err := c.CurrentTrack(ctx)
		after := time.Now()

		require.NoError(t, err)
		require.NotNil(t, track)
		assert.Equal(t, &Track{
			Name:       "Never Gonna Give You Up",
			Artist:     "Rick Astley",
			Album:      "Whenever You Need Somebody",
			AlbumArt:   "https://i.scdn.co/image/large",
			PlayedAt:   track.PlayedAt,
			SpotifyURL: "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC",
			IsPlaying:  true,
		}, track)
		assert.WithinRange(t, track.PlayedAt, before.Add(-time.Millisecond), after.Add(time.Millisecond))
		assert.Equal(t, []string{"Bearer abc"}, auth.all(), "recently played is not queried")
	})

	t.Run("Falls Back On No Content", func(t *testing.T) {
		srv, auth := newAPIServer(t, apiResponse{http.StatusNoContent, ""}, recent)
		c := newTestClient(srv, bearer)

		track, err := c.CurrentTrack(ctx)
		require.NoError(t, err)
		require.NotNil(t, track)

		assert.False(t, track.IsPlaying)
		assert.True(t, playedAt.Equal(track.PlayedAt))
		assert.Equal(t, "Rick Astley", track.Artist)
		assert.Len(t, auth.all(), 2)
	})

	t.Run("Falls Back On Empty Body", func(t *testing.T) {
		srv, _ := newAPIServer(t, apiResponse{http.StatusOK, ""}, recent)
		track, err := newTestClient(srv, bearer).CurrentTrack(ctx)

		require.NoError(t, err)
		require.NotNil(t, track)
		assert.False(t, track.IsPlaying)
	})

	t.Run("Falls Back On Null Item", func(t *testing.T) {
		srv, _ := newAPIServer(t, apiResponse{http.StatusOK, `{"is_playing": false, "item": null}`}, recent)
		track, err := newTestClient(srv, bearer).CurrentTrack(ctx)

		require.NoError(t, err)
		require.NotNil(t, track)
		assert.False(t, track.IsPlaying)
	})

	t.Run("Nothing Available", func(t *testing.T) {
		srv, _ := newAPIServer(t, apiResponse{http.StatusNoContent, ""}, noRecent)
		track, err := newTestClient(srv, bearer).CurrentTrack(ctx)

		assert.NoError(t, err)
		assert.Nil(t, track)
	})

	t.Run("Currently Playing Error", func(t *testing.T) {
		srv, auth := newAPIServer(t,
			apiResponse{http.StatusUnauthorized, `{"error": {"status": 401, "message": "The access token expired"}}`},
			recent,
		)
		_, err := newTestClient(srv, bearer).CurrentTrack(ctx)

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
		assert.Equal(t, "The access token expired", ErrorMessage(err))
		assert.Len(t, auth.all(), 1)
	})

	t.Run("Recently Played Error", func(t *testing.T) {
		srv, _ := newAPIServer(t, apiResponse{http.StatusNoContent, ""}, apiResponse{http.StatusBadGateway, "upstream down"})
		_, err := newTestClient(srv, bearer).CurrentTrack(ctx)

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
		assert.Equal(t, "Bad Gateway", ErrorMessage(err))
	})

	t.Run("Token Error", func(t *testing.T) {
		srv, auth := newAPIServer(t, playing, recent)
		_, err := newTestClient(srv, staticTokens{err: ErrNoRefreshToken}).CurrentTrack(ctx)

		assert.ErrorIs(t, err, ErrNoRefreshToken)
		assert.Empty(t, auth.all())
	})

	t.Run("Network Error", func(t *testing.T) {
		srv, _ := newAPIServer(t, playing, recent)
		c := newTestClient(srv, bearer)
		srv.Close()

		_, err := c.CurrentTrack(ctx)
		require.Error(t, err)
		assert.Equal(t, err.Error(), ErrorMessage(err))
	})

	t.Run("Malformed Body", func(t *testing.T) {
		srv, _ := newAPIServer(t, apiResponse{http.StatusOK, `{"item": [`}, recent)
		_, err := newTestClient(srv, bearer).CurrentTrack(ctx)

		assert.ErrorContains(t, err, "failed to decode")
	})

	t.Run("Sparse Track", func(t *testing.T) {
		sparse := apiResponse{http.StatusOK, `{"item": {"name": "Untitled", "album": {"name": "Demos"}}}`}
		srv, _ := newAPIServer(t, sparse, recent)
		track, err := newTestClient(srv, bearer).CurrentTrack(ctx)

		require.NoError(t, err)
		assert.Equal(t, "Untitled", track.Name)
		assert.Empty(t, track.Artist)
		assert.Empty(t, track.AlbumArt)
		assert.Empty(t, track.SpotifyURL)
	})
}

func TestCurrentTrackWithTokenManager(t *testing.T) {
	ts := newTokenServer(t)
	clk := newClock()
	m := newTestManager(ts, clk, "refresh-token")

	srv, auth := newAPIServer(t, apiResponse{http.StatusNoContent, ""}, apiResponse{http.StatusOK, `{"items": []}`})
	c := newTestClient(srv, m)

	for range 3 {
		_, err := c.CurrentTrack(context.Background())
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, ts.calls.Load())

	clk.Advance(2 * time.Hour)
	_, err := c.CurrentTrack(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 2, ts.calls.Load())
	headers := auth.all()
	assert.Equal(t, "Bearer access-2", headers[len(headers)-1])
}
