package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"golang.org/x/oauth2"
)

const (
	testClientID     = "test_client_id"
	testClientSecret = "test_client_secret"
	testRedirectURI  = "http://localhost:3001/callback"
)

// clock is a settable time source shared with the code under test.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// tokenServer fakes the Spotify accounts token endpoint.
type tokenServer struct {
	*httptest.Server
	calls         atomic.Int32
	delay         time.Duration
	status        int
	expiresIn     int
	rotateTo      string
	mu            sync.Mutex
	refreshTokens []string
	forms         []map[string]string
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()

	ts := &tokenServer{status: http.StatusOK, expiresIn: 3600}
	ts.Server = httptest.NewServer(http.HandlerFunc(ts.handle))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tokenServer) handle(w http.ResponseWriter, r *http.Request) {
	n := ts.calls.Add(1)
	if ts.delay > 0 {
		time.Sleep(ts.delay)
	}

	w.Header().Set("Content-Type", "application/json")

	user, pass, ok := r.BasicAuth()
	if !ok || user != testClientID || pass != testClientSecret {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"invalid_client","error_description":"Invalid client"}`)
		return
	}

	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ts.mu.Lock()
	ts.refreshTokens = append(ts.refreshTokens, r.PostForm.Get("refresh_token"))
	form := make(map[string]string)
	for k := range r.PostForm {
		form[k] = r.PostForm.Get(k)
	}
	ts.forms = append(ts.forms, form)
	ts.mu.Unlock()

	if ts.status != http.StatusOK {
		w.WriteHeader(ts.status)
		fmt.Fprint(w, `{"error":"invalid_grant","error_description":"Invalid refresh token"}`)
		return
	}

	resp := map[string]any{
		"access_token": fmt.Sprintf("access-%d", n),
		"token_type":   "Bearer",
		"expires_in":   ts.expiresIn,
		"scope":        "user-read-currently-playing",
	}
	if ts.rotateTo != "" {
		resp["refresh_token"] = ts.rotateTo
	}
	if r.PostForm.Get("grant_type") == "authorization_code" {
		resp["refresh_token"] = "issued-refresh-token"
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (ts *tokenServer) config() *oauth2.Config {
	conf := NewOAuthConfig(testClientID, testClientSecret, testRedirectURI)
	conf.Endpoint.TokenURL = ts.URL + "/api/token"
	return conf
}

func (ts *tokenServer) seenRefreshTokens() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]string(nil), ts.refreshTokens...)
}

func (ts *tokenServer) lastForm() map[string]string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if len(ts.forms) == 0 {
		return nil
	}
	return ts.forms[len(ts.forms)-1]
}

func nullLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

// staticTokens always returns the same token or error.
type staticTokens struct {
	token *oauth2.Token
	err   error
}

func (s staticTokens) EnsureValid(context.Context) (*oauth2.Token, error) {
	return s.token, s.err
}

const trackJSON = `{
	"id": "4uLU6hMCjMI75M1A2tKUQC",
	"name": "Never Gonna Give You Up",
	"artists": [{"name": "Rick Astley"}, {"name": "Someone Else"}],
	"album": {
		"name": "Whenever You Need Somebody",
		"images": [
			{"url": "https://i.scdn.co/image/large", "height": 640, "width": 640},
			{"url": "https://i.scdn.co/image/small", "height": 64, "width": 64}
		]
	},
	"external_urls": {"spotify": "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC"}
}`
