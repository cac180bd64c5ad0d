package spotify

import (
	"context"
	"net/http"

	api "github.com/zmb3/spotify"
	"golang.org/x/oauth2"
	spotifyauth "golang.org/x/oauth2/spotify"
)

// Scopes requested during login: enough to read the current and recent tracks.
var Scopes = []string{
	api.ScopeUserReadCurrentlyPlaying,
	api.ScopeUserReadRecentlyPlayed,
	api.ScopeUserReadPlaybackState,
}

// NewOAuthConfig returns the OAuth2 configuration shared by the login flow
// and the token manager. Client credentials are sent with HTTP Basic auth.
func NewOAuthConfig(clientID, clientSecret, redirectURI string) *oauth2.Config {
	endpoint := spotifyauth.Endpoint
	endpoint.AuthStyle = oauth2.AuthStyleInHeader

	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       Scopes,
		Endpoint:     endpoint,
	}
}

// Authorizer drives the authorization code flow.
type Authorizer struct {
	conf       *oauth2.Config
	httpClient *http.Client
}

// NewAuthorizer creates an Authorizer. A nil httpClient uses [http.DefaultClient].
func NewAuthorizer(conf *oauth2.Config, httpClient *http.Client) *Authorizer {
	return &Authorizer{conf: conf, httpClient: httpClient}
}

// AuthURL returns the consent page URL carrying the given state.
func (a *Authorizer) AuthURL(state string) string {
	return a.conf.AuthCodeURL(state)
}

// Exchange trades an authorization code for access and refresh tokens.
func (a *Authorizer) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if a.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	}
	return a.conf.Exchange(ctx, code)
}
