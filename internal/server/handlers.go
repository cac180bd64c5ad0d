package server

import (
	"encoding/json"
	"html/template"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"skidoodle/spotify-relay/internal/spotify"
)

const stateKey = "oauth_state"

var callbackPage = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Authorization Successful</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               margin: 2rem; background: #f5f5f5; }
        h1 { color: #1DB954; }
        code { word-break: break-all; background: white; padding: 0.5rem; display: block; }
    </style>
</head>
<body>
    <h1>Success!</h1>
    <p>Here's your new refresh token (save this in your .env file):</p>
    <code>{{.}}</code>
    <p>Replace your SPOTIFY_REFRESH_TOKEN in .env with this new token.</p>
</body>
</html>
`))

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// root is the liveness endpoint used by the frontend and the smoke test.
func (s *Server) root(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "Server is running"})
}

// health responds to container health checks.
func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		s.logger.WithError(err).Warn("failed to write health check response")
	}
}

// login redirects to the Spotify consent page. The state parameter is kept
// in the session and checked by callback.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	s.sessions.Put(r.Context(), stateKey, state)

	http.Redirect(w, r, s.auth.AuthURL(state), http.StatusFound)
}

// callback exchanges the authorization code and shows the refresh token so
// the operator can copy it into the configuration.
func (s *Server) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	expected := s.sessions.PopString(r.Context(), stateKey)
	if expected == "" || q.Get("state") != expected {
		s.logger.Warn("oauth callback with invalid state parameter")
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	code := q.Get("code")
	if code == "" {
		s.logger.WithFields(logrus.Fields{
			"error":       q.Get("error"),
			"description": q.Get("error_description"),
		}).Error("authorization callback without code")
		http.Error(w, "Error getting tokens", http.StatusInternalServerError)
		return
	}

	token, err := s.auth.Exchange(r.Context(), code)
	if err != nil {
		s.logger.WithError(err).WithField("reason", spotify.ErrorMessage(err)).Error("error getting tokens")
		http.Error(w, "Error getting tokens", http.StatusInternalServerError)
		return
	}

	if token.RefreshToken != "" && s.tokens != nil {
		s.tokens.SetRefreshToken(token.RefreshToken)
		s.logger.Info("adopted refresh token from authorization callback")
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := callbackPage.Execute(w, token.RefreshToken); err != nil {
		s.logger.WithError(err).Warn("failed to render callback page")
	}
}

// currentTrack reports what is playing now, or what played last.
func (s *Server) currentTrack(w http.ResponseWriter, r *http.Request) {
	track, err := s.tracks.CurrentTrack(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("failed to fetch track data")
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{
			Message: "Failed to fetch track data",
			Error:   spotify.ErrorMessage(err),
		})
		return
	}

	if track == nil {
		s.writeJSON(w, http.StatusNotFound, messageResponse{Message: "No track data available"})
		return
	}

	s.writeJSON(w, http.StatusOK, track)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Warn("failed to write json response")
	}
}
