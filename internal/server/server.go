// Package server exposes the relay's HTTP routes.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"skidoodle/spotify-relay/internal/spotify"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 15 * time.Second
	sessionLifetime   = 10 * time.Minute
)

// TrackFetcher returns the current or most recent track, or nil when there is none.
type TrackFetcher interface {
	CurrentTrack(ctx context.Context) (*spotify.Track, error)
}

// Authorizer drives the OAuth authorization code flow.
type Authorizer interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// RefreshTokenSetter receives refresh tokens issued by the callback.
type RefreshTokenSetter interface {
	SetRefreshToken(refreshToken string)
}

// LiveFeed is an optional websocket endpoint with its own background loop.
type LiveFeed interface {
	http.Handler
	Run(ctx context.Context)
}

// Options configures a Server.
type Options struct {
	Addr           string
	TLSCertFile    string
	TLSKeyFile     string
	SecureCookies  bool
	AllowedOrigins []string
	RateLimit      float64
	RateBurst      int
	Tracks         TrackFetcher
	Auth           Authorizer
	Tokens         RefreshTokenSetter
	Live           LiveFeed
	Logger         logrus.FieldLogger
}

// Server is the main application orchestrator.
type Server struct {
	addr       string
	certFile   string
	keyFile    string
	tracks     TrackFetcher
	auth       Authorizer
	tokens     RefreshTokenSetter
	live       LiveFeed
	sessions   *scs.SessionManager
	logger     logrus.FieldLogger
	handler    http.Handler
	httpServer *http.Server
}

// New creates a fully configured Server.
func New(opts Options) *Server {
	sessions := scs.New()
	sessions.Lifetime = sessionLifetime
	sessions.Cookie.Name = "spotify_relay_session"
	sessions.Cookie.HttpOnly = true
	sessions.Cookie.SameSite = http.SameSiteLaxMode
	sessions.Cookie.Secure = opts.SecureCookies

	s := &Server{
		addr:     opts.Addr,
		certFile: opts.TLSCertFile,
		keyFile:  opts.TLSKeyFile,
		tracks:   opts.Tracks,
		auth:     opts.Auth,
		tokens:   opts.Tokens,
		live:     opts.Live,
		sessions: sessions,
		logger:   opts.Logger,
	}
	s.handler = s.routes(opts)
	return s
}

// Handler returns the root handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes(opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.root)
	mux.HandleFunc("GET /health", s.health)
	mux.Handle("GET /login", s.sessions.LoadAndSave(http.HandlerFunc(s.login)))
	mux.Handle("GET /callback", s.sessions.LoadAndSave(http.HandlerFunc(s.callback)))
	mux.Handle("GET /api/spotify/current-track",
		withRateLimit(opts.RateLimit, opts.RateBurst)(http.HandlerFunc(s.currentTrack)))
	if s.live != nil {
		mux.Handle("GET /ws", s.live)
	}

	return chain(mux,
		withRequestLog(s.logger),
		withCORS(opts.AllowedOrigins),
	)
}

// Run starts the server and its components. It serves TLS when a
// certificate and key are configured and returns once ctx is done and the
// server has shut down.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	var wg sync.WaitGroup
	if s.live != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.live.Run(ctx)
		}()
	}

	go func() {
		<-ctx.Done()
		s.logger.Info("shutdown signal received, stopping http server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.WithError(err).Error("http server shutdown error")
		}
	}()

	var err error
	if s.certFile != "" && s.keyFile != "" {
		s.logger.WithField("addr", s.addr).Info("https server listening")
		err = s.httpServer.ListenAndServeTLS(s.certFile, s.keyFile)
	} else {
		s.logger.WithField("addr", s.addr).Info("http server listening")
		err = s.httpServer.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	wg.Wait()

	return nil
}
