package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"skidoodle/spotify-relay/internal/config"
	"skidoodle/spotify-relay/internal/server"
	"skidoodle/spotify-relay/internal/smoke"
	"skidoodle/spotify-relay/internal/spotify"
	"skidoodle/spotify-relay/internal/websocket"
)

func main() {
	app := &cli.Command{
		Name:  "spotify-relay",
		Usage: "Relay the Spotify track you are listening to",
		Commands: []*cli.Command{
			serveCommand(),
			smokeCommand(),
			healthcheckCommand(),
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP relay",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to an optional TOML configuration file",
				Sources: cli.EnvVars("CONFIG_FILE"),
			},
		},
		Action: serve,
	}
}

func smokeCommand() *cli.Command {
	return &cli.Command{
		Name:  "smoke",
		Usage: "Check a running relay's routes and CORS headers",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "base-url",
				Usage:   "Relay to test",
				Value:   "http://localhost:3001",
				Sources: cli.EnvVars("SMOKE_BASE_URL"),
			},
			&cli.StringFlag{
				Name:    "origin",
				Usage:   "Origin expected to be allowed with credentials",
				Value:   "http://localhost:3000",
				Sources: cli.EnvVars("SMOKE_ORIGIN"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			_, err := smoke.Run(ctx, smoke.Options{
				BaseURL: cmd.String("base-url"),
				Origin:  cmd.String("origin"),
				Out:     os.Stdout,
			})
			return err
		},
	}
}

func healthcheckCommand() *cli.Command {
	return &cli.Command{
		Name:  "healthcheck",
		Usage: "Probe the local /health endpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "port",
				Value:   "3001",
				Sources: cli.EnvVars("PORT"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := smoke.Health(ctx, nil, smoke.HealthURL(cmd.String("port"))); err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return nil
		},
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := &http.Client{Timeout: cfg.Spotify.HTTPTimeout}
	oauthConf := spotify.NewOAuthConfig(cfg.Spotify.ClientID, cfg.Spotify.ClientSecret, cfg.RedirectURI())

	tokens := spotify.NewTokenManager(oauthConf, cfg.Spotify.RefreshToken, httpClient, logger)
	if !tokens.HasRefreshToken() {
		logger.Warnf("SPOTIFY_REFRESH_TOKEN is not set, visit %s/login to authorize", cfg.BaseURL)
	}

	tracks := spotify.NewClient(httpClient, "", tokens, logger)

	var live server.LiveFeed
	if cfg.LiveFeed {
		live = websocket.NewFeed(tracks, cfg.PollInterval, originAllowed(cfg.AllowedOrigins), logger)
		logger.WithField("interval", cfg.PollInterval).Info("live feed enabled on /ws")
	}

	srv := server.New(server.Options{
		Addr:           cfg.Addr(),
		TLSCertFile:    cfg.TLSCertFile,
		TLSKeyFile:     cfg.TLSKeyFile,
		SecureCookies:  strings.HasPrefix(cfg.BaseURL, "https://"),
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimit:      cfg.RateLimit,
		RateBurst:      cfg.RateBurst,
		Tracks:         tracks,
		Auth:           spotify.NewAuthorizer(oauthConf, httpClient),
		Tokens:         tokens,
		Live:           live,
		Logger:         logger,
	})

	logger.WithFields(logrus.Fields{
		"base_url": cfg.BaseURL,
		"origins":  cfg.AllowedOrigins,
		"tls":      cfg.TLSEnabled(),
	}).Info("starting spotify relay")

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("server shut down gracefully")
	return nil
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(cfg.LogLevel)
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

func originAllowed(origins []string) func(string) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return func(origin string) bool {
		_, ok := allowed[origin]
		return ok
	}
}
