package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"skidoodle/spotify-relay/internal/spotify"
)

// TrackFetcher returns the current or most recent track, or nil when there is none.
type TrackFetcher interface {
	CurrentTrack(ctx context.Context) (*spotify.Track, error)
}

// Poller is responsible for fetching data from the Spotify API periodically.
type Poller struct {
	fetcher   TrackFetcher
	hub       *Hub
	interval  time.Duration
	logger    logrus.FieldLogger
	lastState *spotify.Track
	polled    bool
	mu        sync.RWMutex
}

// NewPoller creates a new Poller.
func NewPoller(fetcher TrackFetcher, hub *Hub, interval time.Duration, logger logrus.FieldLogger) *Poller {
	return &Poller{
		fetcher:  fetcher,
		hub:      hub,
		interval: interval,
		logger:   logger,
	}
}

// Run starts the polling loop. It must be run in a separate goroutine.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("poller started")
	defer p.logger.Info("poller stopped")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.UpdateState(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.UpdateState(ctx)
		}
	}
}

// UpdateState fetches the latest state, compares it, and broadcasts if needed.
func (p *Poller) UpdateState(ctx context.Context) {
	current, err := p.fetcher.CurrentTrack(ctx)
	if err != nil {
		p.logger.WithError(err).Error("failed to get current track")
		return
	}

	p.mu.Lock()
	hasChanged := p.hasStateChanged(current)
	if hasChanged {
		p.lastState = current
		p.polled = true
	}
	p.mu.Unlock()

	if !hasChanged {
		return
	}

	payload, err := json.Marshal(newFeedMessage(current))
	if err != nil {
		p.logger.WithError(err).Error("failed to encode track update")
		return
	}

	trackName := "Nothing"
	if current != nil {
		trackName = current.Name
	}
	p.logger.WithFields(logrus.Fields{
		"track":     trackName,
		"isPlaying": current != nil && current.IsPlaying,
	}).Info("state changed, broadcasting update")

	p.hub.Broadcast(payload)
}

// hasStateChanged must be called with mu held. The timestamp of a playing
// track moves on every poll, so it is not part of the comparison.
func (p *Poller) hasStateChanged(current *spotify.Track) bool {
	if !p.polled {
		return true
	}
	last := p.lastState
	if (last == nil) != (current == nil) {
		return true
	}
	if last == nil {
		return false
	}
	return last.IsPlaying != current.IsPlaying ||
		last.Name != current.Name ||
		last.Artist != current.Artist ||
		last.SpotifyURL != current.SpotifyURL
}
