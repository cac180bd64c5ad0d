// Package websocket pushes track updates to browsers over websockets.
package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Feed wires the hub, the poller and the upgrade handler together.
type Feed struct {
	hub      *Hub
	poller   *Poller
	upgrader websocket.Upgrader
	logger   logrus.FieldLogger
}

// NewFeed creates a live feed polling fetcher every interval. Browser
// connections are accepted only from origins originAllowed approves;
// requests without an Origin header are always accepted.
func NewFeed(fetcher TrackFetcher, interval time.Duration, originAllowed func(string) bool, logger logrus.FieldLogger) *Feed {
	hub := NewHub(logger)
	return &Feed{
		hub:    hub,
		poller: NewPoller(fetcher, hub, interval, logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || originAllowed(origin)
			},
		},
		logger: logger,
	}
}

// Run starts the hub and the poller and blocks until ctx is done.
func (f *Feed) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		f.hub.Run(ctx)
	}()

	go func() {
		defer wg.Done()
		f.poller.Run(ctx)
	}()

	wg.Wait()
}
