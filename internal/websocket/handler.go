package websocket

import (
	"net/http"
)

// ServeHTTP upgrades the request and registers the connection with the hub.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an error response.
		f.logger.WithError(err).WithField("origin", r.Header.Get("Origin")).Warn("websocket upgrade rejected")
		return
	}

	client := newClient(f.hub, conn, f.logger)
	f.hub.add(client)

	go client.writePump()
	go client.readPump()
}
