package websocket

import "skidoodle/spotify-relay/internal/spotify"

// FeedMessage is the client-facing payload pushed on every change.
// Track is null when Spotify has neither a current nor a recent track.
type FeedMessage struct {
	Type  string         `json:"type"`
	Track *spotify.Track `json:"track"`
}

func newFeedMessage(track *spotify.Track) FeedMessage {
	return FeedMessage{Type: "track", Track: track}
}
