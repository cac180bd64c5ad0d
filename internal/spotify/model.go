package spotify

import (
	"time"

	api "github.com/zmb3/spotify"
)

// CurrentlyPlaying represents the currently playing object from the Spotify API.
// The Item field is a pointer to handle cases where nothing is playing (item is null).
type CurrentlyPlaying struct {
	IsPlaying  bool           `json:"is_playing"`
	ProgressMs int            `json:"progress_ms"`
	Timestamp  int64          `json:"timestamp"`
	Item       *api.FullTrack `json:"item"`
}

// RecentlyPlayed is the cursor-paged history returned by the recently played endpoint.
type RecentlyPlayed struct {
	Items []RecentlyPlayedItem `json:"items"`
}

// RecentlyPlayedItem is a single play from the listening history.
type RecentlyPlayedItem struct {
	Track    api.FullTrack `json:"track"`
	PlayedAt time.Time     `json:"played_at"`
}

// Track is the normalized snapshot of what is, or last was, playing.
type Track struct {
	Name       string    `json:"name"`
	Artist     string    `json:"artist"`
	Album      string    `json:"album"`
	AlbumArt   string    `json:"albumArt"`
	PlayedAt   time.Time `json:"playedAt"`
	SpotifyURL string    `json:"spotifyUrl"`
	IsPlaying  bool      `json:"isPlaying"`
}

// newTrack maps a Spotify track object to a Track. Only the first artist and
// the first (largest) album image are kept.
func newTrack(item *api.FullTrack, playedAt time.Time, isPlaying bool) *Track {
	t := &Track{
		Name:       item.Name,
		Album:      item.Album.Name,
		PlayedAt:   playedAt,
		SpotifyURL: item.ExternalURLs["spotify"],
		IsPlaying:  isPlaying,
	}
	if len(item.Artists) > 0 {
		t.Artist = item.Artists[0].Name
	}
	if len(item.Album.Images) > 0 {
		t.AlbumArt = item.Album.Images[0].URL
	}
	return t
}
