// Package track provides the track catalog collaborator: the entity owning
// the aggregate play counter and the artist-to-track ownership mapping.
package track

import "time"

// Track is a catalog entry. This module does not own the track lifecycle;
// it only increments the Plays counter through the transactional path in
// the play package.
type Track struct {
	ID        string    `json:"id"`
	ArtistID  string    `json:"artist_id"`
	Title     string    `json:"title"`
	Plays     int64     `json:"plays"` // monotonically non-decreasing
	CreatedAt time.Time `json:"created_at"`
}
