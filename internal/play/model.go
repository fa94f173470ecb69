// Package play implements the play count integrity and analytics engine:
// qualification of reported listens, multi-axis deduplication, atomic
// counter updates, and derived per-track and per-artist statistics.
package play

import "time"

// MinimumListenSeconds is the minimum listen duration for a play to qualify.
// The boundary is inclusive: exactly 30 seconds qualifies.
const MinimumListenSeconds = 30

// DedupWindow is the rolling window within which a repeat play from the same
// identity is treated as a duplicate.
const DedupWindow = time.Hour

// MaxListenSeconds caps the accepted listen duration (24 hours).
const MaxListenSeconds = 86400

// Source identifies where in the product a play originated.
type Source string

// Enumerated play sources.
const (
	SourceDirect        Source = "direct"
	SourceSearch        Source = "search"
	SourcePlaylist      Source = "playlist"
	SourceTipFeed       Source = "tip_feed"
	SourceArtistProfile Source = "artist_profile"

	// SourceOther absorbs source values introduced by clients before the
	// server learns about them, so no event is dropped on an unknown source.
	SourceOther Source = "other"
)

// Sources returns every enumerated source value, in a stable order.
// Breakdown responses include all of them, zero-defaulted.
func Sources() []Source {
	return []Source{
		SourceDirect,
		SourceSearch,
		SourcePlaylist,
		SourceTipFeed,
		SourceArtistProfile,
		SourceOther,
	}
}

// ParseSource maps a raw source string onto the enumerated set.
// Unknown values fold to SourceOther rather than failing.
func ParseSource(s string) Source {
	switch Source(s) {
	case SourceDirect, SourceSearch, SourcePlaylist, SourceTipFeed, SourceArtistProfile:
		return Source(s)
	default:
		return SourceOther
	}
}

// PlayEvent is one reported play attempt. Rows are append-only: every intake
// call persists exactly one event, whether or not it counted, and events are
// never updated or deleted afterwards.
type PlayEvent struct {
	ID             string    `json:"id"`
	TrackID        string    `json:"track_id"`
	UserID         string    `json:"user_id,omitempty"` // empty for anonymous listeners
	SessionID      string    `json:"session_id"`
	ListenDuration int       `json:"listen_duration"` // seconds actually listened
	CompletedFull  bool      `json:"completed_full"`
	Source         Source    `json:"source"`
	IPHash         string    `json:"ip_hash"` // never the raw address
	CountedAsPlay  bool      `json:"counted_as_play"`
	PlayedAt       time.Time `json:"played_at"`
}

// ListenerKey returns the identity used for unique-listener counting:
// the user ID when present, otherwise the session ID.
func (e *PlayEvent) ListenerKey() string {
	if e.UserID != "" {
		return e.UserID
	}
	return e.SessionID
}

// RecordPlayInput carries an already-shaped play report from the transport
// layer. Validation of the raw request body happens in the API layer; the
// service re-checks the invariants it depends on.
type RecordPlayInput struct {
	TrackID        string
	UserID         string // empty = anonymous
	SessionID      string
	ListenDuration int
	CompletedFull  bool
	Source         Source
}

// RecordPlayResult is the outcome of a record-play call. Counted is false for
// below-minimum and duplicate events; those are valid business outcomes, not
// errors, and the event is persisted either way.
type RecordPlayResult struct {
	Counted bool   `json:"counted"`
	Reason  string `json:"reason"`
	PlayID  string `json:"play_id"`
}

// TrackStats holds derived statistics for a single track over a period.
type TrackStats struct {
	TrackID           string  `json:"track_id"`
	TotalPlays        int     `json:"total_plays"`
	UniqueListeners   int     `json:"unique_listeners"`
	CompletionRate    float64 `json:"completion_rate"`
	SkipRate          float64 `json:"skip_rate"`
	AvgListenDuration float64 `json:"avg_listen_duration"`
	Period            string  `json:"period"`
}

// SourceBreakdown maps every enumerated source to its counted-play total.
type SourceBreakdown struct {
	TrackID string         `json:"track_id"`
	Sources map[Source]int `json:"sources"`
}

// TopTrack is one entry in a ranking: a track, its counted plays, and the
// completion rate over those plays.
type TopTrack struct {
	TrackID        string  `json:"track_id"`
	Plays          int     `json:"plays"`
	CompletionRate float64 `json:"completion_rate"`
}

// ArtistOverview aggregates counted plays across all tracks owned by an artist.
type ArtistOverview struct {
	ArtistID          string     `json:"artist_id"`
	TotalPlays        int        `json:"total_plays"`
	UniqueListeners   int        `json:"unique_listeners"`
	TotalTracks       int        `json:"total_tracks"`
	AvgCompletionRate float64    `json:"avg_completion_rate"`
	TopTracks         []TopTrack `json:"top_tracks"`
}

// TopTracks is the ranking of tracks by counted plays within a period.
type TopTracks struct {
	Period string     `json:"period"`
	Tracks []TopTrack `json:"tracks"`
}
