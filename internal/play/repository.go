package play

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tiptune/tiptune/internal/track"
)

// TrackCounts holds the raw per-track aggregates the stats endpoint is
// computed from. Rates are derived (and rounded) by the service.
type TrackCounts struct {
	TotalEvents       int     // all events in the period, counted or not
	TotalPlays        int     // counted events in the period
	CompletedPlays    int     // counted events with completed_full = true
	AvgListenDuration float64 // mean over all events in the period
	UniqueListeners   int     // distinct user-or-session among counted events
}

// TrackRollup is one track's counted-play aggregate, used by artist
// overviews and top-track rankings. CompletionRate is the raw fraction.
type TrackRollup struct {
	TrackID        string
	Plays          int
	CompletionRate float64
}

// Repository defines persistence for play events and the aggregate queries
// the analytics endpoints are built on. PlayEvent rows are append-only;
// no implementation updates or deletes them.
type Repository interface {
	// Insert persists an event outside any transaction. Used for the
	// audit-only path (disqualified and duplicate events).
	Insert(ctx context.Context, event *PlayEvent) error

	// InsertCounted persists a counted event and increments the track's
	// play counter in a single atomic unit of work. Either both take
	// effect or neither does.
	InsertCounted(ctx context.Context, event *PlayEvent) error

	// The three dedup lookups check for a counted play of the track on one
	// identity axis since the given cutoff.
	HasCountedPlayByUser(ctx context.Context, trackID, userID string, since time.Time) (bool, error)
	HasCountedPlayBySession(ctx context.Context, trackID, sessionID string, since time.Time) (bool, error)
	HasCountedPlayByIP(ctx context.Context, trackID, ipHash string, since time.Time) (bool, error)

	// TrackCounts aggregates a track's events since the cutoff.
	TrackCounts(ctx context.Context, trackID string, since time.Time) (TrackCounts, error)

	// SourceCounts groups a track's counted plays by source.
	SourceCounts(ctx context.Context, trackID string) (map[Source]int, error)

	// ArtistTrackRollups returns per-track counted-play aggregates for all
	// tracks owned by the artist that have at least one counted play,
	// ordered by plays descending.
	ArtistTrackRollups(ctx context.Context, artistID string) ([]TrackRollup, error)

	// ArtistUniqueListeners counts distinct listeners across all of the
	// artist's tracks, among counted plays.
	ArtistUniqueListeners(ctx context.Context, artistID string) (int, error)

	// TopTracks returns counted-play rollups across all tracks since the
	// cutoff, ordered by plays descending, truncated to limit.
	TopTracks(ctx context.Context, since time.Time, limit int) ([]TrackRollup, error)
}

// InMemoryRepository implements Repository with in-memory storage.
// Used for testing and development. The counted insert delegates the counter
// increment to the track repository; atomicity across the two is what the
// Postgres implementation's transaction provides in production.
type InMemoryRepository struct {
	mu     sync.RWMutex
	events []*PlayEvent
	tracks track.Repository
}

// NewInMemoryRepository creates a new in-memory play event repository backed
// by the given track catalog.
func NewInMemoryRepository(tracks track.Repository) *InMemoryRepository {
	return &InMemoryRepository{tracks: tracks}
}

// Insert appends an event.
func (r *InMemoryRepository) Insert(ctx context.Context, event *PlayEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *event
	r.events = append(r.events, &copied)
	return nil
}

// InsertCounted appends a counted event and increments the track counter.
func (r *InMemoryRepository) InsertCounted(ctx context.Context, event *PlayEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.tracks.IncrementPlays(ctx, event.TrackID); err != nil {
		return err
	}
	copied := *event
	r.events = append(r.events, &copied)
	return nil
}

func (r *InMemoryRepository) hasCountedPlay(trackID string, since time.Time, match func(*PlayEvent) bool) bool {
	for _, e := range r.events {
		if e.TrackID == trackID && e.CountedAsPlay && e.PlayedAt.After(since) && match(e) {
			return true
		}
	}
	return false
}

// HasCountedPlayByUser checks the user identity axis.
func (r *InMemoryRepository) HasCountedPlayByUser(ctx context.Context, trackID, userID string, since time.Time) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hasCountedPlay(trackID, since, func(e *PlayEvent) bool { return e.UserID == userID }), nil
}

// HasCountedPlayBySession checks the session identity axis.
func (r *InMemoryRepository) HasCountedPlayBySession(ctx context.Context, trackID, sessionID string, since time.Time) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hasCountedPlay(trackID, since, func(e *PlayEvent) bool { return e.SessionID == sessionID }), nil
}

// HasCountedPlayByIP checks the network identity axis.
func (r *InMemoryRepository) HasCountedPlayByIP(ctx context.Context, trackID, ipHash string, since time.Time) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hasCountedPlay(trackID, since, func(e *PlayEvent) bool { return e.IPHash == ipHash }), nil
}

// TrackCounts aggregates a track's events since the cutoff.
func (r *InMemoryRepository) TrackCounts(ctx context.Context, trackID string, since time.Time) (TrackCounts, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var c TrackCounts
	var durationSum int
	listeners := make(map[string]struct{})

	for _, e := range r.events {
		if e.TrackID != trackID || e.PlayedAt.Before(since) {
			continue
		}
		c.TotalEvents++
		durationSum += e.ListenDuration
		if !e.CountedAsPlay {
			continue
		}
		c.TotalPlays++
		if e.CompletedFull {
			c.CompletedPlays++
		}
		listeners[e.ListenerKey()] = struct{}{}
	}

	if c.TotalEvents > 0 {
		c.AvgListenDuration = float64(durationSum) / float64(c.TotalEvents)
	}
	c.UniqueListeners = len(listeners)
	return c, nil
}

// SourceCounts groups a track's counted plays by source.
func (r *InMemoryRepository) SourceCounts(ctx context.Context, trackID string) (map[Source]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[Source]int)
	for _, e := range r.events {
		if e.TrackID == trackID && e.CountedAsPlay {
			out[e.Source]++
		}
	}
	return out, nil
}

// rollups aggregates counted plays for the given set of track IDs. A nil set
// means all tracks.
func (r *InMemoryRepository) rollups(trackIDs map[string]struct{}, since time.Time) []TrackRollup {
	plays := make(map[string]int)
	completed := make(map[string]int)

	for _, e := range r.events {
		if !e.CountedAsPlay {
			continue
		}
		if !since.IsZero() && e.PlayedAt.Before(since) {
			continue
		}
		if trackIDs != nil {
			if _, ok := trackIDs[e.TrackID]; !ok {
				continue
			}
		}
		plays[e.TrackID]++
		if e.CompletedFull {
			completed[e.TrackID]++
		}
	}

	out := make([]TrackRollup, 0, len(plays))
	for id, n := range plays {
		out = append(out, TrackRollup{
			TrackID:        id,
			Plays:          n,
			CompletionRate: float64(completed[id]) / float64(n),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Plays != out[j].Plays {
			return out[i].Plays > out[j].Plays
		}
		return out[i].TrackID < out[j].TrackID
	})
	return out
}

// ArtistTrackRollups returns per-track aggregates for the artist's tracks.
func (r *InMemoryRepository) ArtistTrackRollups(ctx context.Context, artistID string) ([]TrackRollup, error) {
	tracks, err := r.tracks.ListByArtist(ctx, artistID)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(tracks))
	for _, t := range tracks {
		ids[t.ID] = struct{}{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rollups(ids, time.Time{}), nil
}

// ArtistUniqueListeners counts distinct listeners across the artist's tracks.
func (r *InMemoryRepository) ArtistUniqueListeners(ctx context.Context, artistID string) (int, error) {
	tracks, err := r.tracks.ListByArtist(ctx, artistID)
	if err != nil {
		return 0, err
	}
	ids := make(map[string]struct{}, len(tracks))
	for _, t := range tracks {
		ids[t.ID] = struct{}{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	listeners := make(map[string]struct{})
	for _, e := range r.events {
		if !e.CountedAsPlay {
			continue
		}
		if _, ok := ids[e.TrackID]; !ok {
			continue
		}
		listeners[e.ListenerKey()] = struct{}{}
	}
	return len(listeners), nil
}

// TopTracks returns counted-play rollups since the cutoff.
func (r *InMemoryRepository) TopTracks(ctx context.Context, since time.Time, limit int) ([]TrackRollup, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := r.rollups(nil, since)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
