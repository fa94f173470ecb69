package track

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTrackNotFound is returned when a track does not exist.
var ErrTrackNotFound = errors.New("track not found")

// Repository defines methods for track catalog persistence.
type Repository interface {
	Insert(ctx context.Context, t *Track) error
	GetByID(ctx context.Context, id string) (*Track, error)
	ListByArtist(ctx context.Context, artistID string) ([]*Track, error)

	// IncrementPlays adds exactly 1 to the track's aggregate play counter.
	IncrementPlays(ctx context.Context, id string) error
}

// InMemoryRepository implements Repository with in-memory storage.
// Used for testing and development.
type InMemoryRepository struct {
	mu     sync.RWMutex
	tracks map[string]*Track
}

// NewInMemoryRepository creates a new in-memory track repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		tracks: make(map[string]*Track),
	}
}

// Insert adds a new track to the catalog.
func (r *InMemoryRepository) Insert(ctx context.Context, t *Track) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	// Deep copy to prevent external mutation
	copied := *t
	r.tracks[t.ID] = &copied
	return nil
}

// GetByID retrieves a track by ID.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Track, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tracks[id]
	if !ok {
		return nil, ErrTrackNotFound
	}
	copied := *t
	return &copied, nil
}

// ListByArtist returns all tracks owned by the given artist.
func (r *InMemoryRepository) ListByArtist(ctx context.Context, artistID string) ([]*Track, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Track
	for _, t := range r.tracks {
		if t.ArtistID == artistID {
			copied := *t
			out = append(out, &copied)
		}
	}
	return out, nil
}

// IncrementPlays adds exactly 1 to the track's play counter.
func (r *InMemoryRepository) IncrementPlays(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tracks[id]
	if !ok {
		return ErrTrackNotFound
	}
	t.Plays++
	return nil
}
