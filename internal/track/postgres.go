package track

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert adds a new track to the catalog.
func (r *PostgresRepository) Insert(ctx context.Context, t *Track) error {
	query := `
		INSERT INTO tracks (id, artist_id, title, plays, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING created_at
	`
	if err := r.db.QueryRowContext(ctx, query, t.ID, t.ArtistID, t.Title, t.Plays).Scan(&t.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert track: %w", err)
	}
	return nil
}

// GetByID retrieves a track by ID.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Track, error) {
	query := `
		SELECT id, artist_id, title, plays, created_at
		FROM tracks
		WHERE id = $1
	`
	var t Track
	err := r.db.QueryRowContext(ctx, query, id).Scan(&t.ID, &t.ArtistID, &t.Title, &t.Plays, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTrackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get track: %w", err)
	}
	return &t, nil
}

// ListByArtist returns all tracks owned by the given artist.
func (r *PostgresRepository) ListByArtist(ctx context.Context, artistID string) ([]*Track, error) {
	query := `
		SELECT id, artist_id, title, plays, created_at
		FROM tracks
		WHERE artist_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, artistID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}
	defer rows.Close()

	var out []*Track
	for rows.Next() {
		var t Track
		if err := rows.Scan(&t.ID, &t.ArtistID, &t.Title, &t.Plays, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tracks: %w", err)
	}
	return out, nil
}

// IncrementPlays adds exactly 1 to the track's play counter. The row-level
// atomicity of the UPDATE is the serialization point for concurrent plays.
func (r *PostgresRepository) IncrementPlays(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE tracks SET plays = plays + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to increment plays: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrTrackNotFound
	}
	return nil
}
