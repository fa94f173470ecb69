package play

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// PostgresRepository implements Repository using PostgreSQL with full
// transaction support for the counted-play path.
type PostgresRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{db: db, logger: logger}
}

const insertEventQuery = `
	INSERT INTO track_plays
		(id, track_id, user_id, session_id, listen_duration, completed_full, source, ip_hash, counted_as_play, played_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

// nullableUser maps an empty user ID onto SQL NULL.
func nullableUser(userID string) sql.NullString {
	return sql.NullString{String: userID, Valid: userID != ""}
}

// Insert persists an audit-only event outside any transaction.
func (r *PostgresRepository) Insert(ctx context.Context, event *PlayEvent) error {
	_, err := r.db.ExecContext(ctx, insertEventQuery,
		event.ID, event.TrackID, nullableUser(event.UserID), event.SessionID,
		event.ListenDuration, event.CompletedFull, string(event.Source),
		event.IPHash, event.CountedAsPlay, event.PlayedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert play event: %w", err)
	}
	return nil
}

// InsertCounted persists a counted event and increments the track counter in
// one transaction. The counter UPDATE's row-level atomicity serializes
// concurrent legitimate plays on the same track.
func (r *PostgresRepository) InsertCounted(ctx context.Context, event *PlayEvent) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// No-op after a successful commit.
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			r.logger.Warn("failed to rollback transaction", slog.String("error", err.Error()))
		}
	}()

	if _, err := tx.ExecContext(ctx, insertEventQuery,
		event.ID, event.TrackID, nullableUser(event.UserID), event.SessionID,
		event.ListenDuration, event.CompletedFull, string(event.Source),
		event.IPHash, event.CountedAsPlay, event.PlayedAt,
	); err != nil {
		return fmt.Errorf("failed to insert counted play event: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE tracks SET plays = plays + 1 WHERE id = $1`, event.TrackID); err != nil {
		return fmt.Errorf("failed to increment track plays: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit counted play: %w", err)
	}
	return nil
}

func (r *PostgresRepository) hasCountedPlay(ctx context.Context, query, trackID, identity string, since time.Time) (bool, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, trackID, identity, since).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check for prior play: %w", err)
	}
	return exists, nil
}

// HasCountedPlayByUser checks the user identity axis.
func (r *PostgresRepository) HasCountedPlayByUser(ctx context.Context, trackID, userID string, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM track_plays
			WHERE track_id = $1 AND user_id = $2 AND counted_as_play = true AND played_at > $3
		)
	`
	return r.hasCountedPlay(ctx, query, trackID, userID, since)
}

// HasCountedPlayBySession checks the session identity axis.
func (r *PostgresRepository) HasCountedPlayBySession(ctx context.Context, trackID, sessionID string, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM track_plays
			WHERE track_id = $1 AND session_id = $2 AND counted_as_play = true AND played_at > $3
		)
	`
	return r.hasCountedPlay(ctx, query, trackID, sessionID, since)
}

// HasCountedPlayByIP checks the network identity axis.
func (r *PostgresRepository) HasCountedPlayByIP(ctx context.Context, trackID, ipHash string, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM track_plays
			WHERE track_id = $1 AND ip_hash = $2 AND counted_as_play = true AND played_at > $3
		)
	`
	return r.hasCountedPlay(ctx, query, trackID, ipHash, since)
}

// TrackCounts aggregates a track's events since the cutoff in a single scan.
func (r *PostgresRepository) TrackCounts(ctx context.Context, trackID string, since time.Time) (TrackCounts, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE counted_as_play),
			COUNT(*) FILTER (WHERE counted_as_play AND completed_full),
			COALESCE(AVG(listen_duration), 0),
			COUNT(DISTINCT COALESCE(user_id::text, session_id)) FILTER (WHERE counted_as_play)
		FROM track_plays
		WHERE track_id = $1 AND played_at >= $2
	`
	var c TrackCounts
	err := r.db.QueryRowContext(ctx, query, trackID, since).Scan(
		&c.TotalEvents, &c.TotalPlays, &c.CompletedPlays, &c.AvgListenDuration, &c.UniqueListeners,
	)
	if err != nil {
		return TrackCounts{}, fmt.Errorf("failed to aggregate track counts: %w", err)
	}
	return c, nil
}

// SourceCounts groups a track's counted plays by source.
func (r *PostgresRepository) SourceCounts(ctx context.Context, trackID string) (map[Source]int, error) {
	query := `
		SELECT source, COUNT(*)
		FROM track_plays
		WHERE track_id = $1 AND counted_as_play = true
		GROUP BY source
	`
	rows, err := r.db.QueryContext(ctx, query, trackID)
	if err != nil {
		return nil, fmt.Errorf("failed to group plays by source: %w", err)
	}
	defer rows.Close()

	out := make(map[Source]int)
	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			return nil, fmt.Errorf("failed to scan source count: %w", err)
		}
		out[Source(source)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate source counts: %w", err)
	}
	return out, nil
}

func scanRollups(rows *sql.Rows) ([]TrackRollup, error) {
	var out []TrackRollup
	for rows.Next() {
		var roll TrackRollup
		if err := rows.Scan(&roll.TrackID, &roll.Plays, &roll.CompletionRate); err != nil {
			return nil, fmt.Errorf("failed to scan track rollup: %w", err)
		}
		out = append(out, roll)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate track rollups: %w", err)
	}
	return out, nil
}

// ArtistTrackRollups returns per-track aggregates for the artist's tracks,
// ordered by plays descending.
func (r *PostgresRepository) ArtistTrackRollups(ctx context.Context, artistID string) ([]TrackRollup, error) {
	query := `
		SELECT p.track_id,
		       COUNT(p.id),
		       AVG(CASE WHEN p.completed_full THEN 1.0 ELSE 0.0 END)
		FROM track_plays p
		INNER JOIN tracks t ON t.id = p.track_id AND t.artist_id = $1
		WHERE p.counted_as_play = true
		GROUP BY p.track_id
		ORDER BY COUNT(p.id) DESC
	`
	rows, err := r.db.QueryContext(ctx, query, artistID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate artist tracks: %w", err)
	}
	defer rows.Close()
	return scanRollups(rows)
}

// ArtistUniqueListeners counts distinct listeners across the artist's tracks.
func (r *PostgresRepository) ArtistUniqueListeners(ctx context.Context, artistID string) (int, error) {
	query := `
		SELECT COUNT(DISTINCT COALESCE(p.user_id::text, p.session_id))
		FROM track_plays p
		INNER JOIN tracks t ON t.id = p.track_id AND t.artist_id = $1
		WHERE p.counted_as_play = true
	`
	var count int
	if err := r.db.QueryRowContext(ctx, query, artistID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count artist listeners: %w", err)
	}
	return count, nil
}

// TopTracks returns counted-play rollups since the cutoff.
func (r *PostgresRepository) TopTracks(ctx context.Context, since time.Time, limit int) ([]TrackRollup, error) {
	query := `
		SELECT track_id,
		       COUNT(id),
		       AVG(CASE WHEN completed_full THEN 1.0 ELSE 0.0 END)
		FROM track_plays
		WHERE counted_as_play = true AND played_at >= $1
		GROUP BY track_id
		ORDER BY COUNT(id) DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate top tracks: %w", err)
	}
	defer rows.Close()
	return scanRollups(rows)
}
