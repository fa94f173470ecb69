package play

import (
	"context"
	"fmt"
	"math"
)

// Default query parameters for the analytics endpoints.
const (
	DefaultPeriod         = "7d"
	DefaultTopTracksLimit = 20
)

// roundRate rounds rates and percentages to 4 decimal places so repeated
// queries return stable, comparable values.
func roundRate(x float64) float64 {
	return math.Round(x*10000) / 10000
}

// roundDuration rounds durations to 2 decimal places.
func roundDuration(x float64) float64 {
	return math.Round(x*100) / 100
}

// TrackStats computes a track's statistics over the given period.
// A track with no events yields all-zero stats; no division by zero leaks out.
func (s *Service) TrackStats(ctx context.Context, trackID, period string) (*TrackStats, error) {
	if err := validateUUID(trackID, "track_id"); err != nil {
		return nil, err
	}
	if period == "" {
		period = DefaultPeriod
	}
	since, err := periodToDateAt(period, s.now())
	if err != nil {
		return nil, err
	}

	counts, err := s.repo.TrackCounts(ctx, trackID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load track stats: %w", err)
	}

	var skipRate, completionRate float64
	if counts.TotalEvents > 0 {
		skipRate = float64(counts.TotalEvents-counts.TotalPlays) / float64(counts.TotalEvents)
	}
	if counts.TotalPlays > 0 {
		completionRate = float64(counts.CompletedPlays) / float64(counts.TotalPlays)
	}

	return &TrackStats{
		TrackID:           trackID,
		TotalPlays:        counts.TotalPlays,
		UniqueListeners:   counts.UniqueListeners,
		CompletionRate:    roundRate(completionRate),
		SkipRate:          roundRate(skipRate),
		AvgListenDuration: roundDuration(counts.AvgListenDuration),
		Period:            period,
	}, nil
}

// TrackSources returns a track's counted plays grouped by source. Every
// enumerated source appears in the result, zero-defaulted when unobserved.
func (s *Service) TrackSources(ctx context.Context, trackID string) (*SourceBreakdown, error) {
	if err := validateUUID(trackID, "track_id"); err != nil {
		return nil, err
	}

	counts, err := s.repo.SourceCounts(ctx, trackID)
	if err != nil {
		return nil, fmt.Errorf("failed to load source breakdown: %w", err)
	}

	sources := make(map[Source]int, len(Sources()))
	for _, src := range Sources() {
		sources[src] = 0
	}
	for src, n := range counts {
		// Sources persisted before the server learned about them fold
		// into the catch-all bucket.
		if _, known := sources[src]; !known {
			src = SourceOther
		}
		sources[src] += n
	}

	return &SourceBreakdown{TrackID: trackID, Sources: sources}, nil
}

// ArtistOverview aggregates counted plays across the artist's tracks.
// Only tracks with at least one counted play contribute to the rollup.
func (s *Service) ArtistOverview(ctx context.Context, artistID string) (*ArtistOverview, error) {
	if err := validateUUID(artistID, "artist_id"); err != nil {
		return nil, err
	}

	rollups, err := s.repo.ArtistTrackRollups(ctx, artistID)
	if err != nil {
		return nil, fmt.Errorf("failed to load artist rollups: %w", err)
	}

	totalPlays := 0
	rateSum := 0.0
	for _, roll := range rollups {
		totalPlays += roll.Plays
		rateSum += roll.CompletionRate
	}
	var avgCompletionRate float64
	if len(rollups) > 0 {
		avgCompletionRate = rateSum / float64(len(rollups))
	}

	uniqueListeners, err := s.repo.ArtistUniqueListeners(ctx, artistID)
	if err != nil {
		return nil, fmt.Errorf("failed to count artist listeners: %w", err)
	}

	topTracks := make([]TopTrack, 0, 5)
	for i, roll := range rollups {
		if i == 5 {
			break
		}
		topTracks = append(topTracks, TopTrack{
			TrackID:        roll.TrackID,
			Plays:          roll.Plays,
			CompletionRate: roundRate(roll.CompletionRate),
		})
	}

	return &ArtistOverview{
		ArtistID:          artistID,
		TotalPlays:        totalPlays,
		UniqueListeners:   uniqueListeners,
		TotalTracks:       len(rollups),
		AvgCompletionRate: roundRate(avgCompletionRate),
		TopTracks:         topTracks,
	}, nil
}

// TopTracks ranks tracks by counted plays within the period, descending,
// truncated to limit.
func (s *Service) TopTracks(ctx context.Context, period string, limit int) (*TopTracks, error) {
	if period == "" {
		period = DefaultPeriod
	}
	if limit <= 0 {
		limit = DefaultTopTracksLimit
	}
	since, err := periodToDateAt(period, s.now())
	if err != nil {
		return nil, err
	}

	rollups, err := s.repo.TopTracks(ctx, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load top tracks: %w", err)
	}

	tracks := make([]TopTrack, 0, len(rollups))
	for _, roll := range rollups {
		tracks = append(tracks, TopTrack{
			TrackID:        roll.TrackID,
			Plays:          roll.Plays,
			CompletionRate: roundRate(roll.CompletionRate),
		})
	}

	return &TopTracks{Period: period, Tracks: tracks}, nil
}
