package play

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ErrValidation is returned when a play report violates an input constraint.
// Validation failures are rejected before anything is persisted.
var ErrValidation = errors.New("validation failed")

// Reason strings returned to callers. Non-counted outcomes are successful
// responses, not errors.
const (
	reasonBelowMinimum = "Listen duration %ds is below the %d-second minimum"
	reasonDuplicate    = "Duplicate play detected within the 1-hour deduplication window"
	reasonCounted      = "Play recorded successfully"
)

// Service is the play count integrity engine. It is safe for concurrent use;
// each call is independent and the only serialization point is the counter
// transaction inside the repository.
type Service struct {
	repo    Repository
	hasher  *Hasher
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewService creates a play Service. A nil logger falls back to slog.Default;
// nil metrics get a fresh unregistered instance.
func NewService(repo Repository, hasher *Hasher, logger *slog.Logger, metrics *Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Service{
		repo:    repo,
		hasher:  hasher,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// validateUUID checks that id is a well-formed UUID, reporting the field name
// on failure.
func validateUUID(id, field string) error {
	if id == "" {
		return fmt.Errorf("%w: %s is required", ErrValidation, field)
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s must be a valid UUID", ErrValidation, field)
	}
	return nil
}

func validateInput(in RecordPlayInput) error {
	if err := validateUUID(in.TrackID, "track_id"); err != nil {
		return err
	}
	if in.UserID != "" {
		if err := validateUUID(in.UserID, "user_id"); err != nil {
			return err
		}
	}
	if in.SessionID == "" {
		return fmt.Errorf("%w: session_id is required", ErrValidation)
	}
	if len(in.SessionID) > 128 {
		return fmt.Errorf("%w: session_id must not exceed 128 characters", ErrValidation)
	}
	if in.ListenDuration < 0 {
		return fmt.Errorf("%w: listen_duration must be >= 0", ErrValidation)
	}
	if in.ListenDuration > MaxListenSeconds {
		return fmt.Errorf("%w: listen_duration must not exceed %d", ErrValidation, MaxListenSeconds)
	}
	return nil
}

// dedupAxis is one identity signal checked against prior counted plays.
// Axes are evaluated in priority order and short-circuit on the first match.
type dedupAxis struct {
	name   string
	lookup func(ctx context.Context) (bool, error)
}

// dedupAxes builds the ordered axis list for an event. The user axis is the
// most precise and goes first; session covers anonymous traffic; the IP hash
// is the broadest, last-resort signal and deliberately tolerates false
// positives for co-located listeners.
func (s *Service) dedupAxes(event *PlayEvent, since time.Time) []dedupAxis {
	axes := make([]dedupAxis, 0, 3)
	if event.UserID != "" {
		axes = append(axes, dedupAxis{
			name: "user",
			lookup: func(ctx context.Context) (bool, error) {
				return s.repo.HasCountedPlayByUser(ctx, event.TrackID, event.UserID, since)
			},
		})
	}
	axes = append(axes,
		dedupAxis{
			name: "session",
			lookup: func(ctx context.Context) (bool, error) {
				return s.repo.HasCountedPlayBySession(ctx, event.TrackID, event.SessionID, since)
			},
		},
		dedupAxis{
			name: "ip",
			lookup: func(ctx context.Context) (bool, error) {
				return s.repo.HasCountedPlayByIP(ctx, event.TrackID, event.IPHash, since)
			},
		},
	)
	return axes
}

// isDuplicate reports whether a qualifying counted play already exists for the
// event's track on any identity axis within the dedup window. It returns the
// name of the first matching axis.
func (s *Service) isDuplicate(ctx context.Context, event *PlayEvent) (bool, string, error) {
	since := event.PlayedAt.Add(-DedupWindow)
	for _, axis := range s.dedupAxes(event, since) {
		matched, err := axis.lookup(ctx)
		if err != nil {
			return false, "", fmt.Errorf("dedup check on %s axis: %w", axis.name, err)
		}
		if matched {
			return true, axis.name, nil
		}
	}
	return false, "", nil
}

// RecordPlay decides whether a reported play is a genuine, once-only listen.
// Every call persists exactly one event row; only genuine new plays flip
// counted_as_play and increment the track counter, atomically.
//
// The dedup read is intentionally not part of the write transaction: two
// identical requests racing within microseconds can both count. Gaming
// operates at minute-to-hour timescales, matched by the 1-hour window, so
// the simpler, lower-latency path wins.
func (s *Service) RecordPlay(ctx context.Context, in RecordPlayInput, clientAddr string) (*RecordPlayResult, error) {
	start := s.now()
	if err := validateInput(in); err != nil {
		return nil, err
	}

	source := in.Source
	if source == "" {
		source = SourceDirect
	}

	event := &PlayEvent{
		ID:             uuid.New().String(),
		TrackID:        in.TrackID,
		UserID:         in.UserID,
		SessionID:      in.SessionID,
		ListenDuration: in.ListenDuration,
		CompletedFull:  in.CompletedFull,
		Source:         source,
		IPHash:         s.hasher.Hash(clientAddr),
		CountedAsPlay:  false,
		PlayedAt:       start,
	}

	if event.ListenDuration < MinimumListenSeconds {
		if err := s.repo.Insert(ctx, event); err != nil {
			return nil, fmt.Errorf("failed to persist disqualified play: %w", err)
		}
		s.metrics.IncBelowMinimum()
		return &RecordPlayResult{
			Counted: false,
			Reason:  fmt.Sprintf(reasonBelowMinimum, event.ListenDuration, MinimumListenSeconds),
			PlayID:  event.ID,
		}, nil
	}

	duplicate, axis, err := s.isDuplicate(ctx, event)
	if err != nil {
		return nil, err
	}
	if duplicate {
		if err := s.repo.Insert(ctx, event); err != nil {
			return nil, fmt.Errorf("failed to persist duplicate play: %w", err)
		}
		s.metrics.IncDuplicate(axis)
		return &RecordPlayResult{
			Counted: false,
			Reason:  reasonDuplicate,
			PlayID:  event.ID,
		}, nil
	}

	event.CountedAsPlay = true
	if err := s.repo.InsertCounted(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to record counted play: %w", err)
	}

	s.metrics.IncCounted()
	s.metrics.ObserveRecordLatency(time.Since(start).Seconds())
	s.logger.Info("counted play",
		slog.String("track_id", event.TrackID),
		slog.String("listener", event.ListenerKey()),
		slog.String("source", string(event.Source)),
	)

	return &RecordPlayResult{
		Counted: true,
		Reason:  reasonCounted,
		PlayID:  event.ID,
	}, nil
}
