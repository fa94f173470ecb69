package play

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tiptune/tiptune/internal/track"
)

// fixture wires a service against in-memory repositories with an adjustable
// clock, plus one catalog track to play.
type fixture struct {
	svc     *Service
	repo    *InMemoryRepository
	tracks  *track.InMemoryRepository
	trackID string
	clock   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	tracks := track.NewInMemoryRepository()
	tr := &track.Track{ID: uuid.New().String(), ArtistID: uuid.New().String(), Title: "test track"}
	if err := tracks.Insert(context.Background(), tr); err != nil {
		t.Fatalf("failed to seed track: %v", err)
	}

	repo := NewInMemoryRepository(tracks)
	svc := NewService(repo, NewHasher("test-salt"), nil, nil)

	f := &fixture{
		svc:     svc,
		repo:    repo,
		tracks:  tracks,
		trackID: tr.ID,
		clock:   time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC),
	}
	svc.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func (f *fixture) plays(t *testing.T) int64 {
	t.Helper()
	tr, err := f.tracks.GetByID(context.Background(), f.trackID)
	if err != nil {
		t.Fatalf("failed to load track: %v", err)
	}
	return tr.Plays
}

func (f *fixture) eventCount() int {
	f.repo.mu.RLock()
	defer f.repo.mu.RUnlock()
	return len(f.repo.events)
}

func (f *fixture) input(session string, duration int) RecordPlayInput {
	return RecordPlayInput{
		TrackID:        f.trackID,
		SessionID:      session,
		ListenDuration: duration,
		Source:         SourceDirect,
	}
}

func TestRecordPlay_CountsQualifyingPlay(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.RecordPlay(context.Background(), f.input("s1", 45), "203.0.113.7")
	if err != nil {
		t.Fatalf("RecordPlay returned error: %v", err)
	}

	if !res.Counted {
		t.Errorf("Expected counted=true, got false (reason: %s)", res.Reason)
	}
	if res.PlayID == "" {
		t.Error("Expected a play ID")
	}
	if got := f.plays(t); got != 1 {
		t.Errorf("Expected track counter 1, got %d", got)
	}
}

func TestRecordPlay_ExactMinimumQualifies(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.RecordPlay(context.Background(), f.input("s1", MinimumListenSeconds), "203.0.113.7")
	if err != nil {
		t.Fatalf("RecordPlay returned error: %v", err)
	}
	if !res.Counted {
		t.Errorf("Exactly %d seconds should qualify, got reason: %s", MinimumListenSeconds, res.Reason)
	}
}

func TestRecordPlay_BelowMinimumNotCounted(t *testing.T) {
	f := newFixture(t)

	for _, duration := range []int{0, 1, 10, 29} {
		res, err := f.svc.RecordPlay(context.Background(), f.input("s-below", duration), "203.0.113.7")
		if err != nil {
			t.Fatalf("RecordPlay(%d) returned error: %v", duration, err)
		}
		if res.Counted {
			t.Errorf("RecordPlay(%ds) should not count", duration)
		}
		if !strings.Contains(res.Reason, "below the 30-second minimum") {
			t.Errorf("Reason %q should mention the 30-second minimum", res.Reason)
		}
	}

	if got := f.plays(t); got != 0 {
		t.Errorf("Expected track counter 0 after disqualified plays, got %d", got)
	}
	if got := f.eventCount(); got != 4 {
		t.Errorf("Expected 4 audit rows, got %d", got)
	}
}

func TestRecordPlay_DuplicateSession(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.RecordPlay(context.Background(), f.input("s1", 45), "203.0.113.7"); err != nil {
		t.Fatalf("first RecordPlay returned error: %v", err)
	}

	f.advance(10 * time.Minute)
	res, err := f.svc.RecordPlay(context.Background(), f.input("s1", 60), "198.51.100.9")
	if err != nil {
		t.Fatalf("second RecordPlay returned error: %v", err)
	}

	if res.Counted {
		t.Error("Same session within the window should be a duplicate")
	}
	if !strings.Contains(res.Reason, "Duplicate") {
		t.Errorf("Reason %q should mention the duplicate", res.Reason)
	}
	if got := f.plays(t); got != 1 {
		t.Errorf("Expected track counter 1, got %d", got)
	}
	if got := f.eventCount(); got != 2 {
		t.Errorf("Duplicate must still be persisted; expected 2 rows, got %d", got)
	}
}

func TestRecordPlay_UserAxisWinsOverNewSession(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New().String()

	first := f.input("s1", 45)
	first.UserID = userID
	if _, err := f.svc.RecordPlay(context.Background(), first, "203.0.113.7"); err != nil {
		t.Fatalf("first RecordPlay returned error: %v", err)
	}

	second := f.input("s2", 60)
	second.UserID = userID
	res, err := f.svc.RecordPlay(context.Background(), second, "198.51.100.9")
	if err != nil {
		t.Fatalf("second RecordPlay returned error: %v", err)
	}

	if res.Counted {
		t.Error("Same user with a fresh session should still be a duplicate")
	}
	if !strings.Contains(res.Reason, "Duplicate") {
		t.Errorf("Reason %q should mention the duplicate", res.Reason)
	}
}

func TestRecordPlay_IPAxisCatchesSessionChurn(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.RecordPlay(context.Background(), f.input("s1", 45), "203.0.113.7"); err != nil {
		t.Fatalf("first RecordPlay returned error: %v", err)
	}

	// New anonymous session, same network address.
	res, err := f.svc.RecordPlay(context.Background(), f.input("s2", 45), "203.0.113.7")
	if err != nil {
		t.Fatalf("second RecordPlay returned error: %v", err)
	}
	if res.Counted {
		t.Error("Same IP spawning a new session should be a duplicate")
	}
}

func TestRecordPlay_AnonymousSkipsUserAxis(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New().String()

	// Authenticated play from one address.
	first := f.input("s1", 45)
	first.UserID = userID
	if _, err := f.svc.RecordPlay(context.Background(), first, "203.0.113.7"); err != nil {
		t.Fatalf("first RecordPlay returned error: %v", err)
	}

	// A different anonymous listener on a different network counts.
	res, err := f.svc.RecordPlay(context.Background(), f.input("s2", 45), "198.51.100.9")
	if err != nil {
		t.Fatalf("second RecordPlay returned error: %v", err)
	}
	if !res.Counted {
		t.Errorf("Different session and IP should count, got reason: %s", res.Reason)
	}
	if got := f.plays(t); got != 2 {
		t.Errorf("Expected track counter 2, got %d", got)
	}
}

func TestRecordPlay_WindowExpiry(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.RecordPlay(context.Background(), f.input("s1", 45), "203.0.113.7"); err != nil {
		t.Fatalf("first RecordPlay returned error: %v", err)
	}

	f.advance(DedupWindow + time.Minute)
	res, err := f.svc.RecordPlay(context.Background(), f.input("s1", 45), "203.0.113.7")
	if err != nil {
		t.Fatalf("second RecordPlay returned error: %v", err)
	}
	if !res.Counted {
		t.Errorf("Play outside the dedup window should count, got reason: %s", res.Reason)
	}
	if got := f.plays(t); got != 2 {
		t.Errorf("Expected track counter 2, got %d", got)
	}
}

func TestRecordPlay_UncountedEventDoesNotBlockRetry(t *testing.T) {
	f := newFixture(t)

	// A 10-second scrub: persisted but not counted.
	res, err := f.svc.RecordPlay(context.Background(), f.input("s1", 10), "203.0.113.7")
	if err != nil {
		t.Fatalf("first RecordPlay returned error: %v", err)
	}
	if res.Counted {
		t.Fatal("10-second play should not count")
	}
	if !strings.Contains(res.Reason, "30-second minimum") {
		t.Errorf("Reason %q should mention the 30-second minimum", res.Reason)
	}

	// The same session listening properly a few minutes later counts: only
	// counted plays participate in deduplication.
	f.advance(5 * time.Minute)
	res, err = f.svc.RecordPlay(context.Background(), f.input("s1", 60), "203.0.113.7")
	if err != nil {
		t.Fatalf("second RecordPlay returned error: %v", err)
	}
	if !res.Counted {
		t.Errorf("Qualifying retry should count, got reason: %s", res.Reason)
	}
}

func TestRecordPlay_DuplicateRegardlessOfDuration(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.RecordPlay(context.Background(), f.input("s1", 45), "203.0.113.7"); err != nil {
		t.Fatalf("first RecordPlay returned error: %v", err)
	}

	// Even a full listen is rejected when the session already counted.
	in := f.input("s1", 600)
	in.CompletedFull = true
	res, err := f.svc.RecordPlay(context.Background(), in, "203.0.113.7")
	if err != nil {
		t.Fatalf("second RecordPlay returned error: %v", err)
	}
	if res.Counted {
		t.Error("Qualification does not override deduplication")
	}
}

func TestRecordPlay_AuditTrailOneRowPerCall(t *testing.T) {
	f := newFixture(t)

	calls := []RecordPlayInput{
		f.input("s1", 45),  // counted
		f.input("s1", 50),  // duplicate
		f.input("s2", 5),   // below minimum
		f.input("s3", 120), // duplicate by ip
	}
	for i, in := range calls {
		if _, err := f.svc.RecordPlay(context.Background(), in, "203.0.113.7"); err != nil {
			t.Fatalf("RecordPlay #%d returned error: %v", i, err)
		}
	}

	if got := f.eventCount(); got != len(calls) {
		t.Errorf("Expected %d audit rows, got %d", len(calls), got)
	}
	if got := f.plays(t); got != 1 {
		t.Errorf("Expected track counter 1, got %d", got)
	}
}

func TestRecordPlay_PersistsIPHashNotAddress(t *testing.T) {
	f := newFixture(t)

	addr := "203.0.113.7"
	if _, err := f.svc.RecordPlay(context.Background(), f.input("s1", 45), addr); err != nil {
		t.Fatalf("RecordPlay returned error: %v", err)
	}

	f.repo.mu.RLock()
	defer f.repo.mu.RUnlock()
	for _, e := range f.repo.events {
		if e.IPHash == addr {
			t.Error("Raw address must never be persisted")
		}
		if len(e.IPHash) != 64 {
			t.Errorf("Expected 64-character ip hash, got %d characters", len(e.IPHash))
		}
	}
}

func TestRecordPlay_DefaultsEmptySourceToDirect(t *testing.T) {
	f := newFixture(t)

	in := f.input("s1", 45)
	in.Source = ""
	if _, err := f.svc.RecordPlay(context.Background(), in, "203.0.113.7"); err != nil {
		t.Fatalf("RecordPlay returned error: %v", err)
	}

	f.repo.mu.RLock()
	defer f.repo.mu.RUnlock()
	if got := f.repo.events[0].Source; got != SourceDirect {
		t.Errorf("Expected source %q, got %q", SourceDirect, got)
	}
}

func TestRecordPlay_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		in   RecordPlayInput
	}{
		{"missing track id", RecordPlayInput{SessionID: "s1", ListenDuration: 45}},
		{"malformed track id", RecordPlayInput{TrackID: "not-a-uuid", SessionID: "s1", ListenDuration: 45}},
		{"malformed user id", RecordPlayInput{TrackID: f.trackID, UserID: "nope", SessionID: "s1", ListenDuration: 45}},
		{"missing session id", RecordPlayInput{TrackID: f.trackID, ListenDuration: 45}},
		{"oversized session id", RecordPlayInput{TrackID: f.trackID, SessionID: strings.Repeat("x", 129), ListenDuration: 45}},
		{"negative duration", RecordPlayInput{TrackID: f.trackID, SessionID: "s1", ListenDuration: -1}},
		{"absurd duration", RecordPlayInput{TrackID: f.trackID, SessionID: "s1", ListenDuration: MaxListenSeconds + 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RecordPlay(context.Background(), tt.in, "203.0.113.7")
			if !errors.Is(err, ErrValidation) {
				t.Errorf("Expected ErrValidation, got %v", err)
			}
		})
	}

	// Nothing persisted for rejected input.
	if got := f.eventCount(); got != 0 {
		t.Errorf("Validation failures must not persist events, got %d rows", got)
	}
}

func TestRecordPlay_PersistenceFailurePropagates(t *testing.T) {
	tracks := track.NewInMemoryRepository()
	repo := NewInMemoryRepository(tracks)
	svc := NewService(repo, NewHasher("test-salt"), nil, nil)

	// The track does not exist, so the counted-path increment fails and the
	// error surfaces to the caller.
	in := RecordPlayInput{
		TrackID:        uuid.New().String(),
		SessionID:      "s1",
		ListenDuration: 45,
		Source:         SourceDirect,
	}
	if _, err := svc.RecordPlay(context.Background(), in, "203.0.113.7"); !errors.Is(err, track.ErrTrackNotFound) {
		t.Errorf("Expected track.ErrTrackNotFound, got %v", err)
	}
}
