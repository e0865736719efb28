package backend

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/banshee-data/trip.report/internal/trip"
)

func openTestSpool(t *testing.T) *Spool {
	t.Helper()
	s, err := OpenSpool(filepath.Join(t.TempDir(), "spool.db"))
	if err != nil {
		t.Fatalf("OpenSpool() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSpoolRoundTrip(t *testing.T) {
	s := openTestSpool(t)

	want := testSummary()
	if err := s.Enqueue(want); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	got, err := s.Get(want.TripID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSpoolPendingAndMarkSubmitted(t *testing.T) {
	s := openTestSpool(t)
	ctx := context.Background()

	first := testSummary()
	second := testSummary()
	second.TripID = uuid.NewString()

	if err := s.Enqueue(first); err != nil {
		t.Fatal(err)
	}
	if err := s.Enqueue(second); err != nil {
		t.Fatal(err)
	}

	pending, err := s.Pending()
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}

	if err := s.MarkSubmitted(first.TripID, 91.0); err != nil {
		t.Fatalf("MarkSubmitted() error = %v", err)
	}

	n, err := s.PendingCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("PendingCount() = %d, want 1", n)
	}

	pending, err = s.Pending()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].TripID != second.TripID {
		t.Errorf("pending after submit = %+v, want only the second trip", pending)
	}
}

func TestSpoolEnqueueIdempotent(t *testing.T) {
	s := openTestSpool(t)

	summary := testSummary()
	if err := s.Enqueue(summary); err != nil {
		t.Fatal(err)
	}
	// A retried enqueue of the same trip ID must not duplicate.
	if err := s.Enqueue(summary); err != nil {
		t.Fatalf("re-enqueue error = %v", err)
	}

	n, err := s.PendingCount(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("PendingCount() = %d after duplicate enqueue, want 1", n)
	}
}

func TestSpoolMarkSubmittedUnknownTrip(t *testing.T) {
	s := openTestSpool(t)
	if err := s.MarkSubmitted("no-such-trip", 50); err == nil {
		t.Error("MarkSubmitted() succeeded for unknown trip")
	}
}

// fakeSubmitter records submissions and optionally fails.
type fakeSubmitter struct {
	score     float64
	err       error
	submitted []string
}

func (f *fakeSubmitter) Submit(ctx context.Context, summary *trip.Summary) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.submitted = append(f.submitted, summary.TripID)
	return f.score, nil
}

func TestFlusherRunOnce(t *testing.T) {
	s := openTestSpool(t)
	sub := &fakeSubmitter{score: 77}

	first := testSummary()
	second := testSummary()
	second.TripID = uuid.NewString()
	if err := s.Enqueue(first); err != nil {
		t.Fatal(err)
	}
	if err := s.Enqueue(second); err != nil {
		t.Fatal(err)
	}

	f := NewFlusher(s, sub)
	if err := f.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if len(sub.submitted) != 2 {
		t.Errorf("submitted = %d trips, want 2", len(sub.submitted))
	}
	n, err := s.PendingCount(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("PendingCount() = %d after flush, want 0", n)
	}
}

func TestFlusherKeepsBacklogOnFailure(t *testing.T) {
	s := openTestSpool(t)
	sub := &fakeSubmitter{err: errors.New("service unreachable")}

	if err := s.Enqueue(testSummary()); err != nil {
		t.Fatal(err)
	}

	f := NewFlusher(s, sub)
	if err := f.RunOnce(context.Background()); err == nil {
		t.Fatal("RunOnce() succeeded against a failing submitter")
	}

	n, err := s.PendingCount(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("PendingCount() = %d after failed flush, want 1 (kept for retry)", n)
	}

	// Service recovers; the backlog drains.
	sub.err = nil
	sub.score = 60
	if err := f.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() after recovery error = %v", err)
	}
	n, _ = s.PendingCount(context.Background())
	if n != 0 {
		t.Errorf("PendingCount() = %d after recovery, want 0", n)
	}
}
