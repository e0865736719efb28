package backend

import (
	"context"
	"time"

	"github.com/banshee-data/trip.report/internal/monitoring"
)

// Flusher periodically drains the spool to the trips service. Designed to
// run for the life of the process and tolerate the service being
// unreachable for long stretches: a failed submission stays queued and is
// retried on the next interval.
type Flusher struct {
	Spool     *Spool
	Submitter Submitter
	Interval  time.Duration
	StopChan  chan struct{}
}

// NewFlusher returns a Flusher draining spool via submitter.
func NewFlusher(spool *Spool, submitter Submitter) *Flusher {
	return &Flusher{
		Spool:     spool,
		Submitter: submitter,
		Interval:  time.Minute,
		StopChan:  make(chan struct{}),
	}
}

// Start runs the periodic flush loop in a goroutine.
func (f *Flusher) Start() {
	go func() {
		ticker := time.NewTicker(f.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := f.RunOnce(context.Background()); err != nil {
					monitoring.Logf("backend: flush run error: %v", err)
				}
			case <-f.StopChan:
				return
			}
		}
	}()
}

// Stop requests the flusher to stop.
func (f *Flusher) Stop() {
	close(f.StopChan)
}

// RunOnce submits every pending trip, oldest first. The first submission
// failure aborts the run; the remaining backlog is retried next interval
// rather than hammering an unreachable service.
func (f *Flusher) RunOnce(ctx context.Context) error {
	pending, err := f.Spool.Pending()
	if err != nil {
		return err
	}

	for _, summary := range pending {
		score, err := f.Submitter.Submit(ctx, summary)
		if err != nil {
			return err
		}
		if err := f.Spool.MarkSubmitted(summary.TripID, score); err != nil {
			return err
		}
		monitoring.Logf("backend: submitted trip %s, authoritative score %.1f (local %.1f)",
			summary.TripID, score, summary.SafetyScore)
	}
	return nil
}
