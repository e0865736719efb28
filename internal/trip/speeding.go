package trip

import (
	"context"
	"time"

	"github.com/banshee-data/trip.report/internal/config"
	"github.com/banshee-data/trip.report/internal/speedlimit"
)

// LimitResolver resolves the speed limit at a coordinate. It must never
// fail; the cached resolver in internal/speedlimit satisfies it.
type LimitResolver interface {
	Resolve(ctx context.Context, lat, lng float64) speedlimit.Info
}

// Speeding tracks speeding episodes against resolved road limits. Checks run
// on a fixed cadence, not per sample, which is what keeps the resolver (and
// through it the external road-data source) rate limited.
type Speeding struct {
	limits LimitResolver
	tuning *config.Tuning

	lastCheck time.Time
	lastLimit speedlimit.Info
	haveLimit bool

	state SpeedingState
}

// NewSpeeding returns a Speeding monitor. A nil tuning uses defaults.
func NewSpeeding(limits LimitResolver, tuning *config.Tuning) *Speeding {
	if tuning == nil {
		tuning = config.EmptyTuning()
	}
	return &Speeding{limits: limits, tuning: tuning}
}

// Reset clears all per-trip speeding state.
func (sp *Speeding) Reset() {
	sp.lastCheck = time.Time{}
	sp.state = SpeedingState{}
}

// State returns the current speeding aggregates.
func (sp *Speeding) State() SpeedingState { return sp.state }

// LastLimit returns the most recently resolved limit, if any.
func (sp *Speeding) LastLimit() (speedlimit.Info, bool) {
	return sp.lastLimit, sp.haveLimit
}

// Due reports whether the cadence gate allows a check at now, and if so
// arms it. Arming before the (possibly slow) resolver call means only one
// check per cadence window is ever in flight.
func (sp *Speeding) Due(now time.Time) bool {
	if !sp.lastCheck.IsZero() && now.Sub(sp.lastCheck) < sp.tuning.GetSpeedingCadence() {
		return false
	}
	sp.lastCheck = now
	return true
}

// Check resolves the limit for the coordinate and applies the comparison.
// It blocks on the resolver (bounded by its timeout); callers that must not
// block run it on their own goroutine and gate the application.
func (sp *Speeding) Check(ctx context.Context, lat, lng, speedKMH float64, now time.Time) {
	info := sp.limits.Resolve(ctx, lat, lng)
	sp.Apply(info, speedKMH, now)
}

// Apply runs the speeding comparison against an already-resolved limit.
func (sp *Speeding) Apply(info speedlimit.Info, speedKMH float64, now time.Time) {
	sp.lastLimit = info
	sp.haveLimit = true

	limit := float64(info.LimitKMH)
	over := speedKMH > limit+sp.tuning.GetSpeedingToleranceKMH()

	switch {
	case over && !sp.state.Speeding:
		sp.state.Speeding = true
		sp.state.EpisodeStart = now
		sp.state.Violations++
	case !over && sp.state.Speeding:
		sp.closeEpisode(now)
	}

	if over {
		if excess := speedKMH - limit; excess > sp.state.MaxExcessKMH {
			sp.state.MaxExcessKMH = excess
		}
	}
}

// Finalize closes an open episode as if a transition occurred at now.
// Called at trip end.
func (sp *Speeding) Finalize(now time.Time) {
	if sp.state.Speeding {
		sp.closeEpisode(now)
	}
}

func (sp *Speeding) closeEpisode(now time.Time) {
	sp.state.CumulativeSeconds += now.Sub(sp.state.EpisodeStart).Seconds()
	sp.state.Speeding = false
	sp.state.EpisodeStart = time.Time{}
}
