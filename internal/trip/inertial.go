package trip

import (
	"math"
	"sync"

	"github.com/banshee-data/trip.report/internal/config"
	"github.com/banshee-data/trip.report/internal/timeutil"
)

// Inertial ingests accelerometer samples and maintains the rolling magnitude
// plus the short-lived impact flag. The magnitude is orientation-invariant
// so the device can be mounted any way round.
//
// The impact flag converts an instantaneous spike into a signal that stays
// up for a short window, wide enough for the detector to sample it when the
// next location fix arrives.
type Inertial struct {
	tuning *config.Tuning
	clock  timeutil.Clock

	mu        sync.Mutex
	magnitude float64
	impact    bool
	decay     timeutil.Timer
	active    bool
}

// NewInertial returns an Inertial monitor. Nil tuning or clock use defaults.
func NewInertial(tuning *config.Tuning, clock timeutil.Clock) *Inertial {
	if tuning == nil {
		tuning = config.EmptyTuning()
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Inertial{tuning: tuning, clock: clock}
}

// Process ingests one accelerometer sample.
func (in *Inertial) Process(s AccelerationSample) {
	mag := math.Sqrt(s.X*s.X + s.Y*s.Y + s.Z*s.Z)

	in.mu.Lock()
	defer in.mu.Unlock()
	in.magnitude = mag

	if !in.active || mag <= in.tuning.GetImpactThresholdMps2() {
		return
	}

	in.impact = true
	// Re-triggering restarts the decay window.
	if in.decay != nil {
		in.decay.Stop()
	}
	in.decay = in.clock.AfterFunc(in.tuning.GetImpactDecay(), func() {
		in.mu.Lock()
		in.impact = false
		in.mu.Unlock()
	})
}

// Magnitude returns the latest acceleration magnitude in m/s².
func (in *Inertial) Magnitude() float64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.magnitude
}

// ImpactFlag reports whether an impact spike is currently live.
func (in *Inertial) ImpactFlag() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.impact
}

// ClearImpact drops the impact flag immediately. The detector calls this
// when a crash consumes the signal so a later, separate spike is visible
// again.
func (in *Inertial) ClearImpact() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.impact = false
	if in.decay != nil {
		in.decay.Stop()
		in.decay = nil
	}
}

// SetActive gates impact detection on the trip being active. The magnitude
// keeps updating either way.
func (in *Inertial) SetActive(active bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.active = active
	if !active {
		in.impact = false
		if in.decay != nil {
			in.decay.Stop()
			in.decay = nil
		}
	}
}
