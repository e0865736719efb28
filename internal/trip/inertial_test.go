package trip

import (
	"math"
	"testing"
	"time"

	"github.com/banshee-data/trip.report/internal/timeutil"
)

func newActiveInertial(t *testing.T) (*Inertial, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	in := NewInertial(nil, clock)
	in.SetActive(true)
	return in, clock
}

func TestMagnitudeOrientationInvariant(t *testing.T) {
	in, _ := newActiveInertial(t)

	in.Process(AccelerationSample{X: 3, Y: 4, Z: 0})
	if got := in.Magnitude(); math.Abs(got-5) > 1e-9 {
		t.Errorf("Magnitude = %v, want 5", got)
	}

	// Same vector on different axes, same magnitude.
	in.Process(AccelerationSample{X: 0, Y: 3, Z: 4})
	if got := in.Magnitude(); math.Abs(got-5) > 1e-9 {
		t.Errorf("Magnitude = %v, want 5", got)
	}
}

func TestImpactFlagSetAndDecay(t *testing.T) {
	in, clock := newActiveInertial(t)

	in.Process(AccelerationSample{X: 40})
	if !in.ImpactFlag() {
		t.Fatal("impact flag not set by 40 m/s² spike")
	}

	clock.Advance(100 * time.Millisecond)
	if !in.ImpactFlag() {
		t.Fatal("impact flag cleared before 200 ms")
	}

	clock.Advance(150 * time.Millisecond)
	if in.ImpactFlag() {
		t.Error("impact flag still set after decay window")
	}
}

func TestImpactRetriggerRestartsDecay(t *testing.T) {
	in, clock := newActiveInertial(t)

	in.Process(AccelerationSample{X: 40})
	clock.Advance(150 * time.Millisecond)
	in.Process(AccelerationSample{Y: 45}) // re-trigger
	clock.Advance(150 * time.Millisecond)

	// 300 ms after the first spike but only 150 ms after the second.
	if !in.ImpactFlag() {
		t.Error("re-trigger did not restart the decay window")
	}
}

func TestImpactBelowThresholdIgnored(t *testing.T) {
	in, _ := newActiveInertial(t)

	in.Process(AccelerationSample{X: 38})
	if in.ImpactFlag() {
		t.Error("impact flag set below threshold")
	}
}

func TestImpactRequiresActiveTrip(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	in := NewInertial(nil, clock)

	in.Process(AccelerationSample{X: 50})
	if in.ImpactFlag() {
		t.Error("impact flag set while no trip active")
	}
	// The magnitude still updates while idle.
	if got := in.Magnitude(); math.Abs(got-50) > 1e-9 {
		t.Errorf("Magnitude = %v, want 50", got)
	}
}

func TestSetActiveFalseClearsImpact(t *testing.T) {
	in, _ := newActiveInertial(t)

	in.Process(AccelerationSample{X: 50})
	in.SetActive(false)
	if in.ImpactFlag() {
		t.Error("impact flag survived deactivation")
	}
}

func TestClearImpact(t *testing.T) {
	in, clock := newActiveInertial(t)

	in.Process(AccelerationSample{X: 50})
	in.ClearImpact()
	if in.ImpactFlag() {
		t.Error("impact flag survived ClearImpact")
	}

	// The stale decay timer must not clear a fresh flag early. ClearImpact
	// stopped it; a new spike gets a full window.
	in.Process(AccelerationSample{X: 50})
	clock.Advance(150 * time.Millisecond)
	if !in.ImpactFlag() {
		t.Error("fresh impact flag cleared by a stale timer")
	}
}
