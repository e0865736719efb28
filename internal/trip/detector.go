package trip

import (
	"time"

	"github.com/banshee-data/trip.report/internal/config"
	"github.com/banshee-data/trip.report/internal/monitoring"
)

// Detector fuses the motion pipeline's speed trend with the inertial impact
// flag to classify harsh braking, harsh acceleration, and crashes.
//
// The fusion rule depends on GPS quality. With a good fix, a speed-change
// flag alone is not enough: the impact flag must agree, which filters the
// jumps a noisy fix produces on its own. With a spotty fix the speed data
// cannot be trusted either way, so the impact flag alone counts and the
// speed trend only picks braking vs. acceleration.
type Detector struct {
	tuning *config.Tuning

	events        []HarshEvent
	lastEventTime map[EventKind]time.Time

	suddenStop    bool
	crashDetected bool
	crashLat      float64
	crashLng      float64
}

// NewDetector returns a Detector. A nil tuning uses defaults.
func NewDetector(tuning *config.Tuning) *Detector {
	if tuning == nil {
		tuning = config.EmptyTuning()
	}
	return &Detector{
		tuning:        tuning,
		lastEventTime: make(map[EventKind]time.Time),
	}
}

// Reset clears all per-trip detector state.
func (d *Detector) Reset() {
	d.events = nil
	d.lastEventTime = make(map[EventKind]time.Time)
	d.suddenStop = false
	d.crashDetected = false
	d.crashLat = 0
	d.crashLng = 0
}

// Events returns the harsh events counted this trip.
func (d *Detector) Events() []HarshEvent { return d.events }

// CrashDetected reports whether a crash has been recorded this trip,
// with its location.
func (d *Detector) CrashDetected() (bool, float64, float64) {
	return d.crashDetected, d.crashLat, d.crashLng
}

// goodFix classifies GPS quality for event inference.
func (d *Detector) goodFix(accuracyMeters float64, elapsed time.Duration) bool {
	if accuracyMeters > 0 && accuracyMeters <= d.tuning.GetGoodAccuracyMeters() {
		return true
	}
	if accuracyMeters > 0 && accuracyMeters <= d.tuning.GetFairAccuracyMeters() &&
		elapsed <= d.tuning.GetFairMaxGap() {
		return true
	}
	return false
}

// Process runs event classification for one location update. impactConsumer
// is the inertial monitor, read for the current flag and cleared when a
// crash consumes it.
func (d *Detector) Process(u MotionUpdate, impactConsumer *Inertial) {
	if !u.HasPrev {
		return
	}
	if u.Elapsed < d.tuning.GetDeltaWindowMin() || u.Elapsed > d.tuning.GetDeltaWindowMax() {
		// Outside this window the sample-to-sample delta is not a
		// trustworthy basis for event inference.
		return
	}

	impact := impactConsumer.ImpactFlag()
	d.detectHarsh(u, impact)
	d.detectCrash(u, impactConsumer)
}

func (d *Detector) detectHarsh(u MotionUpdate, impact bool) {
	var changePercent float64
	if u.PrevRawKMH > 0 {
		changePercent = (u.RawKMH - u.PrevRawKMH) / u.PrevRawKMH * 100
	}

	threshold := d.tuning.GetHarshChangePercent()
	speedBraking := changePercent <= -threshold
	speedAccel := changePercent >= threshold

	var kind EventKind
	good := d.goodFix(u.AccuracyMeters, u.Elapsed)
	switch {
	case good && speedBraking && impact:
		kind = KindBraking
	case good && speedAccel && impact:
		kind = KindAcceleration
	case !good && impact:
		// Spotty fix: the impact alone counts; the speed trend only
		// chooses the kind, defaulting to braking when inconclusive.
		if speedAccel {
			kind = KindAcceleration
		} else {
			kind = KindBraking
		}
	default:
		return
	}

	if last, ok := d.lastEventTime[kind]; ok && u.Time.Sub(last) < d.tuning.GetEventCooldown() {
		// One physical event spans several samples; count it once.
		return
	}
	d.lastEventTime[kind] = u.Time

	ev := HarshEvent{
		Kind:     kind,
		Time:     u.Time,
		Lat:      u.Position.Lat,
		Lng:      u.Position.Lng,
		SpeedKMH: u.RawKMH,
		Severity: gradeSeverity(changePercent),
	}
	d.events = append(d.events, ev)
	monitoring.Logf("trip: harsh %s at (%.5f, %.5f), %.1f km/h, %s",
		kind, ev.Lat, ev.Lng, ev.SpeedKMH, ev.Severity)
}

// gradeSeverity maps the magnitude of the percentage speed change onto the
// backend's severity levels.
func gradeSeverity(changePercent float64) Severity {
	abs := changePercent
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 60:
		return SeveritySevere
	case abs >= 45:
		return SeverityModerate
	default:
		return SeverityMild
	}
}

func (d *Detector) detectCrash(u MotionUpdate, impactConsumer *Inertial) {
	// Speed-based signal: sudden stop from moving speed within a short
	// window. The flag stays up until the vehicle is moving again so the
	// two signals do not have to land on the same sample.
	if u.PrevRawKMH >= d.tuning.GetCrashPreSpeedKMH() &&
		u.RawKMH < d.tuning.GetCrashStopSpeedKMH() &&
		u.Elapsed < d.tuning.GetCrashStopWindow() {
		d.suddenStop = true
	} else if u.RawKMH >= d.tuning.GetCrashStopSpeedKMH() {
		d.suddenStop = false
	}

	if d.crashDetected || !d.suddenStop || !impactConsumer.ImpactFlag() {
		return
	}

	// Both independent signals agree: record the crash, once per trip.
	// Each signal flag is reset after consumption so a second real crash
	// would still be detectable, though the trip-level flag is sticky.
	d.crashDetected = true
	d.crashLat = u.Position.Lat
	d.crashLng = u.Position.Lng
	d.suddenStop = false
	impactConsumer.ClearImpact()
	monitoring.Logf("trip: crash detected at (%.5f, %.5f)", d.crashLat, d.crashLng)
}
