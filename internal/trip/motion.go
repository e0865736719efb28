package trip

import (
	"time"

	"github.com/banshee-data/trip.report/internal/config"
	"github.com/banshee-data/trip.report/internal/geo"
	"github.com/banshee-data/trip.report/internal/units"
)

// BufferedPoint is one entry of the in-trip location buffer.
type BufferedPoint struct {
	Position geo.Point
	Time     time.Time
	SpeedKMH float64
}

// MotionUpdate is what one processed location sample looked like to the
// pipeline, handed to the event detector.
type MotionUpdate struct {
	Position       geo.Point
	Time           time.Time
	AccuracyMeters float64

	RawKMH      float64
	SmoothedKMH float64
	PrevRawKMH  float64

	// Elapsed is the time since the previous processed sample.
	Elapsed time.Duration

	// HasPrev is true once at least two speed samples exist, which is the
	// point where speed deltas become meaningful.
	HasPrev bool
}

// Motion is the location-sample pipeline: speed estimation, display-speed
// smoothing, the reference fix, and the in-trip buffer. Speeds are km/h.
type Motion struct {
	tuning *config.Tuning

	refPos  geo.Point
	refTime time.Time
	haveRef bool

	lastSampleTime time.Time
	haveSample     bool

	rawKMH       float64
	smoothedKMH  float64
	speedSamples int

	tripActive bool
	buffer     []BufferedPoint
	speedSum   float64
	speedCount int
}

// NewMotion returns a Motion pipeline. A nil tuning uses defaults.
func NewMotion(tuning *config.Tuning) *Motion {
	if tuning == nil {
		tuning = config.EmptyTuning()
	}
	return &Motion{tuning: tuning}
}

// accuracyAcceptable reports whether a fix quality value passes the
// displacement-speed gate. Unknown (zero/negative) and sentinel "very poor"
// values are acceptable: emulator and test sources omit accuracy and must
// not be rejected for it.
func (m *Motion) accuracyAcceptable(acc float64) bool {
	if acc <= 0 {
		return true
	}
	if acc >= 1000 {
		return true
	}
	return acc <= m.tuning.GetMaxAccuracyMeters()
}

// Process ingests one location sample and returns the resulting update.
// Malformed coordinates are dropped without mutating state; the returned
// update then has a zero Time.
func (m *Motion) Process(s LocationSample) MotionUpdate {
	pos := s.Position()
	if !geo.IsValid(pos) {
		return MotionUpdate{}
	}

	prevRaw := m.rawKMH
	var elapsed time.Duration
	if m.haveSample {
		elapsed = s.Time.Sub(m.lastSampleTime)
	}

	newSpeed := false
	switch {
	case s.SpeedMPS >= 0:
		m.rawKMH = units.MPSToKMH(s.SpeedMPS)
		newSpeed = true
	case m.haveRef:
		gap := s.Time.Sub(m.refTime).Seconds()
		dist := geo.DistanceMeters(m.refPos, pos)
		if gap >= m.tuning.GetMinSampleGapSeconds() &&
			dist >= m.tuning.GetMinDisplacementMeters() &&
			m.accuracyAcceptable(s.AccuracyMeters) {
			m.rawKMH = (dist / 1000) / (gap / 3600)
			newSpeed = true
		}
	}

	if newSpeed {
		m.updateSmoothed(m.rawKMH)
		m.speedSamples++
	}

	// The reference fix moves only when the device actually moved; GPS
	// noise while stationary must not walk it around.
	if !m.haveRef || geo.DistanceMeters(m.refPos, pos) >= m.tuning.GetReferenceUpdateMeters() {
		m.refPos = pos
		m.refTime = s.Time
		m.haveRef = true
	}

	if m.tripActive {
		m.buffer = append(m.buffer, BufferedPoint{Position: pos, Time: s.Time, SpeedKMH: m.rawKMH})
		m.speedSum += m.rawKMH
		m.speedCount++
	}

	m.lastSampleTime = s.Time
	m.haveSample = true

	return MotionUpdate{
		Position:       pos,
		Time:           s.Time,
		AccuracyMeters: s.AccuracyMeters,
		RawKMH:         m.rawKMH,
		SmoothedKMH:    m.smoothedKMH,
		PrevRawKMH:     prevRaw,
		Elapsed:        elapsed,
		HasPrev:        m.speedSamples >= 2,
	}
}

func (m *Motion) updateSmoothed(raw float64) {
	if raw < m.tuning.GetSmoothingSnapBelowKMH() || m.speedSamples == 0 {
		// Snap to raw at (near) standstill so the display doesn't decay
		// slowly to zero after the vehicle has stopped.
		m.smoothedKMH = raw
		return
	}
	alpha := m.tuning.GetSmoothingAlpha()
	m.smoothedKMH = m.smoothedKMH*(1-alpha) + raw*alpha
}

// StartTrip clears the trip buffer and running average.
func (m *Motion) StartTrip() {
	m.tripActive = true
	m.buffer = nil
	m.speedSum = 0
	m.speedCount = 0
}

// EndTrip stops buffering. Buffer contents stay readable until the next
// StartTrip so the session can compute final aggregates.
func (m *Motion) EndTrip() {
	m.tripActive = false
}

// ClearTrip drops the buffer and running average once the session has read
// its final aggregates.
func (m *Motion) ClearTrip() {
	m.buffer = nil
	m.speedSum = 0
	m.speedCount = 0
}

// HasFix reports whether at least one location sample has been accepted.
func (m *Motion) HasFix() bool { return m.haveRef }

// RawKMH returns the latest raw speed estimate.
func (m *Motion) RawKMH() float64 { return m.rawKMH }

// SmoothedKMH returns the exponentially smoothed display speed.
func (m *Motion) SmoothedKMH() float64 { return m.smoothedKMH }

// Reference returns the last accepted reference position.
func (m *Motion) Reference() geo.Point { return m.refPos }

// Buffer returns the in-trip location buffer.
func (m *Motion) Buffer() []BufferedPoint { return m.buffer }

// AverageKMH returns the trip average raw speed, or fallback when no
// samples were buffered.
func (m *Motion) AverageKMH(fallback float64) float64 {
	if m.speedCount == 0 {
		return fallback
	}
	return m.speedSum / float64(m.speedCount)
}

// TripDistanceKm sums pairwise haversine distances over the buffer. It is
// computed once at trip end rather than incrementally.
func (m *Motion) TripDistanceKm() float64 {
	var total float64
	for i := 1; i < len(m.buffer); i++ {
		total += geo.DistanceKm(m.buffer[i-1].Position, m.buffer[i].Position)
	}
	return total
}
