package trip

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/trip.report/internal/config"
	"github.com/banshee-data/trip.report/internal/geo"
	"github.com/banshee-data/trip.report/internal/monitoring"
	"github.com/banshee-data/trip.report/internal/timeutil"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusIdle   Status = "idle"
	StatusActive Status = "active"
)

// ErrNoFix blocks trip start/end until at least one location sample has been
// accepted. It is the only engine condition surfaced to the user.
var ErrNoFix = errors.New("no location fix yet")

// Session is the top-level trip state machine. It owns all per-trip
// aggregates, forwards samples to the sub-components in a fixed order, and
// finalizes everything into a Summary exactly once per trip.
//
// Both external sample sources push into the session at their own cadence;
// all mutation goes through the session mutex.
type Session struct {
	tuning    *config.Tuning
	clock     timeutil.Clock
	limits    LimitResolver
	presenter func(Command)

	mu       sync.Mutex
	motion   *Motion
	inertial *Inertial
	detector *Detector
	speeding *Speeding

	status    Status
	tripID    string
	startTime time.Time
	startPos  geo.Point

	// epoch gates late asynchronous limit resolutions: a result that
	// arrives after the trip it was issued for has ended is discarded.
	epoch  uint64
	checks sync.WaitGroup
}

// NewSession builds a session around a limit resolver. Nil tuning, clock, or
// presenter use defaults (the presenter defaults to a no-op).
func NewSession(limits LimitResolver, tuning *config.Tuning, clock timeutil.Clock, presenter func(Command)) *Session {
	if tuning == nil {
		tuning = config.EmptyTuning()
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if presenter == nil {
		presenter = func(Command) {}
	}
	return &Session{
		tuning:    tuning,
		clock:     clock,
		limits:    limits,
		presenter: presenter,
		motion:    NewMotion(tuning),
		inertial:  NewInertial(tuning, clock),
		detector:  NewDetector(tuning),
		speeding:  NewSpeeding(limits, tuning),
		status:    StatusIdle,
	}
}

// OnLocation ingests one location fix. Processing order is fixed: motion
// first, then the event detector reading the latest inertial flag, then the
// cadence-gated speeding check.
func (s *Session) OnLocation(sample LocationSample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.motion.Process(sample)
	if u.Time.IsZero() {
		// Malformed sample, dropped without mutating state.
		return
	}

	if s.status != StatusActive {
		return
	}

	s.detector.Process(u, s.inertial)

	if s.speeding.Due(s.clock.Now()) {
		// The resolver may hit the network; issue it off the ingestion
		// path and apply the result only if this trip is still current.
		epoch := s.epoch
		lat, lng, speed := u.Position.Lat, u.Position.Lng, u.RawKMH
		s.checks.Add(1)
		go s.runSpeedCheck(epoch, lat, lng, speed)
	}
}

func (s *Session) runSpeedCheck(epoch uint64, lat, lng, speed float64) {
	defer s.checks.Done()

	info := s.limits.Resolve(context.Background(), lat, lng)
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive || s.epoch != epoch {
		return
	}
	s.speeding.Apply(info, speed, now)
}

// Flush waits until every in-flight speed-limit check has been applied or
// discarded.
func (s *Session) Flush() {
	s.checks.Wait()
}

// OnAcceleration ingests one accelerometer sample.
func (s *Session) OnAcceleration(sample AccelerationSample) {
	s.inertial.Process(sample)
}

// Start begins a trip. It fails with ErrNoFix before the first accepted
// location sample. Starting an already-active session is a no-op that
// returns the current trip ID.
func (s *Session) Start() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusActive {
		return s.tripID, nil
	}
	if !s.motion.HasFix() {
		return "", ErrNoFix
	}

	s.detector.Reset()
	s.speeding.Reset()
	s.motion.StartTrip()
	s.inertial.SetActive(true)

	s.tripID = uuid.NewString()
	s.startTime = s.clock.Now()
	s.startPos = s.motion.Reference()
	s.status = StatusActive

	monitoring.Logf("trip: started %s at (%.5f, %.5f)", s.tripID, s.startPos.Lat, s.startPos.Lng)
	s.presenter(CommandStartIndicator)
	return s.tripID, nil
}

// End finalizes the active trip: closes any open speeding episode, computes
// the aggregates and the safety score once, clears all per-trip state, and
// returns the Summary. Ending an idle session is a no-op returning nil.
func (s *Session) End() (*Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusActive {
		return nil, nil
	}
	if !s.motion.HasFix() {
		return nil, ErrNoFix
	}

	now := s.clock.Now()
	s.speeding.Finalize(now)

	avg := s.motion.AverageKMH(s.motion.SmoothedKMH())
	median, p85 := speedPercentiles(s.motion.Buffer())
	events := s.detector.Events()
	crash, crashLat, crashLng := s.detector.CrashDetected()
	spState := s.speeding.State()
	endPos := s.motion.Reference()

	var braking, accel int
	for _, ev := range events {
		if ev.Kind == KindBraking {
			braking++
		} else {
			accel++
		}
	}

	summary := &Summary{
		TripID:                 s.tripID,
		StartTime:              s.startTime,
		EndTime:                now,
		StartLat:               s.startPos.Lat,
		StartLng:               s.startPos.Lng,
		EndLat:                 endPos.Lat,
		EndLng:                 endPos.Lng,
		AverageSpeedKMH:        avg,
		MedianSpeedKMH:         median,
		P85SpeedKMH:            p85,
		TotalDistanceKm:        s.motion.TripDistanceKm(),
		HarshBrakingCount:      braking,
		HarshAccelerationCount: accel,
		Events:                 events,
		CrashDetected:          crash,
		CrashLat:               crashLat,
		CrashLng:               crashLng,
		SpeedingSeconds:        spState.CumulativeSeconds,
		SpeedingViolations:     spState.Violations,
		MaxExcessKMH:           spState.MaxExcessKMH,
	}
	summary.SafetyScore = Score(ScoreInput{
		HarshBrakingCount:      braking,
		HarshAccelerationCount: accel,
		CrashDetected:          crash,
		AverageSpeedKMH:        avg,
		SpeedingSeconds:        spState.CumulativeSeconds,
		MaxExcessKMH:           spState.MaxExcessKMH,
	})

	s.status = StatusIdle
	s.epoch++
	s.tripID = ""
	s.motion.EndTrip()
	s.motion.ClearTrip()
	s.inertial.SetActive(false)
	s.detector.Reset()
	s.speeding.Reset()

	monitoring.Logf("trip: ended %s score=%.1f distance=%.2fkm", summary.TripID, summary.SafetyScore, summary.TotalDistanceKm)
	s.presenter(CommandStopIndicator)
	return summary, nil
}

// Status returns the lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// TripID returns the active trip identifier, empty when idle.
func (s *Session) TripID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tripID
}

// DisplaySpeedKMH returns the smoothed display speed.
func (s *Session) DisplaySpeedKMH() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.motion.SmoothedKMH()
}

// SpeedingState returns the live speeding aggregates.
func (s *Session) SpeedingState() SpeedingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speeding.State()
}

// speedPercentiles returns the p50 and p85 of the buffered raw speeds, the
// same percentiles the site reports use.
func speedPercentiles(buffer []BufferedPoint) (median, p85 float64) {
	if len(buffer) == 0 {
		return 0, 0
	}
	speeds := make([]float64, len(buffer))
	for i, p := range buffer {
		speeds[i] = p.SpeedKMH
	}
	sort.Float64s(speeds)
	median = stat.Quantile(0.5, stat.Empirical, speeds, nil)
	p85 = stat.Quantile(0.85, stat.Empirical, speeds, nil)
	return median, p85
}
