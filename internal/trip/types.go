// Package trip implements the device-side trip monitoring engine: location
// and accelerometer ingestion, harsh-event and crash detection, speeding
// tracking against resolved road limits, and the trip safety score.
package trip

import (
	"time"

	"github.com/banshee-data/trip.report/internal/geo"
)

// LocationSample is one GPS fix as delivered by the platform location source.
type LocationSample struct {
	Lat  float64
	Lng  float64
	Time time.Time

	// AccuracyMeters is the reported horizontal accuracy. Zero or negative
	// means the source did not report fix quality.
	AccuracyMeters float64

	// SpeedMPS is the device-reported ground speed in m/s. Negative means
	// the source did not report a speed.
	SpeedMPS float64
}

// Position returns the sample's coordinate.
func (s LocationSample) Position() geo.Point {
	return geo.Point{Lat: s.Lat, Lng: s.Lng}
}

// AccelerationSample is one accelerometer reading in m/s² per axis.
type AccelerationSample struct {
	X float64
	Y float64
	Z float64
}

// EventKind distinguishes harsh driving event types. The values match the
// trips backend's event_type field.
type EventKind string

const (
	KindBraking      EventKind = "braking"
	KindAcceleration EventKind = "acceleration"
)

// Severity grades a harsh event. The values match the backend's field.
type Severity string

const (
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// HarshEvent is one counted braking or acceleration incident.
type HarshEvent struct {
	Kind     EventKind
	Time     time.Time
	Lat      float64
	Lng      float64
	SpeedKMH float64
	Severity Severity
}

// SpeedingState tracks the speeding aggregates for one trip. EpisodeStart is
// non-zero exactly while Speeding is true.
type SpeedingState struct {
	Speeding     bool
	EpisodeStart time.Time
	// CumulativeSeconds is the closed-episode total; an open episode is
	// added at finalize time.
	CumulativeSeconds float64
	Violations        int
	MaxExcessKMH      float64
}

// Summary is the finalized aggregate set for one trip, produced exactly once
// at trip end. It is what the trips backend consumes and what the safety
// score is computed from.
type Summary struct {
	TripID    string
	StartTime time.Time
	EndTime   time.Time
	StartLat  float64
	StartLng  float64
	EndLat    float64
	EndLng    float64

	AverageSpeedKMH float64
	MedianSpeedKMH  float64
	P85SpeedKMH     float64
	TotalDistanceKm float64

	HarshBrakingCount      int
	HarshAccelerationCount int
	Events                 []HarshEvent

	CrashDetected bool
	CrashLat      float64
	CrashLng      float64

	SpeedingSeconds    float64
	SpeedingViolations int
	MaxExcessKMH       float64

	SafetyScore float64
}

// Command is a side effect the session asks an external presenter to
// execute. The engine owns no UI; indicators are the presenter's problem.
type Command string

const (
	CommandStartIndicator Command = "start-tracking-indicator"
	CommandStopIndicator  Command = "stop-tracking-indicator"
)
