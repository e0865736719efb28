package trip

// ScoreInput is the aggregate set the safety score is computed from. The
// trips backend recomputes the authoritative score server-side from the
// same submitted aggregates; both sides must use this exact formula.
type ScoreInput struct {
	HarshBrakingCount      int
	HarshAccelerationCount int
	CrashDetected          bool
	AverageSpeedKMH        float64
	SpeedingSeconds        float64
	MaxExcessKMH           float64
}

// Deduction weights and caps.
const (
	brakingPenalty      = 5.0
	accelerationPenalty = 4.0
	crashPenalty        = 50.0

	highAvgSpeedKMH    = 90.0
	highAvgSpeedPerKMH = 0.5
	highAvgSpeedCap    = 20.0

	speedingPerSeconds  = 30.0
	speedingDurationCap = 20.0

	excessPerKMH = 5.0
	excessCap    = 10.0
)

// Score computes the trip safety score: start at 100 and deduct. The result
// is deliberately not floor-clamped; clamping is a presentation concern.
func Score(in ScoreInput) float64 {
	score := 100.0

	score -= float64(in.HarshBrakingCount) * brakingPenalty
	score -= float64(in.HarshAccelerationCount) * accelerationPenalty

	if in.CrashDetected {
		score -= crashPenalty
	}

	if in.AverageSpeedKMH > highAvgSpeedKMH {
		score -= capAt((in.AverageSpeedKMH-highAvgSpeedKMH)*highAvgSpeedPerKMH, highAvgSpeedCap)
	}

	if in.SpeedingSeconds > 0 {
		score -= capAt(in.SpeedingSeconds/speedingPerSeconds, speedingDurationCap)
	}

	if in.MaxExcessKMH > 0 {
		score -= capAt(in.MaxExcessKMH/excessPerKMH, excessCap)
	}

	return score
}

func capAt(v, cap float64) float64 {
	if v > cap {
		return cap
	}
	return v
}
