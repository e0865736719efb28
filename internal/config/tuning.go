package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Tuning represents the engine tuning parameters. All fields are optional
// pointers so a partial JSON file only overrides what it names; the Get*
// accessors supply the defaults for everything else.
type Tuning struct {
	// Motion pipeline params
	SmoothingAlpha        *float64 `json:"smoothing_alpha,omitempty"`
	SmoothingSnapBelowKMH *float64 `json:"smoothing_snap_below_kmh,omitempty"`
	MinSampleGapSeconds   *float64 `json:"min_sample_gap_seconds,omitempty"`
	MinDisplacementMeters *float64 `json:"min_displacement_meters,omitempty"`
	MaxAccuracyMeters     *float64 `json:"max_accuracy_meters,omitempty"`
	ReferenceUpdateMeters *float64 `json:"reference_update_meters,omitempty"`

	// Event detector params
	HarshChangePercent *float64 `json:"harsh_change_percent,omitempty"`
	EventCooldown      *string  `json:"event_cooldown,omitempty"`   // duration string like "3s"
	DeltaWindowMin     *string  `json:"delta_window_min,omitempty"` // duration string like "500ms"
	DeltaWindowMax     *string  `json:"delta_window_max,omitempty"` // duration string like "5s"
	GoodAccuracyMeters *float64 `json:"good_accuracy_meters,omitempty"`
	FairAccuracyMeters *float64 `json:"fair_accuracy_meters,omitempty"`
	FairMaxGap         *string  `json:"fair_max_gap,omitempty"`
	CrashPreSpeedKMH   *float64 `json:"crash_pre_speed_kmh,omitempty"`
	CrashStopSpeedKMH  *float64 `json:"crash_stop_speed_kmh,omitempty"`
	CrashStopWindow    *string  `json:"crash_stop_window,omitempty"`

	// Inertial monitor params
	ImpactThresholdMps2 *float64 `json:"impact_threshold_mps2,omitempty"`
	ImpactDecay         *string  `json:"impact_decay,omitempty"` // duration string like "200ms"

	// Speeding monitor params
	SpeedingCadence      *string  `json:"speeding_cadence,omitempty"` // duration string like "10s"
	SpeedingToleranceKMH *float64 `json:"speeding_tolerance_kmh,omitempty"`

	// Speed limit resolver params
	QueryRadiusMeters  *float64 `json:"query_radius_meters,omitempty"`
	QueryTimeout       *string  `json:"query_timeout,omitempty"` // duration string like "5s"
	DefaultLimitKMH    *int     `json:"default_limit_kmh,omitempty"`
	PostedTrustBandKMH *int     `json:"posted_trust_band_kmh,omitempty"`
	CacheTTL           *string  `json:"cache_ttl,omitempty"` // duration string like "2m"
	CacheMaxEntries    *int     `json:"cache_max_entries,omitempty"`
	GridPrecision      *int     `json:"grid_precision,omitempty"` // decimal places of the cache key
}

// Default tuning values. These are the reference behaviour; the JSON file
// exists for field tuning, not for routine configuration.
const (
	defaultSmoothingAlpha        = 0.35
	defaultSmoothingSnapBelowKMH = 2.0
	defaultMinSampleGapSeconds   = 1.5
	defaultMinDisplacementMeters = 15.0
	defaultMaxAccuracyMeters     = 35.0
	defaultReferenceUpdateMeters = 5.0

	defaultHarshChangePercent = 30.0
	defaultGoodAccuracyMeters = 20.0
	defaultFairAccuracyMeters = 30.0
	defaultCrashPreSpeedKMH   = 20.0
	defaultCrashStopSpeedKMH  = 5.0

	defaultImpactThresholdMps2 = 39.0

	defaultSpeedingToleranceKMH = 5.0

	defaultQueryRadiusMeters  = 50.0
	defaultDefaultLimitKMH    = 50
	defaultPostedTrustBandKMH = 20
	defaultCacheMaxEntries    = 100
	defaultGridPrecision      = 3
)

// EmptyTuning returns a Tuning with all fields unset.
func EmptyTuning() *Tuning {
	return &Tuning{}
}

// LoadTuning loads a Tuning from a JSON file. Fields omitted from the JSON
// retain their defaults, so partial configs are safe.
func LoadTuning(path string) (*Tuning, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("tuning file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat tuning file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("tuning file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read tuning file: %w", err)
	}

	cfg := EmptyTuning()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse tuning JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning: %w", err)
	}
	return cfg, nil
}

// Validate checks that any set fields hold usable values.
func (t *Tuning) Validate() error {
	if t.SmoothingAlpha != nil && (*t.SmoothingAlpha <= 0 || *t.SmoothingAlpha > 1) {
		return fmt.Errorf("smoothing_alpha must be in (0, 1], got %v", *t.SmoothingAlpha)
	}
	if t.HarshChangePercent != nil && *t.HarshChangePercent <= 0 {
		return fmt.Errorf("harsh_change_percent must be positive, got %v", *t.HarshChangePercent)
	}
	if t.ImpactThresholdMps2 != nil && *t.ImpactThresholdMps2 <= 0 {
		return fmt.Errorf("impact_threshold_mps2 must be positive, got %v", *t.ImpactThresholdMps2)
	}
	if t.DefaultLimitKMH != nil && *t.DefaultLimitKMH <= 0 {
		return fmt.Errorf("default_limit_kmh must be positive, got %v", *t.DefaultLimitKMH)
	}
	if t.CacheMaxEntries != nil && *t.CacheMaxEntries <= 0 {
		return fmt.Errorf("cache_max_entries must be positive, got %v", *t.CacheMaxEntries)
	}
	if t.GridPrecision != nil && (*t.GridPrecision < 0 || *t.GridPrecision > 6) {
		return fmt.Errorf("grid_precision must be in [0, 6], got %v", *t.GridPrecision)
	}
	for name, d := range map[string]*string{
		"event_cooldown":    t.EventCooldown,
		"delta_window_min":  t.DeltaWindowMin,
		"delta_window_max":  t.DeltaWindowMax,
		"fair_max_gap":      t.FairMaxGap,
		"crash_stop_window": t.CrashStopWindow,
		"impact_decay":      t.ImpactDecay,
		"speeding_cadence":  t.SpeedingCadence,
		"query_timeout":     t.QueryTimeout,
		"cache_ttl":         t.CacheTTL,
	} {
		if d == nil {
			continue
		}
		if _, err := time.ParseDuration(*d); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func (t *Tuning) getFloat(p *float64, def float64) float64 {
	if p != nil {
		return *p
	}
	return def
}

func (t *Tuning) getInt(p *int, def int) int {
	if p != nil {
		return *p
	}
	return def
}

func (t *Tuning) getDuration(p *string, def time.Duration) time.Duration {
	if p != nil {
		if d, err := time.ParseDuration(*p); err == nil {
			return d
		}
	}
	return def
}

func (t *Tuning) GetSmoothingAlpha() float64 {
	return t.getFloat(t.SmoothingAlpha, defaultSmoothingAlpha)
}

func (t *Tuning) GetSmoothingSnapBelowKMH() float64 {
	return t.getFloat(t.SmoothingSnapBelowKMH, defaultSmoothingSnapBelowKMH)
}

func (t *Tuning) GetMinSampleGapSeconds() float64 {
	return t.getFloat(t.MinSampleGapSeconds, defaultMinSampleGapSeconds)
}

func (t *Tuning) GetMinDisplacementMeters() float64 {
	return t.getFloat(t.MinDisplacementMeters, defaultMinDisplacementMeters)
}

func (t *Tuning) GetMaxAccuracyMeters() float64 {
	return t.getFloat(t.MaxAccuracyMeters, defaultMaxAccuracyMeters)
}

func (t *Tuning) GetReferenceUpdateMeters() float64 {
	return t.getFloat(t.ReferenceUpdateMeters, defaultReferenceUpdateMeters)
}

func (t *Tuning) GetHarshChangePercent() float64 {
	return t.getFloat(t.HarshChangePercent, defaultHarshChangePercent)
}

func (t *Tuning) GetEventCooldown() time.Duration {
	return t.getDuration(t.EventCooldown, 3*time.Second)
}

func (t *Tuning) GetDeltaWindowMin() time.Duration {
	return t.getDuration(t.DeltaWindowMin, 500*time.Millisecond)
}

func (t *Tuning) GetDeltaWindowMax() time.Duration {
	return t.getDuration(t.DeltaWindowMax, 5*time.Second)
}

func (t *Tuning) GetGoodAccuracyMeters() float64 {
	return t.getFloat(t.GoodAccuracyMeters, defaultGoodAccuracyMeters)
}

func (t *Tuning) GetFairAccuracyMeters() float64 {
	return t.getFloat(t.FairAccuracyMeters, defaultFairAccuracyMeters)
}

func (t *Tuning) GetFairMaxGap() time.Duration {
	return t.getDuration(t.FairMaxGap, 3*time.Second)
}

func (t *Tuning) GetCrashPreSpeedKMH() float64 {
	return t.getFloat(t.CrashPreSpeedKMH, defaultCrashPreSpeedKMH)
}

func (t *Tuning) GetCrashStopSpeedKMH() float64 {
	return t.getFloat(t.CrashStopSpeedKMH, defaultCrashStopSpeedKMH)
}

func (t *Tuning) GetCrashStopWindow() time.Duration {
	return t.getDuration(t.CrashStopWindow, 2*time.Second)
}

func (t *Tuning) GetImpactThresholdMps2() float64 {
	return t.getFloat(t.ImpactThresholdMps2, defaultImpactThresholdMps2)
}

func (t *Tuning) GetImpactDecay() time.Duration {
	return t.getDuration(t.ImpactDecay, 200*time.Millisecond)
}

func (t *Tuning) GetSpeedingCadence() time.Duration {
	return t.getDuration(t.SpeedingCadence, 10*time.Second)
}

func (t *Tuning) GetSpeedingToleranceKMH() float64 {
	return t.getFloat(t.SpeedingToleranceKMH, defaultSpeedingToleranceKMH)
}

func (t *Tuning) GetQueryRadiusMeters() float64 {
	return t.getFloat(t.QueryRadiusMeters, defaultQueryRadiusMeters)
}

func (t *Tuning) GetQueryTimeout() time.Duration {
	return t.getDuration(t.QueryTimeout, 5*time.Second)
}

func (t *Tuning) GetDefaultLimitKMH() int {
	return t.getInt(t.DefaultLimitKMH, defaultDefaultLimitKMH)
}

func (t *Tuning) GetPostedTrustBandKMH() int {
	return t.getInt(t.PostedTrustBandKMH, defaultPostedTrustBandKMH)
}

func (t *Tuning) GetCacheTTL() time.Duration {
	return t.getDuration(t.CacheTTL, 2*time.Minute)
}

func (t *Tuning) GetCacheMaxEntries() int {
	return t.getInt(t.CacheMaxEntries, defaultCacheMaxEntries)
}

func (t *Tuning) GetGridPrecision() int {
	return t.getInt(t.GridPrecision, defaultGridPrecision)
}
