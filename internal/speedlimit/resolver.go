// Package speedlimit resolves the speed limit in force at a coordinate.
//
// Resolution queries an external road-data source for the nearest road and
// its posted limit, then validates the posted value against the jurisdiction
// legal limit for the road class. Posted data is untrusted: a posted limit
// far from the legal limit is assumed to be a mapping error and the legal
// limit wins. Resolution never fails; every error path degrades to a usable
// default so trip tracking is never interrupted.
package speedlimit

import (
	"context"

	"github.com/banshee-data/trip.report/internal/config"
	"github.com/banshee-data/trip.report/internal/monitoring"
	"github.com/banshee-data/trip.report/internal/roads"
	"github.com/banshee-data/trip.report/internal/units"
)

// Source identifies where a resolved limit came from.
type Source string

const (
	// SourceOSM means the posted limit from the road data was trusted.
	SourceOSM Source = "osm"
	// SourceLegal means no posted limit existed; the legal limit applies.
	SourceLegal Source = "legal"
	// SourceLegalValidated means a posted limit existed but was implausible
	// against the legal limit and was rejected.
	SourceLegalValidated Source = "legal_validated"
	// SourceDefault means no road was found near the coordinate.
	SourceDefault Source = "default"
	// SourceDefaultError means the road query failed.
	SourceDefaultError Source = "default_error"
)

// Info is an immutable resolved speed limit.
type Info struct {
	LimitKMH      int
	Source        Source
	PostedKMH     int // raw posted limit in km/h, 0 when absent
	RoadClass     string
	LegalLimitKMH int
}

// legalLimits maps OSM highway classes to the jurisdiction default limit
// in km/h. Classes missing from the table use defaultLegalLimitKMH.
var legalLimits = map[string]int{
	"motorway":       120,
	"motorway_link":  80,
	"trunk":          100,
	"trunk_link":     80,
	"primary":        80,
	"primary_link":   60,
	"secondary":      80,
	"secondary_link": 60,
	"tertiary":       60,
	"unclassified":   50,
	"residential":    50,
	"living_street":  20,
	"service":        30,
}

const defaultLegalLimitKMH = 50

// LegalLimitForClass returns the jurisdiction legal limit for a road class.
func LegalLimitForClass(class string) int {
	if v, ok := legalLimits[class]; ok {
		return v
	}
	return defaultLegalLimitKMH
}

// Resolver resolves speed limits via a road-data Querier.
type Resolver struct {
	querier roads.Querier
	tuning  *config.Tuning
}

// NewResolver returns a Resolver using the given road-data source.
// A nil tuning uses defaults.
func NewResolver(querier roads.Querier, tuning *config.Tuning) *Resolver {
	if tuning == nil {
		tuning = config.EmptyTuning()
	}
	return &Resolver{querier: querier, tuning: tuning}
}

// Resolve returns the speed limit in force at the coordinate. It never
// returns an error: road-data failures degrade to the global default limit.
func (r *Resolver) Resolve(ctx context.Context, lat, lng float64) Info {
	queryCtx, cancel := context.WithTimeout(ctx, r.tuning.GetQueryTimeout())
	defer cancel()

	found, err := r.querier.NearbyRoads(queryCtx, lat, lng, r.tuning.GetQueryRadiusMeters())
	if err != nil {
		monitoring.Logf("speedlimit: road query failed at (%.5f, %.5f): %v", lat, lng, err)
		def := r.tuning.GetDefaultLimitKMH()
		return Info{LimitKMH: def, Source: SourceDefaultError, LegalLimitKMH: def}
	}
	if len(found) == 0 {
		def := r.tuning.GetDefaultLimitKMH()
		return Info{LimitKMH: def, Source: SourceDefault, LegalLimitKMH: def}
	}

	road := found[0]
	legal := LegalLimitForClass(road.Class)

	info := Info{
		RoadClass:     road.Class,
		LegalLimitKMH: legal,
	}

	posted := 0
	if road.MaxSpeedTag != "" {
		if v, err := units.ParsePostedLimit(road.MaxSpeedTag); err == nil {
			posted = v
		} else {
			monitoring.Logf("speedlimit: ignoring maxspeed tag %q: %v", road.MaxSpeedTag, err)
		}
	}

	if posted == 0 {
		info.LimitKMH = legal
		info.Source = SourceLegal
		return info
	}

	info.PostedKMH = posted
	band := r.tuning.GetPostedTrustBandKMH()
	if diff := posted - legal; diff >= -band && diff <= band {
		info.LimitKMH = posted
		info.Source = SourceOSM
	} else {
		// Posted value implausibly far from the legal limit: likely a
		// road-data error, fall back to the legal limit.
		info.LimitKMH = legal
		info.Source = SourceLegalValidated
	}
	return info
}
