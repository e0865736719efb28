// Package units provides speed unit conversions and posted-limit tag parsing.
package units

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Unit constants
const (
	MPS = "mps"
	MPH = "mph"
	KMH = "kmh"
)

// Conversion factors. Speeds inside the engine are km/h.
const (
	KMHPerMPS = 3.6
	KMHPerMPH = 1.60934
)

// MPSToKMH converts metres per second to kilometres per hour.
func MPSToKMH(v float64) float64 { return v * KMHPerMPS }

// MPHToKMH converts miles per hour to kilometres per hour.
func MPHToKMH(v float64) float64 { return v * KMHPerMPH }

// KMHToMPS converts kilometres per hour to metres per second.
func KMHToMPS(v float64) float64 { return v / KMHPerMPS }

// ParsePostedLimit parses an OSM-style maxspeed tag value and returns the
// limit in whole km/h. Accepted forms: "50", "50 km/h", "30 mph", "30mph".
// Non-numeric values ("walk", "none", "signals") are rejected; road-data
// tags are untrusted input and anything unparseable is treated as absent.
func ParsePostedLimit(tag string) (int, error) {
	s := strings.ToLower(strings.TrimSpace(tag))
	if s == "" {
		return 0, fmt.Errorf("empty maxspeed tag")
	}

	mph := false
	switch {
	case strings.HasSuffix(s, "mph"):
		mph = true
		s = strings.TrimSpace(strings.TrimSuffix(s, "mph"))
	case strings.HasSuffix(s, "km/h"):
		s = strings.TrimSpace(strings.TrimSuffix(s, "km/h"))
	case strings.HasSuffix(s, "kmh"):
		s = strings.TrimSpace(strings.TrimSuffix(s, "kmh"))
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable maxspeed tag %q", tag)
	}
	if v <= 0 {
		return 0, fmt.Errorf("non-positive maxspeed %q", tag)
	}

	if mph {
		v = MPHToKMH(v)
	}
	return int(math.Round(v)), nil
}
